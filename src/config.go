package lwan

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"
)

// Config enumerates every recognized option. Unknown keys in a config file
// are rejected at load time; unsupported values are rejected by Validate.
type Config struct {
	Device        string  `json:"device"`
	EmbedFile     string  `json:"embed_file"`
	Optimizer     string  `json:"optimizer"` // "sgd" or "adam"
	LearningRate  float64 `json:"learning_rate"`
	Momentum      float64 `json:"momentum"`
	WeightDecay   float64 `json:"weight_decay"`
	Dropout       float64 `json:"dropout"`
	NumFilterMaps int     `json:"num_filter_maps"`
	FilterSize    int     `json:"filter_size"`
	BatchSize     int     `json:"batch_size"`
	Epochs        int     `json:"epochs"`
	Patience      int     `json:"patience"`
	ValMetric     string  `json:"val_metric"`
	ResultDir     string  `json:"result_dir"`
	RunName       string  `json:"run_name"`
	Seed          int64   `json:"seed"`
}

// DefaultConfig returns a config with every option set to its default.
// RunName is left empty; Validate assigns a generated one.
func DefaultConfig() *Config {
	return &Config{
		Device:        "cpu",
		Optimizer:     "adam",
		LearningRate:  0.001,
		Momentum:      0.9,
		WeightDecay:   0,
		Dropout:       0.2,
		NumFilterMaps: 50,
		FilterSize:    9,
		BatchSize:     16,
		Epochs:        50,
		Patience:      5,
		ValMetric:     "micro_f1",
		ResultDir:     "runs",
		Seed:          1337,
	}
}

// LoadConfig reads a JSON config file over the defaults, rejecting unknown keys.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errorf("open config: %w", err)
	}
	defer f.Close()

	config := DefaultConfig()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(config); err != nil {
		return nil, errorf("parse config %s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks every option and fills the generated run name.
func (c *Config) Validate() error {
	if c.Device != "cpu" {
		return errorf("unsupported device %q (only \"cpu\" is available)", c.Device)
	}
	if c.Optimizer != "sgd" && c.Optimizer != "adam" {
		return errorf("%w: %q", ErrUnsupportedOptimizer, c.Optimizer)
	}
	if c.LearningRate <= 0 {
		return errorf("learning_rate must be > 0, got %g", c.LearningRate)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.NumFilterMaps <= 0 {
		return errorf("num_filter_maps must be > 0, got %d", c.NumFilterMaps)
	}
	if c.FilterSize <= 0 || c.FilterSize%2 == 0 {
		return errorf("filter_size must be a positive odd number, got %d", c.FilterSize)
	}
	if c.BatchSize <= 0 {
		return errorf("batch_size must be > 0, got %d", c.BatchSize)
	}
	if c.Epochs <= 0 {
		return errorf("epochs must be > 0, got %d", c.Epochs)
	}
	if c.Patience <= 0 {
		return errorf("patience must be > 0, got %d", c.Patience)
	}
	if c.ValMetric == "" {
		return errorf("val_metric is required")
	}
	if c.ResultDir == "" {
		return errorf("result_dir is required")
	}
	if c.RunName == "" {
		c.RunName = "run-" + uuid.NewString()[:8]
	}
	return nil
}

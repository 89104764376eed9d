package lwan

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// AverageMeter computes and stores the running average of a scalar.
type AverageMeter struct {
	val   float64
	sum   float64
	count int
	avg   float64
}

func (a *AverageMeter) Reset() {
	*a = AverageMeter{}
}

func (a *AverageMeter) Update(val float64) {
	a.val = val
	a.sum += val
	a.count++
	a.avg = a.sum / float64(a.count)
}

func (a *AverageMeter) Avg() float64 { return a.avg }

// Timer measures elapsed wall time for an epoch.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Reset() {
	t.start = time.Now()
}

func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// DumpLog appends one metric snapshot for a split ("train"/"val"/"test") to
// <resultDir>/<runName>/logs.json. The file is a JSON object keyed by split,
// each holding the ordered snapshots; every append is a read-merge-write of
// the whole file, which is not safe under concurrent writers.
func DumpLog(config *Config, metrics map[string]float64, split string) error {
	logPath := filepath.Join(config.ResultDir, config.RunName, "logs.json")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return errorf("create log dir: %w", err)
	}

	result := make(map[string][]map[string]float64)
	if raw, err := os.ReadFile(logPath); err == nil {
		if err := json.Unmarshal(raw, &result); err != nil {
			return errorf("parse %s: %w", logPath, err)
		}
	}
	result[split] = append(result[split], metrics)

	raw, err := json.Marshal(result)
	if err != nil {
		return errorf("encode log: %w", err)
	}
	if err := os.WriteFile(logPath, raw, 0o644); err != nil {
		return errorf("write %s: %w", logPath, err)
	}
	return nil
}

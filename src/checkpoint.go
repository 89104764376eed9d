package lwan

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const checkpointVersion = 1

// TensorData is one serialized parameter tensor.
type TensorData struct {
	Shape []int
	Data  []float64
}

// Checkpoint is the versioned, immutable snapshot of everything needed to
// resume a run: continuing from a loaded checkpoint is behaviorally
// equivalent to never having stopped.
type Checkpoint struct {
	Version    int
	Epoch      int
	RunName    string
	StateDict  map[string]TensorData
	WordDict   VocabularyData
	Classes    []string
	Optimizer  OptimizerState
	BestMetric float64
}

// checkpointPath returns <resultDir>/<runName>/model_<slot>.pt.
func checkpointPath(config *Config, slot string) string {
	return filepath.Join(config.ResultDir, config.RunName, "model_"+slot+".pt")
}

// writeCheckpoint serializes a checkpoint with a full-file replace: the
// record is written to a temp file and renamed over the destination, so a
// reader never observes a half-written checkpoint.
func writeCheckpoint(path string, ckpt *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errorf("create checkpoint dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ckpt-*")
	if err != nil {
		return errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(ckpt); err != nil {
		tmp.Close()
		return errorf("encode checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// readCheckpoint deserializes a checkpoint. Failures are fatal to the caller
// and never retried here.
func readCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCheckpoint, err)
	}
	defer f.Close()

	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrBadCheckpoint, path, err)
	}
	if ckpt.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadCheckpoint, ckpt.Version, checkpointVersion)
	}
	return &ckpt, nil
}

// copyCheckpoint duplicates the "last" file to the "best" path byte for byte,
// so both slots are identical at the moment of improvement.
func copyCheckpoint(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errorf("copy checkpoint: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".ckpt-*")
	if err != nil {
		return errorf("copy checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return errorf("copy checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return errorf("copy checkpoint: %w", err)
	}
	return os.Rename(tmp.Name(), dst)
}

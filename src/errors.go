package lwan

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal configuration and IO failure modes.
var (
	// ErrUnsupportedOptimizer - the configured optimizer name is unknown.
	ErrUnsupportedOptimizer = errors.New("lwan: unsupported optimizer")

	// ErrEmbedSource - no usable pretrained embedding source could be
	// resolved (neither a readable file nor a recognized named source).
	ErrEmbedSource = errors.New("lwan: unresolvable embedding source")

	// ErrBadCheckpoint - a checkpoint file is missing, corrupt, or from an
	// incompatible format version.
	ErrBadCheckpoint = errors.New("lwan: bad checkpoint")
)

// errorf creates a formatted error prefixed with the module name.
// %w works as with fmt.Errorf.
func errorf(format string, args ...interface{}) error {
	return fmt.Errorf("lwan: "+format, args...)
}

package graph

import "fmt"

// ConfigError is a fatal graph-construction error, reported with the label
// of the offending node. Nothing downstream of a ConfigError runs.
type ConfigError struct {
	Label string
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("node %q: %v", e.Label, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *ConfigError) Unwrap() error { return e.Err }

// Errorf builds a ConfigError for the given node label.
func Errorf(label, format string, args ...any) *ConfigError {
	return &ConfigError{Label: label, Err: fmt.Errorf(format, args...)}
}

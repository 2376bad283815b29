package app

import "errors"

// Config holds everything an App instance needs to run.
type Config struct {
	GraphPath string // .hcl file or directory of .hcl files
	TrajPath  string // XYZ trajectory, plain or gzipped

	Steps          int    // stop after this many frames; 0 means the whole trajectory
	Workers        int    // worker goroutines per task loop
	CheckpointPath string // sqlite checkpoint file; empty disables checkpointing
	RunID          string // resume this run's checkpoint; empty starts fresh
	OutputDir      string // root for relative output file paths; empty means the working directory

	LogFormat string
	LogLevel  string
}

// NewConfig validates a configuration.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.GraphPath == "" {
		return nil, errors.New("GraphPath is a required configuration field and cannot be empty")
	}
	if cfg.TrajPath == "" {
		return nil, errors.New("TrajPath is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &cfg, nil
}

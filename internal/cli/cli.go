// Package cli parses command-line arguments, validates user input, and
// handles process-level concerns like exit codes. It translates CLI flags
// into the application's internal configuration.
package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/agoscinski/colvar/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("colvar", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
colvar - collective-variable evaluation over molecular trajectories.

Usage:
  colvar [options] [GRAPH_PATH]

Arguments:
  GRAPH_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	graphFlag := flagSet.String("graph", "", "Path to the graph file or directory.")
	trajFlag := flagSet.String("traj", "", "Path to the XYZ trajectory (.xyz or .xyz.gz).")
	stepsFlag := flagSet.Int("steps", 0, "Stop after this many frames. 0 runs the whole trajectory.")
	workersFlag := flagSet.Int("workers", 1, "Number of worker goroutines per task loop.")
	checkpointFlag := flagSet.String("checkpoint", "", "Path to the sqlite checkpoint file. Empty disables checkpointing.")
	runIDFlag := flagSet.String("run-id", "", "Resume the checkpointed run with this identity. Empty starts a fresh run.")
	outputDirFlag := flagSet.String("output-dir", "", "Root directory for relative output file paths.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	graphPath := *graphFlag
	if graphPath == "" && flagSet.NArg() > 0 {
		graphPath = flagSet.Arg(0)
	}
	if graphPath == "" {
		flagSet.Usage()
		return nil, true, nil
	}
	if *trajFlag == "" {
		return nil, false, &ExitError{Code: 2, Message: "--traj is required"}
	}

	cfg, err := app.NewConfig(app.Config{
		GraphPath:      graphPath,
		TrajPath:       *trajFlag,
		Steps:          *stepsFlag,
		Workers:        *workersFlag,
		CheckpointPath: *checkpointFlag,
		RunID:          *runIDFlag,
		OutputDir:      *outputDirFlag,
		LogFormat:      *logFormatFlag,
		LogLevel:       *logLevelFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}

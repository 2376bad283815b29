package cli_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoscinski/colvar/internal/cli"
)

func TestParseNoArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	cfg, shouldExit, err := cli.Parse([]string{}, &out)
	require.NoError(t, err)
	require.True(t, shouldExit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "Usage:")
}

func TestParseHelpFlag(t *testing.T) {
	var out bytes.Buffer
	cfg, shouldExit, err := cli.Parse([]string{"--help"}, &out)
	require.NoError(t, err)
	require.True(t, shouldExit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "colvar")
}

func TestParseMissingTrajectory(t *testing.T) {
	var out bytes.Buffer
	_, _, err := cli.Parse([]string{"graph.hcl"}, &out)
	require.Error(t, err)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
	require.Contains(t, exitErr.Message, "--traj")
}

func TestParseFullFlagSet(t *testing.T) {
	var out bytes.Buffer
	cfg, shouldExit, err := cli.Parse([]string{
		"--graph", "graphs/",
		"--traj", "run.xyz.gz",
		"--steps", "100",
		"--workers", "8",
		"--checkpoint", "state.db",
		"--run-id", "abc",
		"--output-dir", "out",
		"--log-format", "json",
		"--log-level", "debug",
	}, &out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	require.Equal(t, "graphs/", cfg.GraphPath)
	require.Equal(t, "run.xyz.gz", cfg.TrajPath)
	require.Equal(t, 100, cfg.Steps)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "state.db", cfg.CheckpointPath)
	require.Equal(t, "abc", cfg.RunID)
	require.Equal(t, "out", cfg.OutputDir)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, "debug", cfg.LogLevel)
}

func TestParsePositionalGraphPath(t *testing.T) {
	var out bytes.Buffer
	cfg, shouldExit, err := cli.Parse([]string{"--traj", "run.xyz", "graph.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, shouldExit)
	require.Equal(t, "graph.hcl", cfg.GraphPath)
}

func TestParseRejectsUnknownFlag(t *testing.T) {
	var out bytes.Buffer
	_, _, err := cli.Parse([]string{"--frobnicate"}, &out)
	require.Error(t, err)
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

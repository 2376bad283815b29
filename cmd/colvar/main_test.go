package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoscinski/colvar/internal/cli"
	"github.com/agoscinski/colvar/internal/testutil"
)

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, []string{}))
	require.Contains(t, out.String(), "Usage:")
}

func TestRunMissingTrajectoryReturnsExitError(t *testing.T) {
	var out bytes.Buffer
	err := run(&out, []string{"graph.hcl"})
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestRunEndToEnd(t *testing.T) {
	dir := testutil.WriteFiles(t, map[string]string{
		"graph/main.hcl": `
node "distance" "d1" {
  atoms = [0, 1]
}

node "print" "out" {
  args = ["d1"]
  file = "colvar.dat"
}
`,
		"traj.xyz": testutil.XYZFrame([][3]float64{{0, 0, 0}, {3, 4, 0}}, nil),
	})

	var out bytes.Buffer
	err := run(&out, []string{
		"--graph", filepath.Join(dir, "graph"),
		"--traj", filepath.Join(dir, "traj.xyz"),
		"--output-dir", dir,
		"--log-level", "error",
	})
	require.NoError(t, err)
}

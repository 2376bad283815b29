// Package testutil provides the shared harness for integration tests: a
// temp-dir fixture writer, an XYZ generator and a full app runner with
// captured log output.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agoscinski/colvar/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	Dir       string
}

// WriteFiles materializes the given relative path to content map under a
// fresh temp directory and returns its root.
func WriteFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}
	return tmpDir
}

// XYZFrame renders one XYZ frame. A nil box yields an empty comment line; a
// length-3 box an orthorhombic cell; a length-9 box a full cell matrix.
func XYZFrame(positions [][3]float64, box []float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\n", len(positions))
	if len(box) == 0 {
		b.WriteString("frame\n")
	} else {
		parts := make([]string, len(box))
		for i, x := range box {
			parts[i] = fmt.Sprintf("%g", x)
		}
		b.WriteString(strings.Join(parts, " ") + "\n")
	}
	for _, p := range positions {
		fmt.Fprintf(&b, "X %.10f %.10f %.10f\n", p[0], p[1], p[2])
	}
	return b.String()
}

// RunIntegrationTest writes the fixture files, builds the app on the graph
// under "graph/" and runs it over the trajectory at "traj.xyz". Fixtures
// provide both through the files map.
func RunIntegrationTest(t *testing.T, files map[string]string) *HarnessResult {
	t.Helper()

	tmpDir := WriteFiles(t, files)

	cfg, err := app.NewConfig(app.Config{
		GraphPath: filepath.Join(tmpDir, "graph"),
		TrajPath:  filepath.Join(tmpDir, "traj.xyz"),
		Workers:   4,
		OutputDir: tmpDir,
		LogLevel:  "debug",
		LogFormat: "text",
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}
	testApp, err := app.NewApp(logBuffer, cfg)
	if err != nil {
		return &HarnessResult{LogOutput: logBuffer.String(), Err: err, Dir: tmpDir}
	}
	t.Cleanup(func() { testApp.Close() })

	runErr := testApp.Run(context.Background())

	if os.Getenv("COLVAR_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		Dir:       tmpDir,
	}
}

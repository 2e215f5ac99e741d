package workflow

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"routinely/internal/config"
	"routinely/internal/logging"
)

// testConfig returns a config rooted in a fresh temp dir with every wrapped
// tool either missing or pointed at a harmless binary.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmp := t.TempDir()
	return &config.Config{
		ProjectRoot: tmp,
		LogDir:      tmp,
		LogFile:     filepath.Join(tmp, "run.log"),
		LockDir:     filepath.Join(tmp, "run.lock"),
		Tools: config.Tools{
			DumpTool:      "missing-dump-tool-xyz",
			DumpCleanArgs: []string{"batch", "clean"},
			DumpRunArgs:   []string{"batch", "run"},
			Formatter:     []string{"true"},
			BackupCommand: []string{"true"},
			Git:           "git",
		},
		GitPush:    false,
		MaxWorkers: 2,
		SourceExt:  ".go",
	}
}

// newTestRunner builds a Runner whose log output lands in the returned
// buffer. The working directory is restored after the test because Run
// enters the project root.
func newTestRunner(t *testing.T, cfg *config.Config) (*Runner, *bytes.Buffer) {
	t.Helper()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	buf := &bytes.Buffer{}
	sink := logging.New(logging.Options{Console: buf})
	return NewRunner(cfg, sink), buf
}

// exitRecorder captures exit codes from fatal escalation paths, which may
// fire from the deadline timer goroutine.
type exitRecorder struct {
	mu    sync.Mutex
	codes []int
}

func (e *exitRecorder) record(code int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.codes = append(e.codes, code)
}

func (e *exitRecorder) recorded() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.codes...)
}

// writeSourceFile drops a trivial source file into the project root.
func writeSourceFile(t *testing.T, root, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("package x\n"), 0o644))
}

package execx

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routinely/internal/logging"
)

// fatalRecorder captures fatal escalation without terminating the test
// binary.
type fatalRecorder struct {
	codes []int
}

func (f *fatalRecorder) shutdown(code int) {
	f.codes = append(f.codes, code)
}

func newTestExecutor(t *testing.T) (*Executor, *fatalRecorder, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	sink := logging.New(logging.Options{Console: buf})
	rec := &fatalRecorder{}
	return New(sink, t.TempDir(), time.Minute, rec.shutdown), rec, buf
}

func TestCommand_Normalize(t *testing.T) {
	tests := []struct {
		name        string
		cmd         Command
		wantArgv    []string
		wantDisplay string
		wantErr     bool
	}{
		{
			name:        "argv passes through",
			cmd:         Argv("echo", "hello world"),
			wantArgv:    []string{"echo", "hello world"},
			wantDisplay: "echo hello world",
		},
		{
			name:        "line splits with quoting rules",
			cmd:         Line(`echo "hello world"`),
			wantArgv:    []string{"echo", "hello world"},
			wantDisplay: `echo "hello world"`,
		},
		{
			name:        "shell line runs through sh",
			cmd:         ShellLine("echo a | cat"),
			wantArgv:    []string{"sh", "-c", "echo a | cat"},
			wantDisplay: "echo a | cat",
		},
		{
			name:        "argv with shell gets quoted join",
			cmd:         Command{Args: []string{"echo", "two words"}, Shell: true},
			wantArgv:    []string{"sh", "-c", "echo 'two words'"},
			wantDisplay: "echo 'two words'",
		},
		{
			name:    "empty command is an error",
			cmd:     Command{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			argv, display, err := tt.cmd.normalize()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantArgv, argv)
			assert.Equal(t, tt.wantDisplay, display)
		})
	}
}

func TestExecutor_Success(t *testing.T) {
	e, rec, buf := newTestExecutor(t)

	res := e.Run(context.Background(), "say hello", Argv("echo", "hello"), Options{})

	assert.True(t, res.Success)
	assert.Equal(t, ClassSuccess, res.Class)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Empty(t, rec.codes)
	assert.Contains(t, buf.String(), ">>> say hello")
	assert.Contains(t, buf.String(), "INFO:   hello")
}

func TestExecutor_StderrRelayedAsWarning(t *testing.T) {
	e, _, buf := newTestExecutor(t)

	res := e.Run(context.Background(), "complain", ShellLine("echo oops >&2"), Options{})

	assert.True(t, res.Success)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Contains(t, buf.String(), "WARN:   oops")
}

func TestExecutor_Stdin(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	res := e.Run(context.Background(), "pipe through", Argv("cat"), Options{Stdin: "from stdin"})

	assert.True(t, res.Success)
	assert.Equal(t, "from stdin", res.Stdout)
}

func TestExecutor_NonZeroExit(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	res := e.Run(context.Background(), "fail", ShellLine("exit 7"), Options{})

	assert.False(t, res.Success)
	assert.Equal(t, ClassExit, res.Class)
	assert.Equal(t, 7, res.ExitCode)
	assert.Empty(t, rec.codes)
}

func TestExecutor_NonZeroExitFatal(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	res := e.Run(context.Background(), "fail hard", ShellLine("exit 7"), Options{Fatal: true})

	assert.False(t, res.Success)
	assert.Equal(t, []int{7}, rec.codes)
}

func TestExecutor_Timeout(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	res := e.Run(context.Background(), "slow", Argv("sleep", "5"), Options{Timeout: 50 * time.Millisecond})

	assert.False(t, res.Success)
	assert.Equal(t, ClassTimeout, res.Class)
	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.Empty(t, rec.codes)
}

func TestExecutor_TimeoutBoundsToolsWithChildren(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	// The background sleep inherits the output pipes; the timeout must
	// still bound the whole invocation, not just the direct child.
	start := time.Now()
	res := e.Run(context.Background(), "spawner", ShellLine("sleep 4 & sleep 4"), Options{Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	assert.False(t, res.Success)
	assert.Equal(t, ClassTimeout, res.Class)
	assert.Equal(t, ExitTimeout, res.ExitCode)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Empty(t, rec.codes)
}

func TestExecutor_TimeoutFatal(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	e.Run(context.Background(), "slow", Argv("sleep", "5"), Options{Timeout: 50 * time.Millisecond, Fatal: true})

	assert.Equal(t, []int{ExitTimeout}, rec.codes)
}

func TestExecutor_NotFound(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	res := e.Run(context.Background(), "ghost", Argv("definitely-not-a-real-tool-xyz"), Options{})

	assert.False(t, res.Success)
	assert.Equal(t, ClassNotFound, res.Class)
	assert.Equal(t, ExitNotFound, res.ExitCode)
	assert.Empty(t, rec.codes)
}

func TestExecutor_NotFoundFatal(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	e.Run(context.Background(), "ghost", Argv("definitely-not-a-real-tool-xyz"), Options{Fatal: true})

	assert.Equal(t, []int{ExitNotFound}, rec.codes)
}

func TestExecutor_EmptyCommandIsInternalFailure(t *testing.T) {
	e, rec, _ := newTestExecutor(t)

	res := e.Run(context.Background(), "nothing", Command{}, Options{})

	assert.False(t, res.Success)
	assert.Equal(t, ClassInternal, res.Class)
	assert.Empty(t, rec.codes)
}

func TestExecutor_Exists(t *testing.T) {
	e, _, _ := newTestExecutor(t)

	assert.True(t, e.Exists("sh"))
	assert.False(t, e.Exists("definitely-not-a-real-tool-xyz"))
}

func TestExecutor_WorkingDirectory(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	dir := t.TempDir()

	res := e.Run(context.Background(), "where am i", Argv("pwd"), Options{Dir: dir})

	assert.True(t, res.Success)
	assert.Contains(t, res.Stdout, dir)
}

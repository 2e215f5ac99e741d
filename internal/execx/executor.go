// Package execx runs external tools on behalf of workflow steps.
//
// The [Executor] launches a process with a bounded timeout, captures stdout
// and stderr, relays both to the logging sink line by line, and classifies
// the outcome. Commands marked fatal escalate failure into an immediate
// whole-process shutdown through an injected callback; non-fatal commands
// always come back as a [Result], never as an error or a panic.
//
// Dry-run mode does not suppress execution here. Wrapped tools implement
// their own preview behavior, so callers either skip the invocation or pass
// the tool's preview flag through.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"

	"routinely/internal/logging"
)

// Classification is the outcome category of one invocation.
type Classification int

const (
	// ClassSuccess means the process exited zero.
	ClassSuccess Classification = iota
	// ClassExit means the process exited non-zero.
	ClassExit
	// ClassTimeout means the per-command timeout expired.
	ClassTimeout
	// ClassNotFound means the executable could not be located.
	ClassNotFound
	// ClassInternal covers any other launch or wait failure.
	ClassInternal
)

// Exit codes used when a fatal command escalates to process shutdown.
const (
	ExitTimeout  = 124
	ExitNotFound = 127
)

// waitDelay bounds the wait for the output pipes after cancellation, in
// case a descendant escaped the process group and still holds them.
const waitDelay = time.Second

// Result is the outcome of one external-process invocation.
//
// It is constructed per call and consumed immediately by the invoking step;
// nothing here is persisted.
type Result struct {
	Success  bool
	Stdout   string
	Stderr   string
	ExitCode int
	Class    Classification
}

// Command is the normalized command representation. Callers may supply an
// argument list or a single string; both forms work with and without shell
// interpretation.
type Command struct {
	Args  []string
	Line  string
	Shell bool
}

// Argv builds a Command from an argument list.
func Argv(args ...string) Command {
	return Command{Args: args}
}

// Line builds a Command from a single string, split into arguments with
// shell quoting rules but executed without a shell.
func Line(line string) Command {
	return Command{Line: line}
}

// ShellLine builds a Command executed through "sh -c".
func ShellLine(line string) Command {
	return Command{Line: line, Shell: true}
}

// normalize reduces the two representations to the argv actually launched
// plus a display form for logging.
func (c Command) normalize() (argv []string, display string, err error) {
	switch {
	case c.Shell:
		line := c.Line
		if line == "" {
			line = shellJoin(c.Args)
		}
		if line == "" {
			return nil, "", errors.New("empty command")
		}
		return []string{"sh", "-c", line}, line, nil
	case len(c.Args) > 0:
		return c.Args, strings.Join(c.Args, " "), nil
	case c.Line != "":
		args, splitErr := shlex.Split(c.Line)
		if splitErr != nil {
			return nil, "", fmt.Errorf("split command %q: %w", c.Line, splitErr)
		}
		if len(args) == 0 {
			return nil, "", errors.New("empty command")
		}
		return args, c.Line, nil
	default:
		return nil, "", errors.New("empty command")
	}
}

// shellJoin quotes an argument list for "sh -c".
func shellJoin(args []string) string {
	quoted := make([]string, 0, len(args))
	for _, a := range args {
		if a == "" || strings.ContainsAny(a, " \t\n\"'\\$&|;<>()*?[]#~%") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		quoted = append(quoted, a)
	}
	return strings.Join(quoted, " ")
}

// Options adjust one invocation.
type Options struct {
	// Dir is the working directory. Empty uses the executor default.
	Dir string

	// Stdin, when non-empty, is fed to the process.
	Stdin string

	// Timeout bounds the invocation. Zero uses the executor default.
	Timeout time.Duration

	// Fatal escalates any failure into process shutdown with a mapped
	// exit code.
	Fatal bool
}

// Executor launches external processes for workflow steps.
//
// The shutdown callback implements fatal escalation; the production wiring
// releases the run lock, logs, and exits the process. Tests inject a
// recorder instead.
type Executor struct {
	sink           *logging.Sink
	defaultDir     string
	defaultTimeout time.Duration
	shutdown       func(code int)
}

// New creates an Executor.
func New(sink *logging.Sink, defaultDir string, defaultTimeout time.Duration, shutdown func(code int)) *Executor {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Minute
	}
	return &Executor{
		sink:           sink,
		defaultDir:     defaultDir,
		defaultTimeout: defaultTimeout,
		shutdown:       shutdown,
	}
}

// Exists reports whether an executable can be located on the search path.
func (e *Executor) Exists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// Run executes one command and returns its full result.
//
// The non-fatal path never returns a failure any other way than through
// Result: launch errors, timeouts, and missing executables all come back
// classified with Success=false. With opts.Fatal set, any failure calls the
// shutdown callback with the mapped exit code (non-zero exit uses the
// tool's own code, timeout 124, not-found 127, anything else 1).
func (e *Executor) Run(ctx context.Context, desc string, cmd Command, opts Options) Result {
	argv, display, err := cmd.normalize()
	if err != nil {
		e.sink.Errorf("Cannot run %s: %v", desc, err)
		return e.finishFailure(Result{Class: ClassInternal, ExitCode: 1}, opts)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}
	dir := opts.Dir
	if dir == "" {
		dir = e.defaultDir
	}

	e.sink.Infof(">>> %s: %s", desc, display)

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	proc.Dir = dir
	// Tools may spawn children that inherit the output pipes; killing
	// only the direct child would leave Wait blocked on them past the
	// timeout. Cancel takes down the whole process group.
	proc.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	proc.Cancel = func() error {
		err := syscall.Kill(-proc.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	proc.WaitDelay = waitDelay
	if opts.Stdin != "" {
		proc.Stdin = strings.NewReader(opts.Stdin)
	}
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	runErr := proc.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	e.relay(res.Stdout, res.Stderr)

	switch {
	case runErr == nil:
		res.Success = true
		res.Class = ClassSuccess
		e.sink.Infof("OK %s (code 0)", desc)
		return res

	case runCtx.Err() == context.DeadlineExceeded:
		res.Class = ClassTimeout
		res.ExitCode = ExitTimeout
		e.sink.Errorf("Timeout (%s) while running: %s", timeout, desc)
		return e.finishFailure(res, opts)

	case errors.Is(runErr, exec.ErrNotFound):
		res.Class = ClassNotFound
		res.ExitCode = ExitNotFound
		e.sink.Errorf("Command not found for: %s", desc)
		return e.finishFailure(res, opts)

	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.Class = ClassExit
			res.ExitCode = exitErr.ExitCode()
			if res.ExitCode <= 0 {
				res.ExitCode = 1
			}
			e.sink.Warnf("FAIL %s (code %d)", desc, exitErr.ExitCode())
			return e.finishFailure(res, opts)
		}
		res.Class = ClassInternal
		res.ExitCode = 1
		e.sink.Errorf("Unhandled error running %s: %v", desc, runErr)
		return e.finishFailure(res, opts)
	}
}

// finishFailure applies the fatal policy to a failed result.
func (e *Executor) finishFailure(res Result, opts Options) Result {
	res.Success = false
	if opts.Fatal && e.shutdown != nil {
		e.sink.Errorf("Fatal command failure - aborting")
		e.shutdown(res.ExitCode)
	}
	return res
}

// relay forwards captured output to the sink, stdout at info and stderr at
// warning, preserving line order within each stream.
func (e *Executor) relay(stdout, stderr string) {
	for _, line := range splitLines(stdout) {
		e.sink.Infof("  %s", line)
	}
	for _, line := range splitLines(stderr) {
		e.sink.Warnf("  %s", line)
	}
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

// Package workflow orchestrates the sequenced project-hygiene steps.
//
// The [Runner] acquires the single-instance lock, installs the overall
// deadline and signal handling, resolves the requested step selection
// against the registry catalog, and runs each step in order. Steps shell
// out through [execx.Executor]; the reformat step additionally fans out a
// bounded concurrent per-file pass.
//
// Exit codes: 0 success; 1 unhandled step error or fully-unknown selection;
// 2 backup failed with fail-on-backup set; 3 lock conflict; 124 overall or
// fatal per-command timeout; 127 fatal command not found; 128+signal for a
// caught termination signal.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"routinely/internal/config"
	"routinely/internal/execx"
	"routinely/internal/lock"
	"routinely/internal/logging"
	"routinely/internal/registry"
)

// backupState is the tri-state outcome of the backup step.
type backupState int

const (
	backupNotRun backupState = iota
	backupSucceeded
	backupFailed
)

// Runner sequences the selected steps under the run lock.
//
// Create with [NewRunner]; one Runner serves one workflow run. The exit
// function is os.Exit in production and is only reached through fatal
// escalation (fatal command failure, deadline expiry, caught signal);
// normal completion returns an exit code from [Runner.Run] instead.
type Runner struct {
	cfg  *config.Config
	sink *logging.Sink
	lock *lock.Lock
	exec *execx.Executor
	exit func(code int)

	backup backupState
}

// NewRunner creates a Runner wired to the given configuration and sink.
func NewRunner(cfg *config.Config, sink *logging.Sink) *Runner {
	r := &Runner{
		cfg:  cfg,
		sink: sink,
		exit: os.Exit,
	}
	r.lock = lock.New(cfg.LockDir, sink)
	r.exec = execx.New(sink, cfg.ProjectRoot, 0, r.cleanupAndExit)
	return r
}

// SetExit replaces the process-exit function. Tests use this to observe
// fatal escalation without terminating the test binary.
func (r *Runner) SetExit(f func(code int)) {
	r.exit = f
	r.exec = execx.New(r.sink, r.cfg.ProjectRoot, 0, r.cleanupAndExit)
}

// Run executes the workflow and returns the process exit code.
func (r *Runner) Run(ctx context.Context, requested []string) int {
	catalog := registry.Catalog()
	selection, invalid, err := registry.Resolve(requested, catalog)
	if err != nil {
		r.sink.Errorf("None of the requested steps are known: %s", strings.Join(requested, ", "))
		r.sink.Errorf("Known steps: %s", strings.Join(registry.KnownNames(catalog), "; "))
		return 1
	}
	if len(invalid) > 0 {
		r.sink.Warnf("Ignoring unknown steps: %s", strings.Join(invalid, ", "))
	}
	if len(selection) == 0 {
		r.sink.Warnf("No steps selected - nothing to do")
		return 0
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()
	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		r.sink.Warnf("Signal %v received - cleaning up", sig)
		cancel()
		code := 1
		if s, ok := sig.(syscall.Signal); ok {
			code = 128 + int(s)
		}
		r.cleanupAndExit(code)
	}()

	// The overall deadline routes through the same release-then-exit path
	// as signals. The timer is stopped before any normal return so it
	// cannot fire after completion.
	if r.cfg.WorkflowTimeout > 0 {
		timer := time.AfterFunc(time.Duration(r.cfg.WorkflowTimeout)*time.Second, func() {
			r.sink.Errorf("Workflow timed out after %d seconds", r.cfg.WorkflowTimeout)
			cancel()
			r.cleanupAndExit(execx.ExitTimeout)
		})
		defer timer.Stop()
	}

	if err := r.lock.Acquire(); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			r.sink.Errorf("Lock exists: %s - concurrent run detected", r.cfg.LockDir)
		} else {
			r.sink.Errorf("Failed to acquire lock: %v", err)
		}
		return 3
	}
	defer r.lock.Release()

	r.sink.Banner("ROUTINE WORKFLOW START")
	r.sink.Infof("Root: %s | Dry-run: %t | Workers: %d", r.cfg.ProjectRoot, r.cfg.DryRun, r.cfg.MaxWorkers)
	if r.cfg.DryRun {
		r.sink.Infof("DRY-RUN mode: wrapped tools receive their preview flags")
	}

	if err := os.Chdir(r.cfg.ProjectRoot); err != nil {
		r.sink.Errorf("Cannot enter project root: %v", err)
		return 1
	}

	return r.runSteps(ctx, selection)
}

// runSteps runs the resolved selection strictly in order and applies the
// backup gate afterwards. Panics from step code are downgraded to exit 1 so
// nothing escapes to the process boundary uncontrolled.
func (r *Runner) runSteps(ctx context.Context, selection registry.Selection) (code int) {
	defer func() {
		if v := recover(); v != nil {
			r.sink.Errorf("Workflow error: %v", v)
			code = 1
		}
	}()

	for _, id := range selection {
		if err := r.runStep(ctx, id); err != nil {
			r.sink.Errorf("Workflow error in %s: %v", id, err)
			return 1
		}
	}

	if r.backup == backupFailed && r.cfg.FailOnBackup {
		r.sink.Errorf("Backup failed and fail-on-backup is set")
		return 2
	}

	r.sink.Infof("WORKFLOW SUCCESS")
	return 0
}

// runStep dispatches one canonical step id.
func (r *Runner) runStep(ctx context.Context, id string) error {
	switch id {
	case "step1":
		return r.pruneDumps(ctx)
	case "step2":
		return r.reformatSources(ctx)
	case "step2.5":
		return r.runTests(ctx)
	case "step3":
		return r.cleanCaches(ctx)
	case "step3.5":
		return r.securityScan(ctx)
	case "step4":
		return r.backupProject(ctx)
	case "step5":
		return r.generateDumps(ctx)
	case "step6":
		return r.commitSnapshot(ctx)
	case "step7":
		return r.auditDependencies(ctx)
	default:
		return fmt.Errorf("unknown step id %q", id)
	}
}

// stepBanner logs the standard step header, e.g. "STEP 2.5: Run test suite".
func (r *Runner) stepBanner(id string) {
	title := registry.Title(registry.Catalog(), id)
	r.sink.Banner(fmt.Sprintf("STEP %s: %s", strings.TrimPrefix(id, "step"), title))
}

// cleanupAndExit is the guaranteed release-then-exit path shared by fatal
// commands, the overall deadline, and caught signals.
func (r *Runner) cleanupAndExit(code int) {
	r.lock.Release()
	r.sink.Infof("Exiting with code %d", code)
	r.exit(code)
}

package workflow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_DryRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	cfg.DryRun = true
	writeSourceFile(t, cfg.ProjectRoot, "a.go")
	r, buf := newTestRunner(t, cfg)

	code := r.Run(context.Background(), []string{"reformat", "backup"})

	assert.Equal(t, 0, code)
	assert.NoDirExists(t, cfg.LockDir)

	out := buf.String()
	reformatAt := strings.Index(out, "STEP 2: Reformat sources")
	backupAt := strings.Index(out, "STEP 4: Back up project")
	require.GreaterOrEqual(t, reformatAt, 0)
	require.GreaterOrEqual(t, backupAt, 0)
	assert.Less(t, reformatAt, backupAt)
	assert.Contains(t, out, "DRY-RUN: Would process 1 files")
	assert.Contains(t, out, "WORKFLOW SUCCESS")
}

func TestRunner_BackupGate(t *testing.T) {
	tests := []struct {
		name         string
		failOnBackup bool
		wantCode     int
	}{
		{name: "advisory backup failure", failOnBackup: false, wantCode: 0},
		{name: "gated backup failure", failOnBackup: true, wantCode: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.FailOnBackup = tt.failOnBackup
			cfg.Tools.BackupCommand = []string{"false"}
			r, buf := newTestRunner(t, cfg)

			code := r.Run(context.Background(), []string{"backup"})

			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, backupFailed, r.backup)
			assert.Contains(t, buf.String(), "Backup failed")
			assert.NoDirExists(t, cfg.LockDir)
		})
	}
}

func TestRunner_BackupNotRunLeavesGateClosed(t *testing.T) {
	cfg := testConfig(t)
	cfg.FailOnBackup = true
	cfg.Tools.BackupCommand = []string{"missing-backup-tool-xyz"}
	r, _ := newTestRunner(t, cfg)

	code := r.Run(context.Background(), []string{"backup"})

	assert.Equal(t, 0, code)
	assert.Equal(t, backupNotRun, r.backup)
}

func TestRunner_OnlyUnknownStepsIsFatal(t *testing.T) {
	cfg := testConfig(t)
	r, buf := newTestRunner(t, cfg)

	code := r.Run(context.Background(), []string{"bogus", "nope"})

	assert.Equal(t, 1, code)
	// Fails before the lock: no step may run.
	assert.NoDirExists(t, cfg.LockDir)
	assert.Contains(t, buf.String(), "None of the requested steps are known")
	assert.Contains(t, buf.String(), "Known steps")
}

func TestRunner_UnknownStepsWarnedAndSkipped(t *testing.T) {
	cfg := testConfig(t)
	r, buf := newTestRunner(t, cfg)

	code := r.Run(context.Background(), []string{"backup", "bogus"})

	assert.Equal(t, 0, code)
	assert.Contains(t, buf.String(), "Ignoring unknown steps: bogus")
	assert.Contains(t, buf.String(), "STEP 4: Back up project")
}

func TestRunner_EmptySelectionRunsFullCatalog(t *testing.T) {
	cfg := testConfig(t)
	r, buf := newTestRunner(t, cfg)

	code := r.Run(context.Background(), nil)

	assert.Equal(t, 0, code)
	out := buf.String()
	for _, header := range []string{
		"STEP 1:", "STEP 2:", "STEP 2.5:", "STEP 3:", "STEP 3.5:",
		"STEP 4:", "STEP 5:", "STEP 6:", "STEP 7:",
	} {
		assert.Contains(t, out, header)
	}
	assert.Contains(t, out, "Git skipped")
}

func TestRunner_LockConflict(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(cfg.LockDir, 0o755))
	marker := filepath.Join(cfg.LockDir, "pid")
	require.NoError(t, os.WriteFile(marker, []byte("999999"), 0o644))
	r, buf := newTestRunner(t, cfg)

	code := r.Run(context.Background(), []string{"backup"})

	assert.Equal(t, 3, code)
	assert.Contains(t, buf.String(), "concurrent run detected")

	// The existing lock is untouched.
	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "999999", string(data))
}

func TestRunner_FatalTestFailureReleasesLock(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.TestCommand = []string{"false"}
	r, buf := newTestRunner(t, cfg)
	rec := &exitRecorder{}
	r.SetExit(rec.record)

	code := r.Run(context.Background(), []string{"tests"})

	assert.Equal(t, 1, code)
	assert.Equal(t, []int{1}, rec.recorded())
	assert.NoDirExists(t, cfg.LockDir)
	assert.Contains(t, buf.String(), "Fatal command failure")
}

func TestRunner_DeadlineReleasesLockAndExits124(t *testing.T) {
	cfg := testConfig(t)
	cfg.WorkflowTimeout = 1
	// The step appends the project root; it lands in $0, unused.
	cfg.Tools.BackupCommand = []string{"sh", "-c", "sleep 5"}
	r, buf := newTestRunner(t, cfg)
	rec := &exitRecorder{}
	r.SetExit(rec.record)

	r.Run(context.Background(), []string{"backup"})

	// The deadline fires on the timer goroutine; give it a moment to
	// finish the release-then-exit path.
	assert.Eventually(t, func() bool {
		for _, c := range rec.recorded() {
			if c == 124 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoDirExists(t, cfg.LockDir)
	assert.Contains(t, buf.String(), "Workflow timed out after 1 seconds")
}

func TestRunner_RepeatedStepRunsTwice(t *testing.T) {
	cfg := testConfig(t)
	r, buf := newTestRunner(t, cfg)

	code := r.Run(context.Background(), []string{"backup", "backup"})

	assert.Equal(t, 0, code)
	assert.Equal(t, 2, strings.Count(buf.String(), "STEP 4: Back up project"))
}

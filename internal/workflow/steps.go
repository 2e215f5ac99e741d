package workflow

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"time"

	"routinely/internal/config"
	"routinely/internal/execx"
)

// Step implementations. Advisory steps log and continue on tool failure;
// only the test suite and the git commands are fatal, and only the backup
// step feeds the end-of-run gate.

// pruneDumps runs the dump tool's batch clean to drop old artifacts.
func (r *Runner) pruneDumps(ctx context.Context) error {
	r.stepBanner("step1")
	t := r.cfg.Tools
	if !r.exec.Exists(t.DumpTool) {
		r.sink.Warnf("%s not found - skipping prune", t.DumpTool)
		return nil
	}
	args := append([]string{t.DumpTool}, t.DumpCleanArgs...)
	if r.cfg.DryRun {
		args = append(args, "-d")
	}
	if r.cfg.AutoConfirm {
		args = append(args, "-y")
	}
	res := r.exec.Run(ctx, "Prune old dumps", execx.Argv(args...), execx.Options{Timeout: config.DumpTimeout})
	if res.Success {
		r.sink.Infof("Dump pruning completed successfully")
	} else {
		r.sink.Warnf("Dump pruning failed or skipped")
	}
	return nil
}

// reformatSources runs the bounded concurrent per-file formatter pass.
func (r *Runner) reformatSources(ctx context.Context) error {
	r.stepBanner("step2")
	ok, total := r.processFiles(ctx, "Reformat", r.cfg.Tools.Formatter, config.FormatTimeout)
	if total > 0 && !r.cfg.DryRun {
		r.sink.Infof("Reformat complete: %d/%d successful", ok, total)
	}
	return nil
}

var (
	testNameRe = regexp.MustCompile(`(?m)^(Test|Benchmark|Example|Fuzz)\w*$`)
	coverageRe = regexp.MustCompile(`coverage: (\d+(?:\.\d+)?)% of statements`)
)

// runTests runs the test suite. Failure is fatal; dry-run lists tests and
// reports the discovered count instead of executing them.
func (r *Runner) runTests(ctx context.Context) error {
	r.stepBanner("step2.5")
	t := r.cfg.Tools
	if len(t.TestCommand) == 0 || !r.exec.Exists(t.TestCommand[0]) {
		r.sink.Warnf("Test runner not found - skipping tests")
		return nil
	}

	cmd := slices.Clone(t.TestCommand)
	if r.cfg.DryRun {
		cmd = append(cmd, "-list", ".*")
	} else {
		cmd = append(cmd, "-cover")
		if r.cfg.MaxWorkers > 1 {
			cmd = append(cmd, "-p", strconv.Itoa(r.cfg.MaxWorkers))
		}
	}

	res := r.exec.Run(ctx, "Test suite", execx.Argv(cmd...), execx.Options{
		Timeout: config.TestTimeout,
		Fatal:   true,
	})
	if !res.Success {
		// Reached only when the fatal path was intercepted (tests).
		return errors.New("test suite failed")
	}

	if r.cfg.DryRun {
		n := len(testNameRe.FindAllString(res.Stdout, -1))
		r.sink.Infof("Test suite preview: %d tests discovered", n)
		return nil
	}

	if r.cfg.CoverageThreshold > 0 {
		if cov, ok := minCoverage(res.Stdout); ok {
			if cov < float64(r.cfg.CoverageThreshold) {
				return fmt.Errorf("coverage %.1f%% below threshold %d%%", cov, r.cfg.CoverageThreshold)
			}
			r.sink.Infof("Tests passed (coverage >= %d%%)", r.cfg.CoverageThreshold)
			return nil
		}
		r.sink.Warnf("No coverage figures in test output - threshold not enforced")
	}
	r.sink.Infof("Tests passed")
	return nil
}

// minCoverage returns the lowest per-package coverage figure in out.
func minCoverage(out string) (float64, bool) {
	matches := coverageRe.FindAllStringSubmatch(out, -1)
	if len(matches) == 0 {
		return 0, false
	}
	lowest := 100.0
	for _, m := range matches {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if v < lowest {
			lowest = v
		}
	}
	return lowest, true
}

// cleanCaches invokes the cache cleaner tool. Advisory.
func (r *Runner) cleanCaches(ctx context.Context) error {
	r.stepBanner("step3")
	t := r.cfg.Tools
	if len(t.CleanCommand) == 0 || !r.exec.Exists(t.CleanCommand[0]) {
		r.sink.Infof("Cache cleaner not found - skip")
		return nil
	}
	cmd := slices.Clone(t.CleanCommand)
	cmd = append(cmd, r.cfg.ProjectRoot, "--allow-root")
	if r.cfg.DryRun {
		cmd = append(cmd, "--preview")
	}
	if r.cfg.AutoConfirm {
		cmd = append(cmd, "-y")
	}
	res := r.exec.Run(ctx, "Clean caches", execx.Argv(cmd...), execx.Options{Timeout: config.CleanTimeout})
	if res.Success {
		r.sink.Infof("Cache cleanup completed successfully")
	} else {
		r.sink.Warnf("Cache cleanup failed or skipped")
	}
	return nil
}

// securityScan runs the security scanner when enabled. Advisory.
func (r *Runner) securityScan(ctx context.Context) error {
	r.stepBanner("step3.5")
	if !r.cfg.EnableSecurity {
		r.sink.Infof("Security scan disabled - skip")
		return nil
	}
	t := r.cfg.Tools
	if len(t.SecurityCommand) == 0 || !r.exec.Exists(t.SecurityCommand[0]) {
		r.sink.Warnf("Security scanner not found - skipping scan")
		return nil
	}
	res := r.exec.Run(ctx, "Security scan", execx.Argv(t.SecurityCommand...), execx.Options{Timeout: config.ScanTimeout})
	if res.Success {
		r.sink.Infof("Security scan completed: no findings")
	} else {
		r.sink.Warnf("Security scan reported findings or failed")
	}
	return nil
}

// backupProject creates the project backup and records the tri-state
// outcome consumed by the end-of-run gate.
func (r *Runner) backupProject(ctx context.Context) error {
	r.stepBanner("step4")
	t := r.cfg.Tools
	if len(t.BackupCommand) == 0 || !r.exec.Exists(t.BackupCommand[0]) {
		r.sink.Warnf("Backup tool not found - skipping backup")
		return nil
	}
	cmd := slices.Clone(t.BackupCommand)
	cmd = append(cmd, r.cfg.ProjectRoot)
	if r.cfg.DryRun {
		cmd = append(cmd, "--dry-run")
	}
	if r.cfg.AutoConfirm {
		cmd = append(cmd, "-y")
	}
	res := r.exec.Run(ctx, "Back up project", execx.Argv(cmd...), execx.Options{Timeout: config.BackupTimeout})
	if res.Success {
		r.backup = backupSucceeded
		r.sink.Infof("Backup completed successfully")
	} else {
		r.backup = backupFailed
		r.sink.Warnf("Backup failed")
	}
	return nil
}

// generateDumps regenerates code dumps. The dump tool's run subcommand
// defaults to preview, so a real run appends its no-dry flag.
func (r *Runner) generateDumps(ctx context.Context) error {
	r.stepBanner("step5")
	t := r.cfg.Tools
	if !r.exec.Exists(t.DumpTool) {
		r.sink.Warnf("%s not found - skipping generation", t.DumpTool)
		return nil
	}
	args := append([]string{t.DumpTool}, t.DumpRunArgs...)
	if !r.cfg.DryRun {
		args = append(args, "-nd")
	}
	if r.cfg.AutoConfirm {
		args = append(args, "-y")
	}
	res := r.exec.Run(ctx, "Batch generate code dumps", execx.Argv(args...), execx.Options{Timeout: config.DumpTimeout})
	if res.Success {
		r.sink.Infof("Dump generation completed successfully")
	} else {
		r.sink.Warnf("Dump generation failed or skipped")
	}
	return nil
}

// commitSnapshot commits and pushes the hygiene snapshot. The commit itself
// is non-fatal (a no-op commit exits non-zero); add and push are fatal.
func (r *Runner) commitSnapshot(ctx context.Context) error {
	r.stepBanner("step6")
	t := r.cfg.Tools
	if r.cfg.DryRun || !r.cfg.GitPush || !r.exec.Exists(t.Git) {
		r.sink.Infof("Git skipped (dry-run, disabled, or missing git)")
		return nil
	}

	msg := fmt.Sprintf("routine_hygiene: %s", time.Now().Format("2006-01-02 15:04:05"))

	r.exec.Run(ctx, "git add", execx.Argv(t.Git, "add", "."), execx.Options{Timeout: config.GitTimeout, Fatal: true})
	commit := r.exec.Run(ctx, "git commit", execx.Argv(t.Git, "commit", "-m", msg), execx.Options{Timeout: config.GitTimeout})
	r.exec.Run(ctx, "git push", execx.Argv(t.Git, "push", "-u", "origin", "main"), execx.Options{Timeout: config.GitTimeout, Fatal: true})

	if commit.Success {
		r.sink.Infof("Hygiene snapshot committed & pushed: %s", msg)
	} else {
		r.sink.Infof("No changes to commit; snapshot up-to-date")
	}
	return nil
}

// auditDependencies runs the dependency auditor when enabled. Advisory.
func (r *Runner) auditDependencies(ctx context.Context) error {
	r.stepBanner("step7")
	if !r.cfg.EnableAudit {
		r.sink.Infof("Dependency audit disabled - skip")
		return nil
	}
	t := r.cfg.Tools
	if len(t.AuditCommand) == 0 || !r.exec.Exists(t.AuditCommand[0]) {
		r.sink.Warnf("Dependency auditor not found - skipping audit")
		return nil
	}
	res := r.exec.Run(ctx, "Dependency audit", execx.Argv(t.AuditCommand...), execx.Options{Timeout: config.ScanTimeout})
	if res.Success {
		r.sink.Infof("Dependency audit completed: no known vulnerabilities")
	} else {
		r.sink.Warnf("Dependency audit reported findings or failed")
	}
	return nil
}

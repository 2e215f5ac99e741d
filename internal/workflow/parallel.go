package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"routinely/internal/discover"
	"routinely/internal/execx"
)

// processFiles applies a per-file tool across the project's source files
// with a fixed-size worker pool.
//
// The pass is self-contained: it skips entirely (with a warning) when the
// tool is missing, reports only the would-be count in dry-run mode, and
// otherwise submits one non-fatal invocation per file, scoped to the file's
// directory. Worker panics are logged and counted as failures without
// aborting in-flight or queued work. The pass never fails the workflow;
// callers get the success/total tally.
func (r *Runner) processFiles(ctx context.Context, desc string, tool []string, timeout time.Duration) (succeeded, total int) {
	if len(tool) == 0 || !r.exec.Exists(tool[0]) {
		r.sink.Warnf("%s tool not found - skipping pass", desc)
		return 0, 0
	}

	files, err := discover.Files(r.cfg.ProjectRoot, r.cfg.SourceExt, r.cfg.ExcludePatterns)
	if err != nil {
		r.sink.Warnf("File discovery failed: %v", err)
		return 0, 0
	}

	r.sink.Infof("Processing %d files with %d workers", len(files), r.cfg.MaxWorkers)
	if len(files) == 0 {
		r.sink.Infof("No files to process")
		return 0, 0
	}
	if r.cfg.DryRun {
		r.sink.Infof("DRY-RUN: Would process %d files", len(files))
		return 0, len(files)
	}

	var ok atomic.Int64
	p := pool.New().WithMaxGoroutines(r.cfg.MaxWorkers)
	for _, f := range files {
		p.Go(func() {
			defer func() {
				if v := recover(); v != nil {
					r.sink.Warnf("%s worker error: %v", desc, v)
				}
			}()
			argv := append(slices.Clone(tool), f)
			res := r.exec.Run(ctx, fmt.Sprintf("%s %s", desc, filepath.Base(f)), execx.Argv(argv...), execx.Options{
				Dir:     filepath.Dir(f),
				Timeout: timeout,
			})
			if res.Success {
				ok.Add(1)
			}
		})
	}
	p.Wait()

	return int(ok.Load()), len(files)
}

package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/schaermu/texsyncd/internal/mirror"
)

// applyPlan applies a plan's downloads and deletes against the mirror.
// Downloads may run with bounded concurrency; each file's parent
// directory is created before its write. Any download failure or
// primary delete failure aborts the operation; cascading empty-parent
// removal stays best-effort.
func (e *Engine) applyPlan(ctx context.Context, plan Plan) (*Result, error) {
	result := &Result{}
	root := e.cfg.MirrorRoot()

	total := len(plan.Downloads)
	if total > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(max(1, e.cfg.Sync.Concurrency))

		var started, completed atomic.Int64
		for _, d := range plan.Downloads {
			d := d
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				e.emit(StageDownloading, "downloading "+d.Path, int(started.Add(1)), total)
				if err := e.downloadTo(gctx, d.Path, d.Disabled); err != nil {
					return err
				}
				completed.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			// Keep the count honest on the error path too
			result.Downloaded = int(completed.Load())
			return result, err
		}
		result.Downloaded = total
	}

	for i, actual := range plan.Deletes {
		e.emit(StageDeleting, "deleting "+actual, i+1, len(plan.Deletes))

		path := filepath.Join(root, filepath.FromSlash(actual))
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return result, fmt.Errorf("failed to delete %s: %w", actual, err)
		}
		result.Deleted++
		// best-effort removal of a now-empty parent
		_ = os.Remove(filepath.Dir(path))
	}

	return result, nil
}

// downloadTo fetches the remote file at the canonical path and writes
// it into the mirror under the given overlay state.
func (e *Engine) downloadTo(ctx context.Context, canonicalPath string, disabled bool) error {
	data, err := e.remote.DownloadRaw(ctx, e.cfg.Repo.Ref, e.cfg.Repo.SparsePath+"/"+canonicalPath)
	if err != nil {
		return err
	}

	actual := canonicalPath
	if disabled {
		actual = mirror.DisabledPath(canonicalPath)
	}
	dest := filepath.Join(e.cfg.MirrorRoot(), filepath.FromSlash(actual))

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", actual, err)
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", actual, err)
	}
	return nil
}

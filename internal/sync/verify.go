package sync

import (
	"context"
	"fmt"
	"os"

	"github.com/schaermu/texsyncd/internal/mirror"
)

// Verify re-diffs the mirror against the current remote manifest and
// reports discrepancies without fixing them. It closes the gap between
// "sync believes it succeeded" and "mirror actually matches remote",
// e.g. after interrupted downloads.
func (e *Engine) Verify(ctx context.Context) (*VerificationReport, error) {
	if fi, err := os.Stat(e.cfg.MirrorRoot()); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", e.cfg.MirrorRoot(), mirror.ErrMirrorNotFound)
	}

	e.emit(StageVerifying, "running verification scan", 0, 0)

	head, err := e.remote.ResolveCommit(ctx, e.cfg.Repo.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", e.cfg.Repo.Ref, err)
	}
	manifest, err := e.remote.FetchManifest(ctx, head.SHA, e.cfg.Repo.SparsePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote manifest: %w", err)
	}

	local, err := e.scanner.Scan(e.cfg.MirrorRoot())
	if err != nil {
		return nil, err
	}

	e.emit(StageVerifying, fmt.Sprintf("comparing %d local files against %d remote files",
		len(local), len(manifest)), 0, 0)

	plan := BuildPlan(manifest, local)
	report := &VerificationReport{Downloads: plan.Downloads, Deletes: plan.Deletes}

	if report.HasDiscrepancies() {
		e.emit(StageVerifying, fmt.Sprintf("found %d files to download, %d files to delete",
			len(report.Downloads), len(report.Deletes)), 0, 0)
	} else {
		e.emit(StageVerifying, "verification complete, no discrepancies found", 0, 0)
	}

	return report, nil
}

// ApplyReport applies a previously produced verification report and
// compacts the mirror afterwards. Callers gate this behind explicit
// confirmation.
func (e *Engine) ApplyReport(ctx context.Context, report *VerificationReport) (*Result, error) {
	result, err := e.applyPlan(ctx, Plan{Downloads: report.Downloads, Deletes: report.Deletes})
	if err != nil {
		return nil, err
	}

	e.emit(StageCleanup, "removing empty directories", 0, 0)
	removed := mirror.Compact(e.cfg.MirrorRoot(), e.logger)
	if removed > 0 {
		e.logger.Info("removed empty directories", "count", removed)
	}

	e.emit(StageComplete, fmt.Sprintf("verification fixes applied: downloaded %d, deleted %d",
		result.Downloaded, result.Deleted), 0, 0)

	return result, nil
}

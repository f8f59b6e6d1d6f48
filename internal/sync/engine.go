// Package sync implements the reconciliation engine that keeps a local
// mirror directory converged with a subtree of a remote GitHub
// repository, preserving the local disabled-file overlay across every
// mutation.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/schaermu/texsyncd/internal/config"
	"github.com/schaermu/texsyncd/internal/github"
	"github.com/schaermu/texsyncd/internal/mirror"
)

// Remote is the read-only view of the remote repository the engine
// needs. *github.Client implements it.
type Remote interface {
	ResolveCommit(ctx context.Context, ref string) (*github.Commit, error)
	FetchManifest(ctx context.Context, commitSHA, subtreePath string) (map[string]string, error)
	CompareChanges(ctx context.Context, base, head string) ([]github.Change, bool, error)
	DownloadRaw(ctx context.Context, ref, path string) ([]byte, error)
}

// Engine orchestrates the sync process. Callers must serialize Run,
// Verify and ApplyReport invocations against a given mirror root.
type Engine struct {
	cfg     *config.Config
	remote  Remote
	scanner *mirror.Scanner
	store   BaselineStore
	logger  *slog.Logger
	report  Reporter
	dryRun  bool
}

// NewEngine creates a new sync engine. reporter may be nil.
func NewEngine(cfg *config.Config, remote Remote, store BaselineStore, logger *slog.Logger, reporter Reporter, dryRun bool) *Engine {
	return &Engine{
		cfg:     cfg,
		remote:  remote,
		scanner: mirror.NewScanner(logger),
		store:   store,
		logger:  logger,
		report:  reporter,
		dryRun:  dryRun,
	}
}

// Run executes a sync: incremental when a baseline revision is known,
// full otherwise or when forceFull is set. Incremental failures caused
// by a vanished baseline revision or an untrustworthy change set fall
// back to a single full-sync attempt; every other error aborts.
func (e *Engine) Run(ctx context.Context, forceFull bool) (*Result, error) {
	// Surface a missing mirror before any network call
	if fi, err := os.Stat(e.cfg.MirrorRoot()); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", e.cfg.MirrorRoot(), mirror.ErrMirrorNotFound)
	}

	baseline, err := e.store.Load()
	if err != nil {
		e.logger.Warn("failed to load sync baseline, treating as fresh sync", "error", err)
		baseline = ""
	}

	e.emit(StageFetching, "resolving remote head", 0, 0)
	head, err := e.remote.ResolveCommit(ctx, e.cfg.Repo.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", e.cfg.Repo.Ref, err)
	}

	e.logger.Info("starting sync",
		"repo", e.cfg.Repo.Owner+"/"+e.cfg.Repo.Name,
		"ref", e.cfg.Repo.Ref,
		"head", head.SHA,
		"baseline", baseline,
		"dry_run", e.dryRun)

	var result *Result
	switch {
	// A forced or dry-run full sync always runs, even against a
	// matching baseline: it exists to repair local drift.
	case forceFull || e.dryRun || baseline == "":
		result, err = e.fullSync(ctx, head)

	case baseline == head.SHA:
		e.emit(StageComplete, "already up to date", 0, 0)
		e.logger.Info("already up to date", "commit", head.SHA)
		return &Result{Commit: head.SHA}, nil

	default:
		result, err = e.incrementalSync(ctx, baseline, head)
		if err != nil && (errors.Is(err, github.ErrNotFound) || errors.Is(err, github.ErrTruncated)) {
			e.logger.Warn("incremental sync not possible, falling back to full sync", "error", err)
			e.emit(StageFetching, "falling back to full sync", 0, 0)
			result, err = e.fullSync(ctx, head)
		}
	}
	if err != nil {
		return nil, err
	}

	if e.dryRun {
		e.logger.Info("dry-run complete, no changes applied")
		return result, nil
	}

	e.emit(StageCleanup, "removing empty directories", 0, 0)
	removed := mirror.Compact(e.cfg.MirrorRoot(), e.logger)
	if removed > 0 {
		e.logger.Info("removed empty directories", "count", removed)
	}

	if err := e.store.Save(head.SHA); err != nil {
		return nil, fmt.Errorf("failed to persist sync baseline: %w", err)
	}

	e.emit(StageComplete, fmt.Sprintf(
		"sync complete: downloaded %d, deleted %d, renamed %d, skipped %d",
		result.Downloaded, result.Deleted, result.Renamed, result.Skipped), 0, 0)
	e.logger.Info("sync completed",
		"downloaded", result.Downloaded,
		"deleted", result.Deleted,
		"renamed", result.Renamed,
		"skipped", result.Skipped,
		"commit", result.Commit)

	return result, nil
}

// fullSync reconciles by comparing the complete remote manifest with a
// full local scan.
func (e *Engine) fullSync(ctx context.Context, head *github.Commit) (*Result, error) {
	e.emit(StageFetching, "fetching remote manifest (this may take a while)", 0, 0)
	manifest, err := e.remote.FetchManifest(ctx, head.SHA, e.cfg.Repo.SparsePath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote manifest: %w", err)
	}
	e.emit(StageScanning, fmt.Sprintf("found %d remote files", len(manifest)), 0, 0)

	local, err := e.scanner.Scan(e.cfg.MirrorRoot())
	if err != nil {
		return nil, err
	}
	e.emit(StageScanning, fmt.Sprintf("found %d local files", len(local)), 0, 0)

	plan := BuildPlan(manifest, local)
	e.emit(StageComparing, fmt.Sprintf("changes: %d to download, %d to delete",
		len(plan.Downloads), len(plan.Deletes)), 0, 0)

	if e.dryRun {
		e.logPlan(plan)
		return &Result{Commit: head.SHA}, nil
	}

	result, err := e.applyPlan(ctx, plan)
	if err != nil {
		return nil, err
	}
	result.Commit = head.SHA
	return result, nil
}

// logPlan logs detailed plan information for dry-run
func (e *Engine) logPlan(plan Plan) {
	for _, d := range plan.Downloads {
		e.logger.Info("[dry-run] would download", "path", d.Path, "disabled", d.Disabled)
	}
	for _, path := range plan.Deletes {
		e.logger.Info("[dry-run] would delete", "path", path)
	}
}

// CheckStatus compares the remote head against the local baseline
// without making changes.
func (e *Engine) CheckStatus(ctx context.Context) (*Status, error) {
	head, err := e.remote.ResolveCommit(ctx, e.cfg.Repo.Ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", e.cfg.Repo.Ref, err)
	}

	baseline, err := e.store.Load()
	if err != nil {
		return nil, err
	}

	return &Status{
		LatestCommit:     head.SHA,
		LatestCommitDate: head.Date,
		BaselineCommit:   baseline,
		HasChanges:       baseline != head.SHA,
	}, nil
}

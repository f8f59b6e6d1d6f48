package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/schaermu/texsyncd/internal/github"
	"github.com/schaermu/texsyncd/internal/mirror"
)

// incrementalSync applies the classified changes between the baseline
// and head revisions directly, without a full manifest diff. A
// truncated change set is rejected with github.ErrTruncated so the
// caller retries in full mode.
func (e *Engine) incrementalSync(ctx context.Context, baseline string, head *github.Commit) (*Result, error) {
	e.emit(StageFetching, "fetching changes since last sync", 0, 0)

	changes, truncated, err := e.remote.CompareChanges(ctx, baseline, head.SHA)
	if err != nil {
		return nil, err
	}
	if truncated {
		return nil, fmt.Errorf("%d or more changed files: %w", github.CompareFileLimit, github.ErrTruncated)
	}

	// Keep only changes under the mirrored subtree that are not
	// excluded outright
	prefix := e.cfg.Repo.SparsePath + "/"
	relevant := make([]github.Change, 0, len(changes))
	for _, ch := range changes {
		if !strings.HasPrefix(ch.Path, prefix) {
			continue
		}
		if mirror.ShouldSkipPath(strings.TrimPrefix(ch.Path, prefix)) {
			continue
		}
		relevant = append(relevant, ch)
	}

	total := len(relevant)
	e.emit(StageComparing, fmt.Sprintf("found %d changed files", total), 0, 0)

	root := e.cfg.MirrorRoot()
	result := &Result{Commit: head.SHA}

	for i, ch := range relevant {
		rel := strings.TrimPrefix(ch.Path, prefix)
		e.emit(StageSyncing, fmt.Sprintf("[%s] %s", ch.Kind, rel), i+1, total)

		switch ch.Kind {
		case github.ChangeAdded, github.ChangeModified:
			// A locally disabled file stays disabled across updates
			_, disabled, _ := mirror.FindLocal(root, rel)
			if err := e.downloadTo(ctx, rel, disabled); err != nil {
				return nil, err
			}
			result.Downloaded++

		case github.ChangeRemoved:
			actual, _, ok := mirror.FindLocal(root, rel)
			if !ok {
				continue
			}
			path := filepath.Join(root, filepath.FromSlash(actual))
			if err := os.Remove(path); err != nil {
				return nil, fmt.Errorf("failed to delete %s: %w", actual, err)
			}
			result.Deleted++
			_ = os.Remove(filepath.Dir(path))

		case github.ChangeRenamed:
			moved, err := e.applyRename(ch, prefix, rel)
			if err != nil {
				return nil, err
			}
			if moved {
				result.Renamed++
				continue
			}
			// Old path unknown locally: treat as an addition
			if err := e.downloadTo(ctx, rel, false); err != nil {
				return nil, err
			}
			result.Downloaded++

		default:
			result.Skipped++
		}
	}

	return result, nil
}

// applyRename moves the locally present variant of the old path to the
// new path, preserving overlay state. Returns false when the old path
// does not exist locally (including renames from outside the subtree).
func (e *Engine) applyRename(ch github.Change, prefix, newRel string) (bool, error) {
	if !strings.HasPrefix(ch.PreviousPath, prefix) {
		return false, nil
	}
	oldRel := strings.TrimPrefix(ch.PreviousPath, prefix)

	root := e.cfg.MirrorRoot()
	oldActual, disabled, ok := mirror.FindLocal(root, oldRel)
	if !ok {
		return false, nil
	}

	newActual := newRel
	if disabled {
		newActual = mirror.DisabledPath(newRel)
	}

	oldPath := filepath.Join(root, filepath.FromSlash(oldActual))
	newPath := filepath.Join(root, filepath.FromSlash(newActual))

	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory for %s: %w", newActual, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return false, fmt.Errorf("failed to rename %s to %s: %w", oldActual, newActual, err)
	}
	_ = os.Remove(filepath.Dir(oldPath))

	return true, nil
}

package mirror

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Compact recursively removes recognized junk files and now-empty
// subdirectories under root. The root itself is never removed. Errors
// on individual directories are logged and do not abort the pass.
// Returns the number of directories removed.
func Compact(root string, logger *slog.Logger) int {
	return compactDir(root, true, logger)
}

func compactDir(dir string, isRoot bool, logger *slog.Logger) int {
	removed := 0

	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to read directory during compaction", "dir", dir, "error", err)
		return 0
	}

	// Children first so emptied subtrees collapse upward
	for _, entry := range entries {
		if entry.IsDir() {
			removed += compactDir(filepath.Join(dir, entry.Name()), false, logger)
		}
	}

	if isRoot {
		return removed
	}

	// Junk files do not keep a directory alive
	for _, entry := range entries {
		if !entry.IsDir() && IsJunkFile(entry.Name()) {
			_ = os.Remove(filepath.Join(dir, entry.Name()))
		}
	}

	// Re-read after junk removal and child compaction
	remaining, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to re-read directory during compaction", "dir", dir, "error", err)
		return removed
	}

	if len(remaining) == 0 {
		if err := os.Remove(dir); err != nil {
			logger.Warn("failed to remove empty directory", "dir", dir, "error", err)
		} else {
			removed++
		}
	}

	return removed
}

package mirror

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/schaermu/texsyncd/internal/gitobj"
)

// ErrMirrorNotFound is returned when the mirror root directory does
// not exist locally.
var ErrMirrorNotFound = errors.New("mirror directory not found")

// Record describes one local file keyed by its canonical path.
type Record struct {
	CanonicalPath string
	ActualPath    string // relative slash path on disk; differs only when disabled
	Hash          string
	Disabled      bool
}

// Scanner walks the mirror and builds the local path map.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	return &Scanner{logger: logger}
}

// Scan walks root recursively and returns one Record per retained
// regular file, keyed by canonical path. Hidden entries are skipped
// while walking; excluded paths are dropped; disabled files are mapped
// back to their canonical path. A canonical path present in both
// overlay states is a local inconsistency the scanner only reports:
// the enabled record wins.
func (s *Scanner) Scan(root string) (map[string]Record, error) {
	if fi, err := os.Stat(root); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrMirrorNotFound)
	}

	records := make(map[string]Record)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		// Skip hidden files and directories by name
		if len(d.Name()) > 0 && d.Name()[0] == '.' {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %s: %w", path, err)
		}
		rel = filepath.ToSlash(rel)

		if ShouldSkipPath(rel) {
			return nil
		}

		canonical := rel
		disabled := false
		if enabled, ok := EnabledPath(rel); ok {
			canonical = enabled
			disabled = true
		}

		hash, err := gitobj.HashFile(path)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", rel, err)
		}

		rec := Record{
			CanonicalPath: canonical,
			ActualPath:    rel,
			Hash:          hash,
			Disabled:      disabled,
		}

		if existing, ok := records[canonical]; ok {
			s.logger.Warn("file present in both enabled and disabled form",
				"canonical", canonical, "first", existing.ActualPath, "second", rel)
			// keep the enabled variant
			if !existing.Disabled {
				return nil
			}
		}
		records[canonical] = rec
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan mirror: %w", err)
	}

	return records, nil
}

// FindLocal locates the on-disk variant of a canonical path under
// root. It prefers the enabled path and falls back to the disabled
// one, mirroring the invariant that at most one of the two exists.
func FindLocal(root, canonicalPath string) (actualPath string, disabled, ok bool) {
	enabled := filepath.Join(root, filepath.FromSlash(canonicalPath))
	if fi, err := os.Stat(enabled); err == nil && fi.Mode().IsRegular() {
		return canonicalPath, false, true
	}

	disabledRel := DisabledPath(canonicalPath)
	if fi, err := os.Stat(filepath.Join(root, filepath.FromSlash(disabledRel))); err == nil && fi.Mode().IsRegular() {
		return disabledRel, true, true
	}

	return canonicalPath, false, false
}

// Package mirror implements the local side of the sync: the disabled
// overlay naming convention, path exclusion rules, directory scanning
// and empty-directory compaction.
package mirror

import (
	"strings"
)

// DisableMarker is the filename prefix that marks a file as disabled.
// A disabled file lives at dir/-name instead of dir/name and is a
// local-only preference that must survive re-sync.
const DisableMarker = "-"

// customsDir is a reserved subtree for user customizations. Nothing
// under it is ever downloaded, deleted or reported.
const customsDir = "user-customs"

// Basename returns the final slash-separated component of a relative
// path.
func Basename(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// IsDisabledName reports whether a basename carries the disable marker.
func IsDisabledName(name string) bool {
	return strings.HasPrefix(name, DisableMarker)
}

// DisabledPath returns the disabled variant of a canonical relative
// path: the basename gains the disable marker, the directory stays.
func DisabledPath(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[:i+1] + DisableMarker + path[i+1:]
	}
	return DisableMarker + path
}

// EnabledPath is the inverse of DisabledPath. It returns false when
// the basename does not carry the disable marker.
func EnabledPath(path string) (string, bool) {
	base := Basename(path)
	if !IsDisabledName(base) {
		return "", false
	}
	dir := path[:len(path)-len(base)]
	return dir + strings.TrimPrefix(base, DisableMarker), true
}

// ShouldSkipPath reports whether a relative path is excluded from sync
// entirely: any hidden component, or any component inside the reserved
// user customizations tree.
func ShouldSkipPath(path string) bool {
	for _, part := range strings.Split(path, "/") {
		if strings.HasPrefix(part, ".") || part == customsDir {
			return true
		}
	}
	return false
}

// IsJunkFile reports whether a filename is safe to delete during
// directory compaction: hidden files and well-known OS metadata files.
func IsJunkFile(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(name) {
	case "thumbs.db", "desktop.ini", "ehthumbs.db":
		return true
	}
	return false
}

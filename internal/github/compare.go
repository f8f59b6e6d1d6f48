package github

import (
	"context"
	"fmt"
)

// CompareFileLimit is the maximum number of files the compare API
// returns. A result with exactly this many entries must be treated as
// truncated and not trusted as complete.
const CompareFileLimit = 300

// ChangeKind classifies a remote file change.
type ChangeKind int

const (
	ChangeUnknown ChangeKind = iota
	ChangeAdded
	ChangeModified
	ChangeRemoved
	ChangeRenamed
)

// String returns the GitHub status string for the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeModified:
		return "modified"
	case ChangeRemoved:
		return "removed"
	case ChangeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// changeKindFromStatus maps a compare API status string to a
// ChangeKind. Unrecognized statuses map to ChangeUnknown, which the
// reconciler counts as skipped rather than dropping silently.
func changeKindFromStatus(status string) ChangeKind {
	switch status {
	case "added":
		return ChangeAdded
	case "modified":
		return ChangeModified
	case "removed":
		return ChangeRemoved
	case "renamed":
		return ChangeRenamed
	default:
		return ChangeUnknown
	}
}

// Change is a single classified file change between two revisions.
// Path is relative to the repository root. PreviousPath is set only
// for renames.
type Change struct {
	Kind         ChangeKind
	Path         string
	PreviousPath string
}

type compareResponse struct {
	Files []struct {
		Filename         string `json:"filename"`
		Status           string `json:"status"`
		PreviousFilename string `json:"previous_filename"`
	} `json:"files"`
}

// CompareChanges lists the file changes between two revisions. The
// returned bool reports whether the result hit CompareFileLimit and is
// therefore unreliable; callers must fall back to a full manifest
// comparison in that case.
func (c *Client) CompareChanges(ctx context.Context, base, head string) ([]Change, bool, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/compare/%s...%s", c.APIBaseURL, c.owner, c.repo, base, head)

	var resp compareResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, false, fmt.Errorf("failed to compare %s...%s: %w", base, head, err)
	}

	changes := make([]Change, 0, len(resp.Files))
	for _, f := range resp.Files {
		changes = append(changes, Change{
			Kind:         changeKindFromStatus(f.Status),
			Path:         f.Filename,
			PreviousPath: f.PreviousFilename,
		})
	}

	truncated := len(changes) >= CompareFileLimit
	return changes, truncated, nil
}

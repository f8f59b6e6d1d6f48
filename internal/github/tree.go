package github

import (
	"context"
	"fmt"
	"strings"
)

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type treeResponse struct {
	SHA       string      `json:"sha"`
	Tree      []treeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// fetchTree lists a single git tree, optionally recursively. The API
// may silently truncate recursive listings of very large trees; the
// Truncated flag tells the caller to descend manually.
func (c *Client) fetchTree(ctx context.Context, sha string, recursive bool) (*treeResponse, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s", c.APIBaseURL, c.owner, c.repo, sha)
	if recursive {
		url += "?recursive=1"
	}

	var resp treeResponse
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch tree %s: %w", sha, err)
	}
	return &resp, nil
}

// subtreeSHA walks down from the commit's root tree one path component
// at a time to locate the tree for subtreePath.
func (c *Client) subtreeSHA(ctx context.Context, commitSHA, subtreePath string) (string, error) {
	current := commitSHA
	for _, part := range strings.Split(subtreePath, "/") {
		tree, err := c.fetchTree(ctx, current, false)
		if err != nil {
			return "", err
		}

		found := ""
		for _, entry := range tree.Tree {
			if entry.Path == part && entry.Type == "tree" {
				found = entry.SHA
				break
			}
		}
		if found == "" {
			return "", fmt.Errorf("path component %q absent from remote tree: %w", part, ErrNotFound)
		}
		current = found
	}
	return current, nil
}

// joinPath joins tree paths with forward slashes, tolerating an empty
// base for the subtree root.
func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "/" + name
}

// FetchManifest lists every blob under subtreePath at the given commit
// and returns a map of slash-separated relative path to blob SHA.
//
// Truncated recursive listings are handled with an explicit work
// stack: the truncated node is re-listed non-recursively and each
// child tree is pushed with its accumulated path, at every nesting
// level where truncation recurs.
func (c *Client) FetchManifest(ctx context.Context, commitSHA, subtreePath string) (map[string]string, error) {
	root, err := c.subtreeSHA(ctx, commitSHA, subtreePath)
	if err != nil {
		return nil, err
	}

	type workItem struct {
		sha  string
		base string
	}

	manifest := make(map[string]string)
	stack := []workItem{{sha: root}}

	for len(stack) > 0 {
		item := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		tree, err := c.fetchTree(ctx, item.sha, true)
		if err != nil {
			return nil, err
		}

		if !tree.Truncated {
			for _, entry := range tree.Tree {
				if entry.Type == "blob" {
					manifest[joinPath(item.base, entry.Path)] = entry.SHA
				}
			}
			continue
		}

		c.logger.Warn("tree listing truncated, descending into subtrees",
			"tree", item.sha, "base", item.base)

		flat, err := c.fetchTree(ctx, item.sha, false)
		if err != nil {
			return nil, err
		}
		for _, entry := range flat.Tree {
			switch entry.Type {
			case "blob":
				manifest[joinPath(item.base, entry.Path)] = entry.SHA
			case "tree":
				stack = append(stack, workItem{sha: entry.SHA, base: joinPath(item.base, entry.Path)})
			}
		}
	}

	return manifest, nil
}

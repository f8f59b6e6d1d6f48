//go:build integration

// Package integration exercises the full sync stack against an
// in-process fake of the GitHub API: commit resolution, tree listing,
// compare and raw downloads are all served over HTTP by a test server.
package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	stdsync "sync"

	"github.com/schaermu/texsyncd/internal/gitobj"
)

// commitState is one fake commit: a full snapshot of the repository,
// keyed by slash-separated path relative to the repository root.
type commitState struct {
	sha   string
	date  string
	files map[string]string
}

// fakeGitHub serves the subset of the GitHub API the client uses.
// Tree identifiers are synthesized as "<commit-sha>:<sub:path>" with
// slashes replaced by colons, so they survive URL routing.
type fakeGitHub struct {
	mu      stdsync.Mutex
	owner   string
	repo    string
	branch  string
	commits []commitState
	server  *httptest.Server
}

func newFakeGitHub(owner, repo, branch string) *fakeGitHub {
	f := &fakeGitHub{owner: owner, repo: repo, branch: branch}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	return f
}

func (f *fakeGitHub) Close() { f.server.Close() }

// URL returns the base URL, used for both API and raw endpoints.
func (f *fakeGitHub) URL() string { return f.server.URL }

// Push appends a commit with the given full snapshot.
func (f *fakeGitHub) Push(sha, date string, files map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot := make(map[string]string, len(files))
	for p, c := range files {
		snapshot[p] = c
	}
	f.commits = append(f.commits, commitState{sha: sha, date: date, files: snapshot})
}

func (f *fakeGitHub) lookup(ref string) (commitState, bool) {
	if len(f.commits) == 0 {
		return commitState{}, false
	}
	if ref == f.branch {
		return f.commits[len(f.commits)-1], true
	}
	for _, c := range f.commits {
		if c.sha == ref {
			return c, true
		}
	}
	return commitState{}, false
}

func (f *fakeGitHub) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	apiPrefix := fmt.Sprintf("/repos/%s/%s/", f.owner, f.repo)
	rawPrefix := fmt.Sprintf("/%s/%s/", f.owner, f.repo)

	switch {
	case strings.HasPrefix(r.URL.Path, apiPrefix+"commits/"):
		f.handleCommit(w, r, strings.TrimPrefix(r.URL.Path, apiPrefix+"commits/"))
	case strings.HasPrefix(r.URL.Path, apiPrefix+"git/trees/"):
		f.handleTree(w, r, strings.TrimPrefix(r.URL.Path, apiPrefix+"git/trees/"))
	case strings.HasPrefix(r.URL.Path, apiPrefix+"compare/"):
		f.handleCompare(w, r, strings.TrimPrefix(r.URL.Path, apiPrefix+"compare/"))
	case strings.HasPrefix(r.URL.Path, rawPrefix):
		f.handleRaw(w, r, strings.TrimPrefix(r.URL.Path, rawPrefix))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGitHub) handleCommit(w http.ResponseWriter, r *http.Request, ref string) {
	commit, ok := f.lookup(ref)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"sha": commit.sha,
		"commit": map[string]any{
			"committer": map[string]any{"date": commit.date},
		},
	})
}

// treeID encodes a subtree reference for a commit.
func treeID(sha, subpath string) string {
	if subpath == "" {
		return sha
	}
	return sha + ":" + strings.ReplaceAll(subpath, "/", ":")
}

func parseTreeID(id string) (sha, subpath string) {
	sha, rest, found := strings.Cut(id, ":")
	if !found {
		return id, ""
	}
	return sha, strings.ReplaceAll(rest, ":", "/")
}

func (f *fakeGitHub) handleTree(w http.ResponseWriter, r *http.Request, id string) {
	sha, subpath := parseTreeID(id)
	commit, ok := f.lookup(sha)
	if !ok {
		http.NotFound(w, r)
		return
	}
	recursive := r.URL.Query().Get("recursive") == "1"

	prefix := ""
	if subpath != "" {
		prefix = subpath + "/"
	}

	type entry struct {
		Path string `json:"path"`
		Type string `json:"type"`
		SHA  string `json:"sha"`
	}

	var entries []entry
	seenDirs := map[string]bool{}
	for path, content := range commit.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rel := strings.TrimPrefix(path, prefix)
		if recursive {
			entries = append(entries, entry{Path: rel, Type: "blob", SHA: gitobj.HashBytes([]byte(content))})
			continue
		}
		// Non-recursive: immediate children only
		if name, _, nested := strings.Cut(rel, "/"); nested {
			if !seenDirs[name] {
				seenDirs[name] = true
				entries = append(entries, entry{
					Path: name,
					Type: "tree",
					SHA:  treeID(sha, prefix+name),
				})
			}
		} else {
			entries = append(entries, entry{Path: rel, Type: "blob", SHA: gitobj.HashBytes([]byte(content))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	writeJSON(w, map[string]any{
		"sha":       id,
		"tree":      entries,
		"truncated": false,
	})
}

func (f *fakeGitHub) handleCompare(w http.ResponseWriter, r *http.Request, refs string) {
	baseRef, headRef, found := strings.Cut(refs, "...")
	if !found {
		http.NotFound(w, r)
		return
	}
	base, okBase := f.lookup(baseRef)
	head, okHead := f.lookup(headRef)
	if !okBase || !okHead {
		http.NotFound(w, r)
		return
	}

	type file struct {
		Filename         string `json:"filename"`
		Status           string `json:"status"`
		PreviousFilename string `json:"previous_filename,omitempty"`
	}

	var added, removed []string
	var files []file
	for path, content := range head.files {
		old, existed := base.files[path]
		if !existed {
			added = append(added, path)
		} else if old != content {
			files = append(files, file{Filename: path, Status: "modified"})
		}
	}
	for path := range base.files {
		if _, exists := head.files[path]; !exists {
			removed = append(removed, path)
		}
	}

	// Pair up moves the way the real diff does: an added file whose
	// content matches a removed one becomes a rename.
	usedRemovals := map[string]bool{}
	for _, a := range added {
		renamedFrom := ""
		for _, r := range removed {
			if !usedRemovals[r] && base.files[r] == head.files[a] {
				renamedFrom = r
				break
			}
		}
		if renamedFrom != "" {
			usedRemovals[renamedFrom] = true
			files = append(files, file{Filename: a, Status: "renamed", PreviousFilename: renamedFrom})
		} else {
			files = append(files, file{Filename: a, Status: "added"})
		}
	}
	for _, r := range removed {
		if !usedRemovals[r] {
			files = append(files, file{Filename: r, Status: "removed"})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	writeJSON(w, map[string]any{"files": files})
}

func (f *fakeGitHub) handleRaw(w http.ResponseWriter, r *http.Request, rest string) {
	// rest is <ref>/<repo path>
	ref, path, found := strings.Cut(rest, "/")
	if !found {
		http.NotFound(w, r)
		return
	}
	commit, ok := f.lookup(ref)
	if !ok {
		http.NotFound(w, r)
		return
	}
	content, ok := commit.files[path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	_, _ = w.Write([]byte(content))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

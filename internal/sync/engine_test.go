package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	stdsync "sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/texsyncd/internal/config"
	"github.com/schaermu/texsyncd/internal/github"
	"github.com/schaermu/texsyncd/internal/gitobj"
	"github.com/schaermu/texsyncd/internal/testutil"
)

// mockRemote implements Remote for testing.
type mockRemote struct {
	head        *github.Commit
	headErr     error
	manifest    map[string]string
	manifestErr error
	changes     []github.Change
	truncated   bool
	compareErr  error
	files       map[string]string // repo path -> raw content
	downloadErr error
	failPath    string // repo path whose download fails

	mu            stdsync.Mutex
	resolveCalls  int
	manifestCalls int
	compareCalls  int
	downloaded    []string
}

func (m *mockRemote) ResolveCommit(_ context.Context, _ string) (*github.Commit, error) {
	m.resolveCalls++
	return m.head, m.headErr
}

func (m *mockRemote) FetchManifest(_ context.Context, _, _ string) (map[string]string, error) {
	m.manifestCalls++
	return m.manifest, m.manifestErr
}

func (m *mockRemote) CompareChanges(_ context.Context, _, _ string) ([]github.Change, bool, error) {
	m.compareCalls++
	return m.changes, m.truncated, m.compareErr
}

func (m *mockRemote) DownloadRaw(_ context.Context, _, path string) ([]byte, error) {
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	if m.failPath != "" && path == m.failPath {
		return nil, fmt.Errorf("download of %s interrupted", path)
	}
	content, ok := m.files[path]
	if !ok {
		return nil, fmt.Errorf("no such remote file %s: %w", path, github.ErrNotFound)
	}
	m.mu.Lock()
	m.downloaded = append(m.downloaded, path)
	m.mu.Unlock()
	return []byte(content), nil
}

const sparse = "textures/SLUS-21214"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Repo: config.RepoConfig{
			Owner:      "ncaanext",
			Name:       "ncaa-next-26",
			Ref:        "main",
			SparsePath: sparse,
		},
		Paths: config.PathsConfig{
			MirrorDir:    dir,
			MirrorSubdir: "SLUS-21214",
			StateDir:     filepath.Join(dir, "state"),
		},
		Sync: config.SyncConfig{Concurrency: 1},
	}
	require.NoError(t, os.MkdirAll(cfg.MirrorRoot(), 0755))
	return cfg
}

func newTestEngine(t *testing.T, cfg *config.Config, remote Remote) (*Engine, *FileStore) {
	t.Helper()
	store := NewFileStore(cfg.StateFilePath())
	return NewEngine(cfg, remote, store, slog.Default(), nil, false), store
}

func readMirror(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.MirrorRoot(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func mirrorExists(cfg *config.Config, rel string) bool {
	_, err := os.Stat(filepath.Join(cfg.MirrorRoot(), filepath.FromSlash(rel)))
	return err == nil
}

func TestRunFullSyncFirstRun(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{
		"orphan.png": "stale",
	})

	remote := &mockRemote{
		head: &github.Commit{SHA: "head1"},
		manifest: map[string]string{
			"a.png":     gitobj.HashBytes([]byte("aaa")),
			"sub/b.png": gitobj.HashBytes([]byte("bbb")),
		},
		files: map[string]string{
			sparse + "/a.png":     "aaa",
			sparse + "/sub/b.png": "bbb",
		},
	}

	engine, store := newTestEngine(t, cfg, remote)
	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Downloaded)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, "head1", result.Commit)

	assert.Equal(t, "aaa", readMirror(t, cfg, "a.png"))
	assert.Equal(t, "bbb", readMirror(t, cfg, "sub/b.png"))
	assert.False(t, mirrorExists(cfg, "orphan.png"))

	baseline, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, "head1", baseline)
}

func TestRunFullSyncPreservesDisabled(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{
		"-a.png": "old",
	})

	remote := &mockRemote{
		head:     &github.Commit{SHA: "head1"},
		manifest: map[string]string{"a.png": gitobj.HashBytes([]byte("new"))},
		files:    map[string]string{sparse + "/a.png": "new"},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 0, result.Deleted)
	// Re-downloaded still disabled; no enabled copy appears
	assert.Equal(t, "new", readMirror(t, cfg, "-a.png"))
	assert.False(t, mirrorExists(cfg, "a.png"))
}

func TestRunAlreadyUpToDate(t *testing.T) {
	cfg := testConfig(t)
	remote := &mockRemote{head: &github.Commit{SHA: "head1"}}

	engine, store := newTestEngine(t, cfg, remote)
	require.NoError(t, store.Save("head1"))

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "head1", result.Commit)
	assert.Zero(t, result.Downloaded)
	assert.Zero(t, remote.manifestCalls, "no manifest fetch when already up to date")
	assert.Zero(t, remote.compareCalls)
}

// A forced full sync must run even when the baseline already matches
// the remote head: it exists to repair local drift.
func TestRunForceFullRepairsDriftAtMatchingBaseline(t *testing.T) {
	cfg := testConfig(t)

	remote := &mockRemote{
		head:     &github.Commit{SHA: "head1"},
		manifest: map[string]string{"a.png": gitobj.HashBytes([]byte("aaa"))},
		files:    map[string]string{sparse + "/a.png": "aaa"},
	}

	engine, store := newTestEngine(t, cfg, remote)
	require.NoError(t, store.Save("head1"))

	result, err := engine.Run(context.Background(), true)
	require.NoError(t, err)

	assert.Equal(t, 1, remote.manifestCalls, "forced full sync must fetch the manifest")
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, "aaa", readMirror(t, cfg, "a.png"))
}

func TestRunMirrorMissing(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.RemoveAll(cfg.MirrorRoot()))

	remote := &mockRemote{head: &github.Commit{SHA: "head1"}}
	engine, _ := newTestEngine(t, cfg, remote)

	_, err := engine.Run(context.Background(), false)
	require.Error(t, err)
	assert.Zero(t, remote.resolveCalls, "missing mirror must surface before network calls")
}

func TestRunIncrementalAddedAndModified(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{
		"sub/-mod.png": "old", // disabled locally
	})

	remote := &mockRemote{
		head: &github.Commit{SHA: "head2"},
		changes: []github.Change{
			{Kind: github.ChangeAdded, Path: sparse + "/new.png"},
			{Kind: github.ChangeModified, Path: sparse + "/sub/mod.png"},
			{Kind: github.ChangeModified, Path: "docs/outside.md"},
			{Kind: github.ChangeModified, Path: sparse + "/user-customs/own.png"},
			{Kind: github.ChangeUnknown, Path: sparse + "/weird.png"},
		},
		files: map[string]string{
			sparse + "/new.png":     "fresh",
			sparse + "/sub/mod.png": "updated",
		},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("base1"))

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Downloaded)
	assert.Equal(t, 1, result.Skipped, "unknown change kinds are counted, not dropped")
	assert.Equal(t, "fresh", readMirror(t, cfg, "new.png"))
	// Disabled overlay preserved on modify
	assert.Equal(t, "updated", readMirror(t, cfg, "sub/-mod.png"))
	assert.False(t, mirrorExists(cfg, "sub/mod.png"))
}

func TestRunIncrementalRemoved(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{
		"gone/-dead.png": "x",
		"keep.png":       "y",
	})

	remote := &mockRemote{
		head: &github.Commit{SHA: "head2"},
		changes: []github.Change{
			{Kind: github.ChangeRemoved, Path: sparse + "/gone/dead.png"},
			{Kind: github.ChangeRemoved, Path: sparse + "/never-existed.png"},
		},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("base1"))

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Deleted)
	assert.False(t, mirrorExists(cfg, "gone/-dead.png"))
	// Emptied parent directory cleaned up
	assert.False(t, mirrorExists(cfg, "gone"))
	assert.True(t, mirrorExists(cfg, "keep.png"))
}

// Rename of a file that is locally disabled moves the disabled variant
// and keeps it disabled.
func TestRunIncrementalRenamePreservesDisabled(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{
		"old/-a.txt": "content",
	})

	remote := &mockRemote{
		head: &github.Commit{SHA: "head2"},
		changes: []github.Change{
			{Kind: github.ChangeRenamed, Path: sparse + "/new/b.txt", PreviousPath: sparse + "/old/a.txt"},
		},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("base1"))

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Renamed)
	assert.Zero(t, result.Downloaded)
	assert.Equal(t, "content", readMirror(t, cfg, "new/-b.txt"))
	assert.False(t, mirrorExists(cfg, "old/-a.txt"))
	// Old parent became empty and was removed
	assert.False(t, mirrorExists(cfg, "old"))
}

func TestRunIncrementalRenameOldAbsentDownloads(t *testing.T) {
	cfg := testConfig(t)

	remote := &mockRemote{
		head: &github.Commit{SHA: "head2"},
		changes: []github.Change{
			{Kind: github.ChangeRenamed, Path: sparse + "/b.txt", PreviousPath: sparse + "/a.txt"},
		},
		files: map[string]string{sparse + "/b.txt": "fetched"},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("base1"))

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Downloaded)
	assert.Zero(t, result.Renamed)
	assert.Equal(t, "fetched", readMirror(t, cfg, "b.txt"))
}

// A change set at the compare limit must not be processed; the engine
// falls back to a full sync.
func TestRunTruncatedChangeSetFallsBack(t *testing.T) {
	cfg := testConfig(t)

	remote := &mockRemote{
		head:      &github.Commit{SHA: "head2"},
		truncated: true,
		manifest:  map[string]string{"a.png": gitobj.HashBytes([]byte("aaa"))},
		files:     map[string]string{sparse + "/a.png": "aaa"},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("base1"))

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Equal(t, 1, remote.compareCalls)
	assert.Equal(t, 1, remote.manifestCalls, "full sync must run after truncation")
	assert.Equal(t, 1, result.Downloaded)
}

func TestRunVanishedBaselineFallsBack(t *testing.T) {
	cfg := testConfig(t)

	remote := &mockRemote{
		head:       &github.Commit{SHA: "head2"},
		compareErr: &github.APIError{StatusCode: http.StatusNotFound, URL: "compare"},
		manifest:   map[string]string{},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("gone-commit"))

	_, err := engine.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, remote.manifestCalls)
}

func TestRunOtherCompareErrorAborts(t *testing.T) {
	cfg := testConfig(t)

	compareErr := errors.New("connection reset")
	remote := &mockRemote{
		head:       &github.Commit{SHA: "head2"},
		compareErr: compareErr,
	}

	engine, _ := newTestEngine(t, cfg, remote)
	store := NewFileStore(cfg.StateFilePath())
	require.NoError(t, store.Save("base1"))

	_, err := engine.Run(context.Background(), false)
	require.ErrorIs(t, err, compareErr)
	assert.Zero(t, remote.manifestCalls, "transport errors must not trigger fallback")
}

func TestRunDownloadFailureAborts(t *testing.T) {
	cfg := testConfig(t)

	downloadErr := errors.New("connection reset")
	remote := &mockRemote{
		head:        &github.Commit{SHA: "head1"},
		manifest:    map[string]string{"a.png": "h1"},
		downloadErr: downloadErr,
	}

	engine, store := newTestEngine(t, cfg, remote)
	_, err := engine.Run(context.Background(), false)
	require.ErrorIs(t, err, downloadErr)

	// Baseline must not advance past a failed sync
	baseline, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, baseline)
}

func TestApplyPlanCountsPartialDownloads(t *testing.T) {
	cfg := testConfig(t)

	remote := &mockRemote{
		files:    map[string]string{sparse + "/a.png": "aaa"},
		failPath: sparse + "/b.png",
	}

	engine, _ := newTestEngine(t, cfg, remote)
	plan := Plan{Downloads: []Download{{Path: "a.png"}, {Path: "b.png"}}}

	// Serial execution keeps the failure after the first success
	result, err := engine.applyPlan(context.Background(), plan)
	require.Error(t, err)
	assert.Equal(t, 1, result.Downloaded, "completed downloads must be counted on the error path")
	assert.Equal(t, "aaa", readMirror(t, cfg, "a.png"))
}

func TestRunDryRun(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{"orphan.png": "stale"})

	remote := &mockRemote{
		head:     &github.Commit{SHA: "head1"},
		manifest: map[string]string{"a.png": "h1"},
	}

	store := NewFileStore(cfg.StateFilePath())
	engine := NewEngine(cfg, remote, store, slog.Default(), nil, true)

	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	assert.Zero(t, result.Downloaded)
	assert.True(t, mirrorExists(cfg, "orphan.png"))
	baseline, _ := store.Load()
	assert.Empty(t, baseline, "dry-run must not advance the baseline")
}

func TestRunProgressMonotonic(t *testing.T) {
	cfg := testConfig(t)

	remote := &mockRemote{
		head: &github.Commit{SHA: "head1"},
		manifest: map[string]string{
			"a.png": "h1",
			"b.png": "h2",
			"c.png": "h3",
		},
		files: map[string]string{
			sparse + "/a.png": "a",
			sparse + "/b.png": "b",
			sparse + "/c.png": "c",
		},
	}

	var events []Progress
	store := NewFileStore(cfg.StateFilePath())
	engine := NewEngine(cfg, remote, store, slog.Default(), func(p Progress) {
		events = append(events, p)
	}, false)

	_, err := engine.Run(context.Background(), false)
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := 0
	for _, p := range events {
		assert.LessOrEqual(t, p.Current, p.Total)
		if p.Stage == StageDownloading {
			assert.Greater(t, p.Current, last)
			last = p.Current
		}
	}
	assert.Equal(t, StageComplete, events[len(events)-1].Stage)
}

func TestVerifyReportsWithoutMutating(t *testing.T) {
	cfg := testConfig(t)
	testutil.WriteTree(t, cfg.MirrorRoot(), map[string]string{
		"ok.png":     "good",
		"orphan.png": "stale",
	})

	remote := &mockRemote{
		head: &github.Commit{SHA: "head1"},
		manifest: map[string]string{
			"ok.png":      gitobj.HashBytes([]byte("good")),
			"missing.png": "h2",
		},
		files: map[string]string{sparse + "/missing.png": "filled"},
	}

	engine, _ := newTestEngine(t, cfg, remote)
	report, err := engine.Verify(context.Background())
	require.NoError(t, err)

	assert.True(t, report.HasDiscrepancies())
	assert.Equal(t, []Download{{Path: "missing.png"}}, report.Downloads)
	assert.Equal(t, []string{"orphan.png"}, report.Deletes)

	// Nothing touched yet
	assert.True(t, mirrorExists(cfg, "orphan.png"))
	assert.False(t, mirrorExists(cfg, "missing.png"))

	// Applying the report is the explicit second step
	result, err := engine.ApplyReport(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Downloaded)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, "filled", readMirror(t, cfg, "missing.png"))
	assert.False(t, mirrorExists(cfg, "orphan.png"))
}

func TestCheckStatus(t *testing.T) {
	cfg := testConfig(t)
	remote := &mockRemote{head: &github.Commit{SHA: "head9", Date: "2026-03-01T00:00:00Z"}}

	engine, store := newTestEngine(t, cfg, remote)
	require.NoError(t, store.Save("head1"))

	status, err := engine.CheckStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "head9", status.LatestCommit)
	assert.Equal(t, "2026-03-01T00:00:00Z", status.LatestCommitDate)
	assert.Equal(t, "head1", status.BaselineCommit)
	assert.True(t, status.HasChanges)

	require.NoError(t, store.Save("head9"))
	status, err = engine.CheckStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.HasChanges)
}

func TestRunConcurrentDownloads(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sync.Concurrency = 4

	manifest := make(map[string]string)
	files := make(map[string]string)
	for i := 0; i < 20; i++ {
		rel := fmt.Sprintf("dir%d/f%d.png", i%4, i)
		content := fmt.Sprintf("content-%d", i)
		manifest[rel] = gitobj.HashBytes([]byte(content))
		files[sparse+"/"+rel] = content
	}

	remote := &mockRemote{head: &github.Commit{SHA: "head1"}, manifest: manifest, files: files}

	engine, _ := newTestEngine(t, cfg, remote)
	result, err := engine.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 20, result.Downloaded)

	for rel, content := range files {
		local := rel[len(sparse)+1:]
		assert.Equal(t, content, readMirror(t, cfg, local))
	}
}

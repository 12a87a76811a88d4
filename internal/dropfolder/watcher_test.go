package dropfolder

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JonMunkholm/staffgrid/internal/core"
	"github.com/JonMunkholm/staffgrid/internal/importer"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

type countingBroadcaster struct {
	mu sync.Mutex
	n  int
}

func (b *countingBroadcaster) Broadcast(context.Context) view.BroadcastResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.n++
	return view.BroadcastResult{}
}

func (b *countingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

type results struct {
	mu  sync.Mutex
	got []string
}

func (r *results) ObserveDropFile(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, result)
}

func setup(t *testing.T) (*Watcher, *core.Store, *countingBroadcaster, *results) {
	t.Helper()
	store := core.NewStore()
	require.NoError(t, store.Seed(core.DefaultSeed()))

	b := &countingBroadcaster{}
	rec := &results{}
	w, err := New(importer.New(store, importer.Config{}), Config{
		Dir:         t.TempDir(),
		Debounce:    20 * time.Millisecond,
		Broadcaster: b,
		Recorder:    rec,
	})
	require.NoError(t, err)
	return w, store, b, rec
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func entries(t *testing.T, dir string) []string {
	t.Helper()
	list, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range list {
		names = append(names, e.Name())
	}
	return names
}

func TestProcessImportsAndMoves(t *testing.T) {
	w, store, b, rec := setup(t)
	path := writeFile(t, w.dir, "new.csv", "Name,Department,JoinDate\n김철수,개발,2024-03-01\n,영업,2024-01-01\n")

	report := w.Process(context.Background(), path)
	require.NotNil(t, report)

	assert.Equal(t, 1, report.SuccessCount)
	assert.Equal(t, 1, report.FailureCount)
	assert.Equal(t, 11, store.Len())
	assert.Equal(t, 1, b.count())
	assert.Equal(t, []string{ResultImported}, rec.got)

	assert.NoFileExists(t, path)
	processed := entries(t, filepath.Join(w.dir, ProcessedDir))
	require.Len(t, processed, 2)

	var saved importer.Report
	data, err := os.ReadFile(filepath.Join(w.dir, ProcessedDir, processed[1]))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Equal(t, report.ID, saved.ID)
	require.Len(t, saved.Outcomes, 1)
	assert.Equal(t, 3, saved.Outcomes[0].Row)
}

func TestProcessRejectedGoesToFailed(t *testing.T) {
	w, store, b, rec := setup(t)
	path := writeFile(t, w.dir, "export.csv", "Id,Name,Department,JoinDate\n1,A,B,2024-01-01\n")

	report := w.Process(context.Background(), path)
	require.NotNil(t, report)

	assert.True(t, report.Fatal)
	assert.Equal(t, 10, store.Len())
	assert.Zero(t, b.count(), "nothing stored, nothing broadcast")
	assert.Equal(t, []string{ResultRejected}, rec.got)
	assert.Len(t, entries(t, filepath.Join(w.dir, FailedDir)), 2)
	assert.Empty(t, entries(t, filepath.Join(w.dir, ProcessedDir)))
}

type importFunc func(ctx context.Context, path string) (*importer.Report, error)

func (f importFunc) ImportFile(ctx context.Context, path string) (*importer.Report, error) {
	return f(ctx, path)
}

func TestProcessBusyLimiterRequeues(t *testing.T) {
	store := core.NewStore()
	pipeline := importer.New(store, importer.Config{})
	busy := true
	rec := &results{}

	w, err := New(importFunc(func(ctx context.Context, path string) (*importer.Report, error) {
		if busy {
			return nil, core.ErrTooManyImports
		}
		return pipeline.ImportFile(ctx, path)
	}), Config{Dir: t.TempDir(), Debounce: 20 * time.Millisecond, Recorder: rec})
	require.NoError(t, err)

	path := writeFile(t, w.dir, "queued.csv", "Name,Department,JoinDate\n대기,개발,2024-03-01\n")
	assert.Nil(t, w.Process(context.Background(), path))
	assert.FileExists(t, path)
	assert.Equal(t, []string{ResultDeferred}, rec.got)

	now := time.Now()
	assert.Empty(t, w.settled(now), "requeued file waits another debounce window")
	ready := w.settled(now.Add(w.debounce))
	require.Equal(t, []string{path}, ready)

	busy = false
	report := w.Process(context.Background(), ready[0])
	require.NotNil(t, report)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, []string{ResultDeferred, ResultImported}, rec.got)
}

func TestProcessFatalAfterRowsCountsAsProcessed(t *testing.T) {
	rec := &results{}
	b := &countingBroadcaster{}
	w, err := New(importFunc(func(_ context.Context, path string) (*importer.Report, error) {
		return &importer.Report{
			ID:           "r1",
			FileName:     filepath.Base(path),
			SuccessCount: 2,
			FailureCount: 1,
			Fatal:        true,
			Outcomes: []importer.Outcome{{
				Row: 4, Status: importer.StatusFailure, Kind: importer.KindRead, Message: "parse error",
			}},
		}, nil
	}), Config{Dir: t.TempDir(), Broadcaster: b, Recorder: rec})
	require.NoError(t, err)

	path := writeFile(t, w.dir, "cut.csv", "Name,Department,JoinDate\n")
	require.NotNil(t, w.Process(context.Background(), path))

	assert.Equal(t, []string{ResultPartial}, rec.got)
	assert.Len(t, entries(t, filepath.Join(w.dir, ProcessedDir)), 2)
	assert.Empty(t, entries(t, filepath.Join(w.dir, FailedDir)))
	assert.Equal(t, 1, b.count())
}

func TestProcessMissingFile(t *testing.T) {
	w, _, _, rec := setup(t)
	assert.Nil(t, w.Process(context.Background(), filepath.Join(w.dir, "gone.csv")))
	assert.Empty(t, rec.got)
}

func TestSettledHonoursDebounce(t *testing.T) {
	w, _, _, _ := setup(t)
	now := time.Now()
	w.pending["a.csv"] = now
	w.pending["b.csv"] = now.Add(-time.Second)

	assert.Equal(t, []string{"b.csv"}, w.settled(now))
	assert.Empty(t, w.settled(now))
	assert.Equal(t, []string{"a.csv"}, w.settled(now.Add(w.debounce)))
}

func TestRunPicksUpFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, store, _, _ := setup(t)
	writeFile(t, w.dir, "early.csv", "Name,Department,JoinDate\n먼저,개발,2024-03-01\n")
	writeFile(t, w.dir, "notes.txt", "ignored")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Len() == 11 }, 5*time.Second, 10*time.Millisecond)

	writeFile(t, w.dir, "late.CSV", "이름,부서,입사일\n나중,영업,2024-04-01\n")
	require.Eventually(t, func() bool { return store.Len() == 12 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Contains(t, entries(t, w.dir), "notes.txt")
	assert.Len(t, entries(t, filepath.Join(w.dir, ProcessedDir)), 4)
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(nil, Config{})
	assert.ErrorContains(t, err, "directory required")
}

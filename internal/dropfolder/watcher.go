// Package dropfolder imports CSV files copied into a watched directory.
//
// A file is picked up once it has been quiet for the debounce window, run
// through the import pipeline, and moved to processed/ (at least the header
// was accepted) or failed/ (rejected or unreadable). A JSON report is
// written next to the moved file.
package dropfolder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/JonMunkholm/staffgrid/internal/importer"
	"github.com/JonMunkholm/staffgrid/internal/view"
)

const (
	ProcessedDir = "processed"
	FailedDir    = "failed"

	// Result labels passed to Recorder.
	ResultImported = "imported"
	ResultPartial  = "partial"
	ResultRejected = "rejected"
	ResultDeferred = "deferred"
	ResultFailed   = "failed"
)

// Importer runs one file through the import pipeline.
type Importer interface {
	ImportFile(ctx context.Context, path string) (*importer.Report, error)
}

// Broadcaster pushes the store to every live view.
type Broadcaster interface {
	Broadcast(ctx context.Context) view.BroadcastResult
}

// Recorder counts handled files by result.
type Recorder interface {
	ObserveDropFile(result string)
}

// Config configures a Watcher.
type Config struct {
	Dir         string
	Debounce    time.Duration
	Broadcaster Broadcaster
	Recorder    Recorder
	Logger      *slog.Logger
}

// Watcher watches Dir for new or rewritten *.csv files.
type Watcher struct {
	dir      string
	debounce time.Duration
	imp      Importer
	views    Broadcaster
	recorder Recorder
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]time.Time
}

// New validates cfg and prepares the processed and failed directories.
func New(imp Importer, cfg Config) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, errors.New("dropfolder: directory required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	for _, sub := range []string{"", ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("dropfolder: %w", err)
		}
	}

	return &Watcher{
		dir:      cfg.Dir,
		debounce: cfg.Debounce,
		imp:      imp,
		views:    cfg.Broadcaster,
		recorder: cfg.Recorder,
		logger:   cfg.Logger.With("component", "dropfolder", "dir", cfg.Dir),
		pending:  make(map[string]time.Time),
	}, nil
}

// Run watches until ctx is done. Files already present when Run starts are
// queued as if they had just been written.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("dropfolder: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("dropfolder: watch %s: %w", w.dir, err)
	}
	w.queueExisting()

	w.logger.Info("drop folder watcher started", "debounce", w.debounce)
	defer w.logger.Info("drop folder watcher stopped")

	tick := min(w.debounce/4, 100*time.Millisecond)
	ticker := time.NewTicker(max(tick, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", "error", err)

		case <-ticker.C:
			for _, path := range w.settled(time.Now()) {
				if ctx.Err() != nil {
					return nil
				}
				w.Process(ctx, path)
			}
		}
	}
}

func (w *Watcher) queueExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("initial scan failed", "error", err)
		return
	}
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if e.Type().IsRegular() && isCSV(e.Name()) {
			w.pending[filepath.Join(w.dir, e.Name())] = now
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if !isCSV(ev.Name) || filepath.Dir(ev.Name) != filepath.Clean(w.dir) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.pending[ev.Name] = time.Now()
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		delete(w.pending, ev.Name)
	}
}

// settled removes and returns the files quiet for at least the debounce window.
func (w *Watcher) settled(now time.Time) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []string
	for path, last := range w.pending {
		if now.Sub(last) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	return ready
}

// Process imports one file and files it away. It returns the report, or nil
// when the file vanished before it could be read.
func (w *Watcher) Process(ctx context.Context, path string) *importer.Report {
	logger := w.logger.With("file", filepath.Base(path))

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Debug("dropped file gone before import")
		return nil
	}

	report, err := w.imp.ImportFile(ctx, path)
	if err != nil {
		// Limiter refused a slot; try again after another debounce window.
		logger.Warn("drop folder import deferred", "error", err)
		w.requeue(path)
		w.observe(ResultDeferred)
		return nil
	}

	// Rows added before a fatal error stay in the store, so such a file
	// counts as processed: dropping it again would add them twice.
	result, dest := ResultImported, ProcessedDir
	switch {
	case report.Fatal && report.SuccessCount == 0:
		result, dest = ResultRejected, FailedDir
	case report.Fatal:
		result = ResultPartial
	}

	moved, err := w.move(path, dest)
	if err != nil {
		logger.Error("move dropped file failed", "error", err)
		result = ResultFailed
	} else if err := writeReport(moved+".report.json", report); err != nil {
		logger.Error("write import report failed", "error", err)
	}

	logger.Info("drop folder import finished",
		"import_id", report.ID,
		"result", result,
		"success", report.SuccessCount,
		"failure", report.FailureCount,
	)
	w.observe(result)

	if report.SuccessCount > 0 && w.views != nil {
		w.views.Broadcast(ctx)
	}
	return report
}

func (w *Watcher) requeue(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.pending[path]; !ok {
		w.pending[path] = time.Now()
	}
}

func (w *Watcher) observe(result string) {
	if w.recorder != nil {
		w.recorder.ObserveDropFile(result)
	}
}

// move renames path into dir/sub, prefixing a UTC timestamp so repeated
// drops of the same name never collide.
func (w *Watcher) move(path, sub string) (string, error) {
	name := time.Now().UTC().Format("20060102T150405.000000000Z") + "-" + filepath.Base(path)
	dest := filepath.Join(w.dir, sub, name)
	if err := os.Rename(path, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func writeReport(path string, report *importer.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func isCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}

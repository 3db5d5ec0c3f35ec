// Package watcher turns raw filesystem events under the transcript roots
// into debounced per-file change signals for the ingestion pipeline.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/highbeam/agentdeck/internal/logger"
)

// Watcher monitors the transcript roots recursively, filters out
// non-transcript paths, debounces rapid appends, and hands clean events
// to the handler.
type Watcher struct {
	roots      []string
	handle     func(Event)
	window     time.Duration
	retryEvery time.Duration
	fsw        *fsnotify.Watcher
	debouncer  *Debouncer
	log        zerolog.Logger
}

// New creates a Watcher over the given roots. handle is called once per
// debounced change, from a timer goroutine.
func New(roots []string, window time.Duration, handle func(Event)) *Watcher {
	return &Watcher{
		roots:      roots,
		handle:     handle,
		window:     window,
		retryEvery: 15 * time.Second,
		log:        logger.For("watcher"),
	}
}

// Start begins watching all roots recursively. It blocks until ctx is
// cancelled. Call Stop for ordered teardown.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	w.debouncer = NewDebouncer(w.window, w.handle)

	// Roots may not exist yet on a fresh machine; watch the ones that do
	// and keep retrying the rest until they appear.
	var missing []string
	for _, root := range w.roots {
		if _, err := os.Stat(root); err != nil {
			missing = append(missing, root)
			continue
		}
		if err := w.addRecursive(root); err != nil {
			w.log.Warn().Err(err).Str("root", root).Msg("walk failed")
		}
	}

	retry := time.NewTicker(w.retryEvery)
	defer retry.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-retry.C:
			missing = w.retryMissing(missing)

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("fsnotify error")
		}
	}
}

// retryMissing attempts to watch roots that were absent so far and
// returns the ones still absent.
func (w *Watcher) retryMissing(roots []string) []string {
	var still []string
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			still = append(still, root)
			continue
		}
		w.log.Info().Str("root", root).Msg("root appeared")
		if err := w.addRecursive(root); err != nil {
			w.log.Warn().Err(err).Str("root", root).Msg("walk failed")
		}
	}
	return still
}

// Stop drains the debouncer (emitting pending events) and closes fsnotify.
func (w *Watcher) Stop() {
	if w.debouncer != nil {
		w.debouncer.Stop()
	}
	if w.fsw != nil {
		_ = w.fsw.Close()
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	// New directories (projects, date buckets) appear at any time.
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(ev.Name)
			return
		}
	}

	if !IsTranscript(ev.Name) {
		return
	}

	eventType := mapEventType(ev.Op)
	if eventType == "" {
		return // chmod-only, not interesting
	}

	w.debouncer.Feed(Event{
		Path:      ev.Name,
		Type:      eventType,
		Timestamp: time.Now(),
	})
}

// addRecursive walks root and adds every directory to the fsnotify set.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible entries
		}
		if !d.IsDir() {
			return nil
		}
		_ = w.fsw.Add(path)
		return nil
	})
}

// mapEventType converts fsnotify.Op to a string event type.
func mapEventType(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "modify"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Remove):
		return "delete"
	default:
		return "" // e.g. Chmod only
	}
}

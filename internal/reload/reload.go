// Package reload swaps the serving artifact bundle when the active bundle
// pointer changes on disk.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/neurasky/neurasky/internal/artifact"
	"github.com/neurasky/neurasky/internal/inference"
)

const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads the bundle named by root/CURRENT into a Service.
type Watcher struct {
	root     string
	svc      *inference.Service
	loc      *time.Location
	logger   *slog.Logger
	Debounce time.Duration

	// OnReload, if set, is called after every reload attempt.
	OnReload func(bundleID string, err error)

	mu sync.Mutex
}

func New(root string, svc *inference.Service, loc *time.Location, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		svc:      svc,
		loc:      loc,
		logger:   logger.With("component", "reload"),
		Debounce: DefaultDebounce,
	}
}

// Reload loads the active bundle and swaps it in. On failure the previous
// context keeps serving.
func (w *Watcher) Reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	id, err := artifact.Current(w.root)
	if err != nil {
		w.logger.Warn("reload rejected", "error", err)
		w.notify("", err)
		return err
	}
	if cur := w.svc.Current(); cur != nil && cur.Bundle().ID == id {
		w.logger.Debug("active bundle unchanged", "bundle", id)
		return nil
	}

	c, err := inference.LoadContext(filepath.Join(w.root, id), w.loc, w.logger)
	if err != nil {
		err = fmt.Errorf("load bundle %s: %w", id, err)
		w.logger.Error("reload rejected, keeping previous bundle", "bundle", id, "error", err)
		w.notify(id, err)
		return err
	}
	w.svc.Swap(c)
	w.logger.Info("bundle reloaded", "bundle", id)
	w.notify(id, nil)
	return nil
}

func (w *Watcher) notify(id string, err error) {
	if w.OnReload != nil {
		w.OnReload(id, err)
	}
}

// Run watches the artifacts root until ctx is done. It reloads once right
// after the watch is installed. Bursts of events on the
// CURRENT file are collapsed into one reload after Debounce.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	// The root is only created by the first Save; watch it from the start.
	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create artifacts root: %w", err)
	}
	if err := fw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	w.logger.Info("watching artifacts", "root", w.root)

	// Pick up anything activated before the watch started.
	w.Reload()

	timer := time.NewTimer(w.Debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != artifact.CurrentFile {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(w.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			w.Reload()
		}
	}
}

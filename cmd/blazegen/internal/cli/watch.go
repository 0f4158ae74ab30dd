package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce is the quiet period after a change before regenerating. Editors
// write a file with several events.
const debounce = 100 * time.Millisecond

// watch runs fn whenever a model file of dir changes, until ctx is done.
// Errors of fn are logged and watching continues.
func watch(ctx context.Context, logger *slog.Logger, dir string, fn func() error) error {
	w, err := newWatcher(dir)
	if err != nil {
		return err
	}
	logger.Info("watching model files", "dir", dir)
	return loop(ctx, logger, w, fn)
}

func newWatcher(dir string) (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func loop(ctx context.Context, logger *slog.Logger, w *fsnotify.Watcher, fn func() error) error {
	defer w.Close()
	timer := time.NewTimer(debounce)
	timer.Stop()
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !isModelFile(ev.Name) || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) {
				continue
			}
			logger.Debug("model changed", "file", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watch", "error", err)
		case <-timer.C:
			if err := fn(); err != nil {
				logger.Warn("regenerate", "error", err)
			}
		}
	}
}

func isModelFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

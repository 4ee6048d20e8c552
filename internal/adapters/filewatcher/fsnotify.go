// Package filewatcher provides the drop-folder adapters.
// Clean Architecture: Adapter implementing ports.FileWatcher.
package filewatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// DefaultExtensions are watched when none are given.
var DefaultExtensions = []string{".csv"}

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]bool // lower-cased, with the leading dot
	logger     zerolog.Logger
}

// NewFSNotifyWatcher creates a watcher for files with the given extensions.
func NewFSNotifyWatcher(extensions []string, logger zerolog.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[strings.ToLower(ext)] = true
	}

	return &FSNotifyWatcher{
		watcher:    w,
		extensions: set,
		logger:     logger.With().Str("component", "filewatcher").Logger(),
	}, nil
}

// Watch emits events for accepted files directly inside dir.
// The channel is closed when ctx is done or the watcher is stopped.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	if err := w.watcher.Add(dir); err != nil {
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	out := make(chan ports.FileEvent, 100)
	go w.pump(ctx, dir, out)
	return out, nil
}

func (w *FSNotifyWatcher) pump(ctx context.Context, dir string, out chan<- ports.FileEvent) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			ev, ok := w.translate(raw)
			if !ok {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Str("dir", dir).Msg("watch error")
		}
	}
}

// translate maps an fsnotify event onto a FileEvent. Renames count as
// deletions of the old name; the new name arrives as a create.
func (w *FSNotifyWatcher) translate(ev fsnotify.Event) (ports.FileEvent, bool) {
	if !w.accepts(ev.Name) {
		return ports.FileEvent{}, false
	}
	var op ports.FileOperation
	switch {
	case ev.Has(fsnotify.Create):
		op = ports.FileCreated
	case ev.Has(fsnotify.Write):
		op = ports.FileModified
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		op = ports.FileDeleted
	default:
		return ports.FileEvent{}, false
	}
	return ports.FileEvent{Path: ev.Name, Operation: op}, true
}

// accepts reports whether path has a watched extension and is not an
// editor lock or hidden temp file.
func (w *FSNotifyWatcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	return w.extensions[strings.ToLower(filepath.Ext(base))]
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

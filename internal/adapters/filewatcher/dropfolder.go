package filewatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// DefaultSettle is how long a file must stay quiet before it is ingested.
const DefaultSettle = 300 * time.Millisecond

// Ingester loads a dataset from a path into a session.
type Ingester interface {
	Ingest(ctx context.Context, session, source string) (entities.DatasetMeta, error)
}

// DropFolder ingests every CSV file written to a directory, using the file
// stem as the session id. Writes are debounced so half-copied files are not read.
type DropFolder struct {
	watcher  ports.FileWatcher
	ingester Ingester
	logger   zerolog.Logger
	settle   time.Duration
}

// NewDropFolder wires a watcher to an ingester. settle <= 0 selects DefaultSettle.
func NewDropFolder(watcher ports.FileWatcher, ingester Ingester, logger zerolog.Logger, settle time.Duration) *DropFolder {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &DropFolder{
		watcher:  watcher,
		ingester: ingester,
		logger:   logger.With().Str("component", "dropfolder").Logger(),
		settle:   settle,
	}
}

// SessionFor returns the session id a dropped file is loaded into.
func SessionFor(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run ingests files already present in dir, then watches it until ctx is done.
func (d *DropFolder) Run(ctx context.Context, dir string) error {
	// 1. Start watching first so nothing written during the scan is missed
	events, err := d.watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	// 2. Existing files
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", dir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && !strings.HasPrefix(e.Name(), ".") && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			d.ingest(ctx, filepath.Join(dir, e.Name()))
		}
	}

	// 3. Debounced events
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(d.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Operation {
			case ports.FileCreated, ports.FileModified:
				pending[ev.Path] = time.Now()
			case ports.FileDeleted:
				delete(pending, ev.Path)
			}
		case now := <-ticker.C:
			for path, touched := range pending {
				if now.Sub(touched) >= d.settle {
					delete(pending, path)
					d.ingest(ctx, path)
				}
			}
		}
	}
}

func (d *DropFolder) ingest(ctx context.Context, path string) {
	session := SessionFor(path)
	meta, err := d.ingester.Ingest(ctx, session, path)
	if err != nil {
		d.logger.Warn().Err(err).Str("path", path).Str("session", session).Msg("ingesting dropped file failed")
		return
	}
	d.logger.Info().Str("path", path).Str("session", session).Int("rows", meta.Rows).Msg("dropped file ingested")
}

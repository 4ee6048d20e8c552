// Package usecases contains application business rules.
// Clean Architecture: Usecases orchestrate entities and depend on port interfaces.
// They contain NO framework code - just business logic over the ports.
package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// uploadOrigin prefixes the origin of datasets that exist only in memory.
const uploadOrigin = "upload:"

// IngestUseCase loads datasets into the registry and records their metadata.
// Single Responsibility: Only ingestion logic.
type IngestUseCase struct {
	loader   ports.DatasetLoader
	registry ports.DatasetRegistry
	store    ports.MetaStore
	metrics  ports.Metrics
	logger   zerolog.Logger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
// Dependency Injection: Adapters are passed in, not created here. store may be nil.
func NewIngestUseCase(
	loader ports.DatasetLoader,
	registry ports.DatasetRegistry,
	store ports.MetaStore,
	logger zerolog.Logger,
	metrics ports.Metrics,
) *IngestUseCase {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &IngestUseCase{
		loader:   loader,
		registry: registry,
		store:    store,
		metrics:  metrics,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Ingest loads source (a local path or an http(s) URL) for session.
func (uc *IngestUseCase) Ingest(ctx context.Context, session, source string) (entities.DatasetMeta, error) {
	// 1. Parse via port (adapter)
	ds, err := uc.loader.Load(ctx, source)
	if err != nil {
		return entities.DatasetMeta{}, fmt.Errorf("loading %s: %w", source, err)
	}

	// 2. Register and persist
	return uc.register(ctx, session, ds, source)
}

// IngestBytes loads an uploaded buffer for session.
func (uc *IngestUseCase) IngestBytes(ctx context.Context, session, name string, data []byte) (entities.DatasetMeta, error) {
	ds, err := uc.loader.Parse(ctx, name, data)
	if err != nil {
		return entities.DatasetMeta{}, fmt.Errorf("parsing %s: %w", name, err)
	}
	return uc.register(ctx, session, ds, uploadOrigin+name)
}

func (uc *IngestUseCase) register(ctx context.Context, session string, ds *entities.Dataset, origin string) (entities.DatasetMeta, error) {
	meta := uc.registry.Put(session, ds, origin, ds.ColumnNames(), ds.DTypes())
	uc.metrics.RegistrySize(uc.registry.Len())
	uc.logger.Info().
		Str("session", session).
		Str("origin", origin).
		Int("rows", meta.Rows).
		Int("columns", len(meta.Columns)).
		Msg("dataset loaded")

	if uc.store != nil {
		if err := uc.store.Put(ctx, session, meta); err != nil {
			// The dataset is live; only durable context is lost.
			uc.logger.Warn().Err(err).Str("session", session).Msg("persisting session metadata failed")
		}
	}
	return meta, nil
}

// Restore reloads an expired session from its persisted origin. It reports
// false when there is nothing to restore: no store, no metadata, or an
// origin that cannot be re-read (uploads and URLs).
func (uc *IngestUseCase) Restore(ctx context.Context, session string) (bool, error) {
	if uc.registry.Has(session) {
		return true, nil
	}
	if uc.store == nil {
		return false, nil
	}
	meta, ok, err := uc.store.Get(ctx, session)
	if err != nil {
		return false, fmt.Errorf("reading metadata for %s: %w", session, err)
	}
	if !ok || !restorable(meta.Origin) {
		return false, nil
	}

	ds, err := uc.loader.Load(ctx, meta.Origin)
	if err != nil {
		return false, fmt.Errorf("reloading %s: %w", meta.Origin, err)
	}
	if _, err := uc.register(ctx, session, ds, meta.Origin); err != nil {
		return false, err
	}
	return true, nil
}

func restorable(origin string) bool {
	switch {
	case origin == "":
		return false
	case strings.HasPrefix(origin, uploadOrigin):
		return false
	case strings.HasPrefix(origin, "http://"), strings.HasPrefix(origin, "https://"):
		return false
	}
	return true
}

// Meta returns the live metadata for session, falling back to the store.
func (uc *IngestUseCase) Meta(ctx context.Context, session string) (entities.DatasetMeta, bool, error) {
	if meta, ok := uc.registry.GetMeta(session); ok {
		return meta, true, nil
	}
	if uc.store == nil {
		return entities.DatasetMeta{}, false, nil
	}
	return uc.store.Get(ctx, session)
}

// Delete removes a session's dataset and its persisted metadata.
func (uc *IngestUseCase) Delete(ctx context.Context, session string) error {
	uc.registry.Remove(session)
	uc.metrics.RegistrySize(uc.registry.Len())
	if uc.store == nil {
		return nil
	}
	if err := uc.store.Delete(ctx, session); err != nil {
		return fmt.Errorf("deleting metadata for %s: %w", session, err)
	}
	return nil
}

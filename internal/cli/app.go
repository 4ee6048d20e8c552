package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/0xcro3dile/datachat-go/internal/adapters/cache"
	"github.com/0xcro3dile/datachat-go/internal/adapters/llm"
	"github.com/0xcro3dile/datachat-go/internal/adapters/loader"
	"github.com/0xcro3dile/datachat-go/internal/adapters/metastore"
	"github.com/0xcro3dile/datachat-go/internal/adapters/registry"
	"github.com/0xcro3dile/datachat-go/internal/adapters/render"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
	"github.com/0xcro3dile/datachat-go/internal/domain/usecases"
	"github.com/0xcro3dile/datachat-go/internal/infrastructure/config"
	"github.com/0xcro3dile/datachat-go/internal/infrastructure/metrics"
)

// app is the composition root shared by serve and ask.
type app struct {
	cfg          *config.Config
	logger       zerolog.Logger
	ingest       *usecases.IngestUseCase
	orchestrator *usecases.Orchestrator
	gatherer     prometheus.Gatherer
	closers      []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// 1. Metrics
	var m ports.Metrics = ports.NopMetrics{}
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		m = metrics.New(reg)
		a.gatherer = reg
	}

	// 2. Storage
	store, err := a.openMetaStore()
	if err != nil {
		return nil, err
	}

	// 3. Language model
	chat, err := newChatService(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, err
	}

	// 4. Core
	datasets := registry.NewInMemoryRegistry(
		registry.WithTTL(cfg.Registry.TTL),
		registry.WithCapacity(cfg.Registry.Capacity),
	)
	csv := loader.NewCSVLoader(
		loader.WithMaxBytes(cfg.MaxUploadBytes()),
		loader.WithMaxRows(cfg.Ingest.MaxRows),
		loader.WithHTTPClient(&http.Client{Timeout: cfg.Ingest.DownloadTimeout}),
	)
	renderer := render.NewPNGRenderer()
	charts := usecases.NewChartBuilder(datasets, cache.NewChartCache(cfg.Cache.Size, cfg.Cache.TTL), renderer,
		usecases.WithChartMetrics(m),
		usecases.WithChartLogger(logger),
	)

	a.ingest = usecases.NewIngestUseCase(csv, datasets, store, logger, m)

	opts := []usecases.Option{
		usecases.WithRestorer(a.ingest),
		usecases.WithLLMFallback(cfg.LLM.Enabled),
		usecases.WithLogger(logger),
		usecases.WithMetrics(m),
	}
	if chat != nil {
		opts = append(opts, usecases.WithChatService(chat))
	}
	if store != nil {
		opts = append(opts, usecases.WithMetaStore(store))
	}
	a.orchestrator = usecases.NewOrchestrator(datasets, usecases.NewActionExecutor(datasets, renderer), charts, opts...)

	return a, nil
}

// openMetaStore returns nil for the "none" driver.
func (a *app) openMetaStore() (ports.MetaStore, error) {
	cfg := a.cfg.MetaStore
	switch cfg.Driver {
	case "file":
		return metastore.NewFileStore(cfg.Path)
	case "sqlite":
		store, err := metastore.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case "redis":
		store, err := metastore.NewRedisStore(metastore.RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.KeyPrefix,
			TTL:       cfg.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil
	case "none", "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown metastore driver %q", cfg.Driver)
}

// newChatService returns nil when the language model is disabled.
func newChatService(ctx context.Context, cfg config.LLMConfig) (ports.ChatService, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllamaChatAdapter(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	case "gemini":
		chat, err := llm.NewGeminiChatAdapter(ctx, llm.GeminiConfig{
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return chat, nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

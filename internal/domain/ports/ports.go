// Package ports defines interfaces for external dependencies.
// Clean Architecture: These are the boundaries - usecases depend on these abstractions,
// not concrete implementations. Adapters implement these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

// ChatService is the language-model collaborator.
// Single Responsibility: Only chat completion, the orchestrator owns the prompt.
type ChatService interface {
	// Chat sends an ordered conversation and returns the assistant reply.
	Chat(ctx context.Context, messages []entities.ChatMessage) (string, error)
}

// DatasetRegistry stores one dataset per session with TTL and capacity bounds.
// Implementations must be safe for concurrent use.
type DatasetRegistry interface {
	// Has reports whether a live entry exists. Expired entries are removed.
	Has(session string) bool

	// Get returns the session's dataset.
	Get(session string) (*entities.Dataset, bool)

	// GetMeta returns the session's metadata.
	GetMeta(session string) (entities.DatasetMeta, bool)

	// Lookup returns the dataset and its metadata from the same entry.
	// A concurrent Put never pairs one load's data with another's meta.
	Lookup(session string) (*entities.Dataset, entities.DatasetMeta, bool)

	// Put stores a dataset, replacing any existing entry for the session.
	Put(session string, ds *entities.Dataset, origin string, columns []string, dtypes map[string]string) entities.DatasetMeta

	// Remove drops the session's entry.
	Remove(session string)

	// Clear drops every entry.
	Clear()

	// Len returns the number of live entries.
	Len() int
}

// ChartResult is a chart builder output: the block plus an optional preview.
type ChartResult struct {
	Block   entities.Block
	Preview *entities.TablePayload
}

// ChartCache holds recently built charts by key.
type ChartCache interface {
	Get(key string) (ChartResult, bool)
	Set(key string, result ChartResult)
}

// ChartRenderer rasterises a figure. Each call must use its own drawing state.
type ChartRenderer interface {
	// Render returns PNG bytes.
	Render(fig entities.Figure) ([]byte, error)
}

// DatasetLoader parses tabular data from a path, URL or buffer.
type DatasetLoader interface {
	// Load reads a dataset from a local path or an http(s) URL.
	Load(ctx context.Context, source string) (*entities.Dataset, error)

	// Parse reads a dataset from an in-memory buffer.
	Parse(ctx context.Context, name string, data []byte) (*entities.Dataset, error)
}

// MetaStore persists dataset metadata by session.
// Dependency Inversion: Usecases depend on this abstraction, not on file, SQLite or Redis directly.
type MetaStore interface {
	Get(ctx context.Context, session string) (entities.DatasetMeta, bool, error)
	Put(ctx context.Context, session string, meta entities.DatasetMeta) error
	Delete(ctx context.Context, session string) error
}

// Route labels used by Metrics.
const (
	RouteData  = "data"
	RouteChart = "chart"
	RouteLLM   = "llm"
	RouteAlert = "alert"
)

// Metrics receives engine counters. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveRequest(route string, took time.Duration)
	ChartCache(hit bool)
	LLMCall(err error)
	RegistrySize(n int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ObserveRequest(string, time.Duration) {}
func (NopMetrics) ChartCache(bool)                      {}
func (NopMetrics) LLMCall(error)                        {}
func (NopMetrics) RegistrySize(int)                     {}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

package usecases

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

// mockRegistry implements ports.DatasetRegistry without expiry.
type mockRegistry struct {
	mu       sync.Mutex
	data     map[string]*entities.Dataset
	meta     map[string]entities.DatasetMeta
	loadedAt time.Time
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{
		data:     map[string]*entities.Dataset{},
		meta:     map[string]entities.DatasetMeta{},
		loadedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockRegistry) Has(session string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[session]
	return ok
}

func (m *mockRegistry) Get(session string) (*entities.Dataset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.data[session]
	return ds, ok
}

func (m *mockRegistry) GetMeta(session string) (entities.DatasetMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.meta[session]
	return meta, ok
}

func (m *mockRegistry) Lookup(session string) (*entities.Dataset, entities.DatasetMeta, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.data[session]
	if !ok {
		return nil, entities.DatasetMeta{}, false
	}
	return ds, m.meta[session], true
}

func (m *mockRegistry) Put(session string, ds *entities.Dataset, origin string, columns []string, dtypes map[string]string) entities.DatasetMeta {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := entities.DatasetMeta{Origin: origin, Columns: columns, DTypes: dtypes, Rows: ds.NumRows(), LoadedAt: m.loadedAt}
	m.data[session] = ds
	m.meta[session] = meta
	return meta
}

func (m *mockRegistry) Remove(session string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, session)
	delete(m.meta, session)
}

func (m *mockRegistry) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = map[string]*entities.Dataset{}
	m.meta = map[string]entities.DatasetMeta{}
}

func (m *mockRegistry) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// mockCache implements ports.ChartCache with a plain map.
type mockCache struct {
	mu      sync.Mutex
	entries map[string]ports.ChartResult
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string]ports.ChartResult{}}
}

func (c *mockCache) Get(key string) (ports.ChartResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *mockCache) Set(key string, r ports.ChartResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r
}

// countingRenderer implements ports.ChartRenderer and records every call.
type countingRenderer struct {
	calls atomic.Int64
	last  atomic.Pointer[entities.Figure]
	err   error
}

func (r *countingRenderer) Render(fig entities.Figure) ([]byte, error) {
	r.calls.Add(1)
	r.last.Store(&fig)
	if r.err != nil {
		return nil, r.err
	}
	return []byte("png:" + fig.Kind.String()), nil
}

// mockChat implements ports.ChatService.
type mockChat struct {
	mu       sync.Mutex
	reply    string
	err      error
	messages [][]entities.ChatMessage
}

func (m *mockChat) Chat(ctx context.Context, msgs []entities.ChatMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs)
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockChat) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// mockMetaStore implements ports.MetaStore.
type mockMetaStore struct {
	mu   sync.Mutex
	meta map[string]entities.DatasetMeta
	err  error
}

func newMockMetaStore() *mockMetaStore {
	return &mockMetaStore{meta: map[string]entities.DatasetMeta{}}
}

func (s *mockMetaStore) Get(ctx context.Context, session string) (entities.DatasetMeta, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return entities.DatasetMeta{}, false, s.err
	}
	m, ok := s.meta[session]
	return m, ok, nil
}

func (s *mockMetaStore) Put(ctx context.Context, session string, meta entities.DatasetMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.meta[session] = meta
	return nil
}

func (s *mockMetaStore) Delete(ctx context.Context, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.meta, session)
	return s.err
}

// mockLoader implements ports.DatasetLoader from a fixed table of sources.
type mockLoader struct {
	datasets map[string]*entities.Dataset
	loads    int
}

var errNoSource = errors.New("no such source")

func (l *mockLoader) Load(ctx context.Context, source string) (*entities.Dataset, error) {
	l.loads++
	ds, ok := l.datasets[source]
	if !ok {
		return nil, errNoSource
	}
	return ds, nil
}

func (l *mockLoader) Parse(ctx context.Context, name string, data []byte) (*entities.Dataset, error) {
	return l.Load(ctx, name)
}

// fakeClock advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}

// salesDataset is a small mixed-type table:
//
//	city    price  qty  ordered     active
//	Hanoi   10.5   1    2024-01-03  true
//	Saigon  20.0   2    2024-01-20  false
//	Hanoi   null   3    2024-02-05  true
//	Danang  40.0   4    2024-02-10  null
//	Hanoi   50.0   5    2024-03-01  true
func salesDataset(t *testing.T) *entities.Dataset {
	t.Helper()
	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 0, 0, 0, 0, time.UTC) }
	ds, err := entities.NewDataset([]*entities.Column{
		{Name: "city", DType: entities.DTypeObject, Strings: []string{"Hanoi", "Saigon", "Hanoi", "Danang", "Hanoi"}, Null: make([]bool, 5)},
		{Name: "price", DType: entities.DTypeFloat64, Floats: []float64{10.5, 20, 0, 40, 50}, Null: []bool{false, false, true, false, false}},
		{Name: "qty", DType: entities.DTypeInt64, Floats: []float64{1, 2, 3, 4, 5}, Null: make([]bool, 5)},
		{Name: "ordered", DType: entities.DTypeDatetime, Times: []time.Time{day(1, 3), day(1, 20), day(2, 5), day(2, 10), day(3, 1)}, Null: make([]bool, 5)},
		{Name: "active", DType: entities.DTypeBool, Bools: []bool{true, false, true, false, true}, Null: []bool{false, false, false, true, false}},
	})
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

// numbersDataset holds n rows of a single int64 column "n" with values 0..n-1.
func numbersDataset(t *testing.T, n int) *entities.Dataset {
	t.Helper()
	values := make([]float64, n)
	for i := range values {
		values[i] = float64(i)
	}
	ds, err := entities.NewDataset([]*entities.Column{
		{Name: "n", DType: entities.DTypeInt64, Floats: values, Null: make([]bool, n)},
	})
	if err != nil {
		t.Fatalf("building dataset: %v", err)
	}
	return ds
}

func load(reg *mockRegistry, session string, ds *entities.Dataset) {
	reg.Put(session, ds, session+".csv", ds.ColumnNames(), ds.DTypes())
}

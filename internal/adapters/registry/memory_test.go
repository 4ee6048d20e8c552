package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func tinyDataset(t *testing.T) *entities.Dataset {
	t.Helper()
	ds, err := entities.NewDataset([]*entities.Column{
		{Name: "a", DType: entities.DTypeInt64, Floats: []float64{1, 2}, Null: make([]bool, 2)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

func put(r *InMemoryRegistry, session string, ds *entities.Dataset) entities.DatasetMeta {
	return r.Put(session, ds, session+".csv", ds.ColumnNames(), ds.DTypes())
}

func TestInMemoryRegistry_PutAndGet(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewInMemoryRegistry(WithClock(clock.Now))
	ds := tinyDataset(t)

	meta := put(r, "s1", ds)
	if meta.Rows != 2 || meta.Origin != "s1.csv" || !meta.LoadedAt.Equal(clock.Now()) {
		t.Errorf("unexpected meta: %+v", meta)
	}

	got, ok := r.Get("s1")
	if !ok || got != ds {
		t.Fatal("expected stored dataset")
	}
	if _, ok := r.GetMeta("s1"); !ok {
		t.Error("expected meta")
	}
	if r.Has("other") {
		t.Error("unknown session should not exist")
	}
}

func TestInMemoryRegistry_TTLExpiry(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewInMemoryRegistry(WithClock(clock.Now), WithTTL(time.Hour))
	put(r, "s1", tinyDataset(t))

	clock.Advance(time.Hour)
	if !r.Has("s1") {
		t.Fatal("entry should live for exactly its TTL")
	}

	clock.Advance(time.Second)
	if r.Has("s1") {
		t.Error("entry should have expired")
	}
	if r.Len() != 0 {
		t.Errorf("expected expired entry to be dropped, len=%d", r.Len())
	}
}

func TestInMemoryRegistry_ReloadResetsTTL(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewInMemoryRegistry(WithClock(clock.Now), WithTTL(time.Hour))
	put(r, "s1", tinyDataset(t))

	clock.Advance(50 * time.Minute)
	put(r, "s1", tinyDataset(t))
	clock.Advance(50 * time.Minute)

	if !r.Has("s1") {
		t.Error("reload should reset TTL")
	}
	if r.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", r.Len())
	}
}

func TestInMemoryRegistry_CapacityEvictsOldest(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewInMemoryRegistry(WithClock(clock.Now))
	ds := tinyDataset(t)

	for i := 0; i < DefaultCapacity; i++ {
		put(r, fmt.Sprintf("s%d", i), ds)
		clock.Advance(time.Second)
	}
	put(r, "newest", ds)

	if r.Len() != DefaultCapacity {
		t.Fatalf("expected %d entries, got %d", DefaultCapacity, r.Len())
	}
	if r.Has("s0") {
		t.Error("oldest session should have been evicted")
	}
	if !r.Has("s1") || !r.Has("newest") {
		t.Error("younger sessions should survive")
	}
}

func TestInMemoryRegistry_EvictionTieBreaksOnInsertOrder(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewInMemoryRegistry(WithClock(clock.Now), WithCapacity(2))
	ds := tinyDataset(t)

	put(r, "first", ds)
	put(r, "second", ds)
	put(r, "third", ds)

	if r.Has("first") {
		t.Error("first inserted entry should be evicted on a tie")
	}
	if !r.Has("second") || !r.Has("third") {
		t.Error("later entries should survive")
	}
}

func TestInMemoryRegistry_RemoveAndClear(t *testing.T) {
	r := NewInMemoryRegistry()
	ds := tinyDataset(t)
	put(r, "a", ds)
	put(r, "b", ds)

	r.Remove("a")
	if r.Has("a") || !r.Has("b") {
		t.Error("remove should only drop its session")
	}
	r.Clear()
	if r.Len() != 0 {
		t.Error("clear should empty the registry")
	}
}

func TestInMemoryRegistry_Concurrent(t *testing.T) {
	r := NewInMemoryRegistry(WithCapacity(10))
	ds := tinyDataset(t)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				session := fmt.Sprintf("s%d", (g*200+i)%25)
				put(r, session, ds)
				r.Get(session)
				r.GetMeta(session)
				if i%7 == 0 {
					r.Remove(session)
				}
			}
		}(g)
	}
	wg.Wait()

	if n := r.Len(); n > 10 {
		t.Errorf("capacity exceeded: %d", n)
	}
}

func TestInMemoryRegistry_MetaIsCopied(t *testing.T) {
	r := NewInMemoryRegistry()
	ds := tinyDataset(t)
	cols := []string{"a"}
	dtypes := map[string]string{"a": entities.DTypeInt64}
	r.Put("s1", ds, "x.csv", cols, dtypes)

	cols[0] = "mutated"
	dtypes["a"] = "object"

	meta, _ := r.GetMeta("s1")
	if meta.Columns[0] != "a" || meta.DTypes["a"] != entities.DTypeInt64 {
		t.Errorf("registry meta aliased caller slices: %+v", meta)
	}
}

func TestInMemoryRegistry_Lookup(t *testing.T) {
	clock := &manualClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewInMemoryRegistry(WithClock(clock.Now), WithTTL(time.Hour))

	put(r, "s1", tinyDataset(t))
	clock.Advance(time.Minute)
	reloaded := tinyDataset(t)
	want := put(r, "s1", reloaded)

	ds, meta, ok := r.Lookup("s1")
	if !ok || ds != reloaded || !meta.LoadedAt.Equal(want.LoadedAt) {
		t.Errorf("lookup should return the latest load and its meta, got %p %+v", ds, meta)
	}
	if _, _, ok := r.Lookup("other"); ok {
		t.Error("unknown session should not be found")
	}

	clock.Advance(2 * time.Hour)
	if _, _, ok := r.Lookup("s1"); ok {
		t.Error("expired entry should not be returned")
	}
}

func TestInMemoryRegistry_LookupDuringReloads(t *testing.T) {
	r := NewInMemoryRegistry()
	small, large := tinyDataset(t), numbers(t, 5)
	put(r, "s1", small)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			if i%2 == 0 {
				put(r, "s1", large)
			} else {
				put(r, "s1", small)
			}
		}
	}()
	for i := 0; i < 200; i++ {
		ds, meta, ok := r.Lookup("s1")
		if !ok || meta.Rows != ds.NumRows() {
			t.Fatalf("dataset and meta from different loads: rows %d vs %d", ds.NumRows(), meta.Rows)
		}
	}
	wg.Wait()
}

func numbers(t *testing.T, n int) *entities.Dataset {
	t.Helper()
	ds, err := entities.NewDataset([]*entities.Column{
		{Name: "a", DType: entities.DTypeInt64, Floats: make([]float64, n), Null: make([]bool, n)},
	})
	if err != nil {
		t.Fatal(err)
	}
	return ds
}

package metastore

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/0xcro3dile/datachat-go/internal/domain/entities"
	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

func sampleMeta(origin string) entities.DatasetMeta {
	return entities.DatasetMeta{
		Origin:   origin,
		Columns:  []string{"city", "price"},
		DTypes:   map[string]string{"city": "object", "price": "float64"},
		Rows:     5,
		LoadedAt: time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC),
	}
}

// exerciseStore runs the behavior every MetaStore must share.
func exerciseStore(t *testing.T, store ports.MetaStore) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing session: ok=%v err=%v", ok, err)
	}

	want := sampleMeta("data/sales.csv")
	if err := store.Put(ctx, "s1", want); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	got, ok, err := store.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("get failed: ok=%v err=%v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("meta mismatch (-want +got):\n%s", diff)
	}

	replaced := sampleMeta("data/other.csv")
	replaced.Rows = 9
	if err := store.Put(ctx, "s1", replaced); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _, _ = store.Get(ctx, "s1")
	if got.Origin != "data/other.csv" || got.Rows != 9 {
		t.Errorf("overwrite not applied: %+v", got)
	}

	if err := store.Put(ctx, "s2", want); err != nil {
		t.Fatalf("put s2 failed: %v", err)
	}
	if err := store.Delete(ctx, "s1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, _ := store.Get(ctx, "s1"); ok {
		t.Error("s1 should be deleted")
	}
	if _, ok, _ := store.Get(ctx, "s2"); !ok {
		t.Error("s2 should survive deleting s1")
	}
	if err := store.Delete(ctx, "never-stored"); err != nil {
		t.Errorf("deleting an unknown session should not fail: %v", err)
	}
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	exerciseStore(t, store)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	first, _ := NewFileStore(dir)
	if err := first.Put(context.Background(), "s1", sampleMeta("a.csv")); err != nil {
		t.Fatal(err)
	}

	second, _ := NewFileStore(dir)
	meta, ok, err := second.Get(context.Background(), "s1")
	if err != nil || !ok || meta.Origin != "a.csv" {
		t.Errorf("expected persisted meta, got %+v ok=%v err=%v", meta, ok, err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != DefaultFileName {
		t.Errorf("temp files should not be left behind: %v", entries)
	}
}

func TestFileStore_CorruptFile(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := store.Get(context.Background(), "s1"); err == nil {
		t.Error("corrupt file should surface an error")
	}
}

func TestFileStore_ConcurrentPuts(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx := context.Background()

	var wg sync.WaitGroup
	sessions := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, s := range sessions {
		wg.Add(1)
		go func(s string) {
			defer wg.Done()
			if err := store.Put(ctx, s, sampleMeta(s+".csv")); err != nil {
				t.Errorf("put %s: %v", s, err)
			}
		}(s)
	}
	wg.Wait()

	for _, s := range sessions {
		if _, ok, _ := store.Get(ctx, s); !ok {
			t.Errorf("lost update for %s", s)
		}
	}
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer store.Close()
	exerciseStore(t, store)

	count, err := store.Count(context.Background())
	if err != nil || count != 1 {
		t.Errorf("expected 1 session left, got %d (%v)", count, err)
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, _ := NewSQLiteStore(dir)
	store.Put(ctx, "s1", sampleMeta("persist.csv"))
	store.Close()

	reopened, err := NewSQLiteStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	meta, ok, err := reopened.Get(ctx, "s1")
	if err != nil || !ok || meta.Origin != "persist.csv" {
		t.Errorf("meta should persist after reopen: %+v ok=%v err=%v", meta, ok, err)
	}
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("DATACHAT_TEST_REDIS")
	if addr == "" {
		t.Skip("DATACHAT_TEST_REDIS not set")
	}
	store, err := NewRedisStore(RedisConfig{
		Addr:      addr,
		KeyPrefix: "datachat:test:" + time.Now().Format("150405.000") + ":",
		TTL:       time.Minute,
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer store.Close()
	defer store.Delete(context.Background(), "s2")

	exerciseStore(t, store)
}

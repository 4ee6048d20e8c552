package filewatcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"

	"github.com/0xcro3dile/datachat-go/internal/domain/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFSNotifyWatcher_Creation(t *testing.T) {
	watcher, err := NewFSNotifyWatcher([]string{".csv", ".tsv"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer watcher.Stop()
}

func TestFSNotifyWatcher_Accepts(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	defer watcher.Stop()

	tests := map[string]bool{
		"/drop/sales.csv":       true,
		"/drop/SALES.CSV":       true,
		"/drop/notes.json":      false,
		"/drop/.sales.csv.swp":  false,
		"/drop/.hidden.csv":     false,
		"/drop/~$sales.csv":     false,
		"/drop/no-extension":    false,
		"/drop/archive.csv.bak": false,
	}
	for path, want := range tests {
		if got := watcher.accepts(path); got != want {
			t.Errorf("accepts(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestFSNotifyWatcher_CustomExtensions(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher([]string{"tsv", ".TXT"}, zerolog.Nop())
	defer watcher.Stop()

	if !watcher.accepts("a.tsv") || !watcher.accepts("b.txt") || watcher.accepts("c.csv") {
		t.Errorf("unexpected extension set %v", watcher.extensions)
	}
}

func TestFSNotifyWatcher_Translate(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	defer watcher.Stop()

	tests := []struct {
		op   fsnotify.Op
		want ports.FileOperation
		ok   bool
	}{
		{fsnotify.Create, ports.FileCreated, true},
		{fsnotify.Write, ports.FileModified, true},
		{fsnotify.Create | fsnotify.Write, ports.FileCreated, true},
		{fsnotify.Remove, ports.FileDeleted, true},
		{fsnotify.Rename, ports.FileDeleted, true},
		{fsnotify.Chmod, 0, false},
	}
	for _, tt := range tests {
		ev, ok := watcher.translate(fsnotify.Event{Name: "/drop/a.csv", Op: tt.op})
		if ok != tt.ok || ev.Operation != tt.want {
			t.Errorf("translate(%v) = %v, %v; want %v, %v", tt.op, ev.Operation, ok, tt.want, tt.ok)
		}
	}
}

func TestFSNotifyWatcher_RejectsMissingDir(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	defer watcher.Stop()

	if _, err := watcher.Watch(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing dir")
	}
	file := filepath.Join(t.TempDir(), "plain.csv")
	os.WriteFile(file, []byte("a\n"), 0644)
	if _, err := watcher.Watch(context.Background(), file); err == nil {
		t.Error("expected error for a file")
	}
}

func TestFSNotifyWatcher_WatchDirectory(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := watcher.Watch(ctx, dir)
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		os.WriteFile(filepath.Join(dir, "sales.csv"), []byte("a\n1\n"), 0644)
	}()

	select {
	case event := <-events:
		if event.Operation != ports.FileCreated {
			t.Errorf("expected create event, got %v", event.Operation)
		}
		if filepath.Base(event.Path) != "sales.csv" {
			t.Errorf("unexpected path %s", event.Path)
		}
	case <-ctx.Done():
		t.Error("timeout waiting for event")
	}
}

func TestFSNotifyWatcher_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()

	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	defer watcher.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	events, _ := watcher.Watch(ctx, dir)

	os.WriteFile(filepath.Join(dir, "notes.json"), []byte("{}"), 0644)

	select {
	case <-events:
		t.Error("should not receive event for .json")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFSNotifyWatcher_ChannelClosesOnCancel(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	defer watcher.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := watcher.Watch(ctx, t.TempDir())
	if err != nil {
		t.Fatalf("watch failed: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Error("channel not closed after cancel")
	}
}

func TestFSNotifyWatcher_Stop(t *testing.T) {
	watcher, _ := NewFSNotifyWatcher(nil, zerolog.Nop())
	if err := watcher.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}

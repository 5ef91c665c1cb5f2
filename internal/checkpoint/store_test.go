package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/makeasinger/quizgen/internal/client"
	"github.com/makeasinger/quizgen/internal/config"
)

func TestStore_WriteThenMark(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	backend.FailAppend = errors.New("disk full")
	if err := store.RecordComplete(ctx, "a/b_lvl1/1", []byte(`[]`)); err == nil {
		t.Fatal("expected append error")
	}
	if store.IsComplete("a/b_lvl1/1") {
		t.Fatal("unit must not be marked complete when the append fails")
	}

	backend.FailAppend = nil
	if err := store.RecordComplete(ctx, "a/b_lvl1/1", []byte(`[1]`)); err != nil {
		t.Fatalf("RecordComplete() error = %v", err)
	}
	if !store.IsComplete("a/b_lvl1/1") {
		t.Fatal("unit should be complete")
	}
}

func TestStore_RecordIsIdempotent(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store, _ := Open(ctx, backend)

	_ = store.RecordComplete(ctx, "u1", []byte(`"first"`))
	_ = store.RecordComplete(ctx, "u1", []byte(`"second"`))

	if backend.Appends() != 1 {
		t.Errorf("appends = %d, want 1", backend.Appends())
	}
	payload, ok := store.Payload("u1")
	if !ok || string(payload) != `"first"` {
		t.Errorf("Payload() = %s, %v", payload, ok)
	}
}

func TestStore_SnapshotAtOpen(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	first, _ := Open(ctx, backend)
	_ = first.RecordComplete(ctx, "u1", []byte(`1`))

	second, _ := Open(ctx, backend)
	_ = first.RecordComplete(ctx, "u2", []byte(`2`))

	if !second.IsComplete("u1") {
		t.Error("second store should see entries written before it opened")
	}
	if second.IsComplete("u2") {
		t.Error("second store must not see later writes in its snapshot")
	}

	all, err := second.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("LoadAll() = %d entries, want 2", len(all))
	}

	summary := first.Summary()
	if summary.CompletedCount != 2 || summary.UnitIDs[0] != "u1" || summary.UnitIDs[1] != "u2" {
		t.Errorf("Summary() = %+v", summary)
	}
}

func TestFileBackend_Roundtrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "checkpoints.jsonl")

	backend, err := NewFileBackend(path, filepath.Join(dir, "partial"))
	if err != nil {
		t.Fatalf("NewFileBackend() error = %v", err)
	}

	store, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open() on missing file error = %v", err)
	}
	for _, id := range []string{"s/c_lvl1/1", "s/c_lvl1/2"} {
		if err := store.RecordComplete(ctx, id, []byte(`[{"id":1}]`)); err != nil {
			t.Fatalf("RecordComplete() error = %v", err)
		}
	}

	// simulate a crash that tore the last line
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString(`{"unit_id":"s/c_lvl1/3","sta`)
	f.Close()

	reopened, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	summary := reopened.Summary()
	if summary.CompletedCount != 2 {
		t.Errorf("CompletedCount = %d, want 2", summary.CompletedCount)
	}
	if reopened.IsComplete("s/c_lvl1/3") {
		t.Error("torn entry must not count as complete")
	}
	payload, _ := reopened.Payload("s/c_lvl1/2")
	if string(payload) != `[{"id":1}]` {
		t.Errorf("payload = %s", payload)
	}

	if err := reopened.RecordComplete(ctx, "s/c_lvl1/3", []byte(`[]`)); err != nil {
		t.Fatalf("RecordComplete() after torn line error = %v", err)
	}
	again, _ := Open(ctx, backend)
	if !again.IsComplete("s/c_lvl1/3") {
		t.Error("entry written after a torn line should be readable")
	}
}

func TestFileBackend_Partial(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, _ := NewFileBackend(filepath.Join(dir, "cp.jsonl"), filepath.Join(dir, "partial"))

	if _, err := backend.LoadPartial(ctx, "full"); !errors.Is(err, ErrPartialNotFound) {
		t.Fatalf("err = %v, want ErrPartialNotFound", err)
	}
	if err := backend.SavePartial(ctx, "full", []byte(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := backend.SavePartial(ctx, "full", []byte(`{"v":2}`)); err != nil {
		t.Fatal(err)
	}
	b, err := backend.LoadPartial(ctx, "full")
	if err != nil || string(b) != `{"v":2}` {
		t.Errorf("LoadPartial() = %s, %v", b, err)
	}

	files, _ := os.ReadDir(filepath.Join(dir, "partial"))
	for _, f := range files {
		if strings.HasPrefix(f.Name(), ".partial-") {
			t.Errorf("temp file left behind: %s", f.Name())
		}
	}
}

func TestSQLBackend_SQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "checkpoints.db")

	backend, err := OpenSQL(ctx, "sqlite3", dsn)
	if err != nil {
		t.Fatalf("OpenSQL() error = %v", err)
	}
	defer backend.Close()

	store, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.RecordComplete(ctx, "u1", []byte(`[1]`)); err != nil {
		t.Fatalf("RecordComplete() error = %v", err)
	}
	// a second writer appending the same id must not fail
	if err := backend.Append(ctx, Entry{UnitID: "u1", Status: StatusComplete, Payload: []byte(`[2]`)}); err != nil {
		t.Fatalf("duplicate Append() error = %v", err)
	}

	reopened, err := Open(ctx, backend)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	payload, ok := reopened.Payload("u1")
	if !ok || string(payload) != `[1]` {
		t.Errorf("Payload() = %s, %v", payload, ok)
	}

	if err := backend.SavePartial(ctx, "k", []byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := backend.SavePartial(ctx, "k", []byte(`{"a":2}`)); err != nil {
		t.Fatal(err)
	}
	b, err := backend.LoadPartial(ctx, "k")
	if err != nil || string(b) != `{"a":2}` {
		t.Errorf("LoadPartial() = %s, %v", b, err)
	}
	if _, err := backend.LoadPartial(ctx, "missing"); !errors.Is(err, ErrPartialNotFound) {
		t.Errorf("err = %v, want ErrPartialNotFound", err)
	}
}

type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) Put(_ context.Context, key string, body []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = append([]byte(nil), body...)
	return nil
}

func (f *fakeObjectStorage) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[key]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return b, nil
}

func (f *fakeObjectStorage) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (f *fakeObjectStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func TestObjectBackend(t *testing.T) {
	ctx := context.Background()
	storage := newFakeObjectStorage()
	backend := NewObjectBackend(storage, "checkpoints/")

	store, _ := Open(ctx, backend)
	if err := store.RecordComplete(ctx, "tech/dev_lvl1/1", []byte(`[1]`)); err != nil {
		t.Fatal(err)
	}
	if _, ok := storage.objects["checkpoints/units/tech/dev_lvl1/1.json"]; !ok {
		t.Errorf("object not written, have %v", storage.objects)
	}

	_ = backend.Append(ctx, Entry{UnitID: "tech/dev_lvl1/1", Payload: []byte(`[2]`)})
	reopened, _ := Open(ctx, backend)
	if p, _ := reopened.Payload("tech/dev_lvl1/1"); string(p) != `[1]` {
		t.Errorf("payload overwritten: %s", p)
	}

	if _, err := backend.LoadPartial(ctx, "full"); !errors.Is(err, ErrPartialNotFound) {
		t.Errorf("err = %v, want ErrPartialNotFound", err)
	}
}

func TestNewBackend(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		cfg     config.CheckpointConfig
		want    string
		wantErr bool
	}{
		{"file", config.CheckpointConfig{Backend: "file", Path: filepath.Join(dir, "cp.jsonl"), PartialDir: filepath.Join(dir, "p")}, "file", false},
		{"memory", config.CheckpointConfig{Backend: "memory"}, "memory", false},
		{"redis without client", config.CheckpointConfig{Backend: "redis"}, "", true},
		{"object without storage", config.CheckpointConfig{Backend: "object"}, "", true},
		{"bad driver", config.CheckpointConfig{Backend: "sql", SQLDriver: "oracle"}, "", true},
		{"unknown", config.CheckpointConfig{Backend: "tape"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := NewBackend(ctx, tt.cfg, nil, nil)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend() error = %v", err)
			}
			if b.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.want)
			}
		})
	}
}

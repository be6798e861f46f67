package fscache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/gamebook/internal/storage"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, string, string) {
	t.Helper()
	contentDir := t.TempDir()
	cacheDir := t.TempDir()
	store, err := New(contentDir, cacheDir, opts...)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store, contentDir, cacheDir
}

func TestSaveAndGetCached(t *testing.T) {
	store, _, cacheDir := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCached(ctx, storage.NamespaceCachedSections, "1", []byte("# Section 1")); err != nil {
		t.Fatalf("save cached: %v", err)
	}

	value, err := store.GetCached(ctx, storage.NamespaceCachedSections, "1")
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if string(value) != "# Section 1" {
		t.Fatalf("unexpected value %q", value)
	}

	if _, err := os.Stat(filepath.Join(cacheDir, "sections", "1.md")); err != nil {
		t.Fatalf("expected cache file on disk: %v", err)
	}
}

func TestGetCachedMissing(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.GetCached(context.Background(), storage.NamespaceCachedSections, "404")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetCachedExpired(t *testing.T) {
	store, _, cacheDir := newTestStore(t, WithTTL(storage.NamespaceState, time.Minute))
	ctx := context.Background()

	if err := store.SaveCached(ctx, storage.NamespaceState, "g1/states/section_1", []byte(`{}`)); err != nil {
		t.Fatalf("save cached: %v", err)
	}

	// Age the entry past its TTL.
	path := filepath.Join(cacheDir, "games", "g1", "states", "section_1.json")
	old := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	_, err := store.GetCached(ctx, storage.NamespaceState, "g1/states/section_1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired entry, got %v", err)
	}
}

func TestSaveCachedOverwrites(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCached(ctx, storage.NamespaceCachedRules, "section_2_rules", []byte("old")); err != nil {
		t.Fatalf("save cached: %v", err)
	}
	if err := store.SaveCached(ctx, storage.NamespaceCachedRules, "section_2_rules", []byte("new")); err != nil {
		t.Fatalf("save cached: %v", err)
	}

	value, err := store.GetCached(ctx, storage.NamespaceCachedRules, "section_2_rules")
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if string(value) != "new" {
		t.Fatalf("expected overwrite, got %q", value)
	}
}

func TestLoadRaw(t *testing.T) {
	store, contentDir, _ := newTestStore(t)
	ctx := context.Background()

	dir := filepath.Join(contentDir, "sections")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "3.md"), []byte("You enter a cave."), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}

	content, err := store.LoadRaw(ctx, storage.NamespaceSections, "3")
	if err != nil {
		t.Fatalf("load raw: %v", err)
	}
	if content != "You enter a cave." {
		t.Fatalf("unexpected content %q", content)
	}

	exists, err := store.ExistsRaw(ctx, storage.NamespaceSections, "3")
	if err != nil {
		t.Fatalf("exists raw: %v", err)
	}
	if !exists {
		t.Fatal("expected raw content to exist")
	}

	exists, err = store.ExistsRaw(ctx, storage.NamespaceSections, "999")
	if err != nil {
		t.Fatalf("exists raw: %v", err)
	}
	if exists {
		t.Fatal("expected missing raw content")
	}
}

func TestLoadRawMissing(t *testing.T) {
	store, _, _ := newTestStore(t)

	_, err := store.LoadRaw(context.Background(), storage.NamespaceSections, "999")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRawNamespaceIsReadOnly(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.Delete(ctx, storage.NamespaceSections, "1"); err == nil {
		t.Fatal("expected delete on raw namespace to fail")
	}
	if err := store.Clear(ctx, storage.NamespaceRules); err == nil {
		t.Fatal("expected clear on raw namespace to fail")
	}
}

func TestPathTraversalRejected(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	keys := []string{"../escape", "../../etc/passwd", "a/../../b"}
	for _, key := range keys {
		if err := store.SaveCached(ctx, storage.NamespaceCachedSections, key, []byte("x")); err == nil {
			t.Errorf("key %q: expected traversal rejection", key)
		}
		if _, err := store.LoadRaw(ctx, storage.NamespaceSections, key); err == nil || errors.Is(err, storage.ErrNotFound) {
			t.Errorf("key %q: expected traversal rejection, got %v", key, err)
		}
	}
}

func TestDeleteAndClear(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	if err := store.SaveCached(ctx, storage.NamespaceCachedSections, "1", []byte("a")); err != nil {
		t.Fatalf("save cached: %v", err)
	}
	if err := store.Delete(ctx, storage.NamespaceCachedSections, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetCached(ctx, storage.NamespaceCachedSections, "1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is not an error.
	if err := store.Delete(ctx, storage.NamespaceCachedSections, "1"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}

	if err := store.SaveCached(ctx, storage.NamespaceCachedSections, "2", []byte("b")); err != nil {
		t.Fatalf("save cached: %v", err)
	}
	if err := store.Clear(ctx, storage.NamespaceCachedSections); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := store.GetCached(ctx, storage.NamespaceCachedSections, "2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestConcurrentWritesToSameKey(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.SaveCached(ctx, storage.NamespaceCachedSections, "hot", []byte("payload"))
		}()
	}
	wg.Wait()

	value, err := store.GetCached(ctx, storage.NamespaceCachedSections, "hot")
	if err != nil {
		t.Fatalf("get cached: %v", err)
	}
	if string(value) != "payload" {
		t.Fatalf("unexpected value %q", value)
	}
}

func TestCancelledContext(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.GetCached(ctx, storage.NamespaceCachedSections, "1"); err == nil {
		t.Fatal("expected context error")
	}
	if err := store.SaveCached(ctx, storage.NamespaceCachedSections, "1", []byte("x")); err == nil {
		t.Fatal("expected context error")
	}
}

// Package fscache provides a filesystem-backed namespaced cache.
//
// Raw namespaces resolve under the content directory and are read-only;
// cache namespaces resolve under the cache directory. Every path is
// confined to its configured base directory, and writes to the same key
// are serialized through a per-key lock table.
package fscache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gberrors "github.com/louisbranch/gamebook/internal/errors"
	"github.com/louisbranch/gamebook/internal/storage"
)

// format distinguishes the two on-disk content formats.
type format int

const (
	formatMarkdown format = iota
	formatJSON
)

// namespaceSpec describes where a namespace lives and how entries age.
type namespaceSpec struct {
	dir    string
	format format
	ttl    time.Duration
	raw    bool
}

// Store is a filesystem-backed cache implementing storage.Store.
type Store struct {
	contentDir string
	cacheDir   string
	namespaces map[storage.Namespace]namespaceSpec

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithTTL sets an expiry for entries of the given namespace. Zero means
// entries never expire.
func WithTTL(namespace storage.Namespace, ttl time.Duration) Option {
	return func(s *Store) {
		spec, ok := s.namespaces[namespace]
		if !ok {
			return
		}
		spec.ttl = ttl
		s.namespaces[namespace] = spec
	}
}

// New creates a filesystem store rooted at the given content and cache
// directories. The namespace layout follows the engine's on-disk
// contract: raw sections and rules under the content directory,
// everything else under the cache directory.
func New(contentDir, cacheDir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(contentDir) == "" {
		return nil, fmt.Errorf("content dir is required")
	}
	if strings.TrimSpace(cacheDir) == "" {
		return nil, fmt.Errorf("cache dir is required")
	}

	store := &Store{
		contentDir: filepath.Clean(contentDir),
		cacheDir:   filepath.Clean(cacheDir),
		namespaces: map[storage.Namespace]namespaceSpec{
			storage.NamespaceSections:       {dir: "sections", format: formatMarkdown, raw: true},
			storage.NamespaceRules:          {dir: "rules", format: formatMarkdown, raw: true},
			storage.NamespaceCachedSections: {dir: "sections", format: formatMarkdown},
			storage.NamespaceCachedRules:    {dir: "rules", format: formatMarkdown},
			storage.NamespaceState:          {dir: "games", format: formatJSON},
			storage.NamespaceTrace:          {dir: "games", format: formatJSON},
			storage.NamespaceCharacter:      {dir: "games", format: formatMarkdown},
		},
		locks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	if err := os.MkdirAll(store.cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	return store, nil
}

// GetCached returns the value stored under namespace/key, or
// storage.ErrNotFound when the entry is missing or expired.
func (s *Store) GetCached(ctx context.Context, namespace storage.Namespace, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, spec, err := s.resolve(namespace, key, false)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("stat cache entry: %w", err)
	}
	if spec.ttl > 0 && time.Since(info.ModTime()) > spec.ttl {
		return nil, storage.ErrNotFound
	}

	value, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return value, nil
}

// SaveCached overwrites the value stored under namespace/key. The write
// is atomic per key: a temp file rename makes partial writes invisible.
func (s *Store) SaveCached(ctx context.Context, namespace storage.Namespace, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, _, err := s.resolve(namespace, key, false)
	if err != nil {
		return err
	}

	lock := s.keyLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create namespace dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".cache-*")
	if err != nil {
		return gberrors.Wrap(gberrors.CodeStorageWriteFailed, fmt.Sprintf("create temp file: %v", err), err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return gberrors.Wrap(gberrors.CodeStorageWriteFailed, fmt.Sprintf("write cache entry: %v", err), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return gberrors.Wrap(gberrors.CodeStorageWriteFailed, fmt.Sprintf("close cache entry: %v", err), err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return gberrors.Wrap(gberrors.CodeStorageWriteFailed, fmt.Sprintf("commit cache entry: %v", err), err)
	}
	return nil
}

// LoadRaw reads source content for the given namespace/key. Missing
// content returns storage.ErrNotFound.
func (s *Store) LoadRaw(ctx context.Context, namespace storage.Namespace, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	path, spec, err := s.resolve(namespace, key, true)
	if err != nil {
		return "", err
	}
	if !spec.raw {
		return "", fmt.Errorf("namespace %s is not a raw namespace", namespace)
	}

	value, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("read raw content: %w", err)
	}
	return string(value), nil
}

// ExistsRaw reports whether raw content exists for the given key.
func (s *Store) ExistsRaw(ctx context.Context, namespace storage.Namespace, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	path, spec, err := s.resolve(namespace, key, true)
	if err != nil {
		return false, err
	}
	if !spec.raw {
		return false, fmt.Errorf("namespace %s is not a raw namespace", namespace)
	}

	_, err = os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat raw content: %w", err)
	}
	return true, nil
}

// Delete removes the entry stored under namespace/key. Deleting a
// missing entry is not an error.
func (s *Store) Delete(ctx context.Context, namespace storage.Namespace, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, spec, err := s.resolve(namespace, key, false)
	if err != nil {
		return err
	}
	if spec.raw {
		return fmt.Errorf("namespace %s is read-only", namespace)
	}

	lock := s.keyLock(path)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry in the namespace.
func (s *Store) Clear(ctx context.Context, namespace storage.Namespace) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	spec, ok := s.namespaces[namespace]
	if !ok {
		return fmt.Errorf("unknown namespace %s", namespace)
	}
	if spec.raw {
		return fmt.Errorf("namespace %s is read-only", namespace)
	}

	dir := filepath.Join(s.cacheDir, spec.dir)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear namespace: %w", err)
	}
	return nil
}

// resolve maps namespace/key to an on-disk path, rejecting keys that
// escape the configured base directory.
func (s *Store) resolve(namespace storage.Namespace, key string, rawAccess bool) (string, namespaceSpec, error) {
	spec, ok := s.namespaces[namespace]
	if !ok {
		return "", namespaceSpec{}, fmt.Errorf("unknown namespace %s", namespace)
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", namespaceSpec{}, fmt.Errorf("key is required")
	}

	base := s.cacheDir
	if spec.raw {
		base = s.contentDir
	}
	root := filepath.Join(base, spec.dir)
	path := filepath.Join(root, filepath.FromSlash(key)+s.extension(spec))

	cleaned := filepath.Clean(path)
	if cleaned != root && !strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
		return "", namespaceSpec{}, gberrors.New(gberrors.CodeStoragePathEscape, fmt.Sprintf("key %q escapes namespace %s", key, namespace))
	}

	return cleaned, spec, nil
}

func (s *Store) extension(spec namespaceSpec) string {
	if spec.format == formatJSON {
		return ".json"
	}
	return ".md"
}

// keyLock returns the lock serializing writes to a single path.
func (s *Store) keyLock(path string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[path]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[path] = lock
	}
	return lock
}

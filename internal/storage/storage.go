// Package storage defines the persistence interfaces used by the engine.
package storage

import (
	"context"

	gberrors "github.com/louisbranch/gamebook/internal/errors"
)

// ErrNotFound indicates a requested record is missing. Expired cache
// entries are indistinguishable from missing ones and surface the same
// error.
var ErrNotFound = gberrors.New(gberrors.CodeNotFound, "record not found")

// Namespace names a keyed content area of the cache.
type Namespace string

const (
	// NamespaceSections holds raw section markdown.
	NamespaceSections Namespace = "sections"
	// NamespaceRules holds raw rules markdown.
	NamespaceRules Namespace = "rules"
	// NamespaceCachedSections holds processed section markdown.
	NamespaceCachedSections Namespace = "cached_sections"
	// NamespaceCachedRules holds processed rules markdown.
	NamespaceCachedRules Namespace = "cached_rules"
	// NamespaceState holds per-game state snapshots as JSON.
	NamespaceState Namespace = "state"
	// NamespaceTrace holds per-game trace records as JSON.
	NamespaceTrace Namespace = "trace"
	// NamespaceCharacter holds per-game character sheets as markdown.
	NamespaceCharacter Namespace = "character"
)

// Cache is a namespaced key/value store with optional TTL.
//
// Writes to the same key are serialized; reads are not. A read of a
// missing or expired key returns ErrNotFound.
type Cache interface {
	GetCached(ctx context.Context, namespace Namespace, key string) ([]byte, error)
	SaveCached(ctx context.Context, namespace Namespace, key string, value []byte) error
	Delete(ctx context.Context, namespace Namespace, key string) error
	Clear(ctx context.Context, namespace Namespace) error
}

// RawLoader reads source content. It never writes.
type RawLoader interface {
	LoadRaw(ctx context.Context, namespace Namespace, key string) (string, error)
	ExistsRaw(ctx context.Context, namespace Namespace, key string) (bool, error)
}

// Store combines the cache and raw loader the workflow engine needs.
type Store interface {
	Cache
	RawLoader
}

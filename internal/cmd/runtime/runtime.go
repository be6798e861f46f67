// Package runtime is the construction site shared by the gamebook
// entrypoints. It wires the filesystem cache, the state manager, the
// four workflow nodes and the optional SQLite registry into one engine.
package runtime

import (
	"fmt"

	"github.com/louisbranch/gamebook/internal/engine"
	"github.com/louisbranch/gamebook/internal/engine/condition"
	"github.com/louisbranch/gamebook/internal/engine/decision"
	"github.com/louisbranch/gamebook/internal/engine/journal"
	"github.com/louisbranch/gamebook/internal/engine/narrator"
	"github.com/louisbranch/gamebook/internal/engine/rules"
	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage/fscache"
	"github.com/louisbranch/gamebook/internal/storage/sqlite"
)

// Runtime bundles the wired engine with the pieces entrypoints reach
// for directly.
type Runtime struct {
	Engine   *engine.Engine
	Narrator *narrator.Node
	Registry *sqlite.Store

	cache *fscache.Store
}

// Build wires an engine over the given content and cache directories.
// The registry is optional: an empty dbPath leaves Registry nil.
func Build(contentDir, cacheDir, dbPath string) (*Runtime, error) {
	cache, err := fscache.New(contentDir, cacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	manager := state.NewManager(cache)
	narratorNode := narrator.New(cache, nil, nil)
	rulesNode := rules.New(cache, nil)
	decisionNode := decision.New(condition.New(), nil)
	traceNode := journal.New(cache, nil)

	runtime := &Runtime{
		Engine:   engine.New(manager, narratorNode, rulesNode, decisionNode, traceNode),
		Narrator: narratorNode,
		cache:    cache,
	}

	if dbPath != "" {
		registry, err := sqlite.Open(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open registry: %w", err)
		}
		runtime.Registry = registry
	}

	return runtime, nil
}

// Close releases the registry handle. The filesystem cache holds no
// open resources.
func (r *Runtime) Close() error {
	if r == nil || r.Registry == nil {
		return nil
	}
	return r.Registry.Close()
}

// Package narrator loads and formats section text for the current turn.
package narrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/louisbranch/gamebook/internal/content"
	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage"
)

// Node is the narrator workflow node.
type Node struct {
	store     storage.Store
	formatter content.Formatter
	now       func() time.Time
}

// New creates a narrator node. The formatter may be nil; the
// deterministic manual conversion is used instead.
func New(store storage.Store, formatter content.Formatter, now func() time.Time) *Node {
	if now == nil {
		now = time.Now
	}
	return &Node{store: store, formatter: formatter, now: now}
}

// Run produces the narrative for the state's section.
//
// Cached processed content wins; otherwise the raw section is loaded,
// formatted and cached. A missing raw section is reported on the
// narrative, never retried, and never cached.
func (n *Node) Run(ctx context.Context, s state.GameState) state.Update {
	section := s.SectionNumber
	key := strconv.Itoa(section)

	cached, err := n.store.GetCached(ctx, storage.NamespaceCachedSections, key)
	if err == nil {
		return n.emit(state.Narrative{
			SectionNumber: section,
			Content:       string(cached),
			SourceType:    state.SourceProcessed,
			Timestamp:     n.now().UTC(),
		}, nil)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		// Read failures degrade to a miss; the raw load below decides.
		log.Printf("narrator: cache read for section %d failed: %v", section, err)
	}

	raw, err := n.store.LoadRaw(ctx, storage.NamespaceSections, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return n.emit(state.Narrative{
				SectionNumber: section,
				SourceType:    state.SourceError,
				Error:         fmt.Sprintf("Section %d not found", section),
				Timestamp:     n.now().UTC(),
			}, nil)
		}
		return n.emit(state.Narrative{
			SectionNumber: section,
			SourceType:    state.SourceError,
			Error:         fmt.Sprintf("load section %d: %v", section, err),
			Timestamp:     n.now().UTC(),
		}, nil)
	}

	formatted := content.FormatSection(ctx, n.formatter, raw)

	var warning string
	if err := n.store.SaveCached(ctx, storage.NamespaceCachedSections, key, []byte(formatted)); err != nil {
		// Cache save failures are logged and surfaced, never fatal.
		log.Printf("narrator: cache save for section %d failed: %v", section, err)
		warning = fmt.Sprintf("cache section %d: %v", section, err)
	}

	return n.emit(state.Narrative{
		SectionNumber: section,
		Content:       formatted,
		SourceType:    state.SourceProcessed,
		Timestamp:     n.now().UTC(),
	}, metadataWarning(warning))
}

func (n *Node) emit(narrative state.Narrative, metadata map[string]any) state.Update {
	return state.Update{
		Node:      state.NodeNarrator,
		Narrative: narrative.Tagged(state.NodeNarrator),
		Metadata:  metadata,
	}
}

func metadataWarning(warning string) map[string]any {
	if warning == "" {
		return nil
	}
	return map[string]any{"storage_warnings": warning}
}

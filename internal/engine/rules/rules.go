// Package rules derives the structured Rules record for a section,
// caching the result as round-trippable markdown.
package rules

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage"
)

// Node is the rules workflow node.
type Node struct {
	store storage.Store
	now   func() time.Time
}

// New creates a rules node.
func New(store storage.Store, now func() time.Time) *Node {
	if now == nil {
		now = time.Now
	}
	return &Node{store: store, now: now}
}

// Run produces the rules for the state's section.
//
// A parseable cached document wins. Otherwise extraction runs over the
// hand-written rules file when one exists, falling back to the section
// text, and the result is serialized back into the cache. Extraction
// failures surface on the Rules record, never as a node error.
func (n *Node) Run(ctx context.Context, s state.GameState) state.Update {
	section := s.SectionNumber

	if cached := n.fromCache(ctx, section); cached != nil {
		return n.emit(*cached, nil)
	}

	source, text, err := n.loadSource(ctx, section)
	if err != nil {
		return n.emit(errorRules(section, err.Error(), n.now()), nil)
	}

	extracted, err := Extract(section, text, source, n.now())
	if err != nil {
		return n.emit(errorRules(section, err.Error(), n.now()), nil)
	}

	var warning string
	if err := n.store.SaveCached(ctx, storage.NamespaceCachedRules, cacheKey(section), []byte(Serialize(extracted))); err != nil {
		log.Printf("rules: cache save for section %d failed: %v", section, err)
		warning = fmt.Sprintf("cache rules %d: %v", section, err)
	}

	return n.emit(extracted, metadataWarning(warning))
}

// fromCache returns the parsed cached rules, or nil on any miss. A
// document that fails to parse is treated as a miss so extraction can
// rewrite it.
func (n *Node) fromCache(ctx context.Context, section int) *state.Rules {
	doc, err := n.store.GetCached(ctx, storage.NamespaceCachedRules, cacheKey(section))
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("rules: cache read for section %d failed: %v", section, err)
		}
		return nil
	}

	parsed, err := Parse(string(doc))
	if err != nil {
		log.Printf("rules: cached document for section %d unparseable: %v", section, err)
		return nil
	}
	parsed.SourceType = state.SourceCached
	return &parsed
}

// loadSource picks the extraction input: the hand-written rules file
// when present, the raw section text otherwise.
func (n *Node) loadSource(ctx context.Context, section int) (source, text string, err error) {
	text, err = n.store.LoadRaw(ctx, storage.NamespaceRules, rawKey(section))
	if err == nil {
		return "rules_file", text, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return "", "", fmt.Errorf("load rules for section %d: %v", section, err)
	}

	text, err = n.store.LoadRaw(ctx, storage.NamespaceSections, strconv.Itoa(section))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", "", fmt.Errorf("no rules source for section %d", section)
		}
		return "", "", fmt.Errorf("load section %d: %v", section, err)
	}
	return "section_text", text, nil
}

func (n *Node) emit(rules state.Rules, metadata map[string]any) state.Update {
	return state.Update{
		Node:     state.NodeRules,
		Rules:    rules.Tagged(state.NodeRules),
		Metadata: metadata,
	}
}

// errorRules is the normalized failure record: no dice, no choices, no
// pending input, the error message carried on the record itself.
func errorRules(section int, message string, now time.Time) state.Rules {
	return state.Rules{
		SectionNumber: section,
		DiceType:      state.DiceNone,
		NextAction:    state.NextActionNone,
		Error:         message,
		SourceType:    state.SourceError,
		LastUpdate:    now.UTC(),
	}
}

func cacheKey(section int) string {
	return fmt.Sprintf("section_%d_rules", section)
}

func rawKey(section int) string {
	return fmt.Sprintf("section_%d_rule", section)
}

func metadataWarning(warning string) map[string]any {
	if warning == "" {
		return nil
	}
	return map[string]any{"storage_warnings": warning}
}

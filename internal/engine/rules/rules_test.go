package rules

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage"
	"github.com/louisbranch/gamebook/internal/storage/fscache"
)

func newTestNode(t *testing.T) (*Node, *fscache.Store, string) {
	t.Helper()
	contentDir := t.TempDir()
	store, err := fscache.New(contentDir, t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	now := func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return New(store, now), store, contentDir
}

func writeRaw(t *testing.T, contentDir, subdir, name, text string) {
	t.Helper()
	dir := filepath.Join(contentDir, subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".md"), []byte(text), 0o644); err != nil {
		t.Fatalf("write raw: %v", err)
	}
}

func TestRunExtractsFromRulesFile(t *testing.T) {
	node, store, contentDir := newTestNode(t)
	writeRaw(t, contentDir, "rules", "section_5_rule",
		"Roll 2d6 for combat. On success go to 12, on failure go to 31.")
	ctx := context.Background()

	update := node.Run(ctx, state.GameState{SessionID: "s", GameID: "g", SectionNumber: 5})

	rules := update.Rules
	if rules == nil {
		t.Fatal("expected rules")
	}
	if rules.Origin() != state.NodeRules {
		t.Fatalf("expected rules origin tag, got %q", rules.Origin())
	}
	if rules.Source != "rules_file" {
		t.Fatalf("expected rules_file source, got %q", rules.Source)
	}
	if rules.DiceType != state.DiceCombat || !rules.NeedsDice {
		t.Fatalf("expected combat dice, got %+v", rules)
	}
	if len(rules.Choices) != 1 || rules.Choices[0].Type != state.ChoiceDice {
		t.Fatalf("expected a single dice choice, got %+v", rules.Choices)
	}
	if rules.Choices[0].DiceResults["success"] != 12 || rules.Choices[0].DiceResults["failure"] != 31 {
		t.Fatalf("unexpected buckets %v", rules.Choices[0].DiceResults)
	}

	// The extraction is serialized back into the cache.
	doc, err := store.GetCached(ctx, storage.NamespaceCachedRules, "section_5_rules")
	if err != nil {
		t.Fatalf("expected cached document: %v", err)
	}
	if !strings.Contains(string(doc), "# Rules for Section 5") {
		t.Fatalf("unexpected cached document:\n%s", doc)
	}
}

func TestRunFallsBackToSectionText(t *testing.T) {
	node, _, contentDir := newTestNode(t)
	writeRaw(t, contentDir, "sections", "3", "A fork in the road. Go to [[8]] or go to [[9]].")

	update := node.Run(context.Background(), state.GameState{SessionID: "s", GameID: "g", SectionNumber: 3})

	rules := update.Rules
	if rules.Source != "section_text" {
		t.Fatalf("expected section_text source, got %q", rules.Source)
	}
	if len(rules.Choices) != 2 {
		t.Fatalf("expected two direct choices, got %+v", rules.Choices)
	}
	if rules.Choices[0].TargetSection != 8 || rules.Choices[1].TargetSection != 9 {
		t.Fatalf("expected targets in order of appearance, got %+v", rules.Choices)
	}
	if rules.NextAction != state.NextActionUserFirst {
		t.Fatalf("expected user_first, got %q", rules.NextAction)
	}
}

func TestRunPrefersCachedDocument(t *testing.T) {
	node, store, contentDir := newTestNode(t)
	writeRaw(t, contentDir, "sections", "145", "Raw text that should not be consulted.")
	ctx := context.Background()

	seed := sampleRules()
	if err := store.SaveCached(ctx, storage.NamespaceCachedRules, "section_145_rules", []byte(Serialize(seed))); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	update := node.Run(ctx, state.GameState{SessionID: "s", GameID: "g", SectionNumber: 145})

	rules := update.Rules
	if rules.SourceType != state.SourceCached {
		t.Fatalf("expected cached source type, got %q", rules.SourceType)
	}
	if rules.DiceType != state.DiceCombat {
		t.Fatalf("expected cached dice type, got %q", rules.DiceType)
	}
	if len(rules.Choices) != 1 || rules.Choices[0].DiceResults["failure"] != 278 {
		t.Fatalf("expected cached choice, got %+v", rules.Choices)
	}
}

func TestRunUnparseableCacheFallsThrough(t *testing.T) {
	node, store, contentDir := newTestNode(t)
	writeRaw(t, contentDir, "sections", "7", "Turn to 22.")
	ctx := context.Background()

	if err := store.SaveCached(ctx, storage.NamespaceCachedRules, "section_7_rules", []byte("not a rules document")); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	update := node.Run(ctx, state.GameState{SessionID: "s", GameID: "g", SectionNumber: 7})

	rules := update.Rules
	if rules.Error != "" {
		t.Fatalf("expected re-extraction, got error %q", rules.Error)
	}
	if rules.Source != "section_text" {
		t.Fatalf("expected section_text source, got %q", rules.Source)
	}

	// The rewrite replaces the broken document.
	doc, err := store.GetCached(ctx, storage.NamespaceCachedRules, "section_7_rules")
	if err != nil {
		t.Fatalf("expected rewritten document: %v", err)
	}
	if _, err := Parse(string(doc)); err != nil {
		t.Fatalf("rewritten document should parse: %v", err)
	}
}

func TestRunMissingSourceProducesErrorRules(t *testing.T) {
	node, store, _ := newTestNode(t)
	ctx := context.Background()

	update := node.Run(ctx, state.GameState{SessionID: "s", GameID: "g", SectionNumber: 404})

	rules := update.Rules
	if rules.SourceType != state.SourceError {
		t.Fatalf("expected error source type, got %q", rules.SourceType)
	}
	if rules.Error == "" {
		t.Fatal("expected error message")
	}
	if rules.NeedsDice || rules.NeedsUserResponse || len(rules.Choices) != 0 {
		t.Fatalf("error rules must stay normalized, got %+v", rules)
	}

	// Failures are not cached.
	if _, err := store.GetCached(ctx, storage.NamespaceCachedRules, "section_404_rules"); err == nil {
		t.Fatal("expected no cache entry for failed extraction")
	}
}

func TestExtractConditionalSection(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	rules, err := Extract(20, "If you have a silver key, go to 52.", "section_text", now)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(rules.Choices) != 1 {
		t.Fatalf("expected one choice, got %+v", rules.Choices)
	}
	choice := rules.Choices[0]
	if choice.Type != state.ChoiceConditional {
		t.Fatalf("expected conditional choice, got %q", choice.Type)
	}
	if choice.TargetSection != 52 {
		t.Fatalf("expected target 52, got %d", choice.TargetSection)
	}
	if len(choice.Conditions) != 1 || choice.Conditions[0] != "a silver key" {
		t.Fatalf("unexpected conditions %v", choice.Conditions)
	}
}

func TestExtractEmptyTextFails(t *testing.T) {
	if _, err := Extract(1, "   \n", "section_text", time.Now()); err == nil {
		t.Fatal("expected extraction failure for empty text")
	}
}

func TestExtractDeadEndSection(t *testing.T) {
	rules, err := Extract(400, "Your adventure ends here.", "section_text", time.Now())
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(rules.Choices) != 0 || rules.NeedsDice || rules.NeedsUserResponse {
		t.Fatalf("expected no branching, got %+v", rules)
	}
	if rules.NextAction != state.NextActionNone {
		t.Fatalf("expected no next action, got %q", rules.NextAction)
	}
}

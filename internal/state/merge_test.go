package state

import (
	"testing"
	"time"
)

func baseState() GameState {
	return GameState{
		SessionID:     "session-1",
		GameID:        "game-1",
		SectionNumber: 1,
	}
}

func TestMergeNarrativeOnlyFromNarrator(t *testing.T) {
	narrative := Narrative{SectionNumber: 1, Content: "text", SourceType: SourceProcessed}

	merged, err := Merge(baseState(), []Update{{
		Node:      NodeNarrator,
		Narrative: &narrative,
	}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Narrative == nil || merged.Narrative.Content != "text" {
		t.Fatalf("expected narrative applied, got %+v", merged.Narrative)
	}
	if merged.Narrative.Origin() != NodeNarrator {
		t.Fatalf("expected narrator origin, got %q", merged.Narrative.Origin())
	}

	_, err = Merge(baseState(), []Update{{
		Node:      NodeRules,
		Narrative: &narrative,
	}})
	if err == nil {
		t.Fatal("expected narrative update from rules node to be rejected")
	}
}

func TestMergeRulesOnlyFromRulesNode(t *testing.T) {
	rules := Rules{SectionNumber: 1, DiceType: DiceNone, SourceType: SourceProcessed}

	merged, err := Merge(baseState(), []Update{{
		Node:  NodeRules,
		Rules: &rules,
	}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Rules == nil || merged.Rules.Origin() != NodeRules {
		t.Fatalf("expected rules applied with rules origin, got %+v", merged.Rules)
	}

	if _, err := Merge(baseState(), []Update{{Node: NodeNarrator, Rules: &rules}}); err == nil {
		t.Fatal("expected rules update from narrator node to be rejected")
	}
}

func TestMergeFanInVector(t *testing.T) {
	narrative := Narrative{SectionNumber: 1, Content: "story", SourceType: SourceProcessed}
	rules := Rules{SectionNumber: 1, DiceType: DiceNone, SourceType: SourceProcessed}

	merged, err := Merge(baseState(), []Update{
		{Node: NodeNarrator, Narrative: &narrative},
		{Node: NodeRules, Rules: &rules},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Narrative == nil || merged.Rules == nil {
		t.Fatalf("expected both sub-models after fan-in, got %+v", merged)
	}
}

func TestMergeSectionNumberTakeLast(t *testing.T) {
	merged, err := Merge(baseState(), []Update{
		{Node: NodeDecision, SectionNumber: 2},
		{Node: NodeDecision, SectionNumber: 5},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.SectionNumber != 5 {
		t.Fatalf("expected take-last section 5, got %d", merged.SectionNumber)
	}
}

func TestMergeShouldContinueOrs(t *testing.T) {
	yes, no := true, false

	merged, err := Merge(baseState(), []Update{
		{Node: NodeDecision, ShouldContinue: &no},
		{Node: NodeTrace, ShouldContinue: &yes},
		{Node: NodeEnd, ShouldContinue: &no},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !merged.ShouldContinue {
		t.Fatal("expected should_continue OR to be true")
	}
}

func TestMergeTraceRefinePreservesHistory(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	existing := Trace{
		GameID:        "game-1",
		SessionID:     "session-1",
		SectionNumber: 1,
		StartTime:     start,
		History: []Action{
			{Timestamp: start, Section: 1, ActionType: ActionSectionChange},
		},
	}
	base := baseState()
	base.Trace = existing.Tagged(NodeTrace)

	// A refinement must carry the existing history prefix.
	shorter := Trace{GameID: "game-1", SessionID: "session-1", SectionNumber: 1}
	if _, err := Merge(base, []Update{{Node: NodeTrace, Trace: &shorter}}); err == nil {
		t.Fatal("expected history-dropping trace update to be rejected")
	}

	appended := existing
	appended.History = append(append([]Action(nil), existing.History...), Action{
		Timestamp: start.Add(time.Minute), Section: 1, ActionType: ActionUserInput,
		Details: map[string]any{"input": "go north"},
	})
	merged, err := Merge(base, []Update{{Node: NodeTrace, Trace: &appended}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Trace.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(merged.Trace.History))
	}
}

func TestMergeTraceDecisionReplaces(t *testing.T) {
	base := baseState()
	base.Trace = Trace{GameID: "game-1", SessionID: "session-1", History: []Action{
		{Section: 1, ActionType: ActionSectionChange},
	}}.Tagged(NodeTrace)

	replacement := Trace{GameID: "game-1", SessionID: "session-1"}
	merged, err := Merge(base, []Update{{Node: NodeDecision, Trace: &replacement}})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if len(merged.Trace.History) != 0 {
		t.Fatalf("expected decision-tagged trace to replace, got %d entries", len(merged.Trace.History))
	}
}

func TestMergeDoesNotMutateBase(t *testing.T) {
	base := baseState()
	base.Metadata = map[string]any{"node": "start"}
	narrative := Narrative{SectionNumber: 1, Content: "story", SourceType: SourceProcessed}

	merged, err := Merge(base, []Update{
		{Node: NodeNarrator, Narrative: &narrative},
		{Node: NodeNarrator, Metadata: map[string]any{"node": "narrator"}},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	if base.Narrative != nil {
		t.Fatal("merge mutated base narrative")
	}
	if base.Metadata["node"] != "start" {
		t.Fatalf("merge mutated base metadata: %v", base.Metadata)
	}
	if merged.Metadata["node"] != "narrator" {
		t.Fatalf("expected merged metadata update, got %v", merged.Metadata)
	}
}

func TestMergeErrorAndCharacterTakeLast(t *testing.T) {
	character := Character{Stats: CharacterStats{Health: 10, MaxHealth: 10}}

	merged, err := Merge(baseState(), []Update{
		{Node: NodeDecision, Error: "first"},
		{Node: NodeTrace, Error: "second", Character: &character},
	})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if merged.Error != "second" {
		t.Fatalf("expected take-last error, got %q", merged.Error)
	}
	if merged.Character == nil || merged.Character.Stats.Health != 10 {
		t.Fatalf("expected character applied, got %+v", merged.Character)
	}
}

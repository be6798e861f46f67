package state

import (
	gberrors "github.com/louisbranch/gamebook/internal/errors"
)

// Update is a node-tagged delta delivered to the fan-in merge.
//
// Nodes never mutate the GameState they receive; they emit an Update and
// the workflow engine folds the turn's updates into a new state with
// Merge. A nil pointer field means "unchanged".
type Update struct {
	// Node identifies the emitting node and gates field ownership.
	Node Node

	SectionNumber  int
	PlayerInput    *string
	DiceResult     *DiceResult
	Narrative      *Narrative
	Rules          *Rules
	Decision       *Decision
	Trace          *Trace
	Character      *Character
	Error          string
	Metadata       map[string]any
	ShouldContinue *bool
}

// Merge folds a vector of node updates into a new GameState.
//
// Fan-in delivers candidate values as a vector rather than accumulated
// assignments; the reducers below resolve them per field:
//
//   - session_id, game_id: keep-if-not-empty, never overwritten.
//   - section_number: take-last positive value.
//   - narrative: applied only from updates tagged NodeNarrator.
//   - rules: applied only from updates tagged NodeRules.
//   - decision: take-last.
//   - trace: decision-tagged updates replace; other nodes refine,
//     preserving the append-only history.
//   - character, error: take-last non-empty.
//   - metadata: take-last per key.
//   - should_continue: logical OR across the vector.
func Merge(base GameState, updates []Update) (GameState, error) {
	merged := base.Clone()
	shouldContinue := false
	shouldContinueSet := false

	for _, update := range updates {
		if update.SectionNumber > 0 {
			merged.SectionNumber = update.SectionNumber
		}
		if update.PlayerInput != nil {
			merged.PlayerInput = *update.PlayerInput
		}
		if update.DiceResult != nil {
			result := *update.DiceResult
			merged.DiceResult = &result
		}

		if update.Narrative != nil {
			origin := update.Narrative.Origin()
			if origin == "" {
				origin = update.Node
			}
			if origin != NodeNarrator {
				return GameState{}, validationErrorf(gberrors.CodeStateInvalidMergeUpdate, "narrative update from node %q rejected", origin)
			}
			merged.Narrative = update.Narrative.Tagged(NodeNarrator)
		}

		if update.Rules != nil {
			origin := update.Rules.Origin()
			if origin == "" {
				origin = update.Node
			}
			if origin != NodeRules {
				return GameState{}, validationErrorf(gberrors.CodeStateInvalidMergeUpdate, "rules update from node %q rejected", origin)
			}
			merged.Rules = update.Rules.Tagged(NodeRules)
		}

		if update.Decision != nil {
			merged.Decision = update.Decision.Tagged(update.Node)
		}

		if update.Trace != nil {
			trace, err := mergeTrace(merged.Trace, update.Trace, update.Node)
			if err != nil {
				return GameState{}, err
			}
			merged.Trace = trace
		}

		if update.Character != nil {
			character := *update.Character
			merged.Character = &character
		}
		if update.Error != "" {
			merged.Error = update.Error
		}
		for key, value := range update.Metadata {
			if merged.Metadata == nil {
				merged.Metadata = make(map[string]any)
			}
			merged.Metadata[key] = value
		}
		if update.ShouldContinue != nil {
			shouldContinue = shouldContinue || *update.ShouldContinue
			shouldContinueSet = true
		}
	}

	if shouldContinueSet {
		merged.ShouldContinue = shouldContinue
	}

	return merged, nil
}

// mergeTrace applies a trace update. Decision-originated updates replace
// the aggregate outright; other nodes refine an existing trace without
// rewriting its history prefix.
func mergeTrace(existing, update *Trace, node Node) (*Trace, error) {
	origin := update.Origin()
	if origin == "" {
		origin = node
	}

	if existing == nil || origin == NodeDecision {
		return update.Tagged(origin), nil
	}

	if len(update.History) < len(existing.History) {
		return nil, validationErrorf(gberrors.CodeStateInvalidMergeUpdate, "trace update drops %d history entries", len(existing.History)-len(update.History))
	}
	merged := update.Tagged(origin)
	if merged.StartTime.IsZero() {
		merged.StartTime = existing.StartTime
	}
	if merged.GameID == "" {
		merged.GameID = existing.GameID
	}
	if merged.SessionID == "" {
		merged.SessionID = existing.SessionID
	}
	return merged, nil
}

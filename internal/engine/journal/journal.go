// Package journal maintains the append-only session history.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage"
)

// Node is the trace workflow node. It is the last writer of the turn
// before finalization.
type Node struct {
	cache storage.Cache
	now   func() time.Time
}

// New creates a trace node. The cache may be nil; the history is then
// kept on the state only.
func New(cache storage.Cache, now func() time.Time) *Node {
	if now == nil {
		now = time.Now
	}
	return &Node{cache: cache, now: now}
}

// Run appends the turn's actions to the session history and persists
// the trace record. Persistence failures are surfaced via metadata and
// never abort the turn.
func (n *Node) Run(ctx context.Context, s state.GameState) state.Update {
	trace := n.baseTrace(s)

	for _, action := range n.deriveActions(s, trace.History) {
		if err := state.ValidateAction(action); err != nil {
			log.Printf("journal: dropping invalid action %s: %v", action.ActionType, err)
			continue
		}
		trace.History = append(trace.History, action)
	}

	if s.Error != "" {
		// Error-bearing traces carry no current models.
		trace.Error = s.Error
		trace.CurrentNarrative = nil
		trace.CurrentRules = nil
	} else if s.Narrative != nil && s.Rules != nil {
		narrative := *s.Narrative
		rules := *s.Rules
		trace.CurrentNarrative = &narrative
		trace.CurrentRules = &rules
	}
	if s.Character != nil {
		character := *s.Character
		trace.Character = &character
	}

	warning := n.persist(ctx, trace)

	return state.Update{
		Node:     state.NodeTrace,
		Trace:    trace.Tagged(state.NodeTrace),
		Metadata: metadataWarning(warning),
	}
}

// baseTrace continues the existing session history or initializes a new
// one inheriting the state's identifiers.
func (n *Node) baseTrace(s state.GameState) state.Trace {
	if s.Trace != nil {
		trace := *s.Trace
		trace.History = append([]state.Action(nil), trace.History...)
		trace.SectionNumber = s.SectionNumber
		trace.Error = ""
		return trace
	}
	return state.Trace{
		GameID:        s.GameID,
		SessionID:     s.SessionID,
		SectionNumber: s.SectionNumber,
		StartTime:     n.now().UTC(),
	}
}

// deriveActions reads the turn's delta off the finalized state: consumed
// input, a consumed dice result, the section transition the decision
// produced, and a terminal error. An input or roll that an earlier turn
// already journaled for this section is not recorded again; a turn that
// ends awaiting keeps both on the state, and they flow back in unchanged
// when the caller supplies the missing half.
func (n *Node) deriveActions(s state.GameState, history []state.Action) []state.Action {
	now := n.now().UTC()
	var actions []state.Action

	if s.PlayerInput != "" && !journaled(history, state.ActionUserInput, s.SectionNumber, "input", s.PlayerInput) {
		actions = append(actions, state.Action{
			Timestamp:  now,
			Section:    s.SectionNumber,
			ActionType: state.ActionUserInput,
			Details:    map[string]any{"input": s.PlayerInput},
		})
	}
	if s.DiceResult != nil && !journaled(history, state.ActionDiceRoll, s.SectionNumber, "roll_result", s.DiceResult.Value) {
		actions = append(actions, state.Action{
			Timestamp:  now,
			Section:    s.SectionNumber,
			ActionType: state.ActionDiceRoll,
			Details: map[string]any{
				"roll_result": s.DiceResult.Value,
				"dice_type":   string(s.DiceResult.Type),
			},
		})
	}
	if s.Decision != nil && s.Decision.NextSection > 0 && s.Decision.NextSection != s.SectionNumber {
		actions = append(actions, state.Action{
			Timestamp:  now,
			Section:    s.SectionNumber,
			ActionType: state.ActionSectionChange,
			Details: map[string]any{
				"from": s.SectionNumber,
				"to":   s.Decision.NextSection,
			},
		})
	}
	if s.Error != "" {
		actions = append(actions, state.Action{
			Timestamp:  now,
			Section:    s.SectionNumber,
			ActionType: state.ActionError,
			Details:    map[string]any{"message": s.Error},
		})
	}

	return actions
}

// journaled reports whether the history already holds an action of the
// given type for the section with a matching detail. Details reloaded
// from JSON carry float64 numbers, so the comparison goes through the
// printed form.
func journaled(history []state.Action, actionType state.ActionType, section int, key string, value any) bool {
	for _, action := range history {
		if action.ActionType != actionType || action.Section != section {
			continue
		}
		if fmt.Sprint(action.Details[key]) == fmt.Sprint(value) {
			return true
		}
	}
	return false
}

// persist writes the current trace and, when history exists, the rolling
// history record. The two artifacts may diverge if one write fails.
func (n *Node) persist(ctx context.Context, trace state.Trace) string {
	if n.cache == nil {
		return ""
	}

	payload, err := json.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Sprintf("marshal trace: %v", err)
	}

	var warning string
	if err := n.cache.SaveCached(ctx, storage.NamespaceTrace, state.TraceKey(trace.GameID, trace.SessionID), payload); err != nil {
		log.Printf("journal: save trace for session %s failed: %v", trace.SessionID, err)
		warning = fmt.Sprintf("save trace: %v", err)
	}
	if len(trace.History) > 0 {
		if err := n.cache.SaveCached(ctx, storage.NamespaceTrace, state.TraceHistoryKey(trace.GameID, trace.SessionID), payload); err != nil {
			log.Printf("journal: save trace history for session %s failed: %v", trace.SessionID, err)
			if warning != "" {
				warning += "; "
			}
			warning += fmt.Sprintf("save trace history: %v", err)
		}
	}
	if trace.Character != nil {
		sheet := characterSheet(*trace.Character)
		if err := n.cache.SaveCached(ctx, storage.NamespaceCharacter, state.CharacterKey(trace.GameID, trace.SessionID), []byte(sheet)); err != nil {
			log.Printf("journal: save character sheet for session %s failed: %v", trace.SessionID, err)
			if warning != "" {
				warning += "; "
			}
			warning += fmt.Sprintf("save character sheet: %v", err)
		}
	}
	return warning
}

// characterSheet renders the sheet as human-editable markdown.
func characterSheet(character state.Character) string {
	var b strings.Builder
	b.WriteString("# Character\n\n## Stats\n\n")
	stats := character.Stats
	fmt.Fprintf(&b, "- Health: %d/%d\n", stats.Health, stats.MaxHealth)
	fmt.Fprintf(&b, "- Strength: %d\n", stats.Strength)
	fmt.Fprintf(&b, "- Dexterity: %d\n", stats.Dexterity)
	fmt.Fprintf(&b, "- Intelligence: %d\n", stats.Intelligence)
	fmt.Fprintf(&b, "- Level: %d\n", stats.Level)
	fmt.Fprintf(&b, "- Experience: %d\n", stats.Experience)

	inventory := character.Inventory
	b.WriteString("\n## Inventory\n\n")
	fmt.Fprintf(&b, "- Gold: %d\n", inventory.Gold)
	fmt.Fprintf(&b, "- Capacity: %d\n", inventory.Capacity)
	names := make([]string, 0, len(inventory.Items))
	for name := range inventory.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s x%d\n", name, inventory.Items[name].Quantity)
	}
	return b.String()
}

func metadataWarning(warning string) map[string]any {
	if warning == "" {
		return nil
	}
	return map[string]any{"storage_warnings": warning}
}

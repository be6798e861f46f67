// Package decision selects the next section from the merged turn state.
package decision

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/gamebook/internal/core/dice"
	"github.com/louisbranch/gamebook/internal/engine/condition"
	gberrors "github.com/louisbranch/gamebook/internal/errors"
	"github.com/louisbranch/gamebook/internal/state"
)

// Node is the decision workflow node.
type Node struct {
	conditions *condition.Evaluator
	now        func() time.Time
}

// New creates a decision node.
func New(conditions *condition.Evaluator, now func() time.Time) *Node {
	if conditions == nil {
		conditions = condition.New()
	}
	if now == nil {
		now = time.Now
	}
	return &Node{conditions: conditions, now: now}
}

// Run applies the routing policy to the merged state.
//
// The policy is ordered: rules errors stop the turn; an explicit input
// ordering on the rules is honored before anything resolves; with no
// ordering, a pending dice need takes precedence over pending input.
// Only when every required input is present does a next section resolve.
func (n *Node) Run(ctx context.Context, s state.GameState) state.Update {
	rules := s.Rules
	if rules == nil {
		return n.errorUpdate(s, "decision requires rules")
	}
	if rules.Error != "" {
		return n.errorUpdate(s, rules.Error)
	}
	if s.Narrative != nil && s.Narrative.Error != "" {
		return n.errorUpdate(s, s.Narrative.Error)
	}

	hasInput := strings.TrimSpace(s.PlayerInput) != ""
	hasDice := s.DiceResult != nil

	switch {
	case rules.NextAction == state.NextActionUserFirst && !hasInput:
		return n.awaitUpdate(s, state.AwaitUserInput)
	case rules.NextAction == state.NextActionDiceFirst && !hasDice:
		return n.awaitUpdate(s, state.AwaitDiceRoll)
	case rules.NeedsDice && !hasDice:
		return n.awaitUpdate(s, state.AwaitDiceRoll)
	case rules.NeedsUserResponse && !hasInput && requiresInput(*rules):
		return n.awaitUpdate(s, state.AwaitUserInput)
	}

	next, err := n.resolve(s, *rules, hasInput, hasDice)
	if err == nil && next <= 0 {
		err = gberrors.New(gberrors.CodeDecisionNoNextSection, fmt.Sprintf("resolved next section %d is invalid", next))
	}
	if err != nil {
		return n.errorUpdate(s, err.Error())
	}

	update := n.emit(state.Decision{
		SectionNumber:  s.SectionNumber,
		NextSection:    next,
		AwaitingAction: state.AwaitNone,
		Conditions:     rules.Conditions,
		Timestamp:      n.now().UTC(),
	}, true)
	if hasInput {
		// Input is consumed by the resolution; the next turn starts clean.
		empty := ""
		update.PlayerInput = &empty
	}
	return update
}

// requiresInput reports whether a section can only resolve through an
// explicit player choice. A lone dice choice resolves from the roll.
func requiresInput(rules state.Rules) bool {
	for _, choice := range rules.Choices {
		if choice.Type == state.ChoiceDirect || choice.Type == state.ChoiceConditional {
			return true
		}
	}
	return false
}

// resolve picks the next section through the fallback chain: a matched
// choice wins, then a dice or mixed choice resolved from the roll, then
// the first rules-derived candidate, then the following section. Choices
// whose conditions fail for the current character are skipped.
func (n *Node) resolve(s state.GameState, rules state.Rules, hasInput, hasDice bool) (int, error) {
	available := n.availableChoices(s.Character, rules.Choices)

	if hasInput {
		choice, ok, err := matchChoice(available, s.PlayerInput)
		if err != nil {
			return 0, err
		}
		if ok {
			return n.choiceTarget(s, choice)
		}
		// Unmatched free text falls through to the remaining fallbacks.
	}

	if hasDice {
		for _, choice := range available {
			if choice.Type == state.ChoiceDice || choice.Type == state.ChoiceMixed {
				return n.choiceTarget(s, choice)
			}
		}
	}

	if len(rules.NextSections) > 0 {
		return rules.NextSections[0], nil
	}
	return s.SectionNumber + 1, nil
}

func (n *Node) availableChoices(character *state.Character, choices []state.Choice) []state.Choice {
	available := make([]state.Choice, 0, len(choices))
	for _, choice := range choices {
		if n.conditions.Satisfied(character, choice.Conditions) {
			available = append(available, choice)
		}
	}
	return available
}

// matchChoice resolves player input against the choice list. An exact
// text match wins, then a 1-based index. Free text that matches nothing
// is not an error; only an out-of-range index is.
func matchChoice(choices []state.Choice, input string) (state.Choice, bool, error) {
	input = strings.TrimSpace(input)

	for _, choice := range choices {
		if strings.EqualFold(choice.Text, input) {
			return choice, true, nil
		}
	}

	index, err := strconv.Atoi(input)
	if err != nil {
		return state.Choice{}, false, nil
	}
	if index < 1 || index > len(choices) {
		return state.Choice{}, false, gberrors.New(gberrors.CodeDecisionInvalidChoiceIndex, fmt.Sprintf("choice index %d out of range 1..%d", index, len(choices)))
	}
	return choices[index-1], true, nil
}

// choiceTarget extracts the destination from a matched choice, going
// through the dice outcome bucket for dice and mixed choices.
func (n *Node) choiceTarget(s state.GameState, choice state.Choice) (int, error) {
	if choice.TargetSection > 0 {
		return choice.TargetSection, nil
	}
	if choice.Type != state.ChoiceDice && choice.Type != state.ChoiceMixed {
		return 0, fmt.Errorf("choice %q has no target section", choice.Text)
	}
	if s.DiceResult == nil {
		return 0, fmt.Errorf("choice %q needs a dice result", choice.Text)
	}

	kind := dice.KindChance
	if choice.DiceType == state.DiceCombat {
		kind = dice.KindCombat
	}
	bucket := dice.Bucket(s.DiceResult.Value, kind)
	target, ok := choice.DiceResults[bucket]
	if !ok {
		return 0, fmt.Errorf("choice %q maps no section for outcome %q", choice.Text, bucket)
	}
	return target, nil
}

func (n *Node) awaitUpdate(s state.GameState, awaiting state.AwaitingAction) state.Update {
	return n.emit(state.Decision{
		SectionNumber:  s.SectionNumber,
		AwaitingAction: awaiting,
		Timestamp:      n.now().UTC(),
	}, false)
}

func (n *Node) errorUpdate(s state.GameState, message string) state.Update {
	update := n.emit(state.Decision{
		SectionNumber:  s.SectionNumber,
		AwaitingAction: state.AwaitNone,
		Error:          message,
		Timestamp:      n.now().UTC(),
	}, false)
	update.Error = message
	return update
}

func (n *Node) emit(decision state.Decision, shouldContinue bool) state.Update {
	return state.Update{
		Node:           state.NodeDecision,
		Decision:       decision.Tagged(state.NodeDecision),
		ShouldContinue: &shouldContinue,
	}
}

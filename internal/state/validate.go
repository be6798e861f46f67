package state

import (
	"fmt"

	gberrors "github.com/louisbranch/gamebook/internal/errors"
)

// ValidationError pairs a machine-readable code with a human message.
type ValidationError struct {
	Code    gberrors.Code
	Message string
}

// Error satisfies the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func validationErrorf(code gberrors.Code, format string, args ...any) error {
	return ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidateChoice enforces the type-specific shape of a choice.
//
//   - direct: target section required; no conditions, no dice.
//   - conditional: conditions required; no dice.
//   - dice: dice type and dice results required; no conditions.
//   - mixed: conditions, dice type and dice results all required.
func ValidateChoice(choice Choice) error {
	if choice.Text == "" {
		return validationErrorf(gberrors.CodeRulesInvalidChoice, "choice text is required")
	}

	hasDice := choice.DiceType != "" && choice.DiceType != DiceNone
	hasResults := len(choice.DiceResults) > 0

	switch choice.Type {
	case ChoiceDirect:
		if choice.TargetSection <= 0 {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "direct choice %q requires a target section", choice.Text)
		}
		if len(choice.Conditions) > 0 {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "direct choice %q cannot carry conditions", choice.Text)
		}
		if hasDice || hasResults {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "direct choice %q cannot carry dice", choice.Text)
		}
	case ChoiceConditional:
		if len(choice.Conditions) == 0 {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "conditional choice %q requires conditions", choice.Text)
		}
		if hasDice || hasResults {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "conditional choice %q cannot carry dice", choice.Text)
		}
	case ChoiceDice:
		if !hasDice || !hasResults {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "dice choice %q requires dice type and results", choice.Text)
		}
		if len(choice.Conditions) > 0 {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "dice choice %q cannot carry conditions", choice.Text)
		}
	case ChoiceMixed:
		if len(choice.Conditions) == 0 || !hasDice || !hasResults {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "mixed choice %q requires conditions, dice type and results", choice.Text)
		}
	default:
		return validationErrorf(gberrors.CodeRulesInvalidChoice, "unknown choice type %q", choice.Type)
	}

	for bucket, target := range choice.DiceResults {
		if target <= 0 {
			return validationErrorf(gberrors.CodeRulesInvalidChoice, "choice %q maps bucket %q to invalid section %d", choice.Text, bucket, target)
		}
	}

	return nil
}

// ValidateRules enforces the cross-field rules invariants.
func ValidateRules(rules Rules) error {
	if rules.SectionNumber <= 0 {
		return validationErrorf(gberrors.CodeStateInvalidSection, "rules section number must be positive, got %d", rules.SectionNumber)
	}

	// Error-bearing rules are normalized: no pending dice or input.
	if rules.Error != "" {
		if rules.SourceType != SourceError {
			return validationErrorf(gberrors.CodeRulesExtractionFailed, "rules with error must carry source_type error")
		}
		if rules.NeedsDice || rules.NeedsUserResponse {
			return validationErrorf(gberrors.CodeRulesExtractionFailed, "rules with error cannot need dice or input")
		}
		return nil
	}

	if rules.NeedsDice != (rules.DiceType != DiceNone) {
		return validationErrorf(gberrors.CodeRulesInvalidNextAction, "needs_dice must match dice_type, got needs_dice=%t dice_type=%s", rules.NeedsDice, rules.DiceType)
	}
	for _, choice := range rules.Choices {
		if err := ValidateChoice(choice); err != nil {
			return err
		}
		if (choice.Type == ChoiceDice || choice.Type == ChoiceMixed) && !rules.NeedsDice {
			return validationErrorf(gberrors.CodeRulesInvalidNextAction, "choice %q needs dice but rules do not", choice.Text)
		}
	}
	if len(rules.Choices) > 0 && !rules.NeedsUserResponse {
		return validationErrorf(gberrors.CodeRulesInvalidNextAction, "rules with choices require needs_user_response")
	}
	switch rules.NextAction {
	case NextActionUserFirst:
		if !rules.NeedsUserResponse {
			return validationErrorf(gberrors.CodeRulesInvalidNextAction, "next_action user_first requires needs_user_response")
		}
	case NextActionDiceFirst:
		if !rules.NeedsDice {
			return validationErrorf(gberrors.CodeRulesInvalidNextAction, "next_action dice_first requires needs_dice")
		}
	case NextActionNone, "":
	default:
		return validationErrorf(gberrors.CodeRulesInvalidNextAction, "unknown next_action %q", rules.NextAction)
	}

	return nil
}

// ValidateAction enforces type-specific action detail requirements.
func ValidateAction(action Action) error {
	if action.Section <= 0 {
		return validationErrorf(gberrors.CodeTraceInvalidAction, "action section must be positive, got %d", action.Section)
	}
	switch action.ActionType {
	case ActionDiceRoll:
		if _, ok := action.Details["roll_result"]; !ok {
			return validationErrorf(gberrors.CodeTraceInvalidAction, "dice_roll action requires roll_result detail")
		}
	case ActionUserInput:
		if _, ok := action.Details["input"]; !ok {
			return validationErrorf(gberrors.CodeTraceInvalidAction, "user_input action requires input detail")
		}
	case ActionSectionChange, ActionCharacterUpdate, ActionError:
	default:
		return validationErrorf(gberrors.CodeTraceInvalidAction, "unknown action type %q", action.ActionType)
	}
	return nil
}

// ValidateTrace enforces the trace co-presence invariants.
func ValidateTrace(trace Trace) error {
	if trace.Error != "" {
		if trace.CurrentNarrative != nil || trace.CurrentRules != nil {
			return validationErrorf(gberrors.CodeTraceInvalidAction, "error-bearing trace cannot carry current narrative or rules")
		}
		return nil
	}
	if (trace.CurrentNarrative == nil) != (trace.CurrentRules == nil) {
		return validationErrorf(gberrors.CodeTraceInvalidAction, "current narrative and rules must be co-present")
	}
	for _, action := range trace.History {
		if err := ValidateAction(action); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCharacter enforces the stat and inventory bounds.
func ValidateCharacter(character Character) error {
	stats := character.Stats
	if stats.Health < 0 || stats.MaxHealth < 0 || stats.Strength < 0 ||
		stats.Dexterity < 0 || stats.Intelligence < 0 || stats.Level < 0 || stats.Experience < 0 {
		return validationErrorf(gberrors.CodeCharacterInvalidStats, "character stats must be non-negative")
	}
	if stats.Health > stats.MaxHealth {
		return validationErrorf(gberrors.CodeCharacterInvalidStats, "health %d exceeds max health %d", stats.Health, stats.MaxHealth)
	}
	if character.Inventory.Gold < 0 {
		return validationErrorf(gberrors.CodeCharacterInvalidStats, "gold must be non-negative")
	}
	if character.Inventory.Capacity > 0 && len(character.Inventory.Items) > character.Inventory.Capacity {
		return validationErrorf(gberrors.CodeCharacterInventoryOverflow, "inventory holds %d items over capacity %d", len(character.Inventory.Items), character.Inventory.Capacity)
	}
	return nil
}

// Validate enforces the cross-model GameState invariants.
//
// The section-number invariant requires narrative, rules and trace, when
// set, to agree with the state's section pointer.
func Validate(s GameState) error {
	if s.SessionID == "" {
		return validationErrorf(gberrors.CodeStateEmptySessionID, "session id is required")
	}
	if s.GameID == "" {
		return validationErrorf(gberrors.CodeStateEmptyGameID, "game id is required")
	}
	if s.SectionNumber <= 0 {
		return validationErrorf(gberrors.CodeStateInvalidSection, "section number must be positive, got %d", s.SectionNumber)
	}

	if s.Narrative != nil && s.Narrative.SectionNumber != s.SectionNumber {
		return validationErrorf(gberrors.CodeStateSectionMismatch, "narrative section %d does not match state section %d", s.Narrative.SectionNumber, s.SectionNumber)
	}
	if s.Rules != nil && s.Rules.SectionNumber != s.SectionNumber {
		return validationErrorf(gberrors.CodeStateSectionMismatch, "rules section %d does not match state section %d", s.Rules.SectionNumber, s.SectionNumber)
	}
	if s.Trace != nil && s.Trace.SectionNumber != 0 && s.Trace.SectionNumber != s.SectionNumber {
		return validationErrorf(gberrors.CodeStateSectionMismatch, "trace section %d does not match state section %d", s.Trace.SectionNumber, s.SectionNumber)
	}

	if s.Rules != nil {
		if err := ValidateRules(*s.Rules); err != nil {
			return err
		}
	}
	if s.Trace != nil {
		if err := ValidateTrace(*s.Trace); err != nil {
			return err
		}
	}
	if s.Character != nil {
		if err := ValidateCharacter(*s.Character); err != nil {
			return err
		}
	}
	if s.Decision != nil && s.Decision.NextSection < 0 {
		return validationErrorf(gberrors.CodeDecisionInvalidNextSection, "decision next section must be positive, got %d", s.Decision.NextSection)
	}

	return nil
}

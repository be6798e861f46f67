package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/gamebook/internal/state"
)

// Keyword cues for the structural extraction. The source gamebooks mix
// English and French phrasing, so both are recognized.
var (
	dicePhrases = []string{
		"roll", "dice", "2d6", "1d6",
		"jet de", "lancez", "dés",
	}
	combatKeywords = []string{
		"combat", "fight", "battle", "attack",
		"combattre", "bataille",
	}
	conditionMarkers = []string{
		"if you have", "if you possess", "if you carry",
		"si vous avez", "si vous possédez",
	}
)

var (
	tokenPattern = regexp.MustCompile(`\[\[(\d+)\]\]`)
	goToPattern  = regexp.MustCompile(`(?i)(?:go to|turn to|rendez-vous au|allez au|section)\s+(\d+)`)
)

// Extract performs the keyword-directed structural extraction over raw
// section text and builds a Rules record honoring the model invariants.
func Extract(section int, text, source string, now time.Time) (state.Rules, error) {
	if strings.TrimSpace(text) == "" {
		return state.Rules{}, fmt.Errorf("section %d has no content to extract rules from", section)
	}

	lower := strings.ToLower(text)

	// Combat or chance wording without a roll phrase is narrative
	// flavor, not a dice requirement: dice_type stays none unless a
	// dice phrase appears.
	needsDice := containsAny(lower, dicePhrases)
	diceType := state.DiceNone
	if needsDice {
		diceType = state.DiceChance
		if containsAny(lower, combatKeywords) {
			diceType = state.DiceCombat
		}
	}

	candidates := extractCandidates(text)
	conditions := extractConditions(text)

	choices, err := buildChoices(candidates, conditions, diceType, needsDice)
	if err != nil {
		return state.Rules{}, err
	}

	rules := state.Rules{
		SectionNumber:     section,
		DiceType:          diceType,
		NeedsDice:         needsDice,
		NeedsUserResponse: len(choices) > 0,
		NextAction:        deriveNextAction(needsDice, len(choices) > 0),
		Conditions:        conditions,
		NextSections:      candidates,
		Choices:           choices,
		RulesSummary:      summarize(needsDice, diceType, candidates),
		Source:            source,
		SourceType:        state.SourceProcessed,
		LastUpdate:        now.UTC(),
	}

	if err := state.ValidateRules(rules); err != nil {
		return state.Rules{}, fmt.Errorf("extracted rules for section %d invalid: %w", section, err)
	}
	return rules, nil
}

// extractCandidates collects next-section numbers in order of first
// appearance, from [[n]] tokens and go-to phrasing.
func extractCandidates(text string) []int {
	var candidates []int
	seen := make(map[int]struct{})

	add := func(raw string) {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			return
		}
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		candidates = append(candidates, value)
	}

	type match struct {
		index int
		value string
	}
	var matches []match
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, match{index: m[0], value: text[m[2]:m[3]]})
	}
	for _, m := range goToPattern.FindAllStringSubmatchIndex(text, -1) {
		matches = append(matches, match{index: m[0], value: text[m[2]:m[3]]})
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].index < matches[i].index {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	for _, m := range matches {
		add(m.value)
	}

	return candidates
}

// extractConditions collects the phrase following each condition marker
// up to the end of its sentence.
func extractConditions(text string) []string {
	var conditions []string
	lower := strings.ToLower(text)

	for _, marker := range conditionMarkers {
		offset := 0
		for {
			idx := strings.Index(lower[offset:], marker)
			if idx < 0 {
				break
			}
			start := offset + idx + len(marker)
			end := len(text)
			for i := start; i < len(text); i++ {
				if text[i] == '.' || text[i] == ',' || text[i] == '\n' {
					end = i
					break
				}
			}
			condition := strings.TrimSpace(text[start:end])
			if condition != "" {
				conditions = append(conditions, condition)
			}
			offset = end
			if offset >= len(text) {
				break
			}
		}
	}

	return conditions
}

// buildChoices classifies the extracted structure into typed choices.
// Dice-gated sections with two or more targets become a single dice (or
// mixed) choice bucketing success and failure; everything else becomes
// direct (or conditional) choices, one per candidate section.
func buildChoices(candidates []int, conditions []string, diceType state.DiceType, needsDice bool) ([]state.Choice, error) {
	var choices []state.Choice

	if needsDice && len(candidates) >= 2 {
		choice := state.Choice{
			Text:     rollChoiceText(diceType),
			Type:     state.ChoiceDice,
			DiceType: diceType,
			DiceResults: map[string]int{
				"success": candidates[0],
				"failure": candidates[1],
			},
		}
		if len(conditions) > 0 {
			choice.Type = state.ChoiceMixed
			choice.Conditions = conditions
		}
		choices = append(choices, choice)

		for _, extra := range candidates[2:] {
			choices = append(choices, directChoice(extra))
		}
		return choices, validateAll(choices)
	}

	for _, candidate := range candidates {
		if len(conditions) > 0 && len(candidates) == 1 {
			choices = append(choices, state.Choice{
				Text:          fmt.Sprintf("Go to section %d", candidate),
				Type:          state.ChoiceConditional,
				TargetSection: candidate,
				Conditions:    conditions,
			})
			continue
		}
		choices = append(choices, directChoice(candidate))
	}

	return choices, validateAll(choices)
}

func validateAll(choices []state.Choice) error {
	for _, choice := range choices {
		if err := state.ValidateChoice(choice); err != nil {
			return err
		}
	}
	return nil
}

func directChoice(target int) state.Choice {
	return state.Choice{
		Text:          fmt.Sprintf("Go to section %d", target),
		Type:          state.ChoiceDirect,
		TargetSection: target,
	}
}

func rollChoiceText(diceType state.DiceType) string {
	if diceType == state.DiceCombat {
		return "Make a combat roll"
	}
	return "Make a chance roll"
}

// deriveNextAction orders inputs. Extraction defaults to dice-first when
// a roll is needed; purely choice-driven sections wait on the player.
func deriveNextAction(needsDice, needsUser bool) state.NextAction {
	switch {
	case needsDice:
		return state.NextActionDiceFirst
	case needsUser:
		return state.NextActionUserFirst
	default:
		return state.NextActionNone
	}
}

func summarize(needsDice bool, diceType state.DiceType, candidates []int) string {
	if len(candidates) == 0 && !needsDice {
		return "No branching detected; continue to the next section."
	}

	var parts []string
	if needsDice {
		parts = append(parts, fmt.Sprintf("Requires a %s roll.", diceType))
	}
	if len(candidates) > 0 {
		targets := make([]string, len(candidates))
		for i, candidate := range candidates {
			targets[i] = strconv.Itoa(candidate)
		}
		parts = append(parts, "Possible destinations: "+strings.Join(targets, ", ")+".")
	}
	return strings.Join(parts, " ")
}

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

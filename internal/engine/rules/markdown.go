package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	gberrors "github.com/louisbranch/gamebook/internal/errors"
	"github.com/louisbranch/gamebook/internal/state"
)

// The cached rules document is structured markdown with five mandatory
// H2 sections. Serialization is deterministic so cache hits re-parse
// byte-faithfully: parse(serialize(rules)) == rules and
// serialize(parse(doc)) == doc for documents this codec wrote.

const (
	headingMetadata = "## Metadata"
	headingAnalysis = "## Analysis"
	headingChoices  = "## Choices"
	headingSummary  = "## Summary"
	headingError    = "## Error"
)

var (
	titlePattern  = regexp.MustCompile(`^# Rules for Section (\d+)$`)
	choicePattern = regexp.MustCompile(`^\* (.+) \(Type: (direct|conditional|dice|mixed)\)$`)
	bucketPattern = regexp.MustCompile(`'([^']+)':\s*(\d+)`)
	targetPattern = regexp.MustCompile(`^Section (\d+)$`)
)

// Serialize renders a Rules record as the cached markdown document.
func Serialize(rules state.Rules) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Rules for Section %d\n\n", rules.SectionNumber)

	b.WriteString(headingMetadata + "\n\n")
	fmt.Fprintf(&b, "- Dice_Type: %s\n", diceTypeLabel(rules.DiceType))
	fmt.Fprintf(&b, "- Needs_Dice: %t\n", rules.NeedsDice)
	fmt.Fprintf(&b, "- Needs_User_Response: %t\n", rules.NeedsUserResponse)
	fmt.Fprintf(&b, "- Next_Action: %s\n", nextActionLabel(rules.NextAction))
	if rules.Source != "" {
		fmt.Fprintf(&b, "- Source: %s\n", rules.Source)
	}
	fmt.Fprintf(&b, "- Source_Type: %s\n", rules.SourceType)
	fmt.Fprintf(&b, "- Last_Update: %s\n", rules.LastUpdate.UTC().Format(time.RFC3339))
	b.WriteString("\n")

	b.WriteString(headingAnalysis + "\n\n")
	if len(rules.Conditions) > 0 {
		fmt.Fprintf(&b, "- Conditions: %s\n", strings.Join(rules.Conditions, ", "))
	}
	if len(rules.NextSections) > 0 {
		fmt.Fprintf(&b, "- Next_Sections: %s\n", joinInts(rules.NextSections))
	}
	b.WriteString("\n")

	b.WriteString(headingChoices + "\n\n")
	for _, choice := range rules.Choices {
		fmt.Fprintf(&b, "* %s (Type: %s)\n", choice.Text, choice.Type)
		if len(choice.Conditions) > 0 {
			fmt.Fprintf(&b, "  - Conditions: %s\n", strings.Join(choice.Conditions, ", "))
		}
		if choice.DiceType != "" && choice.DiceType != state.DiceNone {
			fmt.Fprintf(&b, "  - Dice_Type: %s\n", choice.DiceType)
		}
		if len(choice.DiceResults) > 0 {
			fmt.Fprintf(&b, "  - Dice_Results: %s\n", formatBuckets(choice.DiceResults))
		}
		if choice.TargetSection > 0 {
			fmt.Fprintf(&b, "  - Target: Section %d\n", choice.TargetSection)
		}
	}
	b.WriteString("\n")

	b.WriteString(headingSummary + "\n\n")
	if rules.RulesSummary != "" {
		b.WriteString(rules.RulesSummary + "\n")
	}
	b.WriteString("\n")

	b.WriteString(headingError + "\n\n")
	if rules.Error != "" {
		b.WriteString(rules.Error + "\n")
	} else {
		b.WriteString("None\n")
	}

	return b.String()
}

// Parse reads a cached rules document back into a Rules record. All
// five H2 sections must be present; anything else is a parse failure
// and the caller treats the entry as a cache miss.
func Parse(doc string) (state.Rules, error) {
	parsed, err := parse(doc)
	if err != nil {
		return state.Rules{}, gberrors.Wrap(gberrors.CodeRulesParseFailed, err.Error(), err)
	}
	return parsed, nil
}

func parse(doc string) (state.Rules, error) {
	lines := strings.Split(strings.ReplaceAll(doc, "\r\n", "\n"), "\n")

	var rules state.Rules
	titleFound := false
	sections := map[string][]string{}
	current := ""

	for _, line := range lines {
		if m := titlePattern.FindStringSubmatch(line); m != nil {
			section, err := strconv.Atoi(m[1])
			if err != nil || section <= 0 {
				return state.Rules{}, fmt.Errorf("invalid section number in title: %s", line)
			}
			rules.SectionNumber = section
			titleFound = true
			continue
		}
		if strings.HasPrefix(line, "## ") {
			current = line
			if _, dup := sections[current]; dup {
				return state.Rules{}, fmt.Errorf("duplicate section %q", line)
			}
			sections[current] = nil
			continue
		}
		if current != "" {
			sections[current] = append(sections[current], line)
		}
	}

	if !titleFound {
		return state.Rules{}, fmt.Errorf("missing rules title")
	}
	for _, heading := range []string{headingMetadata, headingAnalysis, headingChoices, headingSummary, headingError} {
		if _, ok := sections[heading]; !ok {
			return state.Rules{}, fmt.Errorf("missing %s section", heading)
		}
	}

	if err := parseMetadata(sections[headingMetadata], &rules); err != nil {
		return state.Rules{}, err
	}
	if err := parseAnalysis(sections[headingAnalysis], &rules); err != nil {
		return state.Rules{}, err
	}
	choices, err := parseChoices(sections[headingChoices])
	if err != nil {
		return state.Rules{}, err
	}
	rules.Choices = choices
	rules.RulesSummary = strings.TrimSpace(strings.Join(sections[headingSummary], "\n"))

	errorText := strings.TrimSpace(strings.Join(sections[headingError], "\n"))
	if errorText != "" && errorText != "None" {
		rules.Error = errorText
	}

	return rules, nil
}

func parseMetadata(lines []string, rules *state.Rules) error {
	for _, line := range lines {
		key, value, ok := parseBullet(line)
		if !ok {
			continue
		}
		switch key {
		case "Dice_Type":
			rules.DiceType = state.DiceType(value)
		case "Needs_Dice":
			rules.NeedsDice = value == "true"
		case "Needs_User_Response":
			rules.NeedsUserResponse = value == "true"
		case "Next_Action":
			rules.NextAction = state.NextAction(value)
		case "Source":
			rules.Source = value
		case "Source_Type":
			rules.SourceType = state.SourceType(value)
		case "Last_Update":
			parsed, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return fmt.Errorf("invalid Last_Update %q: %w", value, err)
			}
			rules.LastUpdate = parsed.UTC()
		}
	}
	if rules.DiceType == "" {
		return fmt.Errorf("metadata is missing Dice_Type")
	}
	return nil
}

func parseAnalysis(lines []string, rules *state.Rules) error {
	for _, line := range lines {
		key, value, ok := parseBullet(line)
		if !ok {
			continue
		}
		switch key {
		case "Conditions":
			rules.Conditions = splitList(value)
		case "Next_Sections":
			numbers, err := splitInts(value)
			if err != nil {
				return fmt.Errorf("invalid Next_Sections %q: %w", value, err)
			}
			rules.NextSections = numbers
		}
	}
	return nil
}

func parseChoices(lines []string) ([]state.Choice, error) {
	var choices []state.Choice

	for _, line := range lines {
		if m := choicePattern.FindStringSubmatch(line); m != nil {
			choices = append(choices, state.Choice{
				Text: m[1],
				Type: state.ChoiceType(m[2]),
			})
			continue
		}

		key, value, ok := parseBullet(strings.TrimPrefix(line, "  "))
		if !ok {
			continue
		}
		if len(choices) == 0 {
			return nil, fmt.Errorf("choice attribute %q before any choice", line)
		}
		choice := &choices[len(choices)-1]

		switch key {
		case "Conditions":
			choice.Conditions = splitList(value)
		case "Dice_Type":
			choice.DiceType = state.DiceType(value)
		case "Dice_Results":
			buckets := make(map[string]int)
			for _, m := range bucketPattern.FindAllStringSubmatch(value, -1) {
				target, err := strconv.Atoi(m[2])
				if err != nil {
					return nil, fmt.Errorf("invalid dice result %q", value)
				}
				buckets[m[1]] = target
			}
			if len(buckets) == 0 {
				return nil, fmt.Errorf("empty dice results %q", value)
			}
			choice.DiceResults = buckets
		case "Target":
			m := targetPattern.FindStringSubmatch(value)
			if m == nil {
				return nil, fmt.Errorf("invalid target %q", value)
			}
			target, err := strconv.Atoi(m[1])
			if err != nil {
				return nil, fmt.Errorf("invalid target %q", value)
			}
			choice.TargetSection = target
		}
	}

	for _, choice := range choices {
		if err := state.ValidateChoice(choice); err != nil {
			return nil, err
		}
	}
	return choices, nil
}

func parseBullet(line string) (key, value string, ok bool) {
	if !strings.HasPrefix(line, "- ") {
		return "", "", false
	}
	rest := strings.TrimPrefix(line, "- ")
	key, value, found := strings.Cut(rest, ": ")
	if !found {
		return "", "", false
	}
	return key, value, true
}

// formatBuckets renders the dice result mapping deterministically:
// success first, failure second, remaining buckets sorted.
func formatBuckets(buckets map[string]int) string {
	keys := make([]string, 0, len(buckets))
	for key := range buckets {
		if key != "success" && key != "failure" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	ordered := make([]string, 0, len(buckets))
	if target, ok := buckets["success"]; ok {
		ordered = append(ordered, fmt.Sprintf("'success': %d", target))
	}
	if target, ok := buckets["failure"]; ok {
		ordered = append(ordered, fmt.Sprintf("'failure': %d", target))
	}
	for _, key := range keys {
		ordered = append(ordered, fmt.Sprintf("'%s': %d", key, buckets[key]))
	}

	return "{" + strings.Join(ordered, ", ") + "}"
}

func diceTypeLabel(diceType state.DiceType) string {
	if diceType == "" {
		return string(state.DiceNone)
	}
	return string(diceType)
}

func nextActionLabel(nextAction state.NextAction) string {
	if nextAction == "" {
		return string(state.NextActionNone)
	}
	return string(nextAction)
}

func joinInts(numbers []int) string {
	parts := make([]string, len(numbers))
	for i, number := range numbers {
		parts[i] = strconv.Itoa(number)
	}
	return strings.Join(parts, ", ")
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ", ") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func splitInts(value string) ([]int, error) {
	var numbers []int
	for _, item := range splitList(value) {
		number, err := strconv.Atoi(item)
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, number)
	}
	return numbers, nil
}

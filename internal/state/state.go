// Package state defines the gamebook GameState and its fan-in merge
// semantics.
//
// A GameState is the single unit of flow between workflow nodes. It is
// immutable after construction: every transition produces a new value
// through the Manager helpers or the Merge reducer, and sub-models carry
// a node-origin tag that the merge inspects before applying an update.
package state

import "time"

// Node identifies the workflow node a state update originated from.
type Node string

const (
	// NodeStart tags updates from workflow initialization.
	NodeStart Node = "start"
	// NodeNarrator tags narrative updates.
	NodeNarrator Node = "narrator"
	// NodeRules tags rules updates.
	NodeRules Node = "rules"
	// NodeDecision tags decision updates.
	NodeDecision Node = "decision"
	// NodeTrace tags trace updates.
	NodeTrace Node = "trace"
	// NodeEnd tags workflow finalization.
	NodeEnd Node = "end"
)

// SourceType records how a sub-model's content was produced.
type SourceType string

const (
	// SourceRaw marks content loaded directly from disk.
	SourceRaw SourceType = "raw"
	// SourceProcessed marks content formatted or extracted this turn.
	SourceProcessed SourceType = "processed"
	// SourceCached marks content re-derived from the cache.
	SourceCached SourceType = "cached"
	// SourceError marks a failed production attempt.
	SourceError SourceType = "error"
)

// DiceType classifies the dice roll a section calls for.
type DiceType string

const (
	// DiceNone means no roll is needed.
	DiceNone DiceType = "none"
	// DiceChance is a luck roll.
	DiceChance DiceType = "chance"
	// DiceCombat is a combat roll.
	DiceCombat DiceType = "combat"
)

// NextAction orders the inputs a section requires before resolution.
type NextAction string

const (
	// NextActionNone leaves input ordering unspecified.
	NextActionNone NextAction = "none"
	// NextActionUserFirst requires player input before any roll.
	NextActionUserFirst NextAction = "user_first"
	// NextActionDiceFirst requires a roll before player input matters.
	NextActionDiceFirst NextAction = "dice_first"
)

// ChoiceType classifies how a choice routes to its target section.
type ChoiceType string

const (
	// ChoiceDirect routes straight to a target section.
	ChoiceDirect ChoiceType = "direct"
	// ChoiceConditional routes subject to conditions.
	ChoiceConditional ChoiceType = "conditional"
	// ChoiceDice routes through a dice outcome mapping.
	ChoiceDice ChoiceType = "dice"
	// ChoiceMixed combines conditions with a dice outcome mapping.
	ChoiceMixed ChoiceType = "mixed"
)

// AwaitingAction marks the external input a turn terminated waiting for.
type AwaitingAction string

const (
	// AwaitNone means the decision resolved without further input.
	AwaitNone AwaitingAction = "none"
	// AwaitUserInput means the turn needs player input.
	AwaitUserInput AwaitingAction = "user_input"
	// AwaitDiceRoll means the turn needs a dice result.
	AwaitDiceRoll AwaitingAction = "dice_roll"
)

// ActionType classifies trace history entries.
type ActionType string

const (
	// ActionUserInput records player input consumed by a turn.
	ActionUserInput ActionType = "user_input"
	// ActionDiceRoll records a dice result consumed by a turn.
	ActionDiceRoll ActionType = "dice_roll"
	// ActionSectionChange records a section transition.
	ActionSectionChange ActionType = "section_change"
	// ActionCharacterUpdate records a character sheet change.
	ActionCharacterUpdate ActionType = "character_update"
	// ActionError records a terminal error.
	ActionError ActionType = "error"
)

// Narrative is the formatted section text produced by the narrator node.
type Narrative struct {
	SectionNumber int        `json:"section_number"`
	Content       string     `json:"content"`
	SourceType    SourceType `json:"source_type"`
	Error         string     `json:"error,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`

	origin Node
}

// Choice is one branch offered by a section.
type Choice struct {
	Text          string         `json:"text"`
	Type          ChoiceType     `json:"type"`
	TargetSection int            `json:"target_section,omitempty"`
	Conditions    []string       `json:"conditions,omitempty"`
	DiceType      DiceType       `json:"dice_type,omitempty"`
	DiceResults   map[string]int `json:"dice_results,omitempty"`
}

// Rules is the structured record the rules node derives for a section.
type Rules struct {
	SectionNumber     int        `json:"section_number"`
	DiceType          DiceType   `json:"dice_type"`
	NeedsDice         bool       `json:"needs_dice"`
	NeedsUserResponse bool       `json:"needs_user_response"`
	NextAction        NextAction `json:"next_action"`
	Conditions        []string   `json:"conditions,omitempty"`
	NextSections      []int      `json:"next_sections,omitempty"`
	Choices           []Choice   `json:"choices,omitempty"`
	RulesSummary      string     `json:"rules_summary,omitempty"`
	Error             string     `json:"error,omitempty"`
	Source            string     `json:"source,omitempty"`
	SourceType        SourceType `json:"source_type"`
	LastUpdate        time.Time  `json:"last_update"`

	origin Node
}

// Decision is the routing outcome produced by the decision node.
type Decision struct {
	SectionNumber  int            `json:"section_number"`
	NextSection    int            `json:"next_section,omitempty"`
	AwaitingAction AwaitingAction `json:"awaiting_action"`
	Conditions     []string       `json:"conditions,omitempty"`
	Error          string         `json:"error,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`

	origin Node
}

// Action is a single typed entry in the session history.
type Action struct {
	Timestamp  time.Time      `json:"timestamp"`
	Section    int            `json:"section"`
	ActionType ActionType     `json:"action_type"`
	Details    map[string]any `json:"details,omitempty"`
}

// Trace is the session history aggregate maintained by the trace node.
type Trace struct {
	GameID           string     `json:"game_id"`
	SessionID        string     `json:"session_id"`
	SectionNumber    int        `json:"section_number"`
	StartTime        time.Time  `json:"start_time"`
	History          []Action   `json:"history"`
	CurrentNarrative *Narrative `json:"current_narrative,omitempty"`
	CurrentRules     *Rules     `json:"current_rules,omitempty"`
	Character        *Character `json:"character,omitempty"`
	Error            string     `json:"error,omitempty"`

	origin Node
}

// CharacterStats holds the numeric character sheet.
type CharacterStats struct {
	Health       int `json:"health"`
	MaxHealth    int `json:"max_health"`
	Strength     int `json:"strength"`
	Dexterity    int `json:"dexterity"`
	Intelligence int `json:"intelligence"`
	Level        int `json:"level"`
	Experience   int `json:"experience"`
}

// Item is an inventory entry.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
}

// Inventory holds a character's items and gold.
type Inventory struct {
	Items    map[string]Item `json:"items,omitempty"`
	Capacity int             `json:"capacity"`
	Gold     int             `json:"gold"`
}

// Character combines stats and inventory.
type Character struct {
	Stats     CharacterStats `json:"stats"`
	Inventory Inventory      `json:"inventory"`
}

// DiceResult carries a dice outcome supplied by the caller between turns.
type DiceResult struct {
	Value int      `json:"value"`
	Type  DiceType `json:"type"`
}

// GameState is the single unit of flow between workflow nodes.
//
// Treat values as immutable: transitions go through Manager.WithUpdates
// or Merge, which copy before writing. Trace.History in particular is
// append-only; a new Trace copies the prior history slice.
type GameState struct {
	SessionID      string         `json:"session_id"`
	GameID         string         `json:"game_id"`
	SectionNumber  int            `json:"section_number"`
	PlayerInput    string         `json:"player_input,omitempty"`
	DiceResult     *DiceResult    `json:"dice_result,omitempty"`
	Narrative      *Narrative     `json:"narrative,omitempty"`
	Rules          *Rules         `json:"rules,omitempty"`
	Decision       *Decision      `json:"decision,omitempty"`
	Trace          *Trace         `json:"trace,omitempty"`
	Character      *Character     `json:"character,omitempty"`
	Error          string         `json:"error,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	ShouldContinue bool           `json:"should_continue"`
}

// Origin reports which node emitted this narrative, or empty when untagged.
func (n *Narrative) Origin() Node {
	if n == nil {
		return ""
	}
	return n.origin
}

// Tagged returns a copy of the narrative tagged with the emitting node.
func (n Narrative) Tagged(node Node) *Narrative {
	n.origin = node
	return &n
}

// Origin reports which node emitted these rules, or empty when untagged.
func (r *Rules) Origin() Node {
	if r == nil {
		return ""
	}
	return r.origin
}

// Tagged returns a copy of the rules tagged with the emitting node.
func (r Rules) Tagged(node Node) *Rules {
	r.origin = node
	return &r
}

// Origin reports which node emitted this decision, or empty when untagged.
func (d *Decision) Origin() Node {
	if d == nil {
		return ""
	}
	return d.origin
}

// Tagged returns a copy of the decision tagged with the emitting node.
func (d Decision) Tagged(node Node) *Decision {
	d.origin = node
	return &d
}

// Origin reports which node emitted this trace, or empty when untagged.
func (t *Trace) Origin() Node {
	if t == nil {
		return ""
	}
	return t.origin
}

// Tagged returns a copy of the trace tagged with the emitting node.
// The history slice is copied so appends never alias prior turns.
func (t Trace) Tagged(node Node) *Trace {
	t.origin = node
	t.History = append([]Action(nil), t.History...)
	return &t
}

// Clone returns a deep-enough copy for transition purposes: sub-model
// pointers are re-pointed at copies so the original is never written to.
func (s GameState) Clone() GameState {
	if s.Narrative != nil {
		narrative := *s.Narrative
		s.Narrative = &narrative
	}
	if s.Rules != nil {
		rules := *s.Rules
		rules.Conditions = append([]string(nil), rules.Conditions...)
		rules.NextSections = append([]int(nil), rules.NextSections...)
		rules.Choices = append([]Choice(nil), rules.Choices...)
		s.Rules = &rules
	}
	if s.Decision != nil {
		decision := *s.Decision
		decision.Conditions = append([]string(nil), decision.Conditions...)
		s.Decision = &decision
	}
	if s.Trace != nil {
		trace := *s.Trace
		trace.History = append([]Action(nil), trace.History...)
		s.Trace = &trace
	}
	if s.Character != nil {
		character := *s.Character
		if character.Inventory.Items != nil {
			items := make(map[string]Item, len(character.Inventory.Items))
			for name, item := range character.Inventory.Items {
				items[name] = item
			}
			character.Inventory.Items = items
		}
		s.Character = &character
	}
	if s.DiceResult != nil {
		result := *s.DiceResult
		s.DiceResult = &result
	}
	if s.Metadata != nil {
		metadata := make(map[string]any, len(s.Metadata))
		for key, value := range s.Metadata {
			metadata[key] = value
		}
		s.Metadata = metadata
	}
	return s
}

package condition

import (
	"testing"

	"github.com/louisbranch/gamebook/internal/state"
)

func testCharacter() *state.Character {
	return &state.Character{
		Stats: state.CharacterStats{
			Health:       8,
			MaxHealth:    12,
			Strength:     14,
			Dexterity:    10,
			Intelligence: 9,
			Level:        3,
			Experience:   250,
		},
		Inventory: state.Inventory{
			Gold: 30,
			Items: map[string]state.Item{
				"silver key": {Name: "silver key", Quantity: 1},
				"torch":      {Name: "torch", Quantity: 0},
			},
		},
	}
}

func TestEvaluateNarrativeConditionIsSatisfied(t *testing.T) {
	e := New()
	if !e.Evaluate(nil, "you remember the ferryman's warning") {
		t.Fatal("narrative conditions are left to the player and must hold")
	}
}

func TestEvaluateLuaExpressions(t *testing.T) {
	e := New()
	character := testCharacter()

	cases := []struct {
		condition string
		want      bool
	}{
		{"lua: character.strength >= 12", true},
		{"lua: character.health > character.max_health", false},
		{"lua: character.gold >= 50", false},
		{"lua: has_item('silver key')", true},
		{"lua: has_item('torch')", false},
		{"lua: has_item('rope')", false},
		{"lua: character.level >= 2 and character.gold >= 10", true},
	}
	for _, tc := range cases {
		if got := e.Evaluate(character, tc.condition); got != tc.want {
			t.Errorf("Evaluate(%q) = %t, want %t", tc.condition, got, tc.want)
		}
	}
}

func TestEvaluateFailsClosed(t *testing.T) {
	e := New()
	character := testCharacter()

	for _, condition := range []string{
		"lua:",
		"lua: this is not lua",
		"lua: error('boom')",
		"lua: nonexistent_fn()",
	} {
		if e.Evaluate(character, condition) {
			t.Errorf("Evaluate(%q) should fail closed", condition)
		}
	}
}

func TestEvaluateLuaWithoutCharacter(t *testing.T) {
	e := New()
	if e.Evaluate(nil, "lua: character.health > 0") {
		t.Fatal("lua conditions without a character sheet must be unsatisfied")
	}
}

func TestSatisfiedRequiresAll(t *testing.T) {
	e := New()
	character := testCharacter()

	if !e.Satisfied(character, []string{"a steady hand", "lua: character.dexterity >= 10"}) {
		t.Fatal("expected all conditions to hold")
	}
	if e.Satisfied(character, []string{"lua: character.dexterity >= 10", "lua: character.gold >= 100"}) {
		t.Fatal("expected one failing condition to reject the set")
	}
	if !e.Satisfied(character, nil) {
		t.Fatal("an empty condition set always holds")
	}
}

// Package condition evaluates choice conditions against the character.
//
// Conditions prefixed with "lua:" are Lua expressions run in a fresh
// interpreter exposing the character sheet; any other condition is
// narrative text left to the player's judgment and treated as
// satisfied. Script errors fail closed.
package condition

import (
	"log"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/louisbranch/gamebook/internal/state"
)

const luaPrefix = "lua:"

// Evaluator runs condition expressions.
type Evaluator struct{}

// New creates an Evaluator.
func New() *Evaluator {
	return &Evaluator{}
}

// Satisfied reports whether every condition holds for the character.
func (e *Evaluator) Satisfied(character *state.Character, conditions []string) bool {
	for _, condition := range conditions {
		if !e.Evaluate(character, condition) {
			return false
		}
	}
	return true
}

// Evaluate reports whether a single condition holds. A "lua:" condition
// without a character sheet to test against is unsatisfied.
func (e *Evaluator) Evaluate(character *state.Character, condition string) bool {
	expr, ok := strings.CutPrefix(strings.TrimSpace(condition), luaPrefix)
	if !ok {
		return true
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return false
	}
	if character == nil {
		return false
	}

	l := lua.NewState()
	lua.OpenLibraries(l)
	bindCharacter(l, *character)

	if err := lua.LoadString(l, "return "+expr); err != nil {
		log.Printf("condition: load %q: %v", expr, err)
		return false
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		log.Printf("condition: run %q: %v", expr, err)
		return false
	}

	result := l.ToBoolean(-1)
	l.Pop(1)
	return result
}

// bindCharacter exposes the sheet as a "character" table plus a global
// has_item helper.
func bindCharacter(l *lua.State, character state.Character) {
	l.NewTable()
	setInt := func(name string, value int) {
		l.PushInteger(value)
		l.SetField(-2, name)
	}
	setInt("health", character.Stats.Health)
	setInt("max_health", character.Stats.MaxHealth)
	setInt("strength", character.Stats.Strength)
	setInt("dexterity", character.Stats.Dexterity)
	setInt("intelligence", character.Stats.Intelligence)
	setInt("level", character.Stats.Level)
	setInt("experience", character.Stats.Experience)
	setInt("gold", character.Inventory.Gold)
	l.SetGlobal("character")

	items := character.Inventory.Items
	l.Register("has_item", func(l *lua.State) int {
		name := lua.CheckString(l, 1)
		item, ok := items[name]
		l.PushBoolean(ok && item.Quantity > 0)
		return 1
	})
}

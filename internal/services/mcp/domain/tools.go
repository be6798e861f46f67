// Package domain defines the MCP tool surface of the gamebook engine.
package domain

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/gamebook/internal/core/dice"
	"github.com/louisbranch/gamebook/internal/engine"
	"github.com/louisbranch/gamebook/internal/random"
	"github.com/louisbranch/gamebook/internal/state"
)

// TurnRunner runs one workflow turn.
type TurnRunner interface {
	RunTurn(ctx context.Context, input state.GameState) (state.GameState, error)
}

// TurnRecorder journals finished turns.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, turnState state.GameState) error
}

// SectionLoader loads formatted section content.
type SectionLoader interface {
	Section(ctx context.Context, section int) (string, error)
}

// RunTurnInput is the MCP tool input for advancing the story.
type RunTurnInput struct {
	SessionID   string `json:"session_id,omitempty" jsonschema:"session identifier, generated when empty"`
	GameID      string `json:"game_id,omitempty" jsonschema:"game identifier, generated when empty"`
	NextSection int    `json:"next_section,omitempty" jsonschema:"section to play, defaults to 1"`
	PlayerInput string `json:"player_input,omitempty" jsonschema:"choice text or 1-based choice index"`
	DiceValue   int    `json:"dice_value,omitempty" jsonschema:"dice total supplied for a pending roll"`
	DiceType    string `json:"dice_type,omitempty" jsonschema:"dice flavor, chance or combat"`
}

// RunTurnChoice is one choice offered to the player.
type RunTurnChoice struct {
	Text string `json:"text" jsonschema:"choice text"`
	Type string `json:"type" jsonschema:"choice routing type"`
}

// RunTurnResult is the MCP tool output for a finished turn.
type RunTurnResult struct {
	SessionID      string          `json:"session_id" jsonschema:"session identifier"`
	GameID         string          `json:"game_id" jsonschema:"game identifier"`
	SectionNumber  int             `json:"section_number" jsonschema:"section the turn played"`
	NextSection    int             `json:"next_section,omitempty" jsonschema:"section the story routes to"`
	AwaitingAction string          `json:"awaiting_action" jsonschema:"pending input, none when resolved"`
	Narrative      string          `json:"narrative,omitempty" jsonschema:"formatted section text"`
	Choices        []RunTurnChoice `json:"choices,omitempty" jsonschema:"choices offered by the section"`
	ShouldContinue bool            `json:"should_continue" jsonschema:"whether the next turn can run without more input"`
	Error          string          `json:"error,omitempty" jsonschema:"turn error, empty on success"`
}

// RollDiceInput is the MCP tool input for the 2d6 gamebook check.
type RollDiceInput struct {
	Type string `json:"type" jsonschema:"roll flavor, chance or combat"`
	Seed *int64 `json:"seed,omitempty" jsonschema:"optional seed for a replayable roll"`
}

// RollDiceResult is the MCP tool output for a roll.
type RollDiceResult struct {
	Results []int  `json:"results" jsonschema:"individual die values"`
	Total   int    `json:"total" jsonschema:"sum of the dice"`
	Bucket  string `json:"bucket" jsonschema:"outcome label, success or failure"`
}

// GetSectionInput is the MCP tool input for reading a section.
type GetSectionInput struct {
	Section int `json:"section" jsonschema:"positive section number"`
}

// GetSectionResult is the MCP tool output for reading a section.
type GetSectionResult struct {
	Section int    `json:"section" jsonschema:"section number"`
	Content string `json:"content" jsonschema:"formatted section text"`
}

// RunTurnTool defines the MCP tool schema for advancing the story.
func RunTurnTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "run_turn",
		Description: "Advances the gamebook by one section",
	}
}

// RollDiceTool defines the MCP tool schema for the gamebook check.
func RollDiceTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "roll_dice",
		Description: "Rolls the 2d6 gamebook check",
	}
}

// GetSectionTool defines the MCP tool schema for reading a section.
func GetSectionTool() *mcp.Tool {
	return &mcp.Tool{
		Name:        "get_section",
		Description: "Reads the formatted text of a section",
	}
}

// RunTurnHandler executes one workflow turn and journals it.
func RunTurnHandler(runner TurnRunner, recorder TurnRecorder) mcp.ToolHandlerFor[RunTurnInput, RunTurnResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RunTurnInput) (*mcp.CallToolResult, RunTurnResult, error) {
		turnInput := state.GameState{
			SessionID:     input.SessionID,
			GameID:        input.GameID,
			SectionNumber: input.NextSection,
			PlayerInput:   input.PlayerInput,
		}
		if input.DiceValue > 0 {
			diceType := state.DiceChance
			if input.DiceType == string(state.DiceCombat) {
				diceType = state.DiceCombat
			}
			turnInput.DiceResult = &state.DiceResult{Value: input.DiceValue, Type: diceType}
		}

		out, err := runner.RunTurn(ctx, turnInput)
		if err != nil {
			return nil, RunTurnResult{}, fmt.Errorf("run turn: %w", err)
		}
		if recorder != nil {
			if err := recorder.RecordTurn(ctx, out); err != nil {
				return nil, RunTurnResult{}, fmt.Errorf("record turn: %w", err)
			}
		}

		return nil, turnResult(out), nil
	}
}

// RollDiceHandler executes a seeded gamebook check.
func RollDiceHandler() mcp.ToolHandlerFor[RollDiceInput, RollDiceResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input RollDiceInput) (*mcp.CallToolResult, RollDiceResult, error) {
		kind := dice.KindChance
		if input.Type == string(dice.KindCombat) {
			kind = dice.KindCombat
		}
		var seed int64
		if input.Seed != nil {
			seed = *input.Seed
		} else {
			generated, err := random.NewSeed()
			if err != nil {
				return nil, RollDiceResult{}, fmt.Errorf("seed roll: %w", err)
			}
			seed = generated
		}

		result, bucket, err := dice.RollGamebook(kind, seed)
		if err != nil {
			return nil, RollDiceResult{}, fmt.Errorf("roll dice: %w", err)
		}
		return nil, RollDiceResult{
			Results: result.Rolls[0].Results,
			Total:   result.Total,
			Bucket:  bucket,
		}, nil
	}
}

// GetSectionHandler reads one formatted section.
func GetSectionHandler(loader SectionLoader) mcp.ToolHandlerFor[GetSectionInput, GetSectionResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetSectionInput) (*mcp.CallToolResult, GetSectionResult, error) {
		if input.Section <= 0 {
			return nil, GetSectionResult{}, fmt.Errorf("section must be positive, got %d", input.Section)
		}
		content, err := loader.Section(ctx, input.Section)
		if err != nil {
			return nil, GetSectionResult{}, fmt.Errorf("load section %d: %w", input.Section, err)
		}
		return nil, GetSectionResult{Section: input.Section, Content: content}, nil
	}
}

func turnResult(out state.GameState) RunTurnResult {
	result := RunTurnResult{
		SessionID:      out.SessionID,
		GameID:         out.GameID,
		SectionNumber:  out.SectionNumber,
		AwaitingAction: string(state.AwaitNone),
		ShouldContinue: out.ShouldContinue,
		Error:          out.Error,
	}
	if out.Narrative != nil {
		result.Narrative = out.Narrative.Content
	}
	if out.Rules != nil {
		for _, choice := range out.Rules.Choices {
			result.Choices = append(result.Choices, RunTurnChoice{
				Text: choice.Text,
				Type: string(choice.Type),
			})
		}
	}
	if out.Decision != nil {
		result.NextSection = out.Decision.NextSection
		if out.Decision.AwaitingAction != "" {
			result.AwaitingAction = string(out.Decision.AwaitingAction)
		}
	}
	return result
}

var _ TurnRunner = (*engine.Engine)(nil)

// Package engine parses engine command flags and runs one turn from the
// command line, printing the resulting state summary as JSON.
package engine

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/louisbranch/gamebook/internal/cmd/runtime"
	workflow "github.com/louisbranch/gamebook/internal/engine"
	"github.com/louisbranch/gamebook/internal/platform/config"
	"github.com/louisbranch/gamebook/internal/platform/telemetry"
	"github.com/louisbranch/gamebook/internal/platform/timeouts"
	"github.com/louisbranch/gamebook/internal/state"
)

// Config holds engine command configuration.
type Config struct {
	ContentDir string `env:"GAMEBOOK_CONTENT_DIR" envDefault:"./content"`
	CacheDir   string `env:"GAMEBOOK_CACHE_DIR"   envDefault:"./cache"`
	DBPath     string `env:"GAMEBOOK_DB_PATH"`

	SessionID   string
	GameID      string
	Section     int
	PlayerInput string
	DiceValue   int
	DiceType    string
	TurnFile    string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.ContentDir, "content-dir", cfg.ContentDir, "directory with raw sections and rules")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "directory for cached content and game state")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite registry path (optional)")
	fs.StringVar(&cfg.SessionID, "session", "", "session id, generated when empty")
	fs.StringVar(&cfg.GameID, "game", "", "game id, generated when empty")
	fs.IntVar(&cfg.Section, "section", 1, "section to play")
	fs.StringVar(&cfg.PlayerInput, "input", "", "choice text or 1-based choice index")
	fs.IntVar(&cfg.DiceValue, "dice", 0, "dice total supplied for a pending roll")
	fs.StringVar(&cfg.DiceType, "dice-type", "", "dice flavor: chance or combat")
	fs.StringVar(&cfg.TurnFile, "turn", "", "JSON file with a previous turn's output to continue from")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes one turn and writes the resulting state to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	shutdown, err := telemetry.Setup(ctx, "gamebook-engine")
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	rt, err := runtime.Build(cfg.ContentDir, cfg.CacheDir, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			log.Printf("close runtime: %v", err)
		}
	}()

	turnInput, err := buildTurnInput(cfg)
	if err != nil {
		return err
	}

	result, err := rt.Engine.RunTurn(ctx, turnInput)
	if err != nil {
		return fmt.Errorf("run turn: %w", err)
	}
	if rt.Registry != nil {
		if err := rt.Registry.RecordTurn(ctx, result); err != nil {
			log.Printf("record turn: %v", err)
		}
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// buildTurnInput assembles the turn's starting state. With -turn the
// previous turn's JSON output is the base and the flags overlay the
// missing input or roll; without it the flags describe a fresh turn.
func buildTurnInput(cfg Config) (state.GameState, error) {
	var turnInput state.GameState

	if cfg.TurnFile != "" {
		payload, err := os.ReadFile(cfg.TurnFile)
		if err != nil {
			return state.GameState{}, fmt.Errorf("read turn file: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(payload, &raw); err != nil {
			return state.GameState{}, fmt.Errorf("decode turn file: %w", err)
		}
		turnInput, err = workflow.FromMap(raw)
		if err != nil {
			return state.GameState{}, fmt.Errorf("load turn file: %w", err)
		}
	} else {
		turnInput = state.GameState{
			SessionID:     cfg.SessionID,
			GameID:        cfg.GameID,
			SectionNumber: cfg.Section,
		}
	}

	if cfg.PlayerInput != "" {
		turnInput.PlayerInput = cfg.PlayerInput
	}
	if cfg.DiceValue > 0 {
		diceType := state.DiceChance
		if cfg.DiceType == string(state.DiceCombat) {
			diceType = state.DiceCombat
		}
		turnInput.DiceResult = &state.DiceResult{Value: cfg.DiceValue, Type: diceType}
	}
	return turnInput, nil
}

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/louisbranch/gamebook/internal/state"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ContentDir != "./content" {
		t.Fatalf("expected default content dir, got %q", cfg.ContentDir)
	}
	if cfg.CacheDir != "./cache" {
		t.Fatalf("expected default cache dir, got %q", cfg.CacheDir)
	}
	if cfg.Section != 1 {
		t.Fatalf("expected default section 1, got %d", cfg.Section)
	}
}

func TestParseConfigOverrides(t *testing.T) {
	t.Setenv("GAMEBOOK_CONTENT_DIR", "/env/content")
	t.Setenv("GAMEBOOK_DB_PATH", "/env/registry.db")

	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	args := []string{"-cache-dir", "/flag/cache", "-section", "42", "-input", "1"}
	cfg, err := ParseConfig(fs, args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ContentDir != "/env/content" {
		t.Fatalf("expected env content dir, got %q", cfg.ContentDir)
	}
	if cfg.DBPath != "/env/registry.db" {
		t.Fatalf("expected env db path, got %q", cfg.DBPath)
	}
	if cfg.CacheDir != "/flag/cache" {
		t.Fatalf("expected flag cache dir, got %q", cfg.CacheDir)
	}
	if cfg.Section != 42 || cfg.PlayerInput != "1" {
		t.Fatalf("unexpected turn flags %+v", cfg)
	}
}

func TestRunPlaysOneTurn(t *testing.T) {
	contentDir := t.TempDir()
	sections := filepath.Join(contentDir, "sections")
	if err := os.MkdirAll(sections, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	text := "You stand at a fork. Go to [[2]] or go to [[3]]."
	if err := os.WriteFile(filepath.Join(sections, "1.md"), []byte(text), 0o644); err != nil {
		t.Fatalf("write section: %v", err)
	}

	cfg := Config{
		ContentDir: contentDir,
		CacheDir:   t.TempDir(),
		SessionID:  "S",
		GameID:     "G",
		Section:    1,
	}

	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	var result state.GameState
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if result.SessionID != "S" || result.SectionNumber != 1 {
		t.Fatalf("unexpected state %+v", result)
	}
	if result.Decision == nil || result.Decision.AwaitingAction != state.AwaitUserInput {
		t.Fatalf("expected turn awaiting user input, got %+v", result.Decision)
	}
	if result.ShouldContinue {
		t.Fatal("expected should_continue false while awaiting input")
	}
}

func TestBuildTurnInputFromTurnFile(t *testing.T) {
	// A previous turn's output carries next_section; loading it migrates
	// that into the section pointer and the flags overlay the roll.
	previous := map[string]any{
		"session_id":   "S",
		"game_id":      "G",
		"next_section": 5,
	}
	payload, err := json.Marshal(previous)
	if err != nil {
		t.Fatalf("marshal turn: %v", err)
	}
	turnFile := filepath.Join(t.TempDir(), "turn.json")
	if err := os.WriteFile(turnFile, payload, 0o644); err != nil {
		t.Fatalf("write turn file: %v", err)
	}

	turnInput, err := buildTurnInput(Config{
		TurnFile:  turnFile,
		DiceValue: 9,
		DiceType:  "combat",
	})
	if err != nil {
		t.Fatalf("build turn input: %v", err)
	}
	if turnInput.SessionID != "S" || turnInput.GameID != "G" {
		t.Fatalf("identifiers lost: %q/%q", turnInput.SessionID, turnInput.GameID)
	}
	if turnInput.SectionNumber != 5 {
		t.Fatalf("expected migrated section 5, got %d", turnInput.SectionNumber)
	}
	if turnInput.DiceResult == nil || turnInput.DiceResult.Value != 9 || turnInput.DiceResult.Type != state.DiceCombat {
		t.Fatalf("expected overlaid combat roll, got %+v", turnInput.DiceResult)
	}
}

func TestBuildTurnInputRejectsBadTurnFile(t *testing.T) {
	turnFile := filepath.Join(t.TempDir(), "turn.json")
	if err := os.WriteFile(turnFile, []byte("not json"), 0o644); err != nil {
		t.Fatalf("write turn file: %v", err)
	}
	if _, err := buildTurnInput(Config{TurnFile: turnFile}); err == nil {
		t.Fatal("expected error for malformed turn file")
	}
}

func TestRunContinuesFromTurnFile(t *testing.T) {
	contentDir := t.TempDir()
	cacheDir := t.TempDir()
	sections := filepath.Join(contentDir, "sections")
	if err := os.MkdirAll(sections, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sections, "1.md"), []byte("Go to [[2]] or go to [[3]]."), 0o644); err != nil {
		t.Fatalf("write section: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sections, "2.md"), []byte("The road continues."), 0o644); err != nil {
		t.Fatalf("write section: %v", err)
	}

	cfg := Config{
		ContentDir:  contentDir,
		CacheDir:    cacheDir,
		SessionID:   "S",
		GameID:      "G",
		Section:     1,
		PlayerInput: "1",
	}
	var first bytes.Buffer
	if err := Run(context.Background(), cfg, &first); err != nil {
		t.Fatalf("first run: %v", err)
	}
	turnFile := filepath.Join(t.TempDir(), "turn.json")
	if err := os.WriteFile(turnFile, first.Bytes(), 0o644); err != nil {
		t.Fatalf("write turn file: %v", err)
	}

	var second bytes.Buffer
	continued := Config{ContentDir: contentDir, CacheDir: cacheDir, TurnFile: turnFile}
	if err := Run(context.Background(), continued, &second); err != nil {
		t.Fatalf("second run: %v", err)
	}

	var result state.GameState
	if err := json.Unmarshal(second.Bytes(), &result); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if result.SectionNumber != 2 {
		t.Fatalf("expected continued turn at section 2, got %d", result.SectionNumber)
	}
	if result.SessionID != "S" {
		t.Fatalf("expected session carried over, got %q", result.SessionID)
	}
}

func TestRunRecordsToRegistry(t *testing.T) {
	contentDir := t.TempDir()
	sections := filepath.Join(contentDir, "sections")
	if err := os.MkdirAll(sections, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(sections, "1.md"), []byte("Go to [[2]]."), 0o644); err != nil {
		t.Fatalf("write section: %v", err)
	}

	dbPath := filepath.Join(t.TempDir(), "registry.db")
	cfg := Config{
		ContentDir:  contentDir,
		CacheDir:    t.TempDir(),
		DBPath:      dbPath,
		SessionID:   "S",
		GameID:      "G",
		Section:     1,
		PlayerInput: "1",
	}

	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected registry database: %v", err)
	}
}

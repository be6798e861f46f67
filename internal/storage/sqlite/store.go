// Package sqlite provides the SQLite-backed game registry and turn
// journal. The registry records which games and sessions exist and how
// far each has advanced; the per-section state snapshots stay in the
// filesystem cache.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/gamebook/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/gamebook/internal/state"
	"github.com/louisbranch/gamebook/internal/storage"
	"github.com/louisbranch/gamebook/internal/storage/sqlite/migrations"
)

// Game is one registry row.
type Game struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session is one session row with its progress counters.
type Session struct {
	ID             string
	GameID         string
	StartedAt      time.Time
	LastTurnAt     time.Time
	CurrentSection int
	TurnCount      int
}

// Turn is one journal row derived from a finished turn's state. Seq is
// the per-session turn number, dense from 1 with no gaps.
type Turn struct {
	ID             int64
	Seq            int
	SessionID      string
	GameID         string
	Section        int
	NextSection    int
	AwaitingAction state.AwaitingAction
	Error          string
	CreatedAt      time.Time
}

// Store persists the registry in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the registry database and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordTurn journals a finished turn and upserts the game and session
// rows it belongs to. The turn's decision, when present, supplies the
// next section and pending action.
func (s *Store) RecordTurn(ctx context.Context, turnState state.GameState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if turnState.GameID == "" || turnState.SessionID == "" {
		return fmt.Errorf("game id and session id are required")
	}

	now := toMillis(s.now())
	nextSection := 0
	awaiting := state.AwaitNone
	if turnState.Decision != nil {
		nextSection = turnState.Decision.NextSection
		if turnState.Decision.AwaitingAction != "" {
			awaiting = turnState.Decision.AwaitingAction
		}
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin record turn: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO games (id, title, created_at, updated_at)
		 VALUES (?, '', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		turnState.GameID, now, now,
	); err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (id, game_id, started_at, last_turn_at, current_section, turn_count)
		 VALUES (?, ?, ?, ?, ?, 1)
		 ON CONFLICT(id) DO UPDATE SET
		   last_turn_at = excluded.last_turn_at,
		   current_section = excluded.current_section,
		   turn_count = sessions.turn_count + 1`,
		turnState.SessionID, turnState.GameID, now, now, turnState.SectionNumber,
	); err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	// The seq assignment shares the transaction with the insert, so two
	// concurrent turns for the same session cannot claim the same number
	// and the sequence stays dense.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, game_id, seq, section, next_section, awaiting_action, error, created_at)
		 VALUES (?, ?,
		   (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?),
		   ?, ?, ?, ?, ?)`,
		turnState.SessionID, turnState.GameID, turnState.SessionID, turnState.SectionNumber,
		nextSection, string(awaiting), turnState.Error, now,
	); err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record turn: %w", err)
	}
	return nil
}

// SetGameTitle names a game in the registry.
func (s *Store) SetGameTitle(ctx context.Context, gameID, title string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	gameID = strings.TrimSpace(gameID)
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}

	now := toMillis(s.now())
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE games SET title = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(title), now, gameID,
	)
	if err != nil {
		return fmt.Errorf("set game title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set game title: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetGame returns one game by id.
func (s *Store) GetGame(ctx context.Context, gameID string) (Game, error) {
	if err := ctx.Err(); err != nil {
		return Game{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Game{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM games WHERE id = ?`,
		gameID,
	)

	var game Game
	var createdAt, updatedAt int64
	if err := row.Scan(&game.ID, &game.Title, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Game{}, storage.ErrNotFound
		}
		return Game{}, fmt.Errorf("get game: %w", err)
	}
	game.CreatedAt = fromMillis(createdAt)
	game.UpdatedAt = fromMillis(updatedAt)
	return game, nil
}

// GetSession returns one session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return Session{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, game_id, started_at, last_turn_at, current_section, turn_count
		   FROM sessions WHERE id = ?`,
		sessionID,
	)

	var session Session
	var startedAt, lastTurnAt int64
	if err := row.Scan(
		&session.ID, &session.GameID, &startedAt, &lastTurnAt,
		&session.CurrentSection, &session.TurnCount,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, storage.ErrNotFound
		}
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	session.StartedAt = fromMillis(startedAt)
	session.LastTurnAt = fromMillis(lastTurnAt)
	return session, nil
}

// ListTurns returns a session's journal in turn order.
func (s *Store) ListTurns(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, seq, session_id, game_id, section, next_section, awaiting_action, error, created_at
		   FROM turns
		  WHERE session_id = ?
		  ORDER BY seq ASC
		  LIMIT ?`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var turn Turn
		var awaiting string
		var createdAt int64
		if err := rows.Scan(
			&turn.ID, &turn.Seq, &turn.SessionID, &turn.GameID, &turn.Section,
			&turn.NextSection, &awaiting, &turn.Error, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("list turns: %w", err)
		}
		turn.AwaitingAction = state.AwaitingAction(awaiting)
		turn.CreatedAt = fromMillis(createdAt)
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	return turns, nil
}

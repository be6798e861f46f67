package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	gberrors "github.com/louisbranch/gamebook/internal/errors"
	"github.com/louisbranch/gamebook/internal/platform/id"
	"github.com/louisbranch/gamebook/internal/storage"
)

// Manager owns GameState construction and per-game persistence.
type Manager struct {
	cache storage.Cache
	now   func() time.Time
	newID func() (string, error)
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock overrides the manager clock, mainly for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides identifier generation, mainly for tests.
func WithIDGenerator(newID func() (string, error)) ManagerOption {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewManager creates a state manager backed by the given cache. The
// cache may be nil for purely in-memory use; Save and Load then fail.
func NewManager(cache storage.Cache, opts ...ManagerOption) *Manager {
	manager := &Manager{
		cache: cache,
		now:   time.Now,
		newID: id.NewID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager
}

// Now exposes the manager clock so nodes share a single time source.
func (m *Manager) Now() time.Time {
	return m.now().UTC()
}

// CreateInitialState builds a fresh GameState at section 1. Empty
// identifiers are generated; provided ones are preserved verbatim.
func (m *Manager) CreateInitialState(gameID, sessionID string) (GameState, error) {
	if gameID == "" {
		generated, err := m.newID()
		if err != nil {
			return GameState{}, fmt.Errorf("generate game id: %w", err)
		}
		gameID = generated
	}
	if sessionID == "" {
		generated, err := m.newID()
		if err != nil {
			return GameState{}, fmt.Errorf("generate session id: %w", err)
		}
		sessionID = generated
	}

	return GameState{
		SessionID:     sessionID,
		GameID:        gameID,
		SectionNumber: 1,
	}, nil
}

// CreateErrorState builds an error-bearing state. When a current state
// is provided its identifiers, section pointer and sub-models are
// preserved; otherwise the sub-models start empty.
func (m *Manager) CreateErrorState(message string, current *GameState) GameState {
	if current == nil {
		return GameState{
			SectionNumber:  1,
			Error:          message,
			ShouldContinue: false,
		}
	}

	errored := current.Clone()
	errored.Error = message
	errored.ShouldContinue = false
	return errored
}

// WithUpdates folds updates into a new state. Identifiers are always
// preserved from the previous state, and replaced sub-models inherit the
// origin tag of the instance they replace when the new one is untagged.
func (m *Manager) WithUpdates(current GameState, updates ...Update) (GameState, error) {
	for i := range updates {
		if updates[i].Narrative != nil && updates[i].Narrative.Origin() == "" && updates[i].Node == "" {
			updates[i].Narrative = updates[i].Narrative.Tagged(current.Narrative.Origin())
		}
		if updates[i].Rules != nil && updates[i].Rules.Origin() == "" && updates[i].Node == "" {
			updates[i].Rules = updates[i].Rules.Tagged(current.Rules.Origin())
		}
		if updates[i].Trace != nil && updates[i].Trace.Origin() == "" && updates[i].Node == "" {
			updates[i].Trace = updates[i].Trace.Tagged(current.Trace.Origin())
		}
	}

	merged, err := Merge(current, updates)
	if err != nil {
		return GameState{}, err
	}

	// Keep-if-not-empty: produced values never overwrite identifiers.
	merged.SessionID = current.SessionID
	merged.GameID = current.GameID
	return merged, nil
}

// StateKey returns the per-game cache key for a section snapshot.
func StateKey(gameID string, section int) string {
	return gameID + "/states/section_" + strconv.Itoa(section)
}

// TraceKey returns the per-game cache key for the current trace record.
func TraceKey(gameID, sessionID string) string {
	return gameID + "/traces/" + sessionID
}

// TraceHistoryKey returns the per-game cache key for the rolling history.
func TraceHistoryKey(gameID, sessionID string) string {
	return gameID + "/traces/history/" + sessionID
}

// CharacterKey returns the per-game cache key for the character sheet.
func CharacterKey(gameID, sessionID string) string {
	return gameID + "/characters/" + sessionID
}

// SaveState persists a state snapshot under the per-game namespace.
func (m *Manager) SaveState(ctx context.Context, s GameState) error {
	if m.cache == nil {
		return fmt.Errorf("state cache is not configured")
	}
	if s.GameID == "" {
		return ValidationError{Code: gberrors.CodeStateEmptyGameID, Message: "game id is required"}
	}
	if s.SectionNumber <= 0 {
		return ValidationError{Code: gberrors.CodeStateInvalidSection, Message: "section number must be positive"}
	}

	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	if err := m.cache.SaveCached(ctx, storage.NamespaceState, StateKey(s.GameID, s.SectionNumber), payload); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// LoadState re-derives a state snapshot from the cache.
func (m *Manager) LoadState(ctx context.Context, gameID string, section int) (GameState, error) {
	if m.cache == nil {
		return GameState{}, fmt.Errorf("state cache is not configured")
	}

	payload, err := m.cache.GetCached(ctx, storage.NamespaceState, StateKey(gameID, section))
	if err != nil {
		return GameState{}, err
	}

	var loaded GameState
	if err := json.Unmarshal(payload, &loaded); err != nil {
		return GameState{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return loaded, nil
}

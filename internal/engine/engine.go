// Package engine orchestrates a gamebook turn: start, the parallel
// narrator and rules subtasks, decision, trace, end.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	gberrors "github.com/louisbranch/gamebook/internal/errors"
	"github.com/louisbranch/gamebook/internal/platform/telemetry"
	"github.com/louisbranch/gamebook/internal/platform/timeouts"
	"github.com/louisbranch/gamebook/internal/state"
)

// Runner is a workflow node: it reads a state and emits a tagged update.
// Nodes never mutate the state they receive.
type Runner interface {
	Run(ctx context.Context, s state.GameState) state.Update
}

// Engine drives the turn workflow over a set of nodes.
//
// Turns are strictly serialized per session: the next turn for a session
// cannot start until the previous turn's final state is saved. Different
// sessions run independently.
type Engine struct {
	manager  *state.Manager
	narrator Runner
	rules    Runner
	decision Runner
	trace    Runner

	turnTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithTurnTimeout overrides the per-turn deadline.
func WithTurnTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.turnTimeout = d
		}
	}
}

// New wires the workflow engine. All four nodes and the manager are
// required.
func New(manager *state.Manager, narrator, rules, decision, trace Runner, opts ...Option) *Engine {
	engine := &Engine{
		manager:     manager,
		narrator:    narrator,
		rules:       rules,
		decision:    decision,
		trace:       trace,
		turnTimeout: timeouts.Turn,
		sessions:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	return engine
}

// RunTurn advances the story by one section.
//
// The input is either a fresh state or the previous turn's output fed
// back with the missing player input or dice result supplied. The
// returned state always carries a decision and a trace; callers gate the
// next turn on ShouldContinue.
func (e *Engine) RunTurn(ctx context.Context, input state.GameState) (state.GameState, error) {
	started, err := e.start(input)
	if err != nil {
		return e.manager.CreateErrorState(err.Error(), nil), nil
	}

	unlock := e.lockSession(started.SessionID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.turnTimeout)
	defer cancel()

	ctx, span := telemetry.StartSpan(ctx, "engine.turn")
	span.SetAttributes(
		attribute.String("session_id", started.SessionID),
		attribute.Int("section", started.SectionNumber),
	)
	defer span.End()

	final := e.runNodes(ctx, started)

	final.ShouldContinue = e.ShouldContinue(final)
	if err := e.manager.SaveState(ctx, final); err != nil {
		log.Printf("engine: save final state for session %s failed: %v", final.SessionID, err)
	}
	return final, nil
}

// runNodes executes the node graph on a started state. Node panics and
// turn cancellation degrade to an error state; the trace node still runs
// to record the failure.
func (e *Engine) runNodes(ctx context.Context, started state.GameState) (final state.GameState) {
	defer func() {
		if r := recover(); r != nil {
			errored := e.manager.CreateErrorState(fmt.Sprintf("turn panicked: %v", r), &started)
			final = e.recordFailure(errored)
		}
	}()

	merged, err := e.fanOut(ctx, started)
	if err != nil {
		errored := e.manager.CreateErrorState(err.Error(), &started)
		return e.recordFailure(errored)
	}

	afterDecision, inputConsumed, err := e.decide(ctx, merged)
	if err != nil {
		errored := e.manager.CreateErrorState(err.Error(), &merged)
		return e.recordFailure(errored)
	}

	final, err = e.record(ctx, afterDecision, inputConsumed)
	if err != nil {
		errored := e.manager.CreateErrorState(err.Error(), &afterDecision)
		return e.recordFailure(errored)
	}

	if err := state.Validate(final); err != nil {
		errored := e.manager.CreateErrorState(err.Error(), &final)
		return e.recordFailure(errored)
	}
	return final
}

// start normalizes the turn input: identifiers are generated when
// absent, and a prior decision's next_section becomes the new section
// pointer.
func (e *Engine) start(input state.GameState) (state.GameState, error) {
	s := input.Clone()

	if s.SessionID == "" || s.GameID == "" {
		initial, err := e.manager.CreateInitialState(s.GameID, s.SessionID)
		if err != nil {
			return state.GameState{}, fmt.Errorf("start workflow: %w", err)
		}
		s.SessionID = initial.SessionID
		s.GameID = initial.GameID
		if s.SectionNumber <= 0 {
			s.SectionNumber = initial.SectionNumber
		}
	}

	// A resolved prior decision carries the new section pointer; the
	// consumed inputs and the per-section models do not survive the
	// migration.
	if s.Decision != nil && s.Decision.NextSection > 0 && s.Decision.Error == "" {
		s.SectionNumber = s.Decision.NextSection
		s.Decision = nil
		s.Narrative = nil
		s.Rules = nil
		s.DiceResult = nil
		s.Error = ""
	}

	if s.SectionNumber <= 0 {
		return state.GameState{}, fmt.Errorf("start workflow: section number must be positive, got %d", s.SectionNumber)
	}

	if s.Metadata == nil {
		s.Metadata = make(map[string]any)
	}
	s.Metadata["node"] = string(state.NodeStart)
	s.ShouldContinue = false

	return s, nil
}

// fanOut runs narrator and rules concurrently on the same section and
// folds both updates into the state.
func (e *Engine) fanOut(ctx context.Context, s state.GameState) (state.GameState, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.fanout")
	defer span.End()

	if err := e.manager.SaveState(ctx, s); err != nil {
		log.Printf("engine: save start state for session %s failed: %v", s.SessionID, err)
	}

	var narratorUpdate, rulesUpdate state.Update
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		narratorUpdate = e.narrator.Run(groupCtx, s)
		return groupCtx.Err()
	})
	group.Go(func() error {
		rulesUpdate = e.rules.Run(groupCtx, s)
		return groupCtx.Err()
	})
	if err := group.Wait(); err != nil {
		return state.GameState{}, gberrors.Wrap(gberrors.CodeWorkflowTurnCancelled, fmt.Sprintf("turn cancelled: %v", err), err)
	}

	merged, err := e.manager.WithUpdates(s, narratorUpdate, rulesUpdate)
	if err != nil {
		return state.GameState{}, err
	}
	return merged, nil
}

// decide runs the decision node. The consumed-input marker is withheld
// from the merge so the trace node still sees the input it must record.
func (e *Engine) decide(ctx context.Context, merged state.GameState) (state.GameState, *string, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.decision")
	defer span.End()

	update := e.decision.Run(ctx, merged)
	inputConsumed := update.PlayerInput
	update.PlayerInput = nil

	afterDecision, err := e.manager.WithUpdates(merged, update)
	if err != nil {
		return state.GameState{}, nil, err
	}
	return afterDecision, inputConsumed, nil
}

// record runs the trace node and applies the deferred input clear.
func (e *Engine) record(ctx context.Context, s state.GameState, inputConsumed *string) (state.GameState, error) {
	ctx, span := telemetry.StartSpan(ctx, "engine.trace")
	defer span.End()

	update := e.trace.Run(ctx, s)
	update.PlayerInput = inputConsumed

	final, err := e.manager.WithUpdates(s, update)
	if err != nil {
		return state.GameState{}, err
	}
	return final, nil
}

// recordFailure gives the trace node a chance to record a terminal
// error before the state is returned.
func (e *Engine) recordFailure(errored state.GameState) state.GameState {
	if e.trace == nil {
		return errored
	}

	// The original turn context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.CacheOp)
	defer cancel()

	update := e.trace.Run(ctx, errored)
	final, err := e.manager.WithUpdates(errored, update)
	if err != nil {
		log.Printf("engine: recording failure trace: %v", err)
		return errored
	}
	final.ShouldContinue = false
	return final
}

// ShouldContinue is the single halting decision point. A turn continues
// only when no error is set, the game has not ended, the section pointer
// is valid, and the decision is not waiting on external input.
func (e *Engine) ShouldContinue(s state.GameState) bool {
	if s.Error != "" {
		return false
	}
	if end, ok := s.Metadata["end_game"].(bool); ok && end {
		return false
	}
	if s.SectionNumber <= 0 {
		return false
	}
	if s.Decision == nil {
		return false
	}
	if s.Decision.Error != "" {
		return false
	}
	if s.Decision.AwaitingAction == state.AwaitUserInput || s.Decision.AwaitingAction == state.AwaitDiceRoll {
		return false
	}
	return true
}

// FromMap builds a turn input from a loosely-typed mapping. A
// next_section key migrates to section_number before decoding.
func FromMap(input map[string]any) (state.GameState, error) {
	if input == nil {
		return state.GameState{}, gberrors.New(gberrors.CodeWorkflowMalformedInput, "workflow input is required")
	}

	normalized := make(map[string]any, len(input))
	for key, value := range input {
		normalized[key] = value
	}
	if next, ok := normalized["next_section"]; ok {
		normalized["section_number"] = next
		delete(normalized, "next_section")
	}

	payload, err := json.Marshal(normalized)
	if err != nil {
		return state.GameState{}, gberrors.Wrap(gberrors.CodeWorkflowMalformedInput, fmt.Sprintf("malformed workflow input: %v", err), err)
	}
	var s state.GameState
	if err := json.Unmarshal(payload, &s); err != nil {
		return state.GameState{}, gberrors.Wrap(gberrors.CodeWorkflowMalformedInput, fmt.Sprintf("malformed workflow input: %v", err), err)
	}
	return s, nil
}

// lockSession serializes turns per session.
func (e *Engine) lockSession(sessionID string) func() {
	e.mu.Lock()
	lock, ok := e.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		e.sessions[sessionID] = lock
	}
	e.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

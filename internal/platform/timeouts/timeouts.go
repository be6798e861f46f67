// Package timeouts defines shared timeout constants used across the engine.
// Centralizing these values prevents drift between components and makes the
// durations discoverable.
package timeouts

import "time"

// Turn caps the wall-clock time allowed for a single workflow turn,
// including the parallel narrator and rules subtasks.
const Turn = 30 * time.Second

// CacheOp caps a single cache read or write. A cache operation that
// exceeds this deadline fails without aborting the turn.
const CacheOp = 2 * time.Second

// Shutdown limits how long an entrypoint waits for in-flight turns
// during graceful shutdown.
const Shutdown = 5 * time.Second

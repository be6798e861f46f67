// Package random supplies entropy for dice seeding.
package random

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
)

// NewSeed draws a fresh int64 from the operating system's entropy
// source. Callers that need reproducible rolls pass their own seed
// instead.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return 0, fmt.Errorf("read seed entropy: %w", err)
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

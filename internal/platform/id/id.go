// Package id generates the session and game identifiers used across
// the engine. Identifiers double as cache path segments, so they must
// stay lowercase with no padding or separators.
package id

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"io"
)

// Lowercase RFC 4648 alphabet; ids go straight into file paths and
// URLs without case mangling.
var encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

// NewID returns a 26-character identifier derived from UUIDv4 bytes.
func NewID() (string, error) {
	raw, err := uuid4()
	if err != nil {
		return "", err
	}
	return encoding.EncodeToString(raw[:]), nil
}

// uuid4 fills 16 random bytes and stamps the RFC 4122 version and
// variant bits.
func uuid4() ([16]byte, error) {
	var raw [16]byte
	if _, err := io.ReadFull(rand.Reader, raw[:]); err != nil {
		return raw, fmt.Errorf("read random bytes: %w", err)
	}
	raw[6] = (raw[6] & 0x0f) | 0x40
	raw[8] = (raw[8] & 0x3f) | 0x80
	return raw, nil
}

// Package uuid provides the client identifier helpers shared by the vault
// metadata format and the escrow protocol.
package uuid

import (
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// New returns a fresh random UUID in its canonical string form.
func New() string {
	return uuid.NewString()
}

// ParseUID decodes a 16-byte client identifier from either its canonical
// dashed UUID form or a bare 32-character hex string. The vault metadata
// format only ever stores the raw 16 bytes; the textual form is purely an
// input convenience.
func ParseUID(s string) ([16]byte, error) {
	var out [16]byte
	if u, err := uuid.Parse(s); err == nil {
		copy(out[:], u[:])
		return out, nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return out, fmt.Errorf("uid %q is neither a UUID nor a hex string: %w", s, err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("uid %q decodes to %d bytes, want %d", s, len(raw), len(out))
	}
	copy(out[:], raw)
	return out, nil
}

// FormatUID renders a raw 16-byte UID in canonical UUID form.
func FormatUID(b [16]byte) string {
	return uuid.UUID(b).String()
}

package pstore

import (
	"github.com/google/uuid"
)

// UUID is the database-identity value stored in the header (§3.2). It
// wraps google/uuid for generation/parsing/formatting and exposes the raw
// 128-bit form the on-disk header field needs.
type UUID struct {
	inner uuid.UUID
}

// NewUUID generates a new random (version 4) database UUID.
func NewUUID() UUID {
	return UUID{inner: uuid.New()}
}

// ParseUUID parses a canonical-form UUID string ("xxxxxxxx-xxxx-...").
// Returns a *Error with CodeUUIDParseError on malformed input.
func ParseUUID(s string) (UUID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUID{}, newError(CodeUUIDParseError, "ParseUUID", err).WithDetail("input", s)
	}
	return UUID{inner: u}, nil
}

// UUIDFromBytes builds a UUID from its raw 16-byte on-disk representation.
func UUIDFromBytes(b []byte) (UUID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return UUID{}, newError(CodeUUIDParseError, "UUIDFromBytes", err)
	}
	return UUID{inner: u}, nil
}

// Bytes returns the raw 16-byte on-disk representation.
func (u UUID) Bytes() []byte {
	b := u.inner
	out := make([]byte, 16)
	copy(out, b[:])
	return out
}

// Uint128 returns the UUID's bytes reinterpreted as a Uint128.
func (u UUID) Uint128() Uint128 {
	v, _ := Uint128FromBytes(u.Bytes())
	return v
}

func (u UUID) String() string { return u.inner.String() }

// IsNil reports whether this is the nil (all-zero) UUID.
func (u UUID) IsNil() bool { return u.inner == uuid.Nil }

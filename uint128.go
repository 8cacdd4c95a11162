package pstore

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Uint128 is a 128-bit unsigned integer stored as high/low 64-bit halves,
// used only to carry the raw bytes of the database UUID (§3.2). Ported
// from original_source/include/pstore/support/uint128.hpp's comparison and
// string-formatting surface; arithmetic beyond equality/ordering is not
// needed by this module and is not carried over.
type Uint128 struct {
	High uint64
	Low  uint64
}

// Uint128FromBytes reads a big-endian 16-byte slice into a Uint128.
func Uint128FromBytes(b []byte) (Uint128, error) {
	if len(b) != 16 {
		return Uint128{}, fmt.Errorf("uint128: need 16 bytes, got %d", len(b))
	}
	return Uint128{
		High: binary.BigEndian.Uint64(b[0:8]),
		Low:  binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// Bytes renders the value as a big-endian 16-byte slice.
func (u Uint128) Bytes() []byte {
	out := make([]byte, 16)
	binary.BigEndian.PutUint64(out[0:8], u.High)
	binary.BigEndian.PutUint64(out[8:16], u.Low)
	return out
}

// Compare returns -1, 0 or 1 as u is less than, equal to, or greater than
// other, comparing the high half first.
func (u Uint128) Compare(other Uint128) int {
	switch {
	case u.High < other.High:
		return -1
	case u.High > other.High:
		return 1
	case u.Low < other.Low:
		return -1
	case u.Low > other.Low:
		return 1
	default:
		return 0
	}
}

// Equal reports whether u and other hold the same value.
func (u Uint128) Equal(other Uint128) bool { return u.Compare(other) == 0 }

// String renders the value as plain hex, high half first.
func (u Uint128) String() string {
	return hex.EncodeToString(u.Bytes())
}

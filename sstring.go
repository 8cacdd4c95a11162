// Ownership-polymorphic small string/view (spec.md §4.6), used as the
// zero-copy key type over file-mapped bytes and as an owned temporary for
// freshly assembled keys. Generalizes the teacher's raw []byte key
// handling into the three ownership modes the spec calls for.
package pstore

import (
	"bytes"
	"hash/fnv"
)

// ownership identifies how an SString's backing bytes are held.
type ownership int

const (
	// Borrowed aliases bytes owned elsewhere (e.g. a mapped file
	// window); the SString must not outlive that memory.
	Borrowed ownership = iota
	// Shared aliases a reference-counted backing buffer, safe to keep
	// past the lifetime of whatever constructed it.
	Shared
	// Owned holds a private copy.
	Owned
)

// sharedBuf is the reference-counted backing store for Shared strings.
type sharedBuf struct {
	data []byte
	refs *int
}

// SString is a short string view over borrowed, shared, or owned bytes.
// The zero value is the empty string.
type SString struct {
	mode  ownership
	bytes []byte
	ref   *sharedBuf
}

// BorrowedString wraps b without copying; b must remain valid for the
// lifetime of the returned SString.
func BorrowedString(b []byte) SString {
	return SString{mode: Borrowed, bytes: b}
}

// OwnedString copies b into a private buffer.
func OwnedString(b []byte) SString {
	cp := make([]byte, len(b))
	copy(cp, b)
	return SString{mode: Owned, bytes: cp}
}

// SharedString wraps b in a reference-counted buffer; Clone shares the
// same backing storage and bumps the refcount rather than copying.
func SharedString(b []byte) SString {
	cp := make([]byte, len(b))
	copy(cp, b)
	refs := 1
	return SString{mode: Shared, bytes: cp, ref: &sharedBuf{data: cp, refs: &refs}}
}

// Clone returns an SString aliasing the same bytes: for Shared, the
// refcount is incremented; for Borrowed and Owned the byte slice itself
// is reused (Go slices already alias safely without a refcount).
func (s SString) Clone() SString {
	if s.mode == Shared && s.ref != nil {
		*s.ref.refs++
	}
	return s
}

// Bytes returns the string's content. Callers must not mutate it.
func (s SString) Bytes() []byte { return s.bytes }

// Len returns the byte length.
func (s SString) Len() int { return len(s.bytes) }

// Compare returns -1, 0, or 1 per lexicographic byte comparison
// (§4.6).
func (s SString) Compare(other SString) int {
	return bytes.Compare(s.bytes, other.bytes)
}

// Equal reports byte-content equality regardless of ownership mode.
func (s SString) Equal(other SString) bool {
	return bytes.Equal(s.bytes, other.bytes)
}

// Hash computes the FNV-1a hash of the string's content, the hash used
// throughout the HAMT index (§4.6, hamt.go's hashKey).
func (s SString) Hash() uint64 {
	h := fnv.New64a()
	h.Write(s.bytes)
	return h.Sum64()
}

// String implements fmt.Stringer.
func (s SString) String() string {
	return string(s.bytes)
}

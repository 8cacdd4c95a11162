// Chunked sequence arena (spec.md §4.5): a list of fixed-size chunks
// giving O(1) amortized append with addresses stable across growth, used
// to hold the heap-resident branch/linear nodes a transaction creates by
// copy-on-write. Generalizes the teacher's NodePool.go (a fixed
// pre-allocated slice of *MariINode reused by index) from a bounded pool
// into an unbounded, chunk-growing arena, since spec.md §4.5 requires
// addresses to stay stable as the arena grows mid-transaction.
package pstore

// chunkSize is the number of elements per chunk, chosen (like the
// teacher's NodePool default) to keep chunk allocation infrequent under
// heavy insert load without wasting much space on a short transaction.
const chunkSize = 256

// chunkedSequence is an arena of T, addressed by a stable uint64 key
// (its allocation index). Bidirectional iteration only; no random
// access beyond key lookup.
type chunkedSequence[T any] struct {
	chunks [][]T
	length uint64
}

func newChunkedSequence[T any]() *chunkedSequence[T] {
	return &chunkedSequence[T]{}
}

// Append places v into the tail chunk, allocating a new chunk if full,
// and returns its stable key.
func (s *chunkedSequence[T]) Append(v T) uint64 {
	if len(s.chunks) == 0 || len(s.chunks[len(s.chunks)-1]) == chunkSize {
		s.chunks = append(s.chunks, make([]T, 0, chunkSize))
	}
	tail := len(s.chunks) - 1
	s.chunks[tail] = append(s.chunks[tail], v)
	key := s.length
	s.length++
	return key
}

// Get returns a pointer to the element at key, whose address remains
// valid until Clear.
func (s *chunkedSequence[T]) Get(key uint64) *T {
	chunk := key / chunkSize
	offset := key % chunkSize
	return &s.chunks[chunk][offset]
}

// Len reports the number of elements appended since the last Clear.
func (s *chunkedSequence[T]) Len() uint64 {
	return s.length
}

// Clear destroys every element in insertion order and releases all
// chunks, matching the arena reset that follows a transaction's flush or
// rollback (§4.4.3, §4.3).
func (s *chunkedSequence[T]) Clear() {
	s.chunks = nil
	s.length = 0
}

// forwardIter walks elements in insertion order and back, per §4.5's
// bidirectional-iteration contract. hamt.go's flush walks the arena by
// recursing over heap pointers instead of through this iterator, since
// the post-order serialization it needs follows pointer structure rather
// than allocation order.
type forwardIter[T any] struct {
	seq *chunkedSequence[T]
	pos uint64
}

func (s *chunkedSequence[T]) Begin() *forwardIter[T] { return &forwardIter[T]{seq: s, pos: 0} }

func (it *forwardIter[T]) HasNext() bool { return it.pos < it.seq.length }

func (it *forwardIter[T]) Next() *T {
	v := it.seq.Get(it.pos)
	it.pos++
	return v
}

func (it *forwardIter[T]) HasPrev() bool { return it.pos > 0 }

func (it *forwardIter[T]) Prev() *T {
	it.pos--
	return it.seq.Get(it.pos)
}

package pstore

import "testing"

func TestChunkedSequenceForwardAndBackwardIteration(t *testing.T) {
	seq := newChunkedSequence[int]()
	for i := 0; i < chunkSize+5; i++ {
		if got := seq.Append(i); got != uint64(i) {
			t.Fatalf("expected stable key %d, got %d", i, got)
		}
	}

	it := seq.Begin()
	for i := 0; it.HasNext(); i++ {
		if got := *it.Next(); got != i {
			t.Fatalf("forward: expected %d, got %d", i, got)
		}
	}

	for i := int(seq.Len()) - 1; it.HasPrev(); i-- {
		if got := *it.Prev(); got != i {
			t.Fatalf("backward: expected %d, got %d", i, got)
		}
	}

	seq.Clear()
	if seq.Len() != 0 {
		t.Errorf("expected Len 0 after Clear, got %d", seq.Len())
	}
}

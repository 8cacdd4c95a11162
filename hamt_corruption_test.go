package pstore

import "encoding/binary"
import "testing"

func encodeTestBranch(bitmap uint64, children []IndexPointer) []byte {
	buf := make([]byte, branchHeaderSize+len(children)*8)
	copy(buf[0:8], branchSignature)
	binary.LittleEndian.PutUint64(buf[8:16], bitmap)
	for i, c := range children {
		binary.LittleEndian.PutUint64(buf[branchHeaderSize+i*8:], uint64(c))
	}
	return buf
}

func TestDecodeFileBranchRejectsSelfReferencingChild(t *testing.T) {
	parent := Address(256)
	buf := encodeTestBranch(1, []IndexPointer{makeFileBranchPointer(parent)})

	_, err := decodeFileBranch(buf, parent)
	if !Is(err, CodeIndexCorrupt) {
		t.Fatalf("expected CodeIndexCorrupt, got %v", err)
	}
}

// An ancestor further up the tree is written even later than parent
// during post-order flush (children are always serialized before their
// parent), so an ancestor's address is always >= parent's — the same
// condition a self-reference produces.
func TestDecodeFileBranchRejectsAncestorReferencingChild(t *testing.T) {
	parent := Address(256)
	buf := encodeTestBranch(1, []IndexPointer{makeFileBranchPointer(Address(512))})

	_, err := decodeFileBranch(buf, parent)
	if !Is(err, CodeIndexCorrupt) {
		t.Fatalf("expected CodeIndexCorrupt, got %v", err)
	}
}

func TestDecodeFileBranchRejectsHeapRetaggedChild(t *testing.T) {
	parent := Address(256)
	buf := encodeTestBranch(1, []IndexPointer{makeHeapPointer(3)})

	_, err := decodeFileBranch(buf, parent)
	if !Is(err, CodeIndexCorrupt) {
		t.Fatalf("expected CodeIndexCorrupt, got %v", err)
	}
}

func TestDecodeFileBranchAcceptsValidChild(t *testing.T) {
	parent := Address(256)
	buf := encodeTestBranch(1, []IndexPointer{makeFileBranchPointer(Address(64))})

	b, err := decodeFileBranch(buf, parent)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(b.children) != 1 {
		t.Fatalf("expected one child, got %d", len(b.children))
	}
}

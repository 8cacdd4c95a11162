// Persistent copy-on-write HAMT index (spec.md §3.3/§3.4/§4.4): insert,
// insert_or_assign, find, contains, flush. Generalizes the teacher's
// Node.go/Operation.go traversal and copy-on-write promotion logic from a
// 256-way/lock-free-CAS design onto the spec's 64-way fanout with
// single-writer commit (see DESIGN.md's HAMT index entry).
package pstore

import (
	"encoding/binary"
)

type heapNodeKind int

const (
	heapKindBranch heapNodeKind = iota
	heapKindLinear
)

type heapNode struct {
	kind    heapNodeKind
	branch  *heapBranch
	linear  *heapLinear
}

// HAMT is a single revision's view of the persistent trie. Read
// operations (Find/Contains) work against whatever root is currently
// set, including a heap root produced mid-transaction; Insert/
// InsertOrAssign require an open Transaction to allocate leaves and heap
// nodes into.
type HAMT struct {
	db       *Database
	root     IndexPointer
	size     uint64
	revision uint64
	arena    *chunkedSequence[heapNode]
}

const (
	indexHeaderAlign = 8
	branchAlign      = 8
)

// OpenHAMT loads the trie rooted at headerAddr (§4.4 Construction). A
// null headerAddr yields the empty trie. revision is recorded as the
// trie's current revision, checked again at flush time.
func OpenHAMT(db *Database, headerAddr Address, revision uint64) (*HAMT, error) {
	h := &HAMT{db: db, arena: newChunkedSequence[heapNode](), revision: revision}

	if headerAddr.IsNull() {
		return h, nil
	}

	buf, err := db.getro(headerAddr, IndexHeaderSize)
	if err != nil {
		return nil, err
	}
	ih, err := decodeIndexHeader(buf)
	if err != nil {
		return nil, err
	}

	switch {
	case ih.size == 0 && !ih.root.IsNull():
		return nil, newError(CodeIndexCorrupt, "OpenHAMT", nil).WithDetail("reason", "nonempty root with size 0")
	case ih.size == 1 && ih.root.IsBranch():
		return nil, newError(CodeIndexCorrupt, "OpenHAMT", nil).WithDetail("reason", "size 1 root is not a leaf")
	case ih.size > 1 && !ih.root.IsBranch():
		return nil, newError(CodeIndexCorrupt, "OpenHAMT", nil).WithDetail("reason", "size>1 root is not a branch")
	case ih.root.IsHeap():
		return nil, newError(CodeIndexCorrupt, "OpenHAMT", nil).WithDetail("reason", "heap root on disk")
	}

	h.root = ih.root
	h.size = ih.size
	return h, nil
}

// Size returns the number of entries in the trie.
func (h *HAMT) Size() uint64 { return h.size }

// Empty reports whether the trie holds no entries.
func (h *HAMT) Empty() bool { return h.size == 0 }

// hashKey computes the FNV-1a hash a key routes through the trie on,
// delegating to SString.Hash (§4.6) rather than re-implementing FNV-1a
// here, so the small-string/view component is the engine's one source of
// key hashing and comparison.
func hashKey(key []byte) uint64 {
	return BorrowedString(key).Hash()
}

// sameKey compares two keys by way of SString.Equal (§4.6) rather than a
// direct bytes.Equal, so key comparison throughout the trie goes through
// the one small-string/view component the spec names for it.
func sameKey(a, b []byte) bool {
	return BorrowedString(a).Equal(BorrowedString(b))
}

// Find returns the value for key against the trie's current root.
// A missing key is not an error: ok is false.
func (h *HAMT) Find(key []byte) (value []byte, ok bool, err error) {
	return h.findAt(h.root, key, hashKey(key), 0)
}

// Contains reports whether key is present.
func (h *HAMT) Contains(key []byte) (bool, error) {
	_, ok, err := h.Find(key)
	return ok, err
}

func (h *HAMT) findAt(ptr IndexPointer, key []byte, hash uint64, depth int) ([]byte, bool, error) {
	if ptr.IsNull() {
		return nil, false, nil
	}

	if !ptr.IsBranch() {
		ek, ev, err := h.readEntry(ptr)
		if err != nil {
			return nil, false, err
		}
		if sameKey(ek, key) {
			return ev, true, nil
		}
		return nil, false, nil
	}

	kind, branch, linear, err := h.resolve(ptr)
	if err != nil {
		return nil, false, err
	}

	if kind == heapKindLinear {
		for _, leaf := range linear.leaves {
			ek, ev, err := h.readEntry(leaf)
			if err != nil {
				return nil, false, err
			}
			if sameKey(ek, key) {
				return ev, true, nil
			}
		}
		return nil, false, nil
	}

	s := slot(hash, depth)
	if !branch.has(s) {
		return nil, false, nil
	}
	return h.findAt(branch.childAt(s), key, hash, depth+1)
}

// readEntry reads the (key, value) pair a leaf pointer references.
// Leaves are always file-resident (§3.3), so ptr must never carry the
// heap tag.
func (h *HAMT) readEntry(ptr IndexPointer) ([]byte, []byte, error) {
	addr := ptr.FileAddress()
	hdr, err := h.db.getro(addr, 8)
	if err != nil {
		return nil, nil, err
	}

	klen := getU32(hdr[0:4])
	vlen := getU32(hdr[4:8])

	full, err := h.db.getro(addr, uint64(8+klen+vlen))
	if err != nil {
		return nil, nil, err
	}

	key := full[8 : 8+klen]
	value := full[8+klen : 8+klen+vlen]
	return key, value, nil
}

// resolve returns the branch or linear node ptr references, reading it
// from the heap arena or decoding it from the file as needed.
func (h *HAMT) resolve(ptr IndexPointer) (heapNodeKind, *heapBranch, *heapLinear, error) {
	if ptr.IsHeap() {
		node := h.arena.Get(ptr.HeapKey())
		return node.kind, node.branch, node.linear, nil
	}
	return h.loadFileNode(ptr.FileAddress())
}

// loadFileNode performs the two-phase read §4.4.4 describes: a small
// fixed-size read to learn the child count, then a second read of the
// full node once its size is known.
func (h *HAMT) loadFileNode(addr Address) (heapNodeKind, *heapBranch, *heapLinear, error) {
	sig, err := h.db.getro(addr, 8)
	if err != nil {
		return 0, nil, nil, err
	}

	switch string(sig) {
	case branchSignature:
		hdr, err := h.db.getro(addr, branchHeaderSize)
		if err != nil {
			return 0, nil, nil, err
		}
		bitmap := binary.LittleEndian.Uint64(hdr[8:16])
		n := popcount64(bitmap)
		full, err := h.db.getro(addr, uint64(branchHeaderSize+n*8))
		if err != nil {
			return 0, nil, nil, err
		}
		b, err := decodeFileBranch(full, addr)
		if err != nil {
			return 0, nil, nil, err
		}
		return heapKindBranch, b, nil, nil

	case linearSignature:
		hdr, err := h.db.getro(addr, 16)
		if err != nil {
			return 0, nil, nil, err
		}
		count := binary.LittleEndian.Uint64(hdr[8:16])
		full, err := h.db.getro(addr, uint64(16+int(count)*8))
		if err != nil {
			return 0, nil, nil, err
		}
		l, err := decodeFileLinear(full)
		if err != nil {
			return 0, nil, nil, err
		}
		return heapKindLinear, nil, l, nil

	default:
		return 0, nil, nil, newError(CodeIndexCorrupt, "loadFileNode", nil).
			WithDetail("addr", addr.String()).WithDetail("reason", "unrecognized signature")
	}
}

// Insert inserts (key, value) if key is absent; an existing key is left
// untouched (§4.4.1).
func (h *HAMT) Insert(t *Transaction, key, value []byte) (inserted bool, err error) {
	return h.put(t, key, value, false)
}

// InsertOrAssign inserts (key, value), replacing any existing value for
// key with a freshly written leaf (§3.6: earlier revisions continue to
// reach the superseded leaf).
func (h *HAMT) InsertOrAssign(t *Transaction, key, value []byte) (inserted bool, err error) {
	return h.put(t, key, value, true)
}

func (h *HAMT) put(t *Transaction, key, value []byte, upsert bool) (bool, error) {
	if h.revision != t.db.GetCurrentRevision() {
		return false, newError(CodeIndexNotLatestRevision, "HAMT.put", nil).
			WithDetail("trie_revision", h.revision).WithDetail("db_revision", t.db.GetCurrentRevision())
	}

	newRoot, inserted, err := h.insertAt(t, h.root, key, value, hashKey(key), 0, upsert)
	if err != nil {
		return false, err
	}
	h.root = newRoot
	if inserted {
		h.size++
	}
	return inserted, nil
}

func (h *HAMT) insertAt(t *Transaction, ptr IndexPointer, key, value []byte, hash uint64, depth int, upsert bool) (IndexPointer, bool, error) {
	switch {
	case ptr.IsNull():
		addr, err := t.writeEntry(key, value)
		if err != nil {
			return NullPointer, false, err
		}
		return makeLeafPointer(addr), true, nil

	case !ptr.IsBranch():
		return h.insertIntoLeaf(t, ptr, key, value, hash, depth, upsert)

	default:
		kind, branch, linear, err := h.resolve(ptr)
		if err != nil {
			return NullPointer, false, err
		}
		if kind == heapKindLinear {
			return h.insertIntoLinear(t, ptr, linear, key, value, upsert)
		}
		return h.insertIntoBranch(t, ptr, branch, key, value, hash, depth, upsert)
	}
}

// insertIntoLeaf handles §4.4.1 step 2: ptr is a leaf at depth d.
func (h *HAMT) insertIntoLeaf(t *Transaction, ptr IndexPointer, key, value []byte, hash uint64, depth int, upsert bool) (IndexPointer, bool, error) {
	ek, _, err := h.readEntry(ptr)
	if err != nil {
		return NullPointer, false, err
	}

	if sameKey(ek, key) {
		if !upsert {
			return ptr, false, nil
		}
		addr, err := t.writeEntry(key, value)
		if err != nil {
			return NullPointer, false, err
		}
		return makeLeafPointer(addr), false, nil
	}

	existingHash := hashKey(ek)

	if depth == MaxDepth {
		addr, err := t.writeEntry(key, value)
		if err != nil {
			return NullPointer, false, err
		}
		lin := &heapLinear{leaves: []IndexPointer{ptr, makeLeafPointer(addr)}}
		k := h.arena.Append(heapNode{kind: heapKindLinear, linear: lin})
		return makeHeapPointer(k), true, nil
	}

	existingSlot := slot(existingHash, depth)
	branch := newHeapBranch()
	branch.insertChild(existingSlot, ptr)
	k := h.arena.Append(heapNode{kind: heapKindBranch, branch: branch})
	branchPtr := makeHeapPointer(k)

	// The new key's slot at this depth either differs from the existing
	// leaf's (handled directly by insertIntoBranch's "not occupied"
	// path) or collides (handled by its "recurse into child" path,
	// which walks into the existing leaf one level deeper) - both are
	// the same call.
	return h.insertIntoBranch(t, branchPtr, branch, key, value, hash, depth, upsert)
}

// insertIntoBranch handles §4.4.1 step 3.
func (h *HAMT) insertIntoBranch(t *Transaction, ptr IndexPointer, b *heapBranch, key, value []byte, hash uint64, depth int, upsert bool) (IndexPointer, bool, error) {
	s := slot(hash, depth)
	isHeap := ptr.IsHeap()

	if !b.has(s) {
		nb, newPtr := h.cowBranch(ptr, b, isHeap)
		addr, err := t.writeEntry(key, value)
		if err != nil {
			return NullPointer, false, err
		}
		nb.insertChild(s, makeLeafPointer(addr))
		return newPtr, true, nil
	}

	childPtr := b.childAt(s)
	newChildPtr, inserted, err := h.insertAt(t, childPtr, key, value, hash, depth+1, upsert)
	if err != nil {
		return NullPointer, false, err
	}
	if newChildPtr == childPtr {
		return ptr, inserted, nil
	}

	nb, newPtr := h.cowBranch(ptr, b, isHeap)
	nb.replaceChild(s, newChildPtr)
	return newPtr, inserted, nil
}

// cowBranch returns a branch safe to mutate for this insert: b itself if
// ptr is already heap-resident (it is private to this transaction), or a
// fresh heap clone registered in the arena otherwise (§4.4.2).
func (h *HAMT) cowBranch(ptr IndexPointer, b *heapBranch, isHeap bool) (*heapBranch, IndexPointer) {
	if isHeap {
		return b, ptr
	}
	nb := cloneHeapBranch(b)
	k := h.arena.Append(heapNode{kind: heapKindBranch, branch: nb})
	return nb, makeHeapPointer(k)
}

// insertIntoLinear handles §4.4.1 step 4.
func (h *HAMT) insertIntoLinear(t *Transaction, ptr IndexPointer, lin *heapLinear, key, value []byte, upsert bool) (IndexPointer, bool, error) {
	isHeap := ptr.IsHeap()

	for i, leaf := range lin.leaves {
		ek, _, err := h.readEntry(leaf)
		if err != nil {
			return NullPointer, false, err
		}
		if sameKey(ek, key) {
			if !upsert {
				return ptr, false, nil
			}
			addr, err := t.writeEntry(key, value)
			if err != nil {
				return NullPointer, false, err
			}
			nl, newPtr := h.cowLinear(ptr, lin, isHeap)
			nl.leaves[i] = makeLeafPointer(addr)
			return newPtr, false, nil
		}
	}

	addr, err := t.writeEntry(key, value)
	if err != nil {
		return NullPointer, false, err
	}
	nl, newPtr := h.cowLinear(ptr, lin, isHeap)
	nl.leaves = append(nl.leaves, makeLeafPointer(addr))
	return newPtr, true, nil
}

func (h *HAMT) cowLinear(ptr IndexPointer, lin *heapLinear, isHeap bool) (*heapLinear, IndexPointer) {
	if isHeap {
		return lin, ptr
	}
	nl := &heapLinear{leaves: append([]IndexPointer(nil), lin.leaves...)}
	k := h.arena.Append(heapNode{kind: heapKindLinear, linear: nl})
	return nl, makeHeapPointer(k)
}

// flush serializes the heap-rooted subtree post-order, writes the index
// header block, and clears the arena (§4.4.3). Fails with
// index_not_latest_revision if another writer committed since this trie
// was opened.
func (h *HAMT) flush(t *Transaction, gen uint64) (Address, error) {
	if h.revision != t.db.GetCurrentRevision() {
		return NullAddress, newError(CodeIndexNotLatestRevision, "HAMT.flush", nil).
			WithDetail("trie_revision", h.revision).WithDetail("db_revision", t.db.GetCurrentRevision())
	}

	newRoot, err := h.flushNode(t, h.root)
	if err != nil {
		return NullAddress, err
	}
	h.root = newRoot

	hdrAddr, err := t.Allocate(IndexHeaderSize, indexHeaderAlign)
	if err != nil {
		return NullAddress, err
	}
	view, err := t.GetRW(hdrAddr, IndexHeaderSize)
	if err != nil {
		return NullAddress, err
	}
	encodeIndexHeader(view.Bytes, indexHeader{root: h.root, size: h.size})
	if err := view.Commit(); err != nil {
		return NullAddress, err
	}

	h.arena.Clear()
	h.revision = gen
	return hdrAddr, nil
}

func (h *HAMT) flushNode(t *Transaction, ptr IndexPointer) (IndexPointer, error) {
	if ptr.IsNull() || !ptr.IsHeap() {
		return ptr, nil
	}

	node := h.arena.Get(ptr.HeapKey())

	var buf []byte
	if node.kind == heapKindBranch {
		b := node.branch
		for i, child := range b.children {
			newChild, err := h.flushNode(t, child)
			if err != nil {
				return NullPointer, err
			}
			b.children[i] = newChild
		}
		buf = encodeFileBranch(b)
	} else {
		buf = encodeFileLinear(node.linear)
	}

	addr, err := t.Allocate(uint64(len(buf)), branchAlign)
	if err != nil {
		return NullPointer, err
	}
	view, err := t.GetRW(addr, uint64(len(buf)))
	if err != nil {
		return NullPointer, err
	}
	copy(view.Bytes, buf)
	if err := view.Commit(); err != nil {
		return NullPointer, err
	}

	return makeFileBranchPointer(addr), nil
}

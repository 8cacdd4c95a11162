// Transaction: the begin/allocate/commit/rollback state machine (spec.md
// §4.3), restructured from the teacher's Transaction.go (MariTx,
// ViewTx/UpdateTx) and Operation.go's optimistic CAS-retry write loop
// into a single-writer model under a cross-process range lock — see
// DESIGN.md's Transaction entry for the REDESIGN this implements.
package pstore

import (
	"time"
	"unsafe"

	"go.uber.org/zap"
)

type txState int

const (
	txOpen txState = iota
	txCommitting
	txCommitted
	txRolledBack
)

// Transaction scopes a group of allocations and index mutations that
// become durable atomically on Commit, or vanish entirely on Rollback.
type Transaction struct {
	db     *Database
	state  txState
	dbSize uint64 // snapshot of storage.size() at begin
	cursor uint64 // snapshot of db.writeCursor at begin, for rollback
	gen    uint64 // the generation this transaction will produce on commit
}

// Begin acquires the cross-process write lock and snapshots the
// database's current extent and write cursor (§4.3 Open).
func (db *Database) Begin() (*Transaction, error) {
	if db.readOnly {
		return nil, newError(CodeTransactionOnReadOnlyDatabase, "Database.Begin", nil)
	}

	if err := lockWriter(int(db.file.Fd())); err != nil {
		return nil, err
	}

	return &Transaction{
		db:     db,
		state:  txOpen,
		dbSize: db.storage.size(),
		cursor: db.writeCursor,
		gen:    db.GetCurrentRevision() + 1,
	}, nil
}

// Allocate returns the first address of size bytes aligned to align.
// Fails with cannot_allocate_after_commit once the transaction has left
// the Open state.
func (t *Transaction) Allocate(size, align uint64) (Address, error) {
	if t.state != txOpen {
		return NullAddress, newError(CodeCannotAllocateAfterCommit, "Transaction.Allocate", nil)
	}
	return t.db.allocate(size, align)
}

// GetRW returns a writable view of an address this transaction (or an
// earlier one, for file-resident data being copy-on-written) allocated.
func (t *Transaction) GetRW(addr Address, size uint64) (*RWView, error) {
	if t.state != txOpen {
		return nil, newError(CodeCannotAllocateAfterCommit, "Transaction.GetRW", nil)
	}
	return t.db.storage.getrw(addr, size)
}

// GetRO returns a read-only view, delegating straight to the database.
func (t *Transaction) GetRO(addr Address, size uint64) ([]byte, error) {
	return t.db.getro(addr, size)
}

// AllocRW is the typed convenience allocator of §4.3's transaction
// contract: alloc_rw<T>(count) -> (writable pointer, typed_address<T>).
// Go methods cannot introduce their own type parameters, so this is a
// free function taking the transaction as its first argument rather than
// a method on *Transaction. The returned RWView spans count contiguous
// values of T; callers write through view.Bytes and call view.Commit.
func AllocRW[T any](t *Transaction, count int) (*RWView, TypedAddress[T], error) {
	var zero T
	elemSize := uint64(unsafe.Sizeof(zero))
	if elemSize&(elemSize-1) != 0 {
		return nil, TypedAddress[T]{}, newError(CodeBadAlignment, "AllocRW", nil).
			WithDetail("elem_size", elemSize)
	}
	size := elemSize * uint64(count)

	addr, err := t.Allocate(size, elemSize)
	if err != nil {
		return nil, TypedAddress[T]{}, err
	}

	view, err := t.GetRW(addr, size)
	if err != nil {
		return nil, TypedAddress[T]{}, err
	}

	return view, MakeTypedAddress[T](addr), nil
}

// writeEntry allocates space for and serializes a (key, value) pair,
// returning the leaf's address. Layout: klen:u32 | vlen:u32 | key | value,
// aligned to entryAlign so the low tag bits of the resulting leaf pointer
// stay clear (§3.3).
func (t *Transaction) writeEntry(key, value []byte) (Address, error) {
	size := uint64(8 + len(key) + len(value))
	addr, err := t.Allocate(size, entryAlign)
	if err != nil {
		return NullAddress, err
	}

	view, err := t.GetRW(addr, size)
	if err != nil {
		return NullAddress, err
	}

	buf := view.Bytes
	putU32(buf[0:4], uint32(len(key)))
	putU32(buf[4:8], uint32(len(value)))
	copy(buf[8:8+len(key)], key)
	copy(buf[8+len(key):], value)

	if err := view.Commit(); err != nil {
		return NullAddress, err
	}
	return addr, nil
}

// Commit serializes dirty heap nodes, writes a new trailer referencing
// the flushed index, protects the newly written pages, and atomically
// publishes the new footer (§4.3 Committing).
func (t *Transaction) Commit(index *HAMT) error {
	if t.state != txOpen {
		return newError(CodeCannotAllocateAfterCommit, "Transaction.Commit", nil)
	}
	t.state = txCommitting

	headerAddr, err := index.flush(t, t.gen)
	if err != nil {
		t.state = txOpen
		return err
	}

	trailerAddr, err := t.Allocate(TrailerSize, trailerAlign)
	if err != nil {
		t.state = txOpen
		return err
	}

	view, err := t.GetRW(trailerAddr, TrailerSize)
	if err != nil {
		t.state = txOpen
		return err
	}

	prevPos, _, err := t.db.currentFooter()
	if err != nil {
		t.state = txOpen
		return err
	}

	size := t.db.writeCursor - t.cursor
	encodeTrailer(view.Bytes, t.gen, size, prevPos, time.Now())
	if err := view.Commit(); err != nil {
		t.state = txOpen
		return err
	}

	if err := t.db.storage.sync(); err != nil {
		t.state = txOpen
		return err
	}

	if err := t.db.storage.protect(LeaderSize, t.db.writeCursor); err != nil {
		t.state = txOpen
		return err
	}

	leaderBuf, err := t.db.storage.getrw(Address(0), LeaderSize)
	if err != nil {
		t.state = txOpen
		return err
	}
	storeFooterPos(leaderBuf.Bytes, trailerAddr)
	if err := leaderBuf.Commit(); err != nil {
		t.state = txOpen
		return err
	}

	t.db.mu.Lock()
	t.db.footerPos = trailerAddr
	t.db.currentGen = t.gen
	t.db.mu.Unlock()

	// headerAddr is always trailerAddr-IndexHeaderSize by construction
	// (flush's index header block is the last thing allocated before the
	// trailer); see Database.indexHeaderAddr and DESIGN.md's note on this.
	_ = headerAddr

	t.state = txCommitted
	t.db.logger.Info("pstore commit",
		zap.Uint64("generation", t.gen),
		zap.String("trailer", trailerAddr.String()))

	return unlockWriter(int(t.db.file.Fd()))
}

// Rollback moves the database's write cursor back to its begin-time
// position and releases the write lock. It does not shrink the file or
// unmap windows: growth made during the transaction stays in place, and
// the bytes written into it are left there unreferenced. Safe to call
// more than once; safe to call
// instead of Commit at any point while the transaction is Open (§5
// Cancellation).
func (t *Transaction) Rollback() error {
	if t.state == txRolledBack || t.state == txCommitted {
		return nil
	}

	t.db.truncateWriteCursor(t.cursor)
	t.state = txRolledBack
	t.db.logger.Info("pstore rollback", zap.Uint64("generation", t.gen))
	return unlockWriter(int(t.db.file.Fd()))
}

const (
	entryAlign   = 8
	trailerAlign = 8
)

func putU32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

func getU32(buf []byte) uint32 {
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
}

package pstoretests

import "bytes"
import "encoding/binary"
import "testing"

import "github.com/sirgallo/pstore"

// TestSingleInsertCommit covers S1: a single key inserted and committed
// is readable back from the current revision.
func TestSingleInsertCommit(t *testing.T) {
	db := openTestDB(t, "s1.db")

	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	inserted, err := idx.Insert(tx, []byte("answer"), []byte("32749"))
	if err != nil { t.Fatalf("Insert: %s", err) }
	if !inserted { t.Errorf("expected a fresh key to report inserted") }

	if err := tx.Commit(idx); err != nil { t.Fatalf("Commit: %s", err) }

	readIdx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex after commit: %s", err) }

	value, ok, err := readIdx.Find([]byte("answer"))
	if err != nil { t.Fatalf("Find: %s", err) }
	if !ok { t.Fatalf("expected key to be found after commit") }
	if !bytes.Equal(value, []byte("32749")) {
		t.Errorf("expected value 32749, got %q", value)
	}
}

// TestRollbackDiscardsWrites covers S2: a rolled-back transaction leaves
// the database's current revision untouched.
func TestRollbackDiscardsWrites(t *testing.T) {
	db := openTestDB(t, "s2.db")

	before := db.GetCurrentRevision()

	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	if _, err := idx.Insert(tx, []byte("k"), []byte("42")); err != nil { t.Fatalf("Insert: %s", err) }

	if err := tx.Rollback(); err != nil { t.Fatalf("Rollback: %s", err) }

	if after := db.GetCurrentRevision(); after != before {
		t.Errorf("expected revision unchanged by rollback: before=%d after=%d", before, after)
	}

	readIdx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	if _, ok, _ := readIdx.Find([]byte("k")); ok {
		t.Errorf("expected rolled-back key to be absent")
	}
}

func TestCannotAllocateAfterCommit(t *testing.T) {
	db := openTestDB(t, "no-alloc-after-commit.db")

	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	if err := tx.Commit(idx); err != nil { t.Fatalf("Commit: %s", err) }

	_, err = tx.Allocate(8, 8)
	if !pstore.Is(err, pstore.CodeCannotAllocateAfterCommit) {
		t.Errorf("expected CodeCannotAllocateAfterCommit, got %v", err)
	}
}

// TestUpsertPreservesPriorRevision covers §3.6: assigning an existing key
// writes a new leaf without disturbing what an earlier revision reaches.
func TestUpsertPreservesPriorRevision(t *testing.T) {
	db := openTestDB(t, "upsert.db")

	tx1, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	idx1, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	if _, err := idx1.Insert(tx1, []byte("k"), []byte("v1")); err != nil { t.Fatalf("Insert: %s", err) }
	if err := tx1.Commit(idx1); err != nil { t.Fatalf("Commit: %s", err) }

	gen1 := db.GetCurrentRevision()

	tx2, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	idx2, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	if _, err := idx2.InsertOrAssign(tx2, []byte("k"), []byte("v2")); err != nil { t.Fatalf("InsertOrAssign: %s", err) }
	if err := tx2.Commit(idx2); err != nil { t.Fatalf("Commit: %s", err) }

	if err := db.Sync(gen1); err != nil { t.Fatalf("Sync back to gen1: %s", err) }
	oldIdx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex at gen1: %s", err) }
	value, ok, err := oldIdx.Find([]byte("k"))
	if err != nil { t.Fatalf("Find: %s", err) }
	if !ok || !bytes.Equal(value, []byte("v1")) {
		t.Errorf("expected old revision to still read v1, got %q ok=%v", value, ok)
	}
}

// TestAllocRWWriteAndReadBack covers S1's alloc_rw<int>() shape: reserve
// space for a single int32, write through the returned view, commit, and
// read the value back at the typed address via a plain getro.
func TestAllocRWWriteAndReadBack(t *testing.T) {
	db := openTestDB(t, "allocrw.db")

	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	view, typedAddr, err := pstore.AllocRW[int32](tx, 1)
	if err != nil { t.Fatalf("AllocRW: %s", err) }
	binary.LittleEndian.PutUint32(view.Bytes, 32749)
	if err := view.Commit(); err != nil { t.Fatalf("Commit view: %s", err) }

	if err := tx.Commit(idx); err != nil { t.Fatalf("Commit: %s", err) }

	raw, err := db.GetRO(typedAddr.Addr, 4)
	if err != nil { t.Fatalf("GetRO: %s", err) }
	if got := binary.LittleEndian.Uint32(raw); got != 32749 {
		t.Errorf("expected 32749, got %d", got)
	}
}

// TestAllocRWDiscardedByRollback covers S2: an alloc_rw allocation that is
// never committed leaves the database's current revision untouched.
func TestAllocRWDiscardedByRollback(t *testing.T) {
	db := openTestDB(t, "allocrw-rollback.db")

	before := db.GetCurrentRevision()

	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }

	view, _, err := pstore.AllocRW[int32](tx, 1)
	if err != nil { t.Fatalf("AllocRW: %s", err) }
	binary.LittleEndian.PutUint32(view.Bytes, 42)
	if err := view.Commit(); err != nil { t.Fatalf("Commit view: %s", err) }

	if err := tx.Rollback(); err != nil { t.Fatalf("Rollback: %s", err) }

	if after := db.GetCurrentRevision(); after != before {
		t.Errorf("expected revision unchanged by rollback: before=%d after=%d", before, after)
	}
}

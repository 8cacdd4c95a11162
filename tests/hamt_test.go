package pstoretests

import "bytes"
import "testing"

import "github.com/sirgallo/pstore"

func insertAll(t *testing.T, db *pstore.Database, pairs map[string]string) {
	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	for k, v := range pairs {
		if _, err := idx.Insert(tx, []byte(k), []byte(v)); err != nil { t.Fatalf("Insert(%s): %s", k, err) }
	}

	if err := tx.Commit(idx); err != nil { t.Fatalf("Commit: %s", err) }
}

func TestManyInsertsAllFindable(t *testing.T) {
	db := openTestDB(t, "many.db")

	pairs := map[string]string{}
	for i := 0; i < 500; i++ {
		pairs[string(rune('a'+i%26))+string(rune(i))] = string(rune(i))
	}
	insertAll(t, db, pairs)

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	if idx.Size() != uint64(len(pairs)) {
		t.Errorf("expected size %d, got %d", len(pairs), idx.Size())
	}

	for k, v := range pairs {
		got, ok, err := idx.Find([]byte(k))
		if err != nil { t.Fatalf("Find(%s): %s", k, err) }
		if !ok { t.Fatalf("expected to find key %q", k) }
		if !bytes.Equal(got, []byte(v)) {
			t.Errorf("key %q: expected %q, got %q", k, v, got)
		}
	}
}

func TestInsertDoesNotOverwriteExisting(t *testing.T) {
	db := openTestDB(t, "no-overwrite.db")

	tx, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	if _, err := idx.Insert(tx, []byte("k"), []byte("first")); err != nil { t.Fatalf("Insert: %s", err) }
	inserted, err := idx.Insert(tx, []byte("k"), []byte("second"))
	if err != nil { t.Fatalf("Insert (dup): %s", err) }
	if inserted { t.Errorf("expected duplicate insert to report not-inserted") }

	if err := tx.Commit(idx); err != nil { t.Fatalf("Commit: %s", err) }

	readIdx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	value, ok, err := readIdx.Find([]byte("k"))
	if err != nil { t.Fatalf("Find: %s", err) }
	if !ok || !bytes.Equal(value, []byte("first")) {
		t.Errorf("expected original value \"first\" preserved, got %q", value)
	}
}

// TestFlushRoundTrip covers S6: insert, flush (via commit), reopen the
// index at the flushed header address, and confirm iteration yields
// exactly the inserted set.
func TestFlushRoundTrip(t *testing.T) {
	db := openTestDB(t, "s6.db")

	insertAll(t, db, map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"})

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	seen := map[string]string{}
	it := idx.Begin()
	for !it.Done() {
		if it.Err() != nil { t.Fatalf("iteration error: %s", it.Err()) }
		seen[string(it.Key())] = string(it.Value())
		it.Next()
	}

	want := map[string]string{"a": "1", "b": "2", "c": "3", "d": "4"}
	if len(seen) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(seen), seen)
	}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("key %q: expected %q, got %q", k, v, seen[k])
		}
	}
}

func TestFindAbsentKeyIsNotAnError(t *testing.T) {
	db := openTestDB(t, "absent.db")
	insertAll(t, db, map[string]string{"present": "yes"})

	idx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	_, ok, err := idx.Find([]byte("missing"))
	if err != nil { t.Fatalf("Find should not error on a missing key: %s", err) }
	if ok { t.Errorf("expected missing key to report not found") }
}

// TestStaleFlushFailsIndexNotLatestRevision opens an index, lets a second,
// unrelated transaction commit ahead of it, then confirms flushing the
// now-stale index is rejected rather than silently clobbering the newer
// revision's index header.
func TestStaleFlushFailsIndexNotLatestRevision(t *testing.T) {
	db := openTestDB(t, "stale.db")

	staleIdx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	tx1, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	idx1, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	if _, err := idx1.Insert(tx1, []byte("a"), []byte("1")); err != nil { t.Fatalf("Insert: %s", err) }
	if err := tx1.Commit(idx1); err != nil { t.Fatalf("Commit: %s", err) }

	tx2, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	err = tx2.Commit(staleIdx)
	if !pstore.Is(err, pstore.CodeIndexNotLatestRevision) {
		t.Errorf("expected CodeIndexNotLatestRevision, got %v", err)
	}
}

// TestStaleInsertFailsIndexNotLatestRevision covers §4.4.5/testable
// property 9 directly: an Insert against a handle opened before another
// writer committed fails immediately, rather than only being caught later
// at flush.
func TestStaleInsertFailsIndexNotLatestRevision(t *testing.T) {
	db := openTestDB(t, "stale-insert.db")

	staleIdx, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }

	tx1, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	idx1, err := db.OpenIndex()
	if err != nil { t.Fatalf("OpenIndex: %s", err) }
	if _, err := idx1.Insert(tx1, []byte("a"), []byte("1")); err != nil { t.Fatalf("Insert: %s", err) }
	if err := tx1.Commit(idx1); err != nil { t.Fatalf("Commit: %s", err) }

	tx2, err := db.Begin()
	if err != nil { t.Fatalf("Begin: %s", err) }
	defer tx2.Rollback()

	_, err = staleIdx.Insert(tx2, []byte("b"), []byte("2"))
	if !pstore.Is(err, pstore.CodeIndexNotLatestRevision) {
		t.Errorf("expected CodeIndexNotLatestRevision, got %v", err)
	}

	_, err = staleIdx.InsertOrAssign(tx2, []byte("a"), []byte("9"))
	if !pstore.Is(err, pstore.CodeIndexNotLatestRevision) {
		t.Errorf("expected CodeIndexNotLatestRevision from InsertOrAssign, got %v", err)
	}
}

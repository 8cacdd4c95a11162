// Database: header/footer management, revision navigation, and the
// getro/getrw/allocate primitives transactions and the HAMT build on
// (spec.md §4.2). Generalizes the teacher's Mari.go (Open/Close/
// initializeFile) and Version.go's loadStartOffset chain-walk from a
// single always-latest view into a revision-navigable database.
package pstore

import (
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Database is an open pstore file. Safe for concurrent use by any number
// of readers; at most one Transaction may be open for writing at a time
// (enforced by the cross-process writer lock, §5).
type Database struct {
	file    *os.File
	storage *Storage
	logger  *zap.Logger

	mu          sync.RWMutex
	id          UUID
	footerPos   Address // the trailer currently exposed to readers
	currentGen  uint64
	readOnly    bool
	writeCursor uint64 // next unaligned write position; grows only inside a transaction
}

// Open maps path (creating it if absent) and validates its header,
// following the teacher's Open/initializeFile split.
func Open(path string, opts ...OptionFunc) (*Database, error) {
	o := applyOptions(path, opts)
	if o.Path == "" {
		return nil, newError(CodeBadAddress, "Open", nil).WithDetail("reason", "empty path")
	}

	flags := os.O_RDWR | os.O_CREATE
	if o.ReadOnly {
		flags = os.O_RDONLY
	}

	file, err := os.OpenFile(o.Path, flags, 0644)
	if err != nil {
		return nil, newError(CodeBadAddress, "Open", err).WithDetail("path", o.Path)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, newError(CodeBadAddress, "Open", err)
	}

	db := &Database{file: file, logger: o.Logger, readOnly: o.ReadOnly}

	if info.Size() == 0 {
		if o.ReadOnly {
			file.Close()
			return nil, newError(CodeHeaderCorrupt, "Open", nil).WithDetail("reason", "empty file, read-only")
		}
		if err := db.initializeFile(o); err != nil {
			file.Close()
			return nil, err
		}
	}

	storage, err := openStorage(file, o.RegionSize, o.Logger)
	if err != nil {
		file.Close()
		return nil, err
	}
	db.storage = storage

	if err := db.loadHeaderState(); err != nil {
		storage.close()
		return nil, err
	}

	o.Logger.Info("pstore opened",
		zap.String("path", o.Path),
		zap.String("uuid", db.id.String()),
		zap.Uint64("generation", db.currentGen))

	return db, nil
}

// initializeFile lays down a fresh leader and r0 trailer for a brand-new
// database file. No index header block is written: r0 has none (see
// indexHeaderAddr).
func (db *Database) initializeFile(o *Options) error {
	size := AlignUp(uint64(LeaderSize+TrailerSize), o.RegionSize)
	if err := db.file.Truncate(int64(size)); err != nil {
		return newError(CodeBadAddress, "initializeFile", err)
	}

	leader := make([]byte, LeaderSize)
	id := NewUUID()
	initHeader(leader, id)
	storeFooterPos(leader, Address(LeaderSize))

	r0 := make([]byte, TrailerSize)
	encodeR0Trailer(r0, time.Now())

	if _, err := db.file.WriteAt(leader, 0); err != nil {
		return newError(CodeBadAddress, "initializeFile", err)
	}
	if _, err := db.file.WriteAt(r0, int64(LeaderSize)); err != nil {
		return newError(CodeBadAddress, "initializeFile", err)
	}
	return db.file.Sync()
}

// loadHeaderState validates the leader and loads the current footer.
func (db *Database) loadHeaderState() error {
	leaderBuf, err := db.storage.getro(Address(0), LeaderSize)
	if err != nil {
		return err
	}

	h, err := loadHeader(leaderBuf)
	if err != nil {
		return err
	}
	db.id = h.uuid
	db.footerPos = h.footerPos
	if db.footerPos.IsNull() {
		db.footerPos = Address(LeaderSize)
	}

	trailerBuf, err := db.storage.getro(db.footerPos, TrailerSize)
	if err != nil {
		return err
	}
	tr, err := decodeTrailer(trailerBuf, db.footerPos)
	if err != nil {
		return err
	}

	db.currentGen = tr.generation
	db.writeCursor = uint64(db.footerPos) + TrailerSize
	return nil
}

// UUID returns the database's 128-bit identity.
func (db *Database) UUID() UUID {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.id
}

// GetCurrentRevision returns the generation number of the footer
// currently exposed to readers.
func (db *Database) GetCurrentRevision() uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.currentGen
}

// currentFooter returns the currently exposed footer's address and
// trailer record.
func (db *Database) currentFooter() (Address, *trailer, error) {
	db.mu.RLock()
	pos := db.footerPos
	db.mu.RUnlock()

	buf, err := db.storage.getro(pos, TrailerSize)
	if err != nil {
		return NullAddress, nil, err
	}
	tr, err := decodeTrailer(buf, pos)
	if err != nil {
		return NullAddress, nil, err
	}
	return pos, tr, nil
}

// Sync walks prev_generation links from the current footer until
// generation is found, making it the current revision; the database's
// durable content is otherwise unchanged (§4.2).
func (db *Database) Sync(generation uint64) error {
	pos, tr, err := db.currentFooter()
	if err != nil {
		return err
	}

	for {
		if tr.generation == generation {
			db.mu.Lock()
			db.footerPos = pos
			db.currentGen = tr.generation
			db.mu.Unlock()
			return nil
		}
		if tr.generation == 0 {
			return newError(CodeUnknownRevision, "Database.Sync", nil).WithDetail("generation", generation)
		}

		pos = tr.prevGen
		buf, err := db.storage.getro(pos, TrailerSize)
		if err != nil {
			return err
		}
		tr, err = decodeTrailer(buf, pos)
		if err != nil {
			return err
		}
	}
}

// Revisions returns the generation numbers reachable from the current
// footer back to r0, newest first — an introspection convenience beyond
// the core sync/get_current_revision contract, useful for tooling that
// wants to list history without repeated Sync calls.
func (db *Database) Revisions() ([]uint64, error) {
	pos, tr, err := db.currentFooter()
	if err != nil {
		return nil, err
	}

	var out []uint64
	for {
		out = append(out, tr.generation)
		if tr.generation == 0 {
			return out, nil
		}
		pos = tr.prevGen
		buf, err := db.storage.getro(pos, TrailerSize)
		if err != nil {
			return nil, err
		}
		tr, err = decodeTrailer(buf, pos)
		if err != nil {
			return nil, err
		}
	}
}

// getro delegates to storage, used by read-only callers (HAMT find,
// iteration) that never need a Transaction.
func (db *Database) getro(addr Address, size uint64) ([]byte, error) {
	return db.storage.getro(addr, size)
}

// GetRO reads size bytes at addr from the database's committed content,
// independent of any transaction (§4.3's db.getro<T>(A), used to read
// back a value written through a prior transaction's AllocRW once it has
// committed).
func (db *Database) GetRO(addr Address, size uint64) ([]byte, error) {
	return db.getro(addr, size)
}

// allocate advances the write cursor by size bytes, padding from the
// previous cursor position to satisfy align, and returns the first
// aligned address (§4.2, §4.3). Only ever called by the single open
// writing transaction, which already holds the cross-process write lock;
// no additional synchronization is needed here.
func (db *Database) allocate(size, align uint64) (Address, error) {
	if align == 0 {
		align = 1
	}

	start := AlignUp(db.writeCursor, align)
	end := start + size
	if end > db.storage.size() {
		if err := db.storage.grow(end); err != nil {
			return NullAddress, err
		}
	}

	db.writeCursor = end
	return Address(start), nil
}

// truncateWriteCursor resets the write cursor back to pos, used by
// rollback to discard a transaction's uncommitted allocations (§4.3).
func (db *Database) truncateWriteCursor(pos uint64) {
	db.writeCursor = pos
}

// indexHeaderAddr returns the address of the index header block that
// footerPos's revision references. flush always allocates the index
// header block as the last thing before its trailer (hamt.go), so it
// always sits exactly IndexHeaderSize bytes before the trailer; r0 (the
// empty database) predates any flush and has no header block at all.
func (db *Database) indexHeaderAddr(footerPos Address, generation uint64) Address {
	if generation == 0 {
		return NullAddress
	}
	return Address(uint64(footerPos) - uint64(IndexHeaderSize))
}

// OpenIndex opens the HAMT rooted at the database's current revision.
func (db *Database) OpenIndex() (*HAMT, error) {
	db.mu.RLock()
	pos, gen := db.footerPos, db.currentGen
	db.mu.RUnlock()
	return OpenHAMT(db, db.indexHeaderAddr(pos, gen), gen)
}

// Close flushes and releases the mapped file.
func (db *Database) Close() error {
	return db.storage.close()
}

// Flat sparse address space over a RegionMapper, following the teacher's
// Mari.Data atomic.Value pointer-swap idiom: readers take a snapshot of
// the current RegionMapper pointer so a concurrent Append never tears a
// read in progress (§4.1).
package pstore

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
)

// Storage is the flat, byte-addressable space the rest of the database is
// built on. Addresses are plain file offsets (see Address); callers never
// see window boundaries.
type Storage struct {
	regions atomic.Value // *RegionMapper
	logger  *zap.Logger
	closed  atomic.Bool
}

func openStorage(file *os.File, windowSize uint64, logger *zap.Logger) (*Storage, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, newError(CodeBadAddress, "openStorage", err)
	}

	fileSize := AlignUp(uint64(info.Size()), windowSize)
	if fileSize == 0 {
		fileSize = windowSize
	}
	if uint64(info.Size()) != fileSize {
		if err := file.Truncate(int64(fileSize)); err != nil {
			return nil, newError(CodeBadAddress, "openStorage", err)
		}
	}

	rm, err := NewRegionMapper(file, windowSize, fileSize, logger)
	if err != nil {
		return nil, err
	}

	s := &Storage{logger: logger}
	s.regions.Store(rm)
	return s, nil
}

func (s *Storage) mapper() *RegionMapper {
	return s.regions.Load().(*RegionMapper)
}

// size returns the current extent of the mapped file.
func (s *Storage) size() uint64 {
	return s.mapper().fileSize
}

// grow ensures the mapped file covers at least newSize bytes. It grows a
// private copy of the current RegionMapper and then swaps the pointer, so
// readers holding the previous mapper never see it change under them.
func (s *Storage) grow(newSize uint64) error {
	cur := s.mapper()
	next := *cur
	next.windows = append([]*window(nil), cur.windows...)
	if err := next.Append(newSize); err != nil {
		return err
	}
	s.regions.Store(&next)
	return nil
}

// getro returns a read-only view of size bytes at addr.
func (s *Storage) getro(addr Address, size uint64) ([]byte, error) {
	if s.closed.Load() {
		return nil, newError(CodeStoreClosed, "Storage.getro", nil)
	}
	if addr.IsNull() {
		return nil, newError(CodeBadAddress, "Storage.getro", nil).WithDetail("addr", addr.String())
	}
	return s.mapper().GetRO(addr, size)
}

// getrw returns a writable view of size bytes at addr, failing with
// CodeReadOnlyAddress if addr falls within a page range already protected
// by a prior commit (§4.1, §5).
func (s *Storage) getrw(addr Address, size uint64) (*RWView, error) {
	if s.closed.Load() {
		return nil, newError(CodeStoreClosed, "Storage.getrw", nil)
	}
	if addr.IsNull() {
		return nil, newError(CodeBadAddress, "Storage.getrw", nil).WithDetail("addr", addr.String())
	}
	return s.mapper().GetRW(addr, size)
}

// protect marks [start, end) read-only at the OS level, called once a
// revision's trailer has been durably published.
func (s *Storage) protect(start, end uint64) error {
	if s.closed.Load() {
		return newError(CodeStoreClosed, "Storage.protect", nil)
	}
	return s.mapper().Protect(start, end)
}

// sync flushes all dirty mapped pages to the backing file.
func (s *Storage) sync() error {
	if s.closed.Load() {
		return newError(CodeStoreClosed, "Storage.sync", nil)
	}
	return s.mapper().Sync()
}

// close unmaps and closes the backing file. Idempotent: a second call
// returns CodeStoreClosed instead of re-closing the mapper.
func (s *Storage) close() error {
	if s.closed.Swap(true) {
		return newError(CodeStoreClosed, "Storage.close", nil)
	}
	return s.mapper().Close()
}

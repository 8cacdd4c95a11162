// Region mapper: maps the backing file as a sequence of sorted, contiguous,
// fixed-size memory-mapped windows rather than one single growing mapping,
// so that growing the file never has to unmap-and-remap bytes a reader
// might still be holding a slice into (§4.1). Grounded on the teacher's
// IOUtils.go (mMap/munmap/resizeMmap/flushRegionToDisk) and Types.go's
// MMap []byte / RDONLY / RDWR / COPY constants, generalized from "one big
// growing mmap" to the windowed model.
package pstore

import (
	"os"

	"go.uber.org/zap"
)

// window is one memory-mapped slice of the backing file, always windowSize
// bytes except possibly the last one appended.
type window struct {
	offset    uint64
	size      uint64
	data      []byte
	protected bool
}

func (w *window) end() uint64 { return w.offset + w.size }

// contains reports whether [offset, offset+size) lies entirely within w.
func (w *window) contains(offset, size uint64) bool {
	return offset >= w.offset && offset+size <= w.end()
}

// RegionMapper owns the memory-mapped windows over a single backing file.
// Windows are kept sorted by offset and are contiguous: window[i].end() ==
// window[i+1].offset always holds.
type RegionMapper struct {
	file       *os.File
	windowSize uint64
	windows    []*window
	fileSize   uint64
	logger     *zap.Logger
}

// NewRegionMapper maps the full current extent of file in windowSize chunks.
// fileSize must already be a multiple of windowSize; Open rounds a freshly
// created file up before calling this.
func NewRegionMapper(file *os.File, windowSize uint64, fileSize uint64, logger *zap.Logger) (*RegionMapper, error) {
	rm := &RegionMapper{
		file:       file,
		windowSize: windowSize,
		fileSize:   fileSize,
		logger:     logger,
	}

	var offset uint64
	for offset < fileSize {
		if err := rm.mapWindow(offset, windowSize); err != nil {
			rm.unmapAll()
			return nil, err
		}
		offset += windowSize
	}

	return rm, nil
}

func (rm *RegionMapper) mapWindow(offset, size uint64) error {
	data, err := mmapRW(int(rm.file.Fd()), int64(offset), int(size))
	if err != nil {
		return newError(CodeBadAddress, "RegionMapper.mapWindow", err).
			WithDetail("offset", offset).WithDetail("size", size)
	}
	rm.windows = append(rm.windows, &window{offset: offset, size: size, data: data})
	return nil
}

func (rm *RegionMapper) unmapAll() {
	for _, w := range rm.windows {
		_ = munmapBytes(w.data)
	}
	rm.windows = nil
}

// Append grows the backing file and the mapped region to at least newSize
// bytes, rounded up to a whole number of windows, mirroring the teacher's
// resizeMmap growth step but window-at-a-time instead of remap-the-world.
func (rm *RegionMapper) Append(newSize uint64) error {
	if newSize <= rm.fileSize {
		return nil
	}

	target := AlignUp(newSize, rm.windowSize)
	if err := rm.file.Truncate(int64(target)); err != nil {
		return newError(CodeBadAddress, "RegionMapper.Append", err).WithDetail("target", target)
	}

	for offset := rm.fileSize; offset < target; offset += rm.windowSize {
		if err := rm.mapWindow(offset, rm.windowSize); err != nil {
			return err
		}
	}

	rm.fileSize = target
	return nil
}

// findWindow returns the window covering offset, if any.
func (rm *RegionMapper) findWindow(offset uint64) (*window, bool) {
	for _, w := range rm.windows {
		if offset >= w.offset && offset < w.end() {
			return w, true
		}
	}
	return nil, false
}

// GetRO returns a read-only view of size bytes starting at addr. When the
// range spans more than one window the bytes are copied into a fresh
// buffer, since two separate mmap regions cannot be expressed as a single
// contiguous slice.
func (rm *RegionMapper) GetRO(addr Address, size uint64) ([]byte, error) {
	offset := uint64(addr)
	w, ok := rm.findWindow(offset)
	if !ok {
		return nil, newError(CodeBadAddress, "RegionMapper.GetRO", nil).
			WithDetail("offset", offset).WithDetail("size", size)
	}

	if w.contains(offset, size) {
		start := offset - w.offset
		return w.data[start : start+size], nil
	}

	return rm.copySpanning(offset, size)
}

func (rm *RegionMapper) copySpanning(offset, size uint64) ([]byte, error) {
	out := make([]byte, size)
	remaining := size
	cur := offset

	for remaining > 0 {
		w, ok := rm.findWindow(cur)
		if !ok {
			return nil, newError(CodeBadAddress, "RegionMapper.copySpanning", nil).
				WithDetail("offset", cur)
		}

		start := cur - w.offset
		n := w.size - start
		if n > remaining {
			n = remaining
		}

		copy(out[size-remaining:], w.data[start:start+n])
		cur += n
		remaining -= n
	}

	return out, nil
}

// RWView is a writable view returned by GetRW. When the requested range
// sits entirely inside one window, Bytes aliases the mapped memory
// directly and Commit is a no-op. When it spans windows, Bytes is a
// detached copy and Commit writes the modified bytes back into place -
// the spanning-write analogue of the teacher's copy-on-write node writes.
type RWView struct {
	Bytes  []byte
	commit func() error
}

// Commit flushes a spanning RWView back to its backing windows. Safe to
// call on a non-spanning view, where it is a no-op.
func (v *RWView) Commit() error {
	if v.commit == nil {
		return nil
	}
	return v.commit()
}

// GetRW returns a writable view of size bytes starting at addr. It fails
// with CodeReadOnlyAddress if any covered window has been protected by a
// prior call to Protect (§4.1's read-only-after-commit rule).
func (rm *RegionMapper) GetRW(addr Address, size uint64) (*RWView, error) {
	offset := uint64(addr)
	w, ok := rm.findWindow(offset)
	if !ok {
		return nil, newError(CodeBadAddress, "RegionMapper.GetRW", nil).
			WithDetail("offset", offset).WithDetail("size", size)
	}

	if w.contains(offset, size) {
		if w.protected {
			return nil, newError(CodeReadOnlyAddress, "RegionMapper.GetRW", nil).
				WithDetail("offset", offset)
		}
		start := offset - w.offset
		return &RWView{Bytes: w.data[start : start+size]}, nil
	}

	if err := rm.checkSpanningWritable(offset, size); err != nil {
		return nil, err
	}

	buf, err := rm.copySpanning(offset, size)
	if err != nil {
		return nil, err
	}

	view := &RWView{Bytes: buf}
	view.commit = func() error {
		remaining := uint64(len(buf))
		cur := offset
		for remaining > 0 {
			w, ok := rm.findWindow(cur)
			if !ok {
				return newError(CodeBadAddress, "RWView.Commit", nil).WithDetail("offset", cur)
			}
			start := cur - w.offset
			n := w.size - start
			if n > remaining {
				n = remaining
			}
			copy(w.data[start:start+n], buf[uint64(len(buf))-remaining:])
			cur += n
			remaining -= n
		}
		return nil
	}

	return view, nil
}

func (rm *RegionMapper) checkSpanningWritable(offset, size uint64) error {
	remaining := size
	cur := offset
	for remaining > 0 {
		w, ok := rm.findWindow(cur)
		if !ok {
			return newError(CodeBadAddress, "RegionMapper.checkSpanningWritable", nil).WithDetail("offset", cur)
		}
		if w.protected {
			return newError(CodeReadOnlyAddress, "RegionMapper.checkSpanningWritable", nil).WithDetail("offset", cur)
		}
		start := cur - w.offset
		n := w.size - start
		if n > remaining {
			n = remaining
		}
		cur += n
		remaining -= n
	}
	return nil
}

// Protect marks every window fully contained in [start, end) read-only at
// the OS level, implementing the commit-time protection step of §4.1/§5:
// once a revision is published, nothing may mutate its bytes in place.
func (rm *RegionMapper) Protect(start, end uint64) error {
	for _, w := range rm.windows {
		if w.offset >= start && w.end() <= end && !w.protected {
			if err := mprotectReadOnly(w.data); err != nil {
				return newError(CodeBadAddress, "RegionMapper.Protect", err).WithDetail("offset", w.offset)
			}
			w.protected = true
		}
	}
	return nil
}

// Sync flushes every mapped window to the backing file, the durability
// step Transaction.Commit takes through Storage.sync (teacher's
// flushRegionToDisk).
func (rm *RegionMapper) Sync() error {
	for _, w := range rm.windows {
		if err := msyncSync(w.data); err != nil {
			return newError(CodeBadAddress, "RegionMapper.Sync", err).WithDetail("offset", w.offset)
		}
	}
	return nil
}

// Close unmaps every window and closes the backing file.
func (rm *RegionMapper) Close() error {
	if err := rm.Sync(); err != nil {
		return err
	}
	rm.unmapAll()
	return rm.file.Close()
}

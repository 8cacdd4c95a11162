//go:build !windows

package pstore

import "golang.org/x/sys/unix"

// mmapRW maps size bytes of file starting at offset, shared and
// read-write, following the teacher's Map(file, RDWR, 0) call shape
// (Types.go RDONLY/RDWR/COPY constants; the actual syscall body was not in
// the retrieved sources, so it is rebuilt here directly against
// golang.org/x/sys/unix, the teacher's own dependency). A file opened
// read-only (WithReadOnly) cannot be mapped writable, so it is mapped
// read-only instead.
func mmapRW(fd int, offset int64, size int) ([]byte, error) {
	b, err := unix.Mmap(fd, offset, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err == unix.EACCES {
		return unix.Mmap(fd, offset, size, unix.PROT_READ, unix.MAP_SHARED)
	}
	return b, err
}

// munmapBytes unmaps a previously mapped window.
func munmapBytes(b []byte) error {
	return unix.Munmap(b)
}

// mprotectReadOnly marks a mapped window read-only in place, implementing
// Storage.protect (§4.1): further getrw calls against it fail with
// CodeReadOnlyAddress.
func mprotectReadOnly(b []byte) error {
	return unix.Mprotect(b, unix.PROT_READ)
}

// mprotectReadWrite restores write access to a mapped window. Nothing in
// this package calls it.
func mprotectReadWrite(b []byte) error {
	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE)
}

// msyncSync flushes dirty pages of a mapped window to the backing file
// synchronously, backing flushRegionToDisk's teacher analogue (IOUtils.go).
func msyncSync(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Msync(b, unix.MS_SYNC)
}

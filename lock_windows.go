//go:build windows

package pstore

import "golang.org/x/sys/windows"

// lockWriter blocks until it acquires the exclusive writer lock, the
// Windows counterpart of lock_unix.go's fcntl range lock.
func lockWriter(fd int) error {
	h := windows.Handle(fd)
	var overlapped windows.Overlapped
	overlapped.Offset = uint32(transactionLockOffset)

	err := windows.LockFileEx(h, windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &overlapped)
	if err != nil {
		return newError(CodeTransactionOnReadOnlyDatabase, "lockWriter", err)
	}
	return nil
}

// unlockWriter releases the writer range lock taken by lockWriter.
func unlockWriter(fd int) error {
	h := windows.Handle(fd)
	var overlapped windows.Overlapped
	overlapped.Offset = uint32(transactionLockOffset)
	return windows.UnlockFileEx(h, 0, 1, 0, &overlapped)
}

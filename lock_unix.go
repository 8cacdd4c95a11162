//go:build !windows

// Cross-process writer range lock (§5): an advisory byte-range lock over
// the transaction-lock field of the header's lock block, replacing the
// teacher's lock-free CAS-retry write path (Operation.go) with a single
// exclusive writer, per spec.md §4.3/§5 — see DESIGN.md's Transaction
// entry for the REDESIGN FLAG this implements.
package pstore

import "golang.org/x/sys/unix"

// lockWriter blocks until it acquires the exclusive writer lock. The OS
// releases the range automatically if the holding process dies, so no
// separate crash-recovery path is needed.
func lockWriter(fd int) error {
	lock := unix.Flock_t{
		Type:   unix.F_WRLCK,
		Whence: 0,
		Start:  transactionLockOffset,
		Len:    1,
	}
	if err := unix.FcntlFlock(uintptr(fd), unix.F_SETLKW, &lock); err != nil {
		return newError(CodeTransactionOnReadOnlyDatabase, "lockWriter", err)
	}
	return nil
}

// unlockWriter releases the writer range lock taken by lockWriter.
func unlockWriter(fd int) error {
	lock := unix.Flock_t{
		Type:   unix.F_UNLCK,
		Whence: 0,
		Start:  transactionLockOffset,
		Len:    1,
	}
	return unix.FcntlFlock(uintptr(fd), unix.F_SETLK, &lock)
}

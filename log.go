package pstore

import "go.uber.org/zap"

// newNopLogger returns the default logger used when no WithLogger option
// is supplied, matching the teacher's choice of staying silent by default
// (the teacher's background goroutines print with fmt.Println; this
// module upgrades those call sites to zap but keeps the "quiet unless
// asked" default).
func newNopLogger() *zap.Logger {
	return zap.NewNop()
}

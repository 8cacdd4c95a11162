package pstoretests

import "path/filepath"
import "testing"

import "github.com/sirgallo/pstore"

func tempDBPath(t *testing.T, name string) string {
	return filepath.Join(t.TempDir(), name)
}

func openTestDB(t *testing.T, name string, opts ...pstore.OptionFunc) *pstore.Database {
	path := tempDBPath(t, name)
	db, err := pstore.Open(path, opts...)
	if err != nil { t.Fatalf("Open: %s", err) }
	t.Cleanup(func() { db.Close() })
	return db
}

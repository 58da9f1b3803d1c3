//go:build !windows && !darwin

package securestore

// newPlatformStore falls back to the encrypted SQLite store where no
// OS-level secure storage is available.
func newPlatformStore(path string) (Store, error) {
	return NewSQLiteStore(path)
}

// Package securestore provides opaque keyed blob storage for credential
// material. Backends share one contract: mutations are atomic with respect
// to concurrent readers, so a reader never observes a half-written entry.
package securestore

import (
	"context"
	"sync"
)

// Store is the secure keyed blob storage collaborator. Keys are either a
// service URL or the fixed device-identity key.
type Store interface {
	Save(ctx context.Context, key string, blob []byte) error
	Load(ctx context.Context, key string) (blob []byte, found bool, err error)
	Delete(ctx context.Context, key string) error
}

// New creates the platform-appropriate secure store. On Windows this is a
// DPAPI-encrypted file store, on macOS the system keychain; elsewhere an
// AES-GCM encrypted SQLite store at the given path.
func New(path string) (Store, error) {
	return newPlatformStore(path)
}

// MemoryStore is an in-memory Store used in tests and as the fallback when
// persistent storage is unavailable.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte)}
}

// Save stores a copy of blob under key
func (m *MemoryStore) Save(ctx context.Context, key string, blob []byte) error {
	cp := make([]byte, len(blob))
	copy(cp, blob)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = cp
	return nil
}

// Load returns a copy of the blob stored under key
func (m *MemoryStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blob, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(blob))
	copy(cp, blob)
	return cp, true, nil
}

// Delete removes the entry under key, if any
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

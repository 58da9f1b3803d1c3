//go:build darwin

package securestore

import (
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// KeychainStore uses the macOS Keychain for secure blob storage. Each store
// key maps to a generic-password item account under one service name.
type KeychainStore struct {
	serviceName string
	mu          sync.Mutex
}

// NewKeychainStore creates a new macOS keychain store
func NewKeychainStore() (*KeychainStore, error) {
	return &KeychainStore{serviceName: "AIGatewayClient"}, nil
}

// newPlatformStore creates a macOS keychain store
func newPlatformStore(path string) (Store, error) {
	return NewKeychainStore()
}

// Save stores a blob in the keychain under key
func (k *KeychainStore) Save(ctx context.Context, key string, blob []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	// Keychain passwords are strings; base64 keeps arbitrary blobs intact
	encoded := base64.StdEncoding.EncodeToString(blob)

	cmd := exec.CommandContext(ctx, "security", "add-generic-password",
		"-s", k.serviceName,
		"-a", key,
		"-w", encoded,
		"-U", // Update if exists
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to store item in keychain: %w", err)
	}
	return nil
}

// Load retrieves the blob stored under key
func (k *KeychainStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	cmd := exec.CommandContext(ctx, "security", "find-generic-password",
		"-s", k.serviceName,
		"-a", key,
		"-w", // Output password only
	)
	output, err := cmd.Output()
	if err != nil {
		// Item not found surfaces as a non-zero exit
		return nil, false, nil
	}

	blob, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(output)))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode keychain item: %w", err)
	}
	return blob, true, nil
}

// Delete removes the entry under key, if any
func (k *KeychainStore) Delete(ctx context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	cmd := exec.CommandContext(ctx, "security", "delete-generic-password",
		"-s", k.serviceName,
		"-a", key,
	)
	// Ignore error if item doesn't exist
	cmd.Run()
	return nil
}

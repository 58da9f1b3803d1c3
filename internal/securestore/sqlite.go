package securestore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists blobs in a local SQLite database, encrypting every
// value with AES-GCM before it touches disk. The encryption key is a random
// 256-bit key kept in a 0600 file next to the database.
type SQLiteStore struct {
	conn   *sql.DB
	cipher cipher.AEAD
}

// NewSQLiteStore opens (creating if needed) the store at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	// Ensure store directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	key, err := loadOrCreateKey(path + ".key")
	if err != nil {
		return nil, fmt.Errorf("failed to load store key: %w", err)
	}

	// Open SQLite connection with WAL mode
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store database: %w", err)
	}

	// Set up AES-GCM encryption
	block, err := aes.NewCipher(key)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	s := &SQLiteStore{conn: conn, cipher: gcm}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run store migration: %w", err)
	}

	return s, nil
}

// loadOrCreateKey reads the store encryption key, generating one on first use
func loadOrCreateKey(keyPath string) ([]byte, error) {
	if data, err := os.ReadFile(keyPath); err == nil {
		decoded, err := base64.StdEncoding.DecodeString(string(data))
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("store key file is corrupt")
		}
		return decoded, nil
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		return nil, fmt.Errorf("failed to write key file: %w", err)
	}
	return key, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
		CREATE TABLE IF NOT EXISTS secure_items (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := s.conn.Exec(query)
	return err
}

// Save stores an encrypted blob under key. INSERT OR REPLACE makes the
// write atomic for concurrent readers.
func (s *SQLiteStore) Save(ctx context.Context, key string, blob []byte) error {
	encrypted, err := s.encrypt(blob)
	if err != nil {
		return fmt.Errorf("failed to encrypt value for key %s: %w", key, err)
	}

	query := `
		INSERT OR REPLACE INTO secure_items (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
	`
	if _, err := s.conn.ExecContext(ctx, query, key, encrypted); err != nil {
		return fmt.Errorf("failed to save key %s: %w", key, err)
	}
	return nil
}

// Load retrieves and decrypts the blob stored under key
func (s *SQLiteStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	query := "SELECT value FROM secure_items WHERE key = ?"
	err := s.conn.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load key %s: %w", key, err)
	}

	blob, err := s.decrypt(value)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decrypt value for key %s: %w", key, err)
	}
	return blob, true, nil
}

// Delete removes the entry under key, if any
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM secure_items WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// encrypt encrypts data using AES-GCM
func (s *SQLiteStore) encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, s.cipher.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := s.cipher.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts data using AES-GCM
func (s *SQLiteStore) decrypt(ciphertext string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := s.cipher.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, encrypted := data[:nonceSize], data[nonceSize:]
	plaintext, err := s.cipher.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

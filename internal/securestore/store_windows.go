//go:build windows

package securestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

// DPAPIStore keeps one DPAPI-encrypted file per key under a private
// directory. Writes go through a temp file plus rename, so concurrent
// readers never see a partial entry.
type DPAPIStore struct {
	dir string
	mu  sync.Mutex
}

var (
	crypt32                = windows.NewLazySystemDLL("crypt32.dll")
	procCryptProtectData   = crypt32.NewProc("CryptProtectData")
	procCryptUnprotectData = crypt32.NewProc("CryptUnprotectData")
)

type dataBlob struct {
	cbData uint32
	pbData *byte
}

// NewDPAPIStore creates a DPAPI-backed store rooted at the directory of path
func NewDPAPIStore(path string) (*DPAPIStore, error) {
	dir := filepath.Join(filepath.Dir(path), "secure")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &DPAPIStore{dir: dir}, nil
}

// newPlatformStore creates a Windows DPAPI store
func newPlatformStore(path string) (Store, error) {
	return NewDPAPIStore(path)
}

// itemPath maps a store key to a filesystem-safe path
func (d *DPAPIStore) itemPath(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(d.dir, hex.EncodeToString(sum[:])+".bin")
}

// Save encrypts blob with DPAPI and writes it atomically
func (d *DPAPIStore) Save(ctx context.Context, key string, blob []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	encrypted, err := dpapiEncrypt(blob)
	if err != nil {
		return fmt.Errorf("failed to encrypt item: %w", err)
	}

	path := d.itemPath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write item: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit item: %w", err)
	}
	return nil
}

// Load reads and decrypts the blob stored under key
func (d *DPAPIStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	encrypted, err := os.ReadFile(d.itemPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read item: %w", err)
	}

	blob, err := dpapiDecrypt(encrypted)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decrypt item: %w", err)
	}
	return blob, true, nil
}

// Delete removes the entry under key, if any
func (d *DPAPIStore) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := os.Remove(d.itemPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// dpapiEncrypt encrypts data using Windows DPAPI
func dpapiEncrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("nothing to encrypt")
	}

	inBlob := dataBlob{cbData: uint32(len(data)), pbData: &data[0]}
	var outBlob dataBlob

	ret, _, err := procCryptProtectData.Call(
		uintptr(unsafe.Pointer(&inBlob)),
		0, // description
		0, // optional entropy
		0, // reserved
		0, // prompt struct
		0, // flags
		uintptr(unsafe.Pointer(&outBlob)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("CryptProtectData failed: %v", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(outBlob.pbData)))

	out := make([]byte, outBlob.cbData)
	copy(out, unsafe.Slice(outBlob.pbData, outBlob.cbData))
	return out, nil
}

// dpapiDecrypt decrypts data using Windows DPAPI
func dpapiDecrypt(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("nothing to decrypt")
	}

	inBlob := dataBlob{cbData: uint32(len(data)), pbData: &data[0]}
	var outBlob dataBlob

	ret, _, err := procCryptUnprotectData.Call(
		uintptr(unsafe.Pointer(&inBlob)),
		0, // description
		0, // optional entropy
		0, // reserved
		0, // prompt struct
		0, // flags
		uintptr(unsafe.Pointer(&outBlob)),
	)
	if ret == 0 {
		return nil, fmt.Errorf("CryptUnprotectData failed: %v", err)
	}
	defer windows.LocalFree(windows.Handle(unsafe.Pointer(outBlob.pbData)))

	out := make([]byte, outBlob.cbData)
	copy(out, unsafe.Slice(outBlob.pbData, outBlob.cbData))
	return out, nil
}

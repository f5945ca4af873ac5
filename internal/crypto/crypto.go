// Package crypto derives database encryption keys from the configured master secret.
//
// The master secret is never handed to SQLCipher directly. Each store gets its own key,
// derived with HKDF-SHA256 and bound to the store name and a key version so the secret
// can be reused for other stores and keys can be rotated by bumping the version.
package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// KeySize is the size of a derived store key in bytes (256 bits).
	KeySize = 32

	// MinMasterKeySize is the shortest master secret accepted.
	MinMasterKeySize = 32

	// CurrentKeyVersion is the version used for newly created stores.
	CurrentKeyVersion = 1
)

// DeriveStoreKey derives a store key from masterKey using HKDF-SHA256.
// info = "store:" + store + ":v" + version
func DeriveStoreKey(masterKey []byte, store string, version int) ([]byte, error) {
	if len(masterKey) < MinMasterKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeySize, len(masterKey))
	}
	if version < 1 {
		return nil, fmt.Errorf("key version must be positive, got %d", version)
	}

	info := fmt.Sprintf("store:%s:v%d", store, version)
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}
	return key, nil
}

package hash

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrEmptyMasterKey is returned when a key is derived from an empty secret.
var ErrEmptyMasterKey = errors.New("hash: master key is empty")

// DeriveKey expands master into a size-byte key bound to purpose, so one
// configured secret can key several independent hashers.
func DeriveKey(master []byte, purpose string, size int) ([]byte, error) {
	if len(master) == 0 {
		return nil, ErrEmptyMasterKey
	}

	key := make([]byte, size)
	r := hkdf.New(sha256.New, master, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("hash: derive %s key: %w", purpose, err)
	}
	return key, nil
}

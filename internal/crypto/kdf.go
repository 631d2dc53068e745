package crypto

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// DeriveKey runs HKDF-SHA256 over ikm with an empty salt and empty info and
// returns length bytes.
func DeriveKey(ikm []byte, length int) ([]byte, error) {
	out := make([]byte, length)
	if _, err := io.ReadFull(hkdf.New(sha256.New, ikm, nil, nil), out); err != nil {
		return nil, err
	}
	return out, nil
}

package store

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"duet/internal/domain"
)

const (
	// The current supported version of the sealed record format stored on disk.
	recordFormatVersion = 1
)

// blob is the on‑disk JSON structure holding the ciphertext and KDF parameters.
type blob struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Cipher []byte `json:"cipher"`
}

// KDFParams are the scrypt cost parameters used when sealing new records.
// Records carry their own parameters, so changing these never breaks reads.
type KDFParams struct {
	N, R, P int
}

// DefaultKDF returns the production scrypt cost.
func DefaultKDF() KDFParams { return KDFParams{N: 1 << 15, R: 8, P: 1} }

// Sealer encrypts records under the node master secret.
type Sealer struct {
	secret string
	params KDFParams
}

// NewSealer returns a Sealer for secret. Zero params select DefaultKDF.
func NewSealer(secret string, params KDFParams) *Sealer {
	if params.N == 0 {
		params = DefaultKDF()
	}
	return &Sealer{secret: secret, params: params}
}

// Seal derives a key from the master secret and seals raw into a JSON blob.
func (s *Sealer) Seal(raw []byte) ([]byte, error) {
	var salt [16]byte
	if _, err := rand.Read(salt[:] /* #nosec G404 */); err != nil {
		return nil, err
	}
	p := s.params
	key, err := scrypt.Key([]byte(s.secret), salt[:], p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte // zero nonce; salt‑bound key guarantees uniqueness
	ct := aead.Seal(nil, nonce[:], raw, salt[:])

	return json.Marshal(blob{
		V:      recordFormatVersion,
		Salt:   salt[:],
		N:      p.N,
		R:      p.R,
		P:      p.P,
		Cipher: ct,
	})
}

// Open reverses Seal. A wrong secret or a modified record yields
// domain.ErrDecryptionFailed.
func (s *Sealer) Open(b []byte) ([]byte, error) {
	var bl blob
	if err := json.Unmarshal(b, &bl); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryptionFailed, err)
	}
	if bl.V > recordFormatVersion {
		return nil, fmt.Errorf("unsupported record version %d", bl.V)
	}

	key, err := scrypt.Key([]byte(s.secret), bl.Salt, bl.N, bl.R, bl.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	var nonce [12]byte
	pt, err := aead.Open(nil, nonce[:], bl.Cipher, bl.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong master secret or corrupted record", domain.ErrDecryptionFailed)
	}
	return pt, nil
}

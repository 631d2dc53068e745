package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/util/memzero"
)

const keysDir = "keys"

// KeyFileStore persists private keys, one sealed file per label.
type KeyFileStore struct {
	dir    string
	sealer *Sealer
	mu     sync.Mutex
}

// NewKeyFileStore returns a KeyFileStore rooted at dir/keys.
func NewKeyFileStore(dir string, sealer *Sealer) *KeyFileStore {
	return &KeyFileStore{dir: filepath.Join(dir, keysDir), sealer: sealer}
}

// keyRecord is the plaintext inside a sealed key file.
type keyRecord struct {
	Kind domain.KeyKind `json:"kind"`
	Key  []byte         `json:"key"`
}

// Generate creates a key of the given kind and persists it under label.
func (s *KeyFileStore) Generate(label domain.KeyLabel, kind domain.KeyKind) (domain.PrivateKey, error) {
	var priv domain.PrivateKey
	switch kind {
	case domain.KeyDH:
		k, _, err := crypto.GenerateX25519()
		if err != nil {
			return domain.PrivateKey{}, err
		}
		priv = domain.DHKey(k)
	case domain.KeySigning:
		k, _, err := crypto.GenerateEd25519()
		if err != nil {
			return domain.PrivateKey{}, err
		}
		priv = domain.SigningKey(k)
	default:
		return domain.PrivateKey{}, fmt.Errorf("generate %s: unknown key kind %v", label, kind)
	}
	if err := s.Persist(label, priv); err != nil {
		return domain.PrivateKey{}, err
	}
	return priv, nil
}

// Persist seals priv under label, replacing any previous key.
func (s *KeyFileStore) Persist(label domain.KeyLabel, priv domain.PrivateKey) error {
	path, err := s.path(label)
	if err != nil {
		return err
	}
	rec := keyRecord{Kind: priv.Kind}
	switch priv.Kind {
	case domain.KeyDH:
		rec.Key = append([]byte(nil), priv.DH[:]...)
	case domain.KeySigning:
		rec.Key = append([]byte(nil), priv.Signing[:]...)
	default:
		return fmt.Errorf("persist %s: unknown key kind %v", label, priv.Kind)
	}
	raw, err := json.Marshal(rec)
	memzero.Zero(rec.Key)
	if err != nil {
		return err
	}
	ct, err := s.sealer.Seal(raw)
	memzero.Zero(raw)
	if err != nil {
		return fmt.Errorf("seal %s: %w", label, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFile(path, ct, 0o600)
}

// Load returns the key stored under label.
func (s *KeyFileStore) Load(label domain.KeyLabel) (domain.PrivateKey, error) {
	path, err := s.path(label)
	if err != nil {
		return domain.PrivateKey{}, err
	}

	s.mu.Lock()
	b, err := readFile(path)
	s.mu.Unlock()
	if err != nil {
		return domain.PrivateKey{}, err
	}
	if b == nil {
		return domain.PrivateKey{}, fmt.Errorf("%w: %s", domain.ErrKeyNotFound, label)
	}

	pt, err := s.sealer.Open(b)
	if err != nil {
		return domain.PrivateKey{}, fmt.Errorf("load %s: %w", label, err)
	}
	defer memzero.Zero(pt)
	var rec keyRecord
	if err := json.Unmarshal(pt, &rec); err != nil {
		return domain.PrivateKey{}, fmt.Errorf("load %s: %w", label, err)
	}
	defer memzero.Zero(rec.Key)

	switch rec.Kind {
	case domain.KeyDH:
		var k domain.X25519Private
		if len(rec.Key) != len(k) {
			return domain.PrivateKey{}, fmt.Errorf("load %s: bad dh key length %d", label, len(rec.Key))
		}
		copy(k[:], rec.Key)
		return domain.DHKey(k), nil
	case domain.KeySigning:
		var k domain.Ed25519Private
		if len(rec.Key) != len(k) {
			return domain.PrivateKey{}, fmt.Errorf("load %s: bad signing key length %d", label, len(rec.Key))
		}
		copy(k[:], rec.Key)
		return domain.SigningKey(k), nil
	default:
		return domain.PrivateKey{}, fmt.Errorf("load %s: unknown key kind %v", label, rec.Kind)
	}
}

// Delete removes the key stored under label. Deleting a missing key is not an error.
func (s *KeyFileStore) Delete(label domain.KeyLabel) error {
	path, err := s.path(label)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(path)
}

// DerivePublic returns the raw public bytes of priv.
func (s *KeyFileStore) DerivePublic(priv domain.PrivateKey) ([]byte, error) {
	switch priv.Kind {
	case domain.KeyDH:
		pub, err := crypto.PublicX25519(priv.DH)
		if err != nil {
			return nil, err
		}
		return pub[:], nil
	case domain.KeySigning:
		pub := crypto.PublicEd25519(priv.Signing)
		return pub[:], nil
	default:
		return nil, fmt.Errorf("derive public: unknown key kind %v", priv.Kind)
	}
}

// Wipe removes every stored key. Used when an account is replaced.
func (s *KeyFileStore) Wipe() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.RemoveAll(s.dir)
}

func (s *KeyFileStore) path(label domain.KeyLabel) (string, error) {
	name, err := safeName(label.String())
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+".key"), nil
}

// Compile-time assertion that KeyFileStore implements domain.KeyStore.
var _ domain.KeyStore = (*KeyFileStore)(nil)

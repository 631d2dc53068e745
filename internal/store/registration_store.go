package store

import (
	"encoding/json"
	"path/filepath"
	"sync"

	"duet/internal/domain"
)

const registrationFile = "registration.json"

// RegistrationFileStore caches the public key material last published at
// signup, so it can be shown or re-sent without touching private keys.
type RegistrationFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewRegistrationFileStore returns a RegistrationFileStore rooted at dir.
func NewRegistrationFileStore(dir string) *RegistrationFileStore {
	return &RegistrationFileStore{dir: dir}
}

// SaveRegistration writes the published registration.
func (s *RegistrationFileStore) SaveRegistration(reg domain.Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSON(filepath.Join(s.dir, registrationFile), reg, 0o600)
}

// LoadRegistration reads the published registration, if any.
func (s *RegistrationFileStore) LoadRegistration() (domain.Registration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reg domain.Registration
	b, err := readFile(filepath.Join(s.dir, registrationFile))
	if err != nil || b == nil {
		return reg, false, err
	}
	if err := json.Unmarshal(b, &reg); err != nil {
		return reg, false, err
	}
	return reg, true, nil
}

// Compile-time assertion that RegistrationFileStore implements domain.RegistrationStore.
var _ domain.RegistrationStore = (*RegistrationFileStore)(nil)

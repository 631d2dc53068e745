package store

import (
	"path/filepath"
	"sync"

	"duet/internal/domain"
)

const accountsFile = "accounts.json"

// AccountFileStore persists local account profiles to disk.
type AccountFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewAccountFileStore returns an AccountFileStore rooted at dir.
func NewAccountFileStore(dir string) *AccountFileStore {
	return &AccountFileStore{dir: dir}
}

// SaveAccount stores or updates the given profile.
func (s *AccountFileStore) SaveAccount(account domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, accountsFile)
	accounts := make(map[domain.Telephone]domain.Account)
	if err := readJSON(path, &accounts); err != nil {
		return err
	}
	accounts[account.Telephone] = account
	return writeJSON(path, accounts, 0o600)
}

// LoadAccount retrieves the profile for telephone.
func (s *AccountFileStore) LoadAccount(telephone domain.Telephone) (domain.Account, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, accountsFile)
	accounts := make(map[domain.Telephone]domain.Account)
	if err := readJSON(path, &accounts); err != nil {
		return domain.Account{}, false, err
	}
	account, ok := accounts[telephone]
	return account, ok, nil
}

// Compile-time assertion that AccountFileStore implements domain.AccountStore.
var _ domain.AccountStore = (*AccountFileStore)(nil)

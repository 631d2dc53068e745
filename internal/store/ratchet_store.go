package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"duet/internal/domain"
	"duet/internal/util/memzero"
)

const (
	ratchetsDir     = "ratchets"
	committedSuffix = ".committed"
	tentativeSuffix = ".tentative"
)

// RatchetFileStore persists per-chat ratchet sets. Each chat has at most one
// committed and one tentative sealed file; promotion is a rename, so a
// reader never observes a partially written set.
type RatchetFileStore struct {
	dir    string
	sealer *Sealer
	mu     sync.Mutex
}

// NewRatchetFileStore returns a RatchetFileStore rooted at dir/ratchets.
func NewRatchetFileStore(dir string, sealer *Sealer) *RatchetFileStore {
	return &RatchetFileStore{dir: filepath.Join(dir, ratchetsDir), sealer: sealer}
}

// ratchetRecord is the plaintext inside a sealed ratchet file.
type ratchetRecord struct {
	DHRatchet   []byte `json:"dh_ratchet"`
	RootRatchet []byte `json:"root_ratchet"`
	UserRatchet []byte `json:"user_ratchet"`
}

// Save writes set for chat into the committed or tentative namespace.
func (s *RatchetFileStore) Save(chat domain.ChatID, set domain.RatchetSet, tentative bool) error {
	committed, pending, err := s.paths(chat)
	if err != nil {
		return err
	}
	rec := ratchetRecord{
		DHRatchet:   append([]byte(nil), set.DHRatchet[:]...),
		RootRatchet: append([]byte(nil), set.Root[:]...),
		UserRatchet: append([]byte(nil), set.PeerRatchetPub[:]...),
	}
	raw, err := json.Marshal(rec)
	memzero.Zero(rec.DHRatchet)
	memzero.Zero(rec.RootRatchet)
	if err != nil {
		return err
	}
	ct, err := s.sealer.Seal(raw)
	memzero.Zero(raw)
	if err != nil {
		return fmt.Errorf("seal ratchet %s: %w", chat, err)
	}

	path := committed
	if tentative {
		path = pending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFile(path, ct, 0o600)
}

// Load returns the committed set for chat.
func (s *RatchetFileStore) Load(chat domain.ChatID) (domain.RatchetSet, bool, error) {
	committed, _, err := s.paths(chat)
	if err != nil {
		return domain.RatchetSet{}, false, err
	}
	return s.load(committed)
}

// LoadTentative returns the pending set for chat, if any.
func (s *RatchetFileStore) LoadTentative(chat domain.ChatID) (domain.RatchetSet, bool, error) {
	_, pending, err := s.paths(chat)
	if err != nil {
		return domain.RatchetSet{}, false, err
	}
	return s.load(pending)
}

// Promote makes the pending set committed. Without a pending set it does
// nothing, so repeated promotion is harmless.
func (s *RatchetFileStore) Promote(chat domain.ChatID) error {
	committed, pending, err := s.paths(chat)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(pending); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	return os.Rename(pending, committed)
}

// Discard drops the pending set for chat and keeps the committed one.
func (s *RatchetFileStore) Discard(chat domain.ChatID) error {
	_, pending, err := s.paths(chat)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return removeFile(pending)
}

func (s *RatchetFileStore) load(path string) (domain.RatchetSet, bool, error) {
	s.mu.Lock()
	b, err := readFile(path)
	s.mu.Unlock()
	if err != nil || b == nil {
		return domain.RatchetSet{}, false, err
	}

	pt, err := s.sealer.Open(b)
	if err != nil {
		return domain.RatchetSet{}, false, err
	}
	defer memzero.Zero(pt)
	var rec ratchetRecord
	if err := json.Unmarshal(pt, &rec); err != nil {
		return domain.RatchetSet{}, false, err
	}

	var set domain.RatchetSet
	if len(rec.DHRatchet) != len(set.DHRatchet) ||
		len(rec.RootRatchet) != len(set.Root) ||
		len(rec.UserRatchet) != len(set.PeerRatchetPub) {
		return domain.RatchetSet{}, false, fmt.Errorf("ratchet record %s is truncated", filepath.Base(path))
	}
	copy(set.DHRatchet[:], rec.DHRatchet)
	copy(set.Root[:], rec.RootRatchet)
	copy(set.PeerRatchetPub[:], rec.UserRatchet)
	memzero.Zero(rec.DHRatchet)
	memzero.Zero(rec.RootRatchet)
	return set, true, nil
}

func (s *RatchetFileStore) paths(chat domain.ChatID) (committed, pending string, err error) {
	name, err := safeName(chat.String())
	if err != nil {
		return "", "", err
	}
	base := filepath.Join(s.dir, name)
	return base + committedSuffix, base + tentativeSuffix, nil
}

// Compile-time assertion that RatchetFileStore implements domain.RatchetStore.
var _ domain.RatchetStore = (*RatchetFileStore)(nil)

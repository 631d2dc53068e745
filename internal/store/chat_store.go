package store

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"duet/internal/domain"
)

const chatsFile = "chats.json"

// ChatFileStore persists the chat directory to a single JSON file.
type ChatFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewChatFileStore returns a ChatFileStore rooted at dir.
func NewChatFileStore(dir string) *ChatFileStore {
	return &ChatFileStore{dir: dir}
}

// SaveChat stores or replaces chat.
func (s *ChatFileStore) SaveChat(chat domain.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.read()
	if err != nil {
		return err
	}
	chats[chatKey(chat.Owner, chat.ID)] = chat
	return s.write(chats)
}

// LoadChat returns the chat id owned by owner.
func (s *ChatFileStore) LoadChat(owner domain.Telephone, id domain.ChatID) (domain.Chat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.read()
	if err != nil {
		return domain.Chat{}, false, err
	}
	c, ok := chats[chatKey(owner, id)]
	return c, ok, nil
}

// SetBackRef records the peer's chat id exactly once.
func (s *ChatFileStore) SetBackRef(owner domain.Telephone, id, back domain.ChatID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.read()
	if err != nil {
		return err
	}
	key := chatKey(owner, id)
	c, ok := chats[key]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, id)
	}
	switch c.BackRef {
	case back:
		return nil
	case "":
		c.BackRef = back
		chats[key] = c
		return s.write(chats)
	default:
		return fmt.Errorf("%w: chat %s already bound to %s", domain.ErrProtocolState, id, c.BackRef)
	}
}

// ListChats returns owner's chats, oldest first.
func (s *ChatFileStore) ListChats(owner domain.Telephone) ([]domain.Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats, err := s.read()
	if err != nil {
		return nil, err
	}
	var out []domain.Chat
	for _, c := range chats {
		if c.Owner == owner {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *ChatFileStore) read() (map[string]domain.Chat, error) {
	chats := make(map[string]domain.Chat)
	if err := readJSON(filepath.Join(s.dir, chatsFile), &chats); err != nil {
		return nil, err
	}
	return chats, nil
}

func (s *ChatFileStore) write(chats map[string]domain.Chat) error {
	return writeJSON(filepath.Join(s.dir, chatsFile), chats, 0o600)
}

func chatKey(owner domain.Telephone, id domain.ChatID) string {
	return fmt.Sprintf("%s|%s", owner, id)
}

// Compile-time assertion that ChatFileStore implements domain.ChatStore.
var _ domain.ChatStore = (*ChatFileStore)(nil)

package session

import (
	"sync"

	"duet/internal/domain"
)

// chatLocks serializes ratchet updates per chat.
type chatLocks struct {
	mu    sync.Mutex
	locks map[domain.ChatID]*sync.Mutex
}

func (l *chatLocks) lock(chat domain.ChatID) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[domain.ChatID]*sync.Mutex)
	}
	m, ok := l.locks[chat]
	if !ok {
		m = &sync.Mutex{}
		l.locks[chat] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

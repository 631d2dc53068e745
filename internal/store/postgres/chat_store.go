// Package postgres provides a PostgreSQL-backed chat directory for nodes
// that share a database with other services.
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"duet/internal/domain"
)

const migration = `
CREATE TABLE IF NOT EXISTS chats (
	owner       TEXT NOT NULL,
	id          TEXT NOT NULL,
	peer        TEXT NOT NULL,
	peer_name   TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	back_id     TEXT,
	initiator   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner, id)
);
CREATE INDEX IF NOT EXISTS idx_chats_owner ON chats(owner, created_at);
`

// ChatStore implements domain.ChatStore on a *sql.DB.
type ChatStore struct {
	db *sql.DB
}

// Open connects to dsn with the lib/pq driver and runs the migration.
func Open(dsn string) (*ChatStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := NewChatStore(db)
	if err := s.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewChatStore wraps an existing connection pool.
func NewChatStore(db *sql.DB) *ChatStore {
	return &ChatStore{db: db}
}

// Migrate creates the chats table if needed.
func (s *ChatStore) Migrate() error {
	if _, err := s.db.Exec(migration); err != nil {
		return fmt.Errorf("failed to migrate chats: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *ChatStore) Close() error { return s.db.Close() }

// SaveChat inserts chat or replaces its mutable columns. The back
// reference is only ever filled, never overwritten.
func (s *ChatStore) SaveChat(chat domain.Chat) error {
	_, err := s.db.Exec(`
		INSERT INTO chats (owner, id, peer, peer_name, name, description, back_id, initiator, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		ON CONFLICT (owner, id) DO UPDATE
		SET peer_name = $4, name = $5, description = $6,
		    back_id = COALESCE(chats.back_id, NULLIF($7, ''))`,
		chat.Owner, chat.ID, chat.Peer, chat.PeerName, chat.Name, chat.Description,
		chat.BackRef, chat.Initiator, chat.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save chat: %w", err)
	}
	return nil
}

// LoadChat returns the chat id owned by owner.
func (s *ChatStore) LoadChat(owner domain.Telephone, id domain.ChatID) (domain.Chat, bool, error) {
	row := s.db.QueryRow(`
		SELECT owner, id, peer, peer_name, name, description, COALESCE(back_id, ''), initiator, created_at
		FROM chats WHERE owner = $1 AND id = $2`, owner, id)
	c, err := scanChat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chat{}, false, nil
	}
	if err != nil {
		return domain.Chat{}, false, fmt.Errorf("failed to load chat: %w", err)
	}
	return c, true, nil
}

// SetBackRef fills the back reference once. A repeat with the same value is
// accepted; a different value is a protocol state error.
func (s *ChatStore) SetBackRef(owner domain.Telephone, id, back domain.ChatID) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current sql.NullString
	err = tx.QueryRow(`SELECT back_id FROM chats WHERE owner = $1 AND id = $2 FOR UPDATE`, owner, id).
		Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read back reference: %w", err)
	}
	if current.Valid {
		if domain.ChatID(current.String) == back {
			return nil
		}
		return fmt.Errorf("%w: chat %s already bound to %s", domain.ErrProtocolState, id, current.String)
	}

	if _, err := tx.Exec(`UPDATE chats SET back_id = $3 WHERE owner = $1 AND id = $2 AND back_id IS NULL`,
		owner, id, back); err != nil {
		return fmt.Errorf("failed to set back reference: %w", err)
	}
	return tx.Commit()
}

// ListChats returns owner's chats, oldest first.
func (s *ChatStore) ListChats(owner domain.Telephone) ([]domain.Chat, error) {
	rows, err := s.db.Query(`
		SELECT owner, id, peer, peer_name, name, description, COALESCE(back_id, ''), initiator, created_at
		FROM chats WHERE owner = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var out []domain.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (domain.Chat, error) {
	var (
		c                     domain.Chat
		owner, id, peer, back string
	)
	err := row.Scan(&owner, &id, &peer, &c.PeerName, &c.Name, &c.Description, &back, &c.Initiator, &c.CreatedAt)
	if err != nil {
		return domain.Chat{}, err
	}
	c.Owner, c.ID, c.Peer, c.BackRef = domain.Telephone(owner), domain.ChatID(id), domain.Telephone(peer), domain.ChatID(back)
	return c, nil
}

// Compile-time assertion that ChatStore implements domain.ChatStore.
var _ domain.ChatStore = (*ChatStore)(nil)

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"duet/internal/domain"
)

// MemoryMailbox parks frames in process memory.
type MemoryMailbox struct {
	mu    sync.Mutex
	boxes map[domain.Telephone][]domain.Frame
}

// NewMemoryMailbox returns an empty in-memory mailbox.
func NewMemoryMailbox() *MemoryMailbox {
	return &MemoryMailbox{boxes: make(map[domain.Telephone][]domain.Frame)}
}

// Push appends frame to to's box.
func (m *MemoryMailbox) Push(_ context.Context, to domain.Telephone, frame domain.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.boxes[to] = append(m.boxes[to], frame)
	return nil
}

// Drain returns and clears to's box in arrival order.
func (m *MemoryMailbox) Drain(_ context.Context, to domain.Telephone) ([]domain.Frame, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.boxes[to]
	delete(m.boxes, to)
	return out, nil
}

const (
	// mailboxPrefix + telephone holds a list of JSON frames.
	mailboxPrefix = "duet:mailbox:"
	// MailboxTTL bounds how long frames wait for an offline user.
	MailboxTTL = 7 * 24 * time.Hour
)

// RedisMailbox parks frames in Redis lists so they survive relay restarts.
type RedisMailbox struct {
	rdb *redis.Client
}

// NewRedisMailbox wraps a connected client.
func NewRedisMailbox(rdb *redis.Client) *RedisMailbox {
	return &RedisMailbox{rdb: rdb}
}

// OpenRedisMailbox parses a redis:// URL, connects and pings.
func OpenRedisMailbox(ctx context.Context, url string) (*RedisMailbox, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}
	return NewRedisMailbox(rdb), nil
}

// Close releases the client.
func (m *RedisMailbox) Close() error { return m.rdb.Close() }

// Push appends frame to to's list and refreshes its expiry.
func (m *RedisMailbox) Push(ctx context.Context, to domain.Telephone, frame domain.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	key := mailboxPrefix + to.String()
	pipe := m.rdb.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, MailboxTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to park frame: %w", err)
	}
	return nil
}

// Drain atomically reads and deletes to's list.
func (m *RedisMailbox) Drain(ctx context.Context, to domain.Telephone) ([]domain.Frame, error) {
	key := mailboxPrefix + to.String()
	pipe := m.rdb.TxPipeline()
	items := pipe.LRange(ctx, key, 0, -1)
	pipe.Del(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to drain mailbox: %w", err)
	}

	out := make([]domain.Frame, 0, len(items.Val()))
	for _, raw := range items.Val() {
		var f domain.Frame
		if err := json.Unmarshal([]byte(raw), &f); err != nil {
			return out, fmt.Errorf("failed to unmarshal parked frame: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}

var (
	_ Mailbox = (*MemoryMailbox)(nil)
	_ Mailbox = (*RedisMailbox)(nil)
)

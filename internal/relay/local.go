package relay

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"duet/internal/domain"
)

const eventBuffer = 256

var errConnClosed = errors.New("connection closed")

// LocalTransport connects a node to an in-process Hub.
type LocalTransport struct {
	hub    *Hub
	events chan domain.Frame

	mu      sync.Mutex
	offline bool
	closed  bool
}

// NewLocalTransport attaches a new transport to hub.
func NewLocalTransport(hub *Hub) *LocalTransport {
	return &LocalTransport{hub: hub, events: make(chan domain.Frame, eventBuffer)}
}

// SetOffline simulates losing (or regaining) the network. While offline,
// Emit fails with domain.ErrTransientNetwork and inbound frames are parked
// at the relay.
func (t *LocalTransport) SetOffline(offline bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offline = offline
}

// Emit dispatches frame to the hub synchronously.
func (t *LocalTransport) Emit(ctx context.Context, frame domain.Frame) error {
	t.mu.Lock()
	offline, closed := t.offline, t.closed
	t.mu.Unlock()
	if closed {
		return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, errConnClosed)
	}
	if offline {
		return fmt.Errorf("%w: relay unreachable", domain.ErrTransientNetwork)
	}
	t.hub.Dispatch(ctx, t, frame)
	return nil
}

// Send implements Conn. It never blocks.
func (t *LocalTransport) Send(frame domain.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || t.offline {
		return errConnClosed
	}
	select {
	case t.events <- frame:
		return nil
	default:
		return errors.New("event buffer full")
	}
}

// Events returns inbound frames.
func (t *LocalTransport) Events() <-chan domain.Frame { return t.events }

// Close detaches from the hub and closes Events.
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.events)
	t.mu.Unlock()
	t.hub.Detach(t)
	return nil
}

var (
	_ domain.Transport = (*LocalTransport)(nil)
	_ Conn             = (*LocalTransport)(nil)
)

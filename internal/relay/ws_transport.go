package relay

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duet/internal/domain"
)

// WSTransport is the node side of a websocket connection to the relay.
// A lost connection is redialled lazily by the next Emit; losing it is
// reported on Events as a local disconnect frame (empty sender).
type WSTransport struct {
	url    string
	secret string
	dialer *websocket.Dialer
	log    *zap.Logger
	events chan domain.Frame
	done   chan struct{}

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// NewWSTransport returns a transport for the relay websocket at url
// (ws:// or wss://). No connection is made until the first Emit or Dial.
func NewWSTransport(url, secret string, log *zap.Logger) *WSTransport {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSTransport{
		url:    url,
		secret: secret,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log,
		events: make(chan domain.Frame, eventBuffer),
		done:   make(chan struct{}),
	}
}

// Dial connects if not already connected.
func (t *WSTransport) Dial(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialLocked(ctx)
}

func (t *WSTransport) dialLocked(ctx context.Context) error {
	if t.closed {
		return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, errConnClosed)
	}
	if t.conn != nil {
		return nil
	}
	h := http.Header{}
	if t.secret != "" {
		h.Set(AppSecretHeader, t.secret)
	}
	conn, resp, err := t.dialer.DialContext(ctx, t.url, h)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: relay rejected application secret", domain.ErrPermanentFailure)
		}
		return fmt.Errorf("%w: dial %s: %v", domain.ErrTransientNetwork, t.url, err)
	}
	t.conn = conn
	go t.readLoop(conn)
	return nil
}

// Emit writes frame, dialling first if needed.
func (t *WSTransport) Emit(ctx context.Context, frame domain.Frame) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.dialLocked(ctx); err != nil {
		return err
	}
	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteJSON(frame); err != nil {
		_ = t.conn.Close()
		t.conn = nil
		return fmt.Errorf("%w: write %s: %v", domain.ErrTransientNetwork, frame.Event, err)
	}
	return nil
}

// Events returns inbound frames. It is not closed; delivery stops after Close.
func (t *WSTransport) Events() <-chan domain.Frame { return t.events }

// Close shuts the connection down for good.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	var err error
	if t.conn != nil {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = t.conn.Close()
		t.conn = nil
	}
	return err
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	for {
		var frame domain.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.mu.Lock()
			current := t.conn == conn
			if current {
				t.conn = nil
			}
			t.mu.Unlock()
			_ = conn.Close()

			if current {
				t.log.Warn("relay connection lost", zap.Error(err))
				t.push(domain.Frame{Event: domain.EventDisconnect})
			}
			return
		}
		t.push(frame)
	}
}

func (t *WSTransport) push(f domain.Frame) {
	select {
	case t.events <- f:
	case <-t.done:
	}
}

var _ domain.Transport = (*WSTransport)(nil)

package relay

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"duet/internal/domain"
)

// AppSecretHeader carries the pre-shared application secret on upgrade.
const AppSecretHeader = "X-App-Secret"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Server exposes a Hub over websockets.
type Server struct {
	hub      *Hub
	secret   string
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewServer returns a server guarding /ws with secret (no check when empty).
func NewServer(hub *Hub, secret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		hub:    hub,
		secret: secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		log: log,
	}
}

// Router returns the relay's HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" &&
		subtle.ConstantTimeCompare([]byte(r.Header.Get(AppSecretHeader)), []byte(s.secret)) != 1 {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.Error(err))
		return
	}
	c := &wsConn{ws: ws, send: make(chan []byte, eventBuffer), done: make(chan struct{})}
	go c.writePump()
	c.readPump(r.Context(), s.hub, s.log)
}

// wsConn is the relay side of one websocket.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte

	once sync.Once
	done chan struct{}
}

// Send implements Conn.
func (c *wsConn) Send(frame domain.Frame) error {
	b, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errConnClosed
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *wsConn) readPump(ctx context.Context, hub *Hub, log *zap.Logger) {
	defer func() {
		hub.Detach(c)
		c.close()
	}()
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame domain.Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("read failed", zap.Error(err))
			}
			return
		}
		hub.Dispatch(ctx, c, frame)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var _ Conn = (*wsConn)(nil)

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"duet/internal/crypto"
	"duet/internal/domain"
)

// Conn is the relay side of a node connection.
type Conn interface {
	// Send hands frame to the node without blocking.
	Send(frame domain.Frame) error
}

// Mailbox parks frames for offline users.
type Mailbox interface {
	Push(ctx context.Context, to domain.Telephone, frame domain.Frame) error
	Drain(ctx context.Context, to domain.Telephone) ([]domain.Frame, error)
}

var (
	errNotRegistered = errors.New("telephone not registered")
	errBadSignature  = errors.New("signature verification failed")
	errNotConnected  = errors.New("sender is not logged in on this connection")
	errNoPrekeys     = errors.New("recipient has too few one-time prekeys left")
	errImpersonation = errors.New("body names a different sender than the envelope")
)

// account is the relay's view of a registered telephone.
type account struct {
	reg  domain.Registration
	opks []domain.NumberedKey // unused, ascending by id
}

// delivery is a frame to hand to a telephone once the hub lock is released.
type delivery struct {
	to    domain.Telephone
	conn  Conn
	frame domain.Frame
}

// Hub routes frames between connected nodes.
type Hub struct {
	mu       sync.Mutex
	accounts map[domain.Telephone]*account
	online   map[domain.Telephone]Conn
	mailbox  Mailbox
	log      *zap.Logger
}

// NewHub returns a hub parking offline frames in mailbox (an in-memory
// mailbox when nil).
func NewHub(mailbox Mailbox, log *zap.Logger) *Hub {
	if mailbox == nil {
		mailbox = NewMemoryMailbox()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		accounts: make(map[domain.Telephone]*account),
		online:   make(map[domain.Telephone]Conn),
		mailbox:  mailbox,
		log:      log,
	}
}

// Dispatch handles one frame received on c.
func (h *Hub) Dispatch(ctx context.Context, c Conn, frame domain.Frame) {
	log := h.log.With(zap.String("event", string(frame.Event)), zap.String("telephone", frame.Envelope.Sender.String()))

	var (
		out []delivery
		err error
	)
	switch frame.Event {
	case domain.EventConnect:
		out, err = h.connect(ctx, c, frame)
	case domain.EventDisconnect:
		h.Detach(c)
		log.Info("logged out")
		return
	case domain.EventCreateChat:
		out, err = h.createChat(c, frame)
	case domain.EventConfirmCreateChat:
		out, err = h.route(c, frame, func(raw json.RawMessage) (from, to domain.Telephone, err error) {
			var b domain.ConfirmCreateChatBody
			err = json.Unmarshal(raw, &b)
			return b.User.Telephone, b.Owner.Telephone, err
		})
	case domain.EventMessage:
		out, err = h.route(c, frame, func(raw json.RawMessage) (from, to domain.Telephone, err error) {
			var b domain.MessageBody
			err = json.Unmarshal(raw, &b)
			return b.Sender.Telephone, b.Receiver.Telephone, err
		})
	case domain.EventConfirmMessage:
		out, err = h.route(c, frame, func(raw json.RawMessage) (from, to domain.Telephone, err error) {
			var b domain.ConfirmMessageBody
			err = json.Unmarshal(raw, &b)
			return b.Receiver.Telephone, b.Sender.Telephone, err
		})
	default:
		err = fmt.Errorf("unsupported event %q", frame.Event)
	}

	if err != nil {
		log.Warn("frame rejected", zap.Error(err))
		if frame.Event != domain.EventConnect {
			_ = c.Send(errorFrame(frame.Event, err))
		}
		return
	}
	for _, d := range out {
		h.deliver(ctx, d)
	}
}

// Detach forgets c, typically after its connection closed.
func (h *Hub) Detach(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tel, conn := range h.online {
		if conn == c {
			delete(h.online, tel)
		}
	}
}

// RemainingPrekeys reports how many one-time prekeys telephone has left.
func (h *Hub) RemainingPrekeys(telephone domain.Telephone) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if a := h.accounts[telephone]; a != nil {
		return len(a.opks)
	}
	return 0
}

func (h *Hub) connect(ctx context.Context, c Conn, frame domain.Frame) ([]delivery, error) {
	var body domain.ConnectBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return []delivery{authReply(c, domain.AuthFailed, "malformed connect")}, nil
	}
	tel := body.Telephone

	h.mu.Lock()
	if body.Registration != nil {
		if _, exists := h.accounts[tel]; exists {
			h.mu.Unlock()
			return []delivery{authReply(c, domain.AuthFailed, "telephone already registered")}, nil
		}
		if !crypto.VerifyChallenge(body.Registration.Signing, frame.Envelope.SignedMessage) {
			h.mu.Unlock()
			return []delivery{authReply(c, domain.AuthFailed, errBadSignature.Error())}, nil
		}
		opks := append([]domain.NumberedKey(nil), body.Registration.OPKs...)
		sort.Slice(opks, func(i, j int) bool { return opks[i].ID < opks[j].ID })
		reg := *body.Registration
		reg.OPKs = nil
		h.accounts[tel] = &account{reg: reg, opks: opks}
		h.online[tel] = c
		h.mu.Unlock()
		h.log.Info("registered", zap.String("telephone", tel.String()), zap.Int("opks", len(opks)))
		return []delivery{authReply(c, domain.AuthCreated, "account created")}, nil
	}

	acc := h.accounts[tel]
	if acc == nil {
		h.mu.Unlock()
		return []delivery{authReply(c, domain.AuthFailed, errNotRegistered.Error())}, nil
	}
	if !crypto.VerifyChallenge(acc.reg.Signing, frame.Envelope.SignedMessage) {
		h.mu.Unlock()
		return []delivery{authReply(c, domain.AuthFailed, errBadSignature.Error())}, nil
	}
	h.online[tel] = c
	h.mu.Unlock()

	out := []delivery{authReply(c, domain.AuthOK, "logged in")}
	parked, err := h.mailbox.Drain(ctx, tel)
	if err != nil {
		h.log.Warn("mailbox drain failed", zap.String("telephone", tel.String()), zap.Error(err))
	}
	for _, f := range parked {
		out = append(out, delivery{to: tel, conn: c, frame: f})
	}
	h.log.Info("logged in", zap.String("telephone", tel.String()), zap.Int("parked", len(parked)))
	return out, nil
}

// authenticate checks that frame comes from the telephone bound to c and
// carries a valid challenge signature. Caller holds h.mu.
func (h *Hub) authenticate(c Conn, frame domain.Frame) (*account, error) {
	sender := frame.Envelope.Sender
	acc := h.accounts[sender]
	if acc == nil {
		return nil, errNotRegistered
	}
	if h.online[sender] != c {
		return nil, errNotConnected
	}
	if !crypto.VerifyChallenge(acc.reg.Signing, frame.Envelope.SignedMessage) {
		return nil, errBadSignature
	}
	return acc, nil
}

func (h *Hub) createChat(c Conn, frame domain.Frame) ([]delivery, error) {
	var body domain.CreateChatBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return nil, fmt.Errorf("malformed create-chat: %w", err)
	}
	if body.Owner.Telephone != frame.Envelope.Sender {
		return nil, fmt.Errorf("%w: owner %s, sender %s", errImpersonation, body.Owner.Telephone, frame.Envelope.Sender)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	owner, err := h.authenticate(c, frame)
	if err != nil {
		return nil, err
	}
	target := h.accounts[body.User]
	if target == nil {
		return nil, fmt.Errorf("%w: %s", errNotRegistered, body.User)
	}
	if len(target.opks) < 2 {
		return nil, fmt.Errorf("%w: %s", errNoPrekeys, body.User)
	}
	x3dhKey, ratchetKey := target.opks[0], target.opks[1]
	target.opks = target.opks[2:]

	body.OwnerName = owner.reg.Name
	body.OwnerIK = owner.reg.IK
	body.UsedKeys = []int{x3dhKey.ID, ratchetKey.ID}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	frame.Envelope.Body = raw
	return []delivery{{to: body.User, conn: h.online[body.User], frame: frame}}, nil
}

// route forwards frame to the telephone parties names as addressee. The
// body's own sender must be the one that signed the envelope.
func (h *Hub) route(c Conn, frame domain.Frame, parties func(json.RawMessage) (from, to domain.Telephone, err error)) ([]delivery, error) {
	from, to, err := parties(frame.Envelope.Body)
	if err != nil {
		return nil, fmt.Errorf("malformed %s: %w", frame.Event, err)
	}
	if from != frame.Envelope.Sender {
		return nil, fmt.Errorf("%w: body %s, sender %s", errImpersonation, from, frame.Envelope.Sender)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := h.authenticate(c, frame); err != nil {
		return nil, err
	}
	if h.accounts[to] == nil {
		return nil, fmt.Errorf("%w: %s", errNotRegistered, to)
	}
	return []delivery{{to: to, conn: h.online[to], frame: frame}}, nil
}

// deliver sends to the live connection or parks the frame. Replies without
// an addressee are dropped when the connection is gone.
func (h *Hub) deliver(ctx context.Context, d delivery) {
	if d.conn != nil {
		err := d.conn.Send(d.frame)
		if err == nil {
			return
		}
		h.log.Debug("live delivery failed", zap.String("telephone", d.to.String()), zap.Error(err))
	}
	if d.to == "" {
		return
	}
	if err := h.mailbox.Push(ctx, d.to, d.frame); err != nil {
		h.log.Error("mailbox push failed", zap.String("telephone", d.to.String()), zap.Error(err))
	}
}

// authReply answers a connect on c only; it is never parked.
func authReply(c Conn, status domain.AuthStatus, msg string) delivery {
	body, _ := json.Marshal(domain.AuthResponseBody{Status: status, Msg: msg})
	return delivery{conn: c, frame: domain.Frame{
		Event:    domain.EventAuthResponse,
		Envelope: domain.Envelope{Body: body},
	}}
}

func errorFrame(event domain.Event, err error) domain.Frame {
	body, _ := json.Marshal(domain.ErrorBody{Event: event, Msg: err.Error()})
	return domain.Frame{Event: domain.EventError, Envelope: domain.Envelope{Body: body}}
}

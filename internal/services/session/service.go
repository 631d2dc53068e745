package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/jobs"
)

// ErrUnknownAccount is returned by Login for a telephone never signed up on
// this node.
var ErrUnknownAccount = errors.New("no local account for telephone; sign up first")

// ErrSelfChat is returned when a user tries to open a chat with themselves.
var ErrSelfChat = errors.New("cannot open a chat with yourself")

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Keys          domain.KeyStore
	Ratchets      domain.RatchetStore
	Chats         domain.ChatStore
	Accounts      domain.AccountStore
	Registrations domain.RegistrationStore
	Identity      domain.IdentityService
	Transport     domain.Transport
	Queue         *jobs.Queue
	// ResolveInterval is the scheduler period (jobs.DefaultInterval when zero).
	ResolveInterval time.Duration
	Log             *zap.Logger
}

// Received is a decrypted inbound message.
type Received struct {
	Chat      domain.Chat
	Plaintext []byte
	At        time.Time
}

// Hooks receive user-visible events. Nil hooks are skipped. They are called
// from the event loop and must not block.
type Hooks struct {
	OnMessage func(Received)
	OnChat    func(domain.Chat)
	OnAuth    func(domain.AuthResponseBody)
}

// Session is the active login.
type Session struct {
	User    domain.Telephone
	Signing domain.Ed25519Private
	Since   time.Time
	// Authed is set once the relay accepted the login.
	Authed bool
}

// Orchestrator implements domain.SessionService and jobs.Executor.
type Orchestrator struct {
	keys      domain.KeyStore
	ratchets  domain.RatchetStore
	chats     domain.ChatStore
	accounts  domain.AccountStore
	regs      domain.RegistrationStore
	identity  domain.IdentityService
	transport domain.Transport
	queue     *jobs.Queue
	interval  time.Duration
	hooks     Hooks
	log       *zap.Logger

	sessMu  sync.Mutex
	session *Session

	chatLocks chatLocks
}

// New wires an orchestrator. Hooks may be the zero value.
func New(d Deps, hooks Hooks) *Orchestrator {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	q := d.Queue
	if q == nil {
		q = jobs.New(log)
	}
	return &Orchestrator{
		keys:      d.Keys,
		ratchets:  d.Ratchets,
		chats:     d.Chats,
		accounts:  d.Accounts,
		regs:      d.Registrations,
		identity:  d.Identity,
		transport: d.Transport,
		queue:     q,
		interval:  d.ResolveInterval,
		hooks:     hooks,
		log:       log,
	}
}

// Queue exposes the job queue, mainly for inspection.
func (o *Orchestrator) Queue() *jobs.Queue { return o.queue }

// Signup creates fresh key material for telephone, stores the local account
// and registers with the relay. The relay's "created" answer triggers a
// refresh that logs the new account in.
func (o *Orchestrator) Signup(ctx context.Context, telephone domain.Telephone, name string) error {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	o.teardownLocked(ctx)

	reg, err := o.identity.GenerateKeys(name)
	if err != nil {
		return fmt.Errorf("generate keys: %w", err)
	}
	if err := o.accounts.SaveAccount(domain.Account{
		Telephone: telephone,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	sess, err := o.openLocked(telephone)
	if err != nil {
		return err
	}

	f, err := o.frame(*sess, domain.EventConnect, domain.ConnectBody{Telephone: telephone, Registration: &reg})
	if err != nil {
		return err
	}
	o.log.Info("signing up", zap.String("user", telephone.String()), zap.Int("opks", len(reg.OPKs)))
	return o.transport.Emit(ctx, f)
}

// Login opens a session for telephone and authenticates with the relay. A
// prior session is torn down first. If the relay is unreachable the login
// is queued as a refresh job.
func (o *Orchestrator) Login(ctx context.Context, telephone domain.Telephone) error {
	err := o.login(ctx, telephone)
	if errors.Is(err, domain.ErrTransientNetwork) {
		o.log.Warn("relay unreachable, login queued", zap.String("user", telephone.String()), zap.Error(err))
		_, qerr := o.queue.Enqueue(telephone, domain.PriorityAuth, domain.KindRefresh, nil, "")
		return qerr
	}
	return err
}

func (o *Orchestrator) login(ctx context.Context, telephone domain.Telephone) error {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	o.teardownLocked(ctx)

	if _, ok, err := o.accounts.LoadAccount(telephone); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAccount, telephone)
	}
	sess, err := o.openLocked(telephone)
	if err != nil {
		return err
	}
	f, err := o.frame(*sess, domain.EventConnect, domain.ConnectBody{Telephone: telephone})
	if err != nil {
		return err
	}
	o.log.Info("logging in", zap.String("user", telephone.String()))
	return o.transport.Emit(ctx, f)
}

// Logout ends the active session and tells the relay, best effort.
func (o *Orchestrator) Logout(ctx context.Context) error {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	if o.session == nil {
		return domain.ErrNoSession
	}
	o.teardownLocked(ctx)
	return nil
}

// ActiveUser returns the telephone of the current session.
func (o *Orchestrator) ActiveUser() (domain.Telephone, bool) {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	if o.session == nil {
		return "", false
	}
	return o.session.User, true
}

// Current returns a copy of the active session.
func (o *Orchestrator) Current() (Session, error) {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	if o.session == nil {
		return Session{}, domain.ErrNoSession
	}
	return *o.session, nil
}

// Chats lists the chats of the active user.
func (o *Orchestrator) Chats() ([]domain.Chat, error) {
	sess, err := o.Current()
	if err != nil {
		return nil, err
	}
	return o.chats.ListChats(sess.User)
}

// Run pumps transport events into Handle and drives the job scheduler
// until ctx is done or the transport closes its event stream.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case f, ok := <-o.transport.Events():
				if !ok {
					stop()
					return nil
				}
				if err := o.Handle(ctx, f); err != nil {
					o.log.Warn("event failed", zap.String("event", string(f.Event)), zap.Error(err))
				}
			}
		}
	})
	g.Go(func() error {
		return jobs.NewScheduler(o.queue, o, o, o.interval, o.log).Run(ctx)
	})
	return g.Wait()
}

// refresh logs the user out and back in.
func (o *Orchestrator) refresh(ctx context.Context, user domain.Telephone) error {
	if err := o.Logout(ctx); err != nil && !errors.Is(err, domain.ErrNoSession) {
		return err
	}
	return o.login(ctx, user)
}

// openLocked loads the signing key and installs a new session. Caller holds
// sessMu.
func (o *Orchestrator) openLocked(telephone domain.Telephone) (*Session, error) {
	signing, err := o.identity.SigningKey()
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	o.session = &Session{User: telephone, Signing: signing, Since: time.Now().UTC()}
	return o.session, nil
}

// teardownLocked drops the current session, if any. Caller holds sessMu.
func (o *Orchestrator) teardownLocked(ctx context.Context) {
	sess := o.session
	if sess == nil {
		return
	}
	o.session = nil
	f, err := o.frame(*sess, domain.EventDisconnect, struct{}{})
	if err == nil {
		err = o.transport.Emit(ctx, f)
	}
	if err != nil {
		o.log.Debug("disconnect not delivered", zap.String("user", sess.User.String()), zap.Error(err))
	}
	o.log.Info("logged out", zap.String("user", sess.User.String()))
}

// setAuthed marks the session of user as accepted by the relay.
func (o *Orchestrator) setAuthed(user domain.Telephone, ok bool) {
	o.sessMu.Lock()
	defer o.sessMu.Unlock()
	if o.session == nil || o.session.User != user {
		return
	}
	if ok {
		o.session.Authed = true
		return
	}
	o.session = nil
}

// signature returns the challenge signature for sess.
func signature(sess Session) string { return crypto.SignChallenge(sess.Signing) }

var (
	_ domain.SessionService = (*Orchestrator)(nil)
	_ jobs.Executor         = (*Orchestrator)(nil)
	_ jobs.ActiveUser       = (*Orchestrator)(nil)
)

package app

import (
	"errors"
	"os"

	"go.uber.org/zap"

	"duet/internal/domain"
	"duet/internal/jobs"
	"duet/internal/relay"
	"duet/internal/services/identity"
	"duet/internal/services/session"
	"duet/internal/store"
	"duet/internal/store/postgres"
)

// ErrNoMasterSecret is returned when no master secret is configured.
var ErrNoMasterSecret = errors.New("master secret required (--secret, " + envMasterSecret + " or [node] mastersecret)")

// Wire bundles the stores, services and transport of one node.
type Wire struct {
	Config    Config
	Log       *zap.Logger
	Keys      *store.KeyFileStore
	Accounts  *store.AccountFileStore
	Chats     domain.ChatStore
	Identity  *identity.Service
	Transport domain.Transport
	Session   *session.Orchestrator

	closers []func() error
}

// NewWire constructs the dependency graph from cfg. If transport is nil a
// websocket transport to cfg.RelayURL is used.
func NewWire(cfg Config, log *zap.Logger, transport domain.Transport, hooks session.Hooks) (*Wire, error) {
	if cfg.MasterSecret == "" {
		return nil, ErrNoMasterSecret
	}
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, err
	}
	w := &Wire{Config: cfg, Log: log}

	// Encrypted file stores
	sealer := store.NewSealer(cfg.MasterSecret, store.DefaultKDF())
	w.Keys = store.NewKeyFileStore(cfg.Home, sealer)
	ratchets := store.NewRatchetFileStore(cfg.Home, sealer)
	regs := store.NewRegistrationFileStore(cfg.Home)
	w.Accounts = store.NewAccountFileStore(cfg.Home)

	// Chat directory: Postgres when configured, else a JSON file
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		w.Chats = pg
		w.closers = append(w.closers, pg.Close)
		log.Info("chat directory on postgres")
	} else {
		w.Chats = store.NewChatFileStore(cfg.Home)
	}

	if transport == nil {
		transport = relay.NewWSTransport(cfg.RelayURL, cfg.AppSecret, log.Named("transport"))
	}
	w.Transport = transport
	w.closers = append(w.closers, transport.Close)

	w.Identity = identity.New(w.Keys, regs)
	w.Session = session.New(session.Deps{
		Keys:            w.Keys,
		Ratchets:        ratchets,
		Chats:           w.Chats,
		Accounts:        w.Accounts,
		Registrations:   regs,
		Identity:        w.Identity,
		Transport:       transport,
		Queue:           jobs.New(log.Named("jobs")),
		ResolveInterval: cfg.ResolveInterval,
		Log:             log.Named("session"),
	}, hooks)
	return w, nil
}

// Close releases the transport and database, in reverse order of creation.
func (w *Wire) Close() error {
	var errs []error
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package store_test

import (
	"errors"
	"testing"
	"time"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/store"
)

// fastKDF keeps scrypt cheap in tests.
var fastKDF = store.KDFParams{N: 1 << 10, R: 8, P: 1}

func newKeyStore(t *testing.T, home, secret string) *store.KeyFileStore {
	t.Helper()
	return store.NewKeyFileStore(home, store.NewSealer(secret, fastKDF))
}

func TestKeyStore_GenerateLoad(t *testing.T) {
	home := t.TempDir()
	ks := newKeyStore(t, home, "master")

	dh, err := ks.Generate(domain.LabelIdentity, domain.KeyDH)
	if err != nil {
		t.Fatalf("generate dh: %v", err)
	}
	sg, err := ks.Generate(domain.LabelSigning, domain.KeySigning)
	if err != nil {
		t.Fatalf("generate signing: %v", err)
	}

	got, err := ks.Load(domain.LabelIdentity)
	if err != nil {
		t.Fatalf("load dh: %v", err)
	}
	if got.Kind != domain.KeyDH || got.DH != dh.DH {
		t.Fatal("dh key mismatch after load")
	}
	got, err = ks.Load(domain.LabelSigning)
	if err != nil {
		t.Fatalf("load signing: %v", err)
	}
	if got.Kind != domain.KeySigning || got.Signing != sg.Signing {
		t.Fatal("signing key mismatch after load")
	}

	pub, err := ks.DerivePublic(dh)
	if err != nil {
		t.Fatalf("derive public: %v", err)
	}
	want, _ := crypto.PublicX25519(dh.DH)
	if string(pub) != string(want[:]) {
		t.Fatal("derived public key mismatch")
	}
}

func TestKeyStore_NotFoundAndDelete(t *testing.T) {
	ks := newKeyStore(t, t.TempDir(), "master")

	if _, err := ks.Load(domain.OneTimePreKeyLabel(3)); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("load missing: got %v, want ErrKeyNotFound", err)
	}
	if _, err := ks.Generate(domain.OneTimePreKeyLabel(3), domain.KeyDH); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := ks.Delete(domain.OneTimePreKeyLabel(3)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := ks.Load(domain.OneTimePreKeyLabel(3)); !errors.Is(err, domain.ErrKeyNotFound) {
		t.Fatalf("load deleted: got %v, want ErrKeyNotFound", err)
	}
	if err := ks.Delete(domain.OneTimePreKeyLabel(3)); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestKeyStore_WrongSecret(t *testing.T) {
	home := t.TempDir()
	if _, err := newKeyStore(t, home, "correct").Generate(domain.LabelIdentity, domain.KeyDH); err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, err := newKeyStore(t, home, "wrong").Load(domain.LabelIdentity)
	if !errors.Is(err, domain.ErrDecryptionFailed) {
		t.Fatalf("got %v, want ErrDecryptionFailed", err)
	}
}

func TestKeyStore_RejectsPathLabels(t *testing.T) {
	ks := newKeyStore(t, t.TempDir(), "master")
	if _, err := ks.Load(domain.KeyLabel("../escape")); err == nil {
		t.Fatal("expected error for label with path separator")
	}
}

func TestRatchetStore_TentativeLifecycle(t *testing.T) {
	rs := store.NewRatchetFileStore(t.TempDir(), store.NewSealer("master", fastKDF))
	chat := domain.ChatID("chat-1")

	if _, ok, err := rs.Load(chat); err != nil || ok {
		t.Fatalf("uninitialised load: ok=%v err=%v", ok, err)
	}

	base := domain.RatchetSet{
		DHRatchet:      domain.X25519Private{1},
		Root:           domain.RootRatchet{2},
		PeerRatchetPub: domain.X25519Public{3},
	}
	if err := rs.Save(chat, base, false); err != nil {
		t.Fatalf("save committed: %v", err)
	}

	next := base
	next.DHRatchet = domain.X25519Private{9}
	next.Root = domain.RootRatchet{8}
	if err := rs.Save(chat, next, true); err != nil {
		t.Fatalf("save tentative: %v", err)
	}

	got, ok, err := rs.Load(chat)
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got != base {
		t.Fatal("Load returned tentative state before promotion")
	}
	pending, ok, err := rs.LoadTentative(chat)
	if err != nil || !ok || pending != next {
		t.Fatalf("LoadTentative: ok=%v err=%v", ok, err)
	}

	if err := rs.Promote(chat); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := rs.Promote(chat); err != nil {
		t.Fatalf("second promote: %v", err)
	}
	got, _, err = rs.Load(chat)
	if err != nil {
		t.Fatalf("load after promote: %v", err)
	}
	if got != next {
		t.Fatal("promote did not commit the pending set")
	}
	if _, ok, _ := rs.LoadTentative(chat); ok {
		t.Fatal("pending set survived promotion")
	}
}

func TestRatchetStore_Discard(t *testing.T) {
	rs := store.NewRatchetFileStore(t.TempDir(), store.NewSealer("master", fastKDF))
	chat := domain.ChatID("chat-2")
	base := domain.RatchetSet{Root: domain.RootRatchet{1}}
	if err := rs.Save(chat, base, false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := rs.Save(chat, domain.RatchetSet{Root: domain.RootRatchet{2}}, true); err != nil {
		t.Fatalf("save tentative: %v", err)
	}
	if err := rs.Discard(chat); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if err := rs.Promote(chat); err != nil {
		t.Fatalf("promote after discard: %v", err)
	}
	got, _, err := rs.Load(chat)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != base {
		t.Fatal("discard altered committed state")
	}
}

func TestChatStore_BackRefIsImmutable(t *testing.T) {
	cs := store.NewChatFileStore(t.TempDir())
	owner := domain.Telephone("+100")
	chat := domain.Chat{ID: "a", Owner: owner, Peer: "+200", Name: "x", CreatedAt: time.Now()}
	if err := cs.SaveChat(chat); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := cs.SetBackRef(owner, "a", "b"); err != nil {
		t.Fatalf("set back ref: %v", err)
	}
	if err := cs.SetBackRef(owner, "a", "b"); err != nil {
		t.Fatalf("repeat same back ref: %v", err)
	}
	if err := cs.SetBackRef(owner, "a", "c"); !errors.Is(err, domain.ErrProtocolState) {
		t.Fatalf("conflicting back ref: got %v, want ErrProtocolState", err)
	}
	if err := cs.SetBackRef(owner, "missing", "c"); !errors.Is(err, domain.ErrUnknownChat) {
		t.Fatalf("unknown chat: got %v, want ErrUnknownChat", err)
	}

	got, ok, err := cs.LoadChat(owner, "a")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if !got.Confirmed() || got.BackRef != "b" {
		t.Fatalf("back ref = %q, want b", got.BackRef)
	}

	list, err := cs.ListChats(owner)
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %d chats, err=%v", len(list), err)
	}
	if list, _ := cs.ListChats("+999"); len(list) != 0 {
		t.Fatal("chats leaked across owners")
	}
}

func TestAccountStore_SaveLoad(t *testing.T) {
	as := store.NewAccountFileStore(t.TempDir())
	acc := domain.Account{Telephone: "+100", Name: "alice"}
	if err := as.SaveAccount(acc); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := as.LoadAccount("+100")
	if err != nil || !ok || got.Name != "alice" {
		t.Fatalf("load: %+v ok=%v err=%v", got, ok, err)
	}
	if _, ok, _ := as.LoadAccount("+200"); ok {
		t.Fatal("unexpected account")
	}
}

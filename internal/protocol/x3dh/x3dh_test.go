package x3dh_test

import (
	"bytes"
	"errors"
	"testing"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/protocol/x3dh"
)

type keyPair struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

func makeKey(t *testing.T) keyPair {
	t.Helper()
	priv, pub, err := crypto.GenerateX25519()
	if err != nil {
		t.Fatalf("GenerateX25519: %v", err)
	}
	return keyPair{priv: priv, pub: pub}
}

// party holds the keys each side brings to a handshake.
type party struct {
	ik, spk, opk, ek keyPair
}

func makeParty(t *testing.T) party {
	t.Helper()
	return party{ik: makeKey(t), spk: makeKey(t), opk: makeKey(t), ek: makeKey(t)}
}

func senderSecret(t *testing.T, alice, bob party) []byte {
	t.Helper()
	secret, err := x3dh.SenderExchange(
		x3dh.SenderKeys{IK: &alice.ik.priv, EK: &alice.ek.priv},
		x3dh.ReceiverPublics{IK: &bob.ik.pub, SPK: &bob.spk.pub, OPK: &bob.opk.pub},
	)
	if err != nil {
		t.Fatalf("SenderExchange: %v", err)
	}
	return secret
}

func receiverSecret(t *testing.T, bob, alice party) []byte {
	t.Helper()
	secret, err := x3dh.ReceiverExchange(
		x3dh.ReceiverKeys{SPK: &bob.spk.priv, IK: &bob.ik.priv, OPK: &bob.opk.priv},
		x3dh.SenderPublics{IK: &alice.ik.pub, EK: &alice.ek.pub},
	)
	if err != nil {
		t.Fatalf("ReceiverExchange: %v", err)
	}
	return secret
}

func TestExchange_SenderAndReceiverAgree(t *testing.T) {
	alice := makeParty(t)
	bob := makeParty(t)

	s := senderSecret(t, alice, bob)
	r := receiverSecret(t, bob, alice)
	if len(s) != x3dh.SecretSize {
		t.Fatalf("secret length = %d, want %d", len(s), x3dh.SecretSize)
	}
	if !bytes.Equal(s, r) {
		t.Fatal("sender and receiver secrets differ")
	}
}

func TestExchange_SwappedRolesDiffer(t *testing.T) {
	alice := makeParty(t)
	bob := makeParty(t)

	forward := senderSecret(t, alice, bob)
	// Bob initiating towards Alice with the same identities must not
	// reproduce Alice's secret.
	swapped := senderSecret(t, bob, alice)
	if bytes.Equal(forward, swapped) {
		t.Fatal("swapped roles produced the same secret")
	}
}

func TestExchange_MissingKey(t *testing.T) {
	alice := makeParty(t)
	bob := makeParty(t)

	_, err := x3dh.SenderExchange(
		x3dh.SenderKeys{IK: &alice.ik.priv, EK: &alice.ek.priv},
		x3dh.ReceiverPublics{IK: &bob.ik.pub, SPK: &bob.spk.pub},
	)
	if !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("sender without OPK: got %v, want ErrMissingKey", err)
	}

	_, err = x3dh.ReceiverExchange(
		x3dh.ReceiverKeys{SPK: &bob.spk.priv, OPK: &bob.opk.priv},
		x3dh.SenderPublics{IK: &alice.ik.pub, EK: &alice.ek.pub},
	)
	if !errors.Is(err, domain.ErrMissingKey) {
		t.Fatalf("receiver without IK: got %v, want ErrMissingKey", err)
	}
}

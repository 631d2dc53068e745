package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/relay"
)

// signedFrame builds a frame signed by n's own key.
func signedFrame(t *testing.T, n *node, event domain.Event, body any) domain.Frame {
	t.Helper()
	sess, err := n.o.Current()
	if err != nil {
		t.Fatalf("%s: no session: %v", n.tel, err)
	}
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return domain.Frame{
		Event: event,
		Envelope: domain.Envelope{
			SignedMessage: crypto.SignChallenge(sess.Signing),
			Sender:        n.tel,
			Body:          raw,
		},
	}
}

func thirdParty(t *testing.T, hub *relay.Hub) *node {
	t.Helper()
	carol := newNode(t, hub, "+300")
	if err := carol.o.Signup(context.Background(), carol.tel, "carol"); err != nil {
		t.Fatalf("carol signup: %v", err)
	}
	pump(t, carol)
	return carol
}

func TestCreateChatOnBehalfOfAnotherUserIsRejected(t *testing.T) {
	hub, alice, bob := signedUp(t)
	carol := thirdParty(t, hub)
	ctx := context.Background()

	_, ek, _ := crypto.GenerateX25519()
	_, dhr, _ := crypto.GenerateX25519()
	body := domain.CreateChatBody{
		Owner:     domain.ChatRef{Telephone: alice.tel, ChatID: "not-alices"},
		User:      bob.tel,
		Name:      "from alice, honest",
		DHRatchet: dhr,
		EK:        ek,
	}

	// The relay refuses to forward it.
	if err := carol.tr.Emit(ctx, signedFrame(t, carol, domain.EventCreateChat, body)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	select {
	case f := <-carol.tr.Events():
		if f.Event != domain.EventError {
			t.Fatalf("carol got %s, want error", f.Event)
		}
	default:
		t.Fatal("relay did not reject the create-chat")
	}
	pump(t, alice, bob, carol)
	if len(bob.chats) != 0 {
		t.Fatalf("bob accepted %d chats", len(bob.chats))
	}
	if got := hub.RemainingPrekeys(bob.tel); got != domain.OneTimePreKeyCount {
		t.Fatalf("relay handed out prekeys: %d left", got)
	}

	// A node handed the same frame directly refuses it too.
	_, body.OwnerIK, _ = crypto.GenerateX25519()
	body.OwnerName = "carol"
	body.UsedKeys = []int{1, 2}
	err := bob.o.Handle(ctx, signedFrame(t, carol, domain.EventCreateChat, body))
	if !errors.Is(err, domain.ErrProtocolState) {
		t.Fatalf("got %v, want ErrProtocolState", err)
	}
	chats, err := bob.o.Chats()
	if err != nil {
		t.Fatalf("Chats: %v", err)
	}
	if len(chats) != 0 {
		t.Fatalf("bob stored %+v", chats)
	}
	if _, err := bob.keys.Load(domain.OneTimePreKeyLabel(1)); err != nil {
		t.Fatalf("opk-1 consumed by a rejected handshake: %v", err)
	}
}

func TestMessagesOnBehalfOfThePeerAreRejected(t *testing.T) {
	hub, alice, bob := signedUp(t)
	carol := thirdParty(t, hub)
	ctx := context.Background()

	chat, err := alice.o.CreateChat(ctx, bob.tel, "lunch", "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}
	pump(t, alice, bob, carol)
	bobChat := bob.chats[0].ID

	// A confirm-create-chat for alice's chat from anyone but bob.
	_, pub, _ := crypto.GenerateX25519()
	confirm := domain.ConfirmCreateChatBody{
		Owner: domain.ChatRef{Telephone: alice.tel, ChatID: chat.ID},
		User:  domain.ConfirmingUser{Telephone: bob.tel, ChatID: "elsewhere"},
	}
	if err := alice.o.Handle(ctx, signedFrame(t, carol, domain.EventConfirmCreateChat, confirm)); !errors.Is(err, domain.ErrProtocolState) {
		t.Fatalf("confirm-create-chat: got %v, want ErrProtocolState", err)
	}

	before, _, _ := bob.ratchets.Load(bobChat)
	msg := domain.MessageBody{
		Sender:    domain.ChatRef{Telephone: alice.tel, ChatID: chat.ID},
		Receiver:  domain.ChatRef{Telephone: bob.tel, ChatID: bobChat},
		Cipher:    make([]byte, 32),
		DHRatchet: pub,
	}
	if err := bob.o.Handle(ctx, signedFrame(t, carol, domain.EventMessage, msg)); !errors.Is(err, domain.ErrProtocolState) {
		t.Fatalf("message: got %v, want ErrProtocolState", err)
	}
	if after, _, _ := bob.ratchets.Load(bobChat); after != before {
		t.Fatal("rejected message changed bob's state")
	}

	// The relay does not forward it either.
	if err := carol.tr.Emit(ctx, signedFrame(t, carol, domain.EventMessage, msg)); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if f := <-carol.tr.Events(); f.Event != domain.EventError {
		t.Fatalf("carol got %s, want error", f.Event)
	}
	pump(t, alice, bob, carol)
	if len(bob.inbox) != 0 {
		t.Fatal("bob received a message alice never sent")
	}
}

func TestForeignConfirmationLeavesGenerationPending(t *testing.T) {
	alice, bob, aliceChat, bobChat := connected(t)
	ctx := context.Background()

	send(t, alice, aliceChat, "hello")
	_, pub, _ := crypto.GenerateX25519()

	cases := []struct {
		name   string
		sender domain.Telephone
		body   domain.ConfirmMessageBody
	}{
		{
			name:   "other sender",
			sender: "+300",
			body: domain.ConfirmMessageBody{
				Sender:    domain.ChatRef{Telephone: alice.tel, ChatID: aliceChat},
				Receiver:  domain.ChatRef{Telephone: "+300", ChatID: bobChat},
				DHRatchet: pub,
			},
		},
		{
			name:   "wrong chat",
			sender: bob.tel,
			body: domain.ConfirmMessageBody{
				Sender:    domain.ChatRef{Telephone: alice.tel, ChatID: aliceChat},
				Receiver:  domain.ChatRef{Telephone: bob.tel, ChatID: "another"},
				DHRatchet: pub,
			},
		},
		{
			name:   "unknown chat",
			sender: bob.tel,
			body: domain.ConfirmMessageBody{
				Sender:    domain.ChatRef{Telephone: alice.tel, ChatID: "missing"},
				Receiver:  domain.ChatRef{Telephone: bob.tel, ChatID: bobChat},
				DHRatchet: pub,
			},
		},
	}
	for _, tc := range cases {
		raw, _ := json.Marshal(tc.body)
		err := alice.o.Handle(ctx, domain.Frame{
			Event:    domain.EventConfirmMessage,
			Envelope: domain.Envelope{Sender: tc.sender, Body: raw},
		})
		if err == nil {
			t.Fatalf("%s: confirmation accepted", tc.name)
		}
		if !pending(t, alice, aliceChat) {
			t.Fatalf("%s: pending generation committed", tc.name)
		}
	}

	pump(t, alice, bob)
	if pending(t, alice, aliceChat) {
		t.Fatal("bob's confirmation did not promote")
	}
	as, _, _ := alice.ratchets.Load(aliceChat)
	bs, _, _ := bob.ratchets.Load(bobChat)
	if as.Root != bs.Root {
		t.Fatal("root ratchets diverged")
	}
}

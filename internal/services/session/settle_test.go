package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"duet/internal/domain"
	"duet/internal/jobs"
	"duet/internal/relay"
)

func TestSettlePending(t *testing.T) {
	alice, bob, aliceChat, bobChat := connected(t)
	ctx := context.Background()

	if err := alice.o.SettlePending(aliceChat, true); !errors.Is(err, domain.ErrProtocolState) {
		t.Fatalf("settle with nothing pending: got %v", err)
	}

	// Lost: bob never sees the message, alice gives up on it.
	send(t, alice, aliceChat, "into the void")
	<-bob.tr.Events()
	if err := alice.o.SettlePending(aliceChat, false); err != nil {
		t.Fatalf("settle lost: %v", err)
	}
	if pending(t, alice, aliceChat) {
		t.Fatal("lost generation still pending")
	}

	// Delivered: bob reads the message but his confirmation is dropped.
	send(t, alice, aliceChat, "hello")
	f := <-bob.tr.Events()
	bob.tr.SetOffline(true)
	if err := bob.o.Handle(ctx, f); err != nil {
		t.Fatalf("bob handle: %v", err)
	}
	if got := lastText(t, bob); got != "hello" {
		t.Fatalf("bob received %q", got)
	}
	for i := 0; i < jobs.MaxRetries; i++ {
		if err := bob.o.Queue().Resolve(ctx, bob.o, bob.tel, jobs.All()); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if n := bob.o.Queue().Pending(bob.tel); n != 0 {
		t.Fatalf("bob still has %d jobs", n)
	}
	if err := alice.o.SendMessage(ctx, aliceChat, []byte("next")); !errors.Is(err, domain.ErrGenerationPending) {
		t.Fatalf("send while unconfirmed: got %v", err)
	}
	if err := alice.o.SettlePending(aliceChat, true); err != nil {
		t.Fatalf("settle delivered: %v", err)
	}
	as, _, _ := alice.ratchets.Load(aliceChat)
	bs, _, _ := bob.ratchets.Load(bobChat)
	if as.Root != bs.Root {
		t.Fatal("settled chat diverged from the peer")
	}

	bob.tr.SetOffline(false)
	send(t, bob, bobChat, "got it")
	pump(t, alice, bob)
	if got := lastText(t, alice); got != "got it" {
		t.Fatalf("alice received %q", got)
	}
	send(t, alice, aliceChat, "good")
	pump(t, alice, bob)
	if got := lastText(t, bob); got != "good" {
		t.Fatalf("bob received %q", got)
	}
}

func TestRunHandlesEventsUntilTransportCloses(t *testing.T) {
	hub := relay.NewHub(nil, nil)
	carol := newNode(t, hub, "+300")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- carol.o.Run(ctx) }()

	if err := carol.o.Signup(ctx, carol.tel, "carol"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		if sess, err := carol.o.Current(); err == nil && sess.Authed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Run did not complete the signup handshake")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := carol.tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept going after the event stream closed")
	}
}

func TestRunReturnsWhenCancelled(t *testing.T) {
	hub := relay.NewHub(nil, nil)
	carol := newNode(t, hub, "+300")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- carol.o.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

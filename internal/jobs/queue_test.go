package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"duet/internal/domain"
	"duet/internal/jobs"
)

const alice = domain.Telephone("+100")

// fakeExec records executions and fails jobs according to a script.
type fakeExec struct {
	mu      sync.Mutex
	ran     []domain.JobKind
	runs    map[string]int
	dropped []domain.Job
	fail    func(job domain.Job) error
}

func newExec(fail func(domain.Job) error) *fakeExec {
	return &fakeExec{runs: make(map[string]int), fail: fail}
}

func (f *fakeExec) Execute(_ context.Context, job domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, job.Kind)
	f.runs[job.ID]++
	if f.fail != nil {
		return f.fail(job)
	}
	return nil
}

func (f *fakeExec) Dropped(_ context.Context, job domain.Job, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, job)
}

func transient(domain.Job) error {
	return fmt.Errorf("emit: %w", domain.ErrTransientNetwork)
}

func mustEnqueue(t *testing.T, q *jobs.Queue, p domain.Priority, kind domain.JobKind, chat domain.ChatID) domain.Job {
	t.Helper()
	job, err := q.Enqueue(alice, p, kind, nil, chat)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return job
}

func TestEnqueue_Validation(t *testing.T) {
	q := jobs.New(nil)

	if _, err := q.Enqueue(alice, 2, domain.KindSendMessage, nil, ""); !errors.Is(err, domain.ErrMissingChatID) {
		t.Fatalf("priority 2 without chat: got %v, want ErrMissingChatID", err)
	}
	for _, p := range []domain.Priority{-1, 3} {
		if _, err := q.Enqueue(alice, p, domain.KindRefresh, nil, ""); !errors.Is(err, domain.ErrInvalidPriority) {
			t.Fatalf("priority %d: got %v, want ErrInvalidPriority", p, err)
		}
	}
	if q.Pending(alice) != 0 {
		t.Fatal("rejected jobs were queued")
	}
}

func TestResolve_ScopeValidation(t *testing.T) {
	q := jobs.New(nil)
	exec := newExec(nil)
	p := domain.PriorityChat
	err := q.Resolve(context.Background(), exec, alice, jobs.Scope{Priority: &p, ChatID: "c"})
	if !errors.Is(err, jobs.ErrResolveScope) {
		t.Fatalf("chat with priority 1: got %v, want ErrResolveScope", err)
	}
	if err := q.Resolve(context.Background(), exec, alice, jobs.Scope{ChatID: "c"}); !errors.Is(err, jobs.ErrResolveScope) {
		t.Fatalf("chat without priority: got %v, want ErrResolveScope", err)
	}
	if err := q.Resolve(context.Background(), exec, alice, jobs.AtPriority(7)); !errors.Is(err, domain.ErrInvalidPriority) {
		t.Fatalf("priority 7: got %v, want ErrInvalidPriority", err)
	}
}

func TestResolve_PriorityZeroBlocksOthers(t *testing.T) {
	q := jobs.New(nil)
	mustEnqueue(t, q, domain.PriorityAuth, domain.KindRefresh, "")
	mustEnqueue(t, q, domain.PriorityChat, domain.KindCreateChat, "")
	mustEnqueue(t, q, domain.PriorityMessage, domain.KindSendMessage, "c1")

	exec := newExec(func(job domain.Job) error {
		if job.Kind == domain.KindRefresh {
			return transient(job)
		}
		return nil
	})
	if err := q.Resolve(context.Background(), exec, alice, jobs.All()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(exec.ran) != 1 || exec.ran[0] != domain.KindRefresh {
		t.Fatalf("ran %v, want only the refresh job", exec.ran)
	}

	// Explicitly asking for a higher class does not bypass the block.
	if err := q.Resolve(context.Background(), exec, alice, jobs.ForChat("c1")); err != nil {
		t.Fatalf("Resolve chat: %v", err)
	}
	if err := q.Resolve(context.Background(), exec, alice, jobs.AtPriority(domain.PriorityChat)); err != nil {
		t.Fatalf("Resolve p1: %v", err)
	}
	if len(exec.ran) != 1 {
		t.Fatalf("ran %v while priority 0 was pending", exec.ran)
	}
	if q.Pending(alice) != 3 {
		t.Fatalf("pending = %d, want 3", q.Pending(alice))
	}
}

func TestResolve_RunsInPriorityOrderAndCleansUp(t *testing.T) {
	q := jobs.New(nil)
	mustEnqueue(t, q, domain.PriorityMessage, domain.KindSendMessage, "c1")
	mustEnqueue(t, q, domain.PriorityChat, domain.KindConfirmCreateChat, "")
	mustEnqueue(t, q, domain.PriorityAuth, domain.KindRefresh, "")

	exec := newExec(nil)
	if err := q.Resolve(context.Background(), exec, alice, jobs.All()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []domain.JobKind{domain.KindRefresh, domain.KindConfirmCreateChat, domain.KindSendMessage}
	if fmt.Sprint(exec.ran) != fmt.Sprint(want) {
		t.Fatalf("ran %v, want %v", exec.ran, want)
	}
	if q.Pending(alice) != 0 {
		t.Fatalf("pending = %d after success", q.Pending(alice))
	}
}

func TestResolve_DropsAfterFiveTransientFailures(t *testing.T) {
	q := jobs.New(nil)
	job := mustEnqueue(t, q, domain.PriorityMessage, domain.KindSendMessage, "c1")
	exec := newExec(transient)

	for i := 0; i < 10; i++ {
		if err := q.Resolve(context.Background(), exec, alice, jobs.All()); err != nil {
			t.Fatalf("Resolve: %v", err)
		}
	}
	if got := exec.runs[job.ID]; got != jobs.MaxRetries {
		t.Fatalf("job attempted %d times, want %d", got, jobs.MaxRetries)
	}
	if len(exec.dropped) != 1 || exec.dropped[0].ID != job.ID {
		t.Fatalf("dropped = %+v, want the job once", exec.dropped)
	}
	if q.Pending(alice) != 0 {
		t.Fatal("dropped job still queued")
	}
}

func TestResolve_MalformedDroppedImmediately(t *testing.T) {
	q := jobs.New(nil)
	bad := mustEnqueue(t, q, domain.PriorityChat, domain.KindCreateChat, "")
	good := mustEnqueue(t, q, domain.PriorityChat, domain.KindConfirmCreateChat, "")

	exec := newExec(func(job domain.Job) error {
		if job.ID == bad.ID {
			return errors.New("bad payload")
		}
		return nil
	})
	if err := q.Resolve(context.Background(), exec, alice, jobs.All()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if exec.runs[bad.ID] != 1 || exec.runs[good.ID] != 1 {
		t.Fatalf("runs = %v", exec.runs)
	}
	if len(exec.dropped) != 1 || exec.dropped[0].ID != bad.ID {
		t.Fatalf("dropped = %+v", exec.dropped)
	}
}

func TestResolve_TransientFailureKeepsOrderWithinChat(t *testing.T) {
	q := jobs.New(nil)
	first := mustEnqueue(t, q, domain.PriorityMessage, domain.KindSendMessage, "c1")
	second := mustEnqueue(t, q, domain.PriorityMessage, domain.KindConfirmMessage, "c1")

	failing := true
	exec := newExec(func(job domain.Job) error {
		if job.ID == first.ID && failing {
			return transient(job)
		}
		return nil
	})
	if err := q.Resolve(context.Background(), exec, alice, jobs.ForChat("c1")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if exec.runs[second.ID] != 0 {
		t.Fatal("later job ran ahead of a failed one")
	}

	failing = false
	if err := q.Resolve(context.Background(), exec, alice, jobs.ForChat("c1")); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []domain.JobKind{domain.KindSendMessage, domain.KindSendMessage, domain.KindConfirmMessage}
	if fmt.Sprint(exec.ran) != fmt.Sprint(want) {
		t.Fatalf("ran %v, want %v", exec.ran, want)
	}
}

func TestResolve_UnknownUserIsNoop(t *testing.T) {
	q := jobs.New(nil)
	if err := q.Resolve(context.Background(), newExec(nil), "+404", jobs.All()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
}

type fixedUser domain.Telephone

func (f fixedUser) ActiveUser() (domain.Telephone, bool) { return domain.Telephone(f), f != "" }

func TestScheduler_DrainsActiveUser(t *testing.T) {
	q := jobs.New(nil)
	mustEnqueue(t, q, domain.PriorityChat, domain.KindCreateChat, "")
	exec := newExec(nil)

	s := jobs.NewScheduler(q, exec, fixedUser(alice), 10*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for q.Pending(alice) != 0 {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("scheduler did not drain the queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"duet/internal/domain"
)

// MaxRetries is the number of transient failures after which a job is dropped.
const MaxRetries = 5

// ErrResolveScope is returned when a chat id is given without priority 2.
var ErrResolveScope = errors.New("chat-scoped resolve requires priority 2")

// Executor runs jobs on behalf of the queue.
type Executor interface {
	// Execute performs job. Errors wrapping domain.ErrTransientNetwork are
	// retried; any other error drops the job.
	Execute(ctx context.Context, job domain.Job) error
	// Dropped is told about every job removed without succeeding.
	Dropped(ctx context.Context, job domain.Job, reason error)
}

// Scope selects which jobs Resolve runs. The zero Scope selects everything.
type Scope struct {
	Priority *domain.Priority
	ChatID   domain.ChatID
}

// All selects every job of a user.
func All() Scope { return Scope{} }

// AtPriority selects one priority class.
func AtPriority(p domain.Priority) Scope { return Scope{Priority: &p} }

// ForChat selects the priority 2 jobs of one chat.
func ForChat(chat domain.ChatID) Scope {
	p := domain.PriorityMessage
	return Scope{Priority: &p, ChatID: chat}
}

func (s Scope) validate() error {
	if s.Priority == nil {
		if s.ChatID != "" {
			return ErrResolveScope
		}
		return nil
	}
	if !s.Priority.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrInvalidPriority, *s.Priority)
	}
	if s.ChatID != "" && *s.Priority != domain.PriorityMessage {
		return ErrResolveScope
	}
	return nil
}

func (s Scope) includes(p domain.Priority) bool {
	return s.Priority == nil || *s.Priority == p
}

// userQueue holds the pending work of one user.
type userQueue struct {
	auth     []domain.Job
	chat     []domain.Job
	messages map[domain.ChatID][]domain.Job
	busy     bool
}

func (u *userQueue) empty(below domain.Priority) bool {
	if below > domain.PriorityAuth && len(u.auth) > 0 {
		return false
	}
	if below > domain.PriorityChat && len(u.chat) > 0 {
		return false
	}
	if below > domain.PriorityMessage {
		for _, l := range u.messages {
			if len(l) > 0 {
				return false
			}
		}
	}
	return true
}

func (u *userQueue) get(p domain.Priority, chat domain.ChatID) []domain.Job {
	switch p {
	case domain.PriorityAuth:
		return u.auth
	case domain.PriorityChat:
		return u.chat
	default:
		return u.messages[chat]
	}
}

// Queue is the per-user priority retry queue. It is safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	users map[domain.Telephone]*userQueue
	log   *zap.Logger
}

// New returns an empty queue.
func New(log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{users: make(map[domain.Telephone]*userQueue), log: log}
}

// Enqueue appends a job for user. Priority 2 jobs must name a chat.
func (q *Queue) Enqueue(
	user domain.Telephone,
	priority domain.Priority,
	kind domain.JobKind,
	payload []byte,
	chat domain.ChatID,
) (domain.Job, error) {
	if !priority.Valid() {
		return domain.Job{}, fmt.Errorf("%w: %d", domain.ErrInvalidPriority, priority)
	}
	if priority == domain.PriorityMessage && chat == "" {
		return domain.Job{}, domain.ErrMissingChatID
	}
	job := domain.Job{
		ID:       uuid.NewString(),
		User:     user,
		Kind:     kind,
		Priority: priority,
		ChatID:   chat,
		Payload:  payload,
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	uq := q.users[user]
	if uq == nil {
		uq = &userQueue{messages: make(map[domain.ChatID][]domain.Job)}
		q.users[user] = uq
	}
	switch priority {
	case domain.PriorityAuth:
		uq.auth = append(uq.auth, job)
	case domain.PriorityChat:
		uq.chat = append(uq.chat, job)
	default:
		uq.messages[chat] = append(uq.messages[chat], job)
	}
	q.log.Debug("job queued",
		zap.String("user", user.String()),
		zap.String("job", job.ID),
		zap.Stringer("kind", kind),
		zap.Int("priority", int(priority)),
		zap.String("chat", chat.String()),
	)
	return job, nil
}

// Pending returns the number of queued jobs for user.
func (q *Queue) Pending(user domain.Telephone) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	uq := q.users[user]
	if uq == nil {
		return 0
	}
	n := len(uq.auth) + len(uq.chat)
	for _, l := range uq.messages {
		n += len(l)
	}
	return n
}

// Resolve re-executes the user's jobs in scope, lowest priority first. A
// class runs only if every lower class is empty when its turn comes. Jobs
// execute without the queue lock held. A concurrent Resolve for the same
// user returns immediately.
func (q *Queue) Resolve(ctx context.Context, exec Executor, user domain.Telephone, scope Scope) error {
	if err := scope.validate(); err != nil {
		return err
	}

	q.mu.Lock()
	uq := q.users[user]
	if uq == nil || uq.busy {
		q.mu.Unlock()
		return nil
	}
	uq.busy = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		uq.busy = false
		if uq.empty(domain.PriorityMessage+1) && q.users[user] == uq {
			delete(q.users, user)
		}
		q.mu.Unlock()
	}()

	for _, p := range []domain.Priority{domain.PriorityAuth, domain.PriorityChat} {
		if !scope.includes(p) {
			continue
		}
		if !q.run(ctx, exec, uq, p, "") {
			return nil
		}
	}
	if !scope.includes(domain.PriorityMessage) {
		return nil
	}
	for _, chat := range q.chats(uq, scope.ChatID) {
		if !q.run(ctx, exec, uq, domain.PriorityMessage, chat) {
			return nil
		}
	}
	return nil
}

// chats lists the chat ids to visit, in a stable order.
func (q *Queue) chats(uq *userQueue, only domain.ChatID) []domain.ChatID {
	if only != "" {
		return []domain.ChatID{only}
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]domain.ChatID, 0, len(uq.messages))
	for id := range uq.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// run drains one list. It reports false when lower priorities were not empty
// and the caller must stop.
func (q *Queue) run(ctx context.Context, exec Executor, uq *userQueue, p domain.Priority, chat domain.ChatID) bool {
	q.mu.Lock()
	if !uq.empty(p) {
		q.mu.Unlock()
		return false
	}
	batch := uq.get(p, chat)
	q.setList(uq, p, chat, nil)
	q.mu.Unlock()

	var keep []domain.Job
	for i, job := range batch {
		err := exec.Execute(ctx, job)
		if err == nil {
			q.log.Debug("job done", zap.String("job", job.ID), zap.Stringer("kind", job.Kind))
			continue
		}
		if !errors.Is(err, domain.ErrTransientNetwork) {
			q.log.Error("dropping malformed job",
				zap.String("job", job.ID), zap.Stringer("kind", job.Kind), zap.Error(err))
			exec.Dropped(ctx, job, err)
			continue
		}
		job.Retries++
		if job.Retries >= MaxRetries {
			q.log.Error("dropping job after retries",
				zap.String("job", job.ID), zap.Stringer("kind", job.Kind),
				zap.Int("retries", job.Retries), zap.Error(err))
			exec.Dropped(ctx, job, err)
			continue
		}
		q.log.Warn("job failed, will retry",
			zap.String("job", job.ID), zap.Stringer("kind", job.Kind),
			zap.Int("retries", job.Retries), zap.Error(err))
		keep = append(keep, job)
		keep = append(keep, batch[i+1:]...)
		break
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.setList(uq, p, chat, append(keep, uq.get(p, chat)...))
	return true
}

func (q *Queue) setList(uq *userQueue, p domain.Priority, chat domain.ChatID, jobs []domain.Job) {
	switch p {
	case domain.PriorityAuth:
		uq.auth = jobs
	case domain.PriorityChat:
		uq.chat = jobs
	default:
		if len(jobs) == 0 {
			delete(uq.messages, chat)
			return
		}
		uq.messages[chat] = jobs
	}
}

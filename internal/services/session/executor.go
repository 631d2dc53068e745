package session

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"duet/internal/domain"
)

// Execute runs a queued job. Frame-carrying jobs re-emit the frame they
// were created with.
func (o *Orchestrator) Execute(ctx context.Context, job domain.Job) error {
	switch job.Kind {
	case domain.KindRefresh:
		return o.refresh(ctx, job.User)
	case domain.KindCreateChat, domain.KindConfirmCreateChat, domain.KindSendMessage, domain.KindConfirmMessage:
		var f domain.Frame
		if err := json.Unmarshal(job.Payload, &f); err != nil {
			return fmt.Errorf("job %s: malformed payload: %w", job.ID, err)
		}
		if f.Envelope.Sender != job.User {
			return fmt.Errorf("job %s: frame sender %s does not own the job", job.ID, f.Envelope.Sender)
		}
		if user, ok := o.ActiveUser(); !ok || user != job.User {
			return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, domain.ErrNoSession)
		}
		return o.transport.Emit(ctx, f)
	default:
		return fmt.Errorf("job %s: unknown kind %s", job.ID, job.Kind)
	}
}

// Dropped discards the pending ratchet generation of an abandoned message.
func (o *Orchestrator) Dropped(_ context.Context, job domain.Job, reason error) {
	o.log.Error("job abandoned",
		zap.String("job", job.ID), zap.Stringer("kind", job.Kind),
		zap.String("user", job.User.String()), zap.String("chat", job.ChatID.String()),
		zap.Error(reason))
	if job.Kind == domain.KindSendMessage {
		o.discard(job.ChatID)
	}
}

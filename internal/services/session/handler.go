package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"duet/internal/domain"
	"duet/internal/jobs"
)

// Handle processes one inbound frame.
func (o *Orchestrator) Handle(ctx context.Context, frame domain.Frame) error {
	switch frame.Event {
	case domain.EventAuthResponse:
		return o.onAuthResponse(ctx, frame)
	case domain.EventDisconnect:
		return o.onDisconnect(frame)
	case domain.EventCreateChat:
		return o.onCreateChat(ctx, frame)
	case domain.EventConfirmCreateChat:
		return o.onConfirmCreateChat(ctx, frame)
	case domain.EventMessage:
		return o.onMessage(ctx, frame)
	case domain.EventConfirmMessage:
		return o.onConfirmMessage(ctx, frame)
	case domain.EventError:
		var body domain.ErrorBody
		if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
			return fmt.Errorf("malformed error frame: %w", err)
		}
		o.log.Warn("relay rejected frame", zap.String("event", string(body.Event)), zap.String("msg", body.Msg))
		return nil
	default:
		return fmt.Errorf("%w: unexpected event %q", domain.ErrProtocolState, frame.Event)
	}
}

func (o *Orchestrator) onAuthResponse(ctx context.Context, frame domain.Frame) error {
	var body domain.AuthResponseBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return fmt.Errorf("malformed auth-response: %w", err)
	}
	sess, err := o.Current()
	if err != nil {
		return err
	}
	if o.hooks.OnAuth != nil {
		o.hooks.OnAuth(body)
	}
	log := o.log.With(zap.String("user", sess.User.String()), zap.String("status", string(body.Status)))

	switch body.Status {
	case domain.AuthCreated:
		log.Info("account registered")
		if _, err := o.queue.Enqueue(sess.User, domain.PriorityAuth, domain.KindRefresh, nil, ""); err != nil {
			return err
		}
		return o.queue.Resolve(ctx, o, sess.User, jobs.AtPriority(domain.PriorityAuth))
	case domain.AuthOK:
		log.Info("authenticated")
		o.setAuthed(sess.User, true)
		return o.queue.Resolve(ctx, o, sess.User, jobs.All())
	default:
		log.Error("authentication failed", zap.String("msg", body.Msg))
		o.setAuthed(sess.User, false)
		return fmt.Errorf("%w: %s", domain.ErrPermanentFailure, body.Msg)
	}
}

// onDisconnect handles a lost relay connection reported by the transport.
// The session stays open and a refresh is queued to log in again.
func (o *Orchestrator) onDisconnect(frame domain.Frame) error {
	sess, err := o.Current()
	if err != nil {
		return nil
	}
	if frame.Envelope.Sender != "" && frame.Envelope.Sender != sess.User {
		return nil
	}
	o.log.Warn("relay connection lost", zap.String("user", sess.User.String()))
	_, err = o.queue.Enqueue(sess.User, domain.PriorityAuth, domain.KindRefresh, nil, "")
	return err
}

// frame builds a signed frame from sess carrying body.
func (o *Orchestrator) frame(sess Session, event domain.Event, body any) (domain.Frame, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return domain.Frame{}, fmt.Errorf("marshal %s: %w", event, err)
	}
	return domain.Frame{
		Event: event,
		Envelope: domain.Envelope{
			SignedMessage: signature(sess),
			Sender:        sess.User,
			Body:          raw,
		},
	}, nil
}

// emitOrQueue sends f. A transient failure queues it as a job of kind and
// reports queued=true with a nil error.
func (o *Orchestrator) emitOrQueue(
	ctx context.Context,
	user domain.Telephone,
	kind domain.JobKind,
	chat domain.ChatID,
	f domain.Frame,
) (queued bool, err error) {
	err = o.transport.Emit(ctx, f)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrTransientNetwork) {
		return false, err
	}
	payload, merr := json.Marshal(f)
	if merr != nil {
		return false, merr
	}
	job, qerr := o.queue.Enqueue(user, kind.Priority(), kind, payload, chat)
	if qerr != nil {
		return false, qerr
	}
	o.log.Warn("emit failed, queued for retry",
		zap.String("job", job.ID), zap.Stringer("kind", kind),
		zap.String("chat", chat.String()), zap.Error(err))
	return true, nil
}

// requireAddressee fails unless the frame is meant for the active user.
func requireAddressee(sess Session, to domain.Telephone) error {
	if to != sess.User {
		return fmt.Errorf("%w: frame for %s delivered to %s", domain.ErrProtocolState, to, sess.User)
	}
	return nil
}

// requireSender fails unless the relay-authenticated sender of frame is
// claimed, the telephone its body or chat names as the other party.
func requireSender(frame domain.Frame, claimed domain.Telephone) error {
	if frame.Envelope.Sender != claimed {
		return fmt.Errorf("%w: %s sent a %s on behalf of %s",
			domain.ErrProtocolState, frame.Envelope.Sender, frame.Event, claimed)
	}
	return nil
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/protocol/ratchet"
)

// SendMessage encrypts plaintext for chat and sends it. The rotated ratchet
// state is saved as tentative and only committed when the peer confirms, so
// a chat accepts a new message only after the previous one was confirmed or
// dropped. A transient failure leaves the message queued.
func (o *Orchestrator) SendMessage(ctx context.Context, chatID domain.ChatID, plaintext []byte) error {
	sess, err := o.Current()
	if err != nil {
		return err
	}
	chat, ok, err := o.chats.LoadChat(sess.User, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, chatID)
	}
	if !chat.Confirmed() {
		return domain.ErrChatNotConfirmed
	}

	f, err := o.encryptTentative(sess, chat, plaintext)
	if err != nil {
		return err
	}

	queued, err := o.emitOrQueue(ctx, sess.User, domain.KindSendMessage, chat.ID, f)
	if err != nil {
		o.discard(chat.ID)
		return err
	}
	o.log.Debug("message sent", zap.String("user", sess.User.String()),
		zap.String("chat", chat.ID.String()), zap.Bool("queued", queued))
	return nil
}

// encryptTentative rotates the committed state, encrypts and stores the
// result as the pending generation.
func (o *Orchestrator) encryptTentative(sess Session, chat domain.Chat, plaintext []byte) (domain.Frame, error) {
	unlock := o.chatLocks.lock(chat.ID)
	defer unlock()

	if _, pending, err := o.ratchets.LoadTentative(chat.ID); err != nil {
		return domain.Frame{}, err
	} else if pending {
		return domain.Frame{}, domain.ErrGenerationPending
	}
	set, ok, err := o.ratchets.Load(chat.ID)
	if err != nil {
		return domain.Frame{}, err
	}
	if !ok {
		return domain.Frame{}, domain.ErrNoRatchet
	}

	sc, pub, err := ratchet.RotateForSend(&set, set.PeerRatchetPub)
	if err != nil {
		return domain.Frame{}, err
	}
	ct, err := ratchet.Encrypt(sc, plaintext)
	if err != nil {
		return domain.Frame{}, err
	}
	if err := o.ratchets.Save(chat.ID, set, true); err != nil {
		return domain.Frame{}, err
	}

	return o.frame(sess, domain.EventMessage, domain.MessageBody{
		Sender:    domain.ChatRef{Telephone: sess.User, ChatID: chat.ID},
		Receiver:  domain.ChatRef{Telephone: chat.Peer, ChatID: chat.BackRef},
		Cipher:    ct,
		DHRatchet: pub,
	})
}

// onMessage decrypts an inbound message against committed state, commits
// the advanced root and confirms with the local ratchet key.
func (o *Orchestrator) onMessage(ctx context.Context, frame domain.Frame) error {
	var body domain.MessageBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return fmt.Errorf("malformed message: %w", err)
	}
	sess, err := o.Current()
	if err != nil {
		return err
	}
	if err := requireAddressee(sess, body.Receiver.Telephone); err != nil {
		return err
	}
	chat, ok, err := o.chats.LoadChat(sess.User, body.Receiver.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, body.Receiver.ChatID)
	}
	if chat.Peer != body.Sender.Telephone || chat.BackRef != body.Sender.ChatID {
		return fmt.Errorf("%w: %s/%s is not the other side of chat %s",
			domain.ErrProtocolState, body.Sender.Telephone, body.Sender.ChatID, chat.ID)
	}
	if err := requireSender(frame, chat.Peer); err != nil {
		return err
	}

	pt, localPub, err := o.decryptCommit(chat.ID, body)
	if err != nil {
		return err
	}
	if o.hooks.OnMessage != nil {
		o.hooks.OnMessage(Received{Chat: chat, Plaintext: pt, At: time.Now().UTC()})
	}

	f, err := o.frame(sess, domain.EventConfirmMessage, domain.ConfirmMessageBody{
		Sender:    body.Sender,
		Receiver:  body.Receiver,
		DHRatchet: localPub,
	})
	if err != nil {
		return err
	}
	_, err = o.emitOrQueue(ctx, sess.User, domain.KindConfirmMessage, chat.ID, f)
	return err
}

func (o *Orchestrator) decryptCommit(chat domain.ChatID, body domain.MessageBody) ([]byte, domain.X25519Public, error) {
	unlock := o.chatLocks.lock(chat)
	defer unlock()

	set, ok, err := o.ratchets.Load(chat)
	if err != nil {
		return nil, domain.X25519Public{}, err
	}
	if !ok {
		return nil, domain.X25519Public{}, domain.ErrNoRatchet
	}
	rc, err := ratchet.RotateForReceive(&set, body.DHRatchet)
	if err != nil {
		return nil, domain.X25519Public{}, err
	}
	pt, err := ratchet.Decrypt(rc, body.Cipher)
	if err != nil {
		return nil, domain.X25519Public{}, err
	}
	set.PeerRatchetPub = body.DHRatchet
	if err := o.ratchets.Save(chat, set, false); err != nil {
		return nil, domain.X25519Public{}, err
	}
	pub, err := crypto.PublicX25519(set.DHRatchet)
	return pt, pub, err
}

// onConfirmMessage promotes the pending generation of the confirmed chat.
// Only the chat's peer can confirm, and a confirmation with nothing pending
// is a duplicate and ignored.
func (o *Orchestrator) onConfirmMessage(_ context.Context, frame domain.Frame) error {
	var body domain.ConfirmMessageBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return fmt.Errorf("malformed confirm-message: %w", err)
	}
	sess, err := o.Current()
	if err != nil {
		return err
	}
	if err := requireAddressee(sess, body.Sender.Telephone); err != nil {
		return err
	}
	c, ok, err := o.chats.LoadChat(sess.User, body.Sender.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, body.Sender.ChatID)
	}
	if err := requireSender(frame, c.Peer); err != nil {
		return err
	}
	if body.Receiver.Telephone != c.Peer || body.Receiver.ChatID != c.BackRef {
		return fmt.Errorf("%w: confirmation from %s/%s does not match chat %s",
			domain.ErrProtocolState, body.Receiver.Telephone, body.Receiver.ChatID, c.ID)
	}
	chat := c.ID

	unlock := o.chatLocks.lock(chat)
	defer unlock()
	set, ok, err := o.ratchets.LoadTentative(chat)
	if err != nil {
		return err
	}
	if !ok {
		o.log.Debug("confirm-message without pending generation", zap.String("chat", chat.String()))
		return nil
	}
	set.PeerRatchetPub = body.DHRatchet
	if err := o.ratchets.Save(chat, set, true); err != nil {
		return err
	}
	if err := o.ratchets.Promote(chat); err != nil {
		return err
	}
	o.log.Debug("generation committed", zap.String("user", sess.User.String()), zap.String("chat", chat.String()))
	return nil
}

// SettlePending resolves a pending generation whose confirmation will never
// arrive, for instance because the peer's confirm-message was dropped. With
// delivered the generation is committed as if confirmed; the peer's ratchet
// key does not change on receive, so the stored one stays valid. Otherwise
// the message is abandoned and the generation discarded.
func (o *Orchestrator) SettlePending(chatID domain.ChatID, delivered bool) error {
	sess, err := o.Current()
	if err != nil {
		return err
	}
	chat, ok, err := o.chats.LoadChat(sess.User, chatID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, chatID)
	}

	unlock := o.chatLocks.lock(chat.ID)
	defer unlock()
	if _, pending, err := o.ratchets.LoadTentative(chat.ID); err != nil {
		return err
	} else if !pending {
		return fmt.Errorf("%w: chat %s has no pending generation", domain.ErrProtocolState, chat.ID)
	}
	if delivered {
		err = o.ratchets.Promote(chat.ID)
	} else {
		err = o.ratchets.Discard(chat.ID)
	}
	if err != nil {
		return err
	}
	o.log.Info("pending generation settled", zap.String("user", sess.User.String()),
		zap.String("chat", chat.ID.String()), zap.Bool("delivered", delivered))
	return nil
}

// discard drops the pending generation of chat.
func (o *Orchestrator) discard(chat domain.ChatID) {
	unlock := o.chatLocks.lock(chat)
	defer unlock()
	if err := o.ratchets.Discard(chat); err != nil {
		o.log.Error("failed to discard pending generation", zap.String("chat", chat.String()), zap.Error(err))
	}
}

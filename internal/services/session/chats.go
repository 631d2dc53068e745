package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/protocol/ratchet"
	"duet/internal/protocol/x3dh"
	"duet/internal/util/memzero"
)

// CreateChat starts a chat with peer. It stores the chat row, creates the
// per-chat ephemeral and ratchet keys and sends the handshake. The chat can
// carry messages once the peer confirms.
func (o *Orchestrator) CreateChat(
	ctx context.Context,
	peer domain.Telephone,
	name, description string,
) (domain.Chat, error) {
	sess, err := o.Current()
	if err != nil {
		return domain.Chat{}, err
	}
	if peer == sess.User {
		return domain.Chat{}, ErrSelfChat
	}

	chat := domain.Chat{
		ID:          domain.ChatID(uuid.NewString()),
		Owner:       sess.User,
		Peer:        peer,
		Name:        name,
		Description: description,
		Initiator:   true,
		CreatedAt:   time.Now().UTC(),
	}
	ek, err := o.generateDH(domain.EphemeralLabel(chat.ID))
	if err != nil {
		return domain.Chat{}, err
	}
	dhr, err := o.generateDH(domain.RatchetKeyLabel(chat.ID))
	if err != nil {
		return domain.Chat{}, err
	}
	if err := o.chats.SaveChat(chat); err != nil {
		return domain.Chat{}, err
	}

	f, err := o.frame(sess, domain.EventCreateChat, domain.CreateChatBody{
		Owner:       domain.ChatRef{Telephone: sess.User, ChatID: chat.ID},
		User:        peer,
		Name:        name,
		Description: description,
		DHRatchet:   dhr,
		EK:          ek,
	})
	if err != nil {
		return domain.Chat{}, err
	}
	if _, err := o.emitOrQueue(ctx, sess.User, domain.KindCreateChat, "", f); err != nil {
		return domain.Chat{}, err
	}
	o.log.Info("chat requested", zap.String("user", sess.User.String()),
		zap.String("chat", chat.ID.String()), zap.String("peer", peer.String()))
	return chat, nil
}

// onCreateChat answers a peer's handshake: it runs the responder side of
// X3DH with the two one-time prekeys the relay assigned, commits the initial
// ratchet state and confirms.
func (o *Orchestrator) onCreateChat(ctx context.Context, frame domain.Frame) error {
	var body domain.CreateChatBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return fmt.Errorf("malformed create-chat: %w", err)
	}
	sess, err := o.Current()
	if err != nil {
		return err
	}
	if err := requireAddressee(sess, body.User); err != nil {
		return err
	}
	if err := requireSender(frame, body.Owner.Telephone); err != nil {
		return err
	}
	if len(body.UsedKeys) != 2 {
		return fmt.Errorf("%w: create-chat carries %d prekey ids", domain.ErrProtocolState, len(body.UsedKeys))
	}
	opkLabel := domain.OneTimePreKeyLabel(body.UsedKeys[0])
	dhrLabel := domain.OneTimePreKeyLabel(body.UsedKeys[1])

	ik, err := o.loadDH(domain.LabelIdentity)
	if err != nil {
		return err
	}
	spk, err := o.loadDH(domain.LabelSignedPreKey)
	if err != nil {
		return err
	}
	opk, err := o.loadDH(opkLabel)
	if err != nil {
		return err
	}
	dhr, err := o.loadDH(dhrLabel)
	if err != nil {
		return err
	}

	secret, err := x3dh.ReceiverExchange(
		x3dh.ReceiverKeys{SPK: &spk, IK: &ik, OPK: &opk},
		x3dh.SenderPublics{IK: &body.OwnerIK, EK: &body.EK},
	)
	if err != nil {
		return err
	}
	root, err := ratchet.InitRoot(secret)
	memzero.Zero(secret)
	if err != nil {
		return err
	}

	chat := domain.Chat{
		ID:          domain.ChatID(uuid.NewString()),
		Owner:       sess.User,
		Peer:        body.Owner.Telephone,
		PeerName:    body.OwnerName,
		Name:        body.Name,
		Description: body.Description,
		BackRef:     body.Owner.ChatID,
		CreatedAt:   time.Now().UTC(),
	}
	unlock := o.chatLocks.lock(chat.ID)
	err = o.ratchets.Save(chat.ID, domain.RatchetSet{
		DHRatchet:      dhr,
		Root:           root,
		PeerRatchetPub: body.DHRatchet,
	}, false)
	unlock()
	if err != nil {
		return err
	}
	if err := o.chats.SaveChat(chat); err != nil {
		return err
	}

	keys, err := o.publicKeys(ik, spk, opk, dhr)
	memzero.Keys(&ik, &spk, &opk, &dhr)
	if err != nil {
		return err
	}
	o.dropKeys(opkLabel, dhrLabel)
	if o.hooks.OnChat != nil {
		o.hooks.OnChat(chat)
	}

	name := ""
	if acc, ok, err := o.accounts.LoadAccount(sess.User); err == nil && ok {
		name = acc.Name
	}
	f, err := o.frame(sess, domain.EventConfirmCreateChat, domain.ConfirmCreateChatBody{
		Owner: body.Owner,
		User: domain.ConfirmingUser{
			Name:      name,
			Telephone: sess.User,
			ChatID:    chat.ID,
			Keys:      keys,
		},
	})
	if err != nil {
		return err
	}
	o.log.Info("chat accepted", zap.String("user", sess.User.String()),
		zap.String("chat", chat.ID.String()), zap.String("peer", chat.Peer.String()))
	_, err = o.emitOrQueue(ctx, sess.User, domain.KindConfirmCreateChat, "", f)
	return err
}

// onConfirmCreateChat completes a chat this node started: it runs the
// initiator side of X3DH, commits the ratchet state, records the peer's
// chat id and deletes the per-chat handshake keys.
func (o *Orchestrator) onConfirmCreateChat(_ context.Context, frame domain.Frame) error {
	var body domain.ConfirmCreateChatBody
	if err := json.Unmarshal(frame.Envelope.Body, &body); err != nil {
		return fmt.Errorf("malformed confirm-create-chat: %w", err)
	}
	sess, err := o.Current()
	if err != nil {
		return err
	}
	if err := requireAddressee(sess, body.Owner.Telephone); err != nil {
		return err
	}
	chat, ok, err := o.chats.LoadChat(sess.User, body.Owner.ChatID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownChat, body.Owner.ChatID)
	}
	if err := requireSender(frame, chat.Peer); err != nil {
		return err
	}
	if body.User.Telephone != chat.Peer {
		return fmt.Errorf("%w: chat %s confirmed by %s, expected %s",
			domain.ErrProtocolState, chat.ID, body.User.Telephone, chat.Peer)
	}
	if chat.BackRef == body.User.ChatID {
		o.log.Debug("duplicate confirm-create-chat", zap.String("chat", chat.ID.String()))
		return nil
	}
	if chat.Confirmed() {
		return fmt.Errorf("%w: chat %s already bound to %s", domain.ErrProtocolState, chat.ID, chat.BackRef)
	}

	ik, err := o.loadDH(domain.LabelIdentity)
	if err != nil {
		return err
	}
	ek, err := o.loadDH(domain.EphemeralLabel(chat.ID))
	if err != nil {
		return err
	}
	dhr, err := o.loadDH(domain.RatchetKeyLabel(chat.ID))
	if err != nil {
		return err
	}
	peer := body.User.Keys
	secret, err := x3dh.SenderExchange(
		x3dh.SenderKeys{IK: &ik, EK: &ek},
		x3dh.ReceiverPublics{IK: &peer.IK, SPK: &peer.SPK, OPK: &peer.OPK},
	)
	memzero.Keys(&ik, &ek)
	if err != nil {
		return err
	}
	root, err := ratchet.InitRoot(secret)
	memzero.Zero(secret)
	if err != nil {
		return err
	}

	unlock := o.chatLocks.lock(chat.ID)
	err = o.ratchets.Save(chat.ID, domain.RatchetSet{
		DHRatchet:      dhr,
		Root:           root,
		PeerRatchetPub: peer.DHRatchet,
	}, false)
	unlock()
	if err != nil {
		return err
	}
	if err := o.chats.SetBackRef(sess.User, chat.ID, body.User.ChatID); err != nil {
		return err
	}
	chat.BackRef = body.User.ChatID
	if body.User.Name != "" {
		chat.PeerName = body.User.Name
		if err := o.chats.SaveChat(chat); err != nil {
			return err
		}
	}
	o.dropKeys(domain.EphemeralLabel(chat.ID), domain.RatchetKeyLabel(chat.ID))

	o.log.Info("chat confirmed", zap.String("user", sess.User.String()),
		zap.String("chat", chat.ID.String()), zap.String("back_ref", chat.BackRef.String()))
	if o.hooks.OnChat != nil {
		o.hooks.OnChat(chat)
	}
	return nil
}

// publicKeys derives the public halves sent back in confirm-create-chat.
func (o *Orchestrator) publicKeys(ik, spk, opk, dhr domain.X25519Private) (domain.PeerKeys, error) {
	var (
		out domain.PeerKeys
		err error
	)
	if out.IK, err = crypto.PublicX25519(ik); err != nil {
		return out, err
	}
	if out.SPK, err = crypto.PublicX25519(spk); err != nil {
		return out, err
	}
	if out.OPK, err = crypto.PublicX25519(opk); err != nil {
		return out, err
	}
	out.DHRatchet, err = crypto.PublicX25519(dhr)
	return out, err
}

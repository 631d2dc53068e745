package x3dh

import (
	"fmt"

	"duet/internal/crypto"
	"duet/internal/domain"
	"duet/internal/util/memzero"
)

// SecretSize is the length of the shared secret.
const SecretSize = 32

// SenderKeys are the initiator's private inputs.
type SenderKeys struct {
	IK *domain.X25519Private
	EK *domain.X25519Private
}

// ReceiverPublics are the responder's published keys as seen by the initiator.
type ReceiverPublics struct {
	IK  *domain.X25519Public
	SPK *domain.X25519Public
	OPK *domain.X25519Public
}

// ReceiverKeys are the responder's private inputs.
type ReceiverKeys struct {
	SPK *domain.X25519Private
	IK  *domain.X25519Private
	OPK *domain.X25519Private
}

// SenderPublics are the initiator's keys as seen by the responder.
type SenderPublics struct {
	IK *domain.X25519Public
	EK *domain.X25519Public
}

// SenderExchange derives the shared secret on the initiating side:
// IK·SPK, EK·IK, EK·SPK, EK·OPK.
func SenderExchange(local SenderKeys, remote ReceiverPublics) ([]byte, error) {
	if local.IK == nil || local.EK == nil || remote.IK == nil || remote.SPK == nil || remote.OPK == nil {
		return nil, domain.ErrMissingKey
	}
	return derive([4]pair{
		{*local.IK, *remote.SPK},
		{*local.EK, *remote.IK},
		{*local.EK, *remote.SPK},
		{*local.EK, *remote.OPK},
	})
}

// ReceiverExchange derives the shared secret on the responding side:
// SPK·IK, IK·EK, SPK·EK, OPK·EK.
func ReceiverExchange(local ReceiverKeys, remote SenderPublics) ([]byte, error) {
	if local.SPK == nil || local.IK == nil || local.OPK == nil || remote.IK == nil || remote.EK == nil {
		return nil, domain.ErrMissingKey
	}
	return derive([4]pair{
		{*local.SPK, *remote.IK},
		{*local.IK, *remote.EK},
		{*local.SPK, *remote.EK},
		{*local.OPK, *remote.EK},
	})
}

type pair struct {
	priv domain.X25519Private
	pub  domain.X25519Public
}

func derive(pairs [4]pair) ([]byte, error) {
	transcript := make([]byte, 0, 32*len(pairs))
	defer func() { memzero.Zero(transcript) }()

	for i, p := range pairs {
		out, err := crypto.DH(p.priv, p.pub)
		if err != nil {
			return nil, fmt.Errorf("x3dh dh%d: %w", i+1, err)
		}
		transcript = append(transcript, out[:]...)
		memzero.Zero(out[:])
	}
	return crypto.DeriveKey(transcript, SecretSize)
}

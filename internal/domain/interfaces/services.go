package interfaces

import (
	"context"

	domaintypes "duet/internal/domain/types"
)

// IdentityService creates the long-term key material of an account.
type IdentityService interface {
	GenerateKeys(name string) (domaintypes.Registration, error)
	SigningKey() (domaintypes.Ed25519Private, error)
	Fingerprint() (domaintypes.Fingerprint, error)
}

// SessionService is the node-side session orchestrator.
type SessionService interface {
	Signup(ctx context.Context, telephone domaintypes.Telephone, name string) error
	Login(ctx context.Context, telephone domaintypes.Telephone) error
	Logout(ctx context.Context) error
	ActiveUser() (domaintypes.Telephone, bool)
	CreateChat(
		ctx context.Context,
		peer domaintypes.Telephone,
		name, description string,
	) (domaintypes.Chat, error)
	SendMessage(ctx context.Context, chat domaintypes.ChatID, plaintext []byte) error
	Handle(ctx context.Context, frame domaintypes.Frame) error
}

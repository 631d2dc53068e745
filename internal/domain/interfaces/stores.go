package interfaces

import domaintypes "duet/internal/domain/types"

// KeyStore persists private keys under labels, encrypted with the node
// master secret.
type KeyStore interface {
	Generate(label domaintypes.KeyLabel, kind domaintypes.KeyKind) (domaintypes.PrivateKey, error)
	Persist(label domaintypes.KeyLabel, priv domaintypes.PrivateKey) error
	Load(label domaintypes.KeyLabel) (domaintypes.PrivateKey, error)
	Delete(label domaintypes.KeyLabel) error
	DerivePublic(priv domaintypes.PrivateKey) ([]byte, error)
}

// RatchetStore keeps per-chat ratchet state in a committed and a tentative
// namespace. Load only ever returns committed state.
type RatchetStore interface {
	Save(chat domaintypes.ChatID, set domaintypes.RatchetSet, tentative bool) error
	Load(chat domaintypes.ChatID) (domaintypes.RatchetSet, bool, error)
	LoadTentative(chat domaintypes.ChatID) (domaintypes.RatchetSet, bool, error)
	Promote(chat domaintypes.ChatID) error
	Discard(chat domaintypes.ChatID) error
}

// ChatStore is the chat directory of a node.
type ChatStore interface {
	SaveChat(chat domaintypes.Chat) error
	LoadChat(owner domaintypes.Telephone, id domaintypes.ChatID) (domaintypes.Chat, bool, error)
	// SetBackRef records the peer's chat id. Setting the same value again is
	// a no-op; a different value fails with ErrProtocolState.
	SetBackRef(owner domaintypes.Telephone, id, back domaintypes.ChatID) error
	ListChats(owner domaintypes.Telephone) ([]domaintypes.Chat, error)
}

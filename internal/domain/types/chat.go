package types

import "time"

// Chat is one side of a conversation. BackRef holds the peer's chat id once
// the peer has confirmed; it never changes after that.
type Chat struct {
	ID          ChatID    `json:"id"`
	Owner       Telephone `json:"owner"`
	Peer        Telephone `json:"peer"`
	PeerName    string    `json:"peer_name,omitempty"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	BackRef     ChatID    `json:"back_ref,omitempty"`
	Initiator   bool      `json:"initiator"`
	CreatedAt   time.Time `json:"created_at"`
}

// Confirmed reports whether the peer's chat id is known.
func (c Chat) Confirmed() bool { return c.BackRef != "" }

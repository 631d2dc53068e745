package types

import "fmt"

// Priority orders jobs: 0 runs before 1, 1 before 2.
type Priority int

const (
	PriorityAuth    Priority = 0
	PriorityChat    Priority = 1
	PriorityMessage Priority = 2
)

// Valid reports whether p is one of the three known priorities.
func (p Priority) Valid() bool { return p >= PriorityAuth && p <= PriorityMessage }

// JobKind is the closed set of retryable operations.
type JobKind int

const (
	KindRefresh JobKind = iota + 1
	KindCreateChat
	KindConfirmCreateChat
	KindSendMessage
	KindConfirmMessage
)

// Priority returns the queue a kind belongs to.
func (k JobKind) Priority() Priority {
	switch k {
	case KindRefresh:
		return PriorityAuth
	case KindCreateChat, KindConfirmCreateChat:
		return PriorityChat
	default:
		return PriorityMessage
	}
}

func (k JobKind) String() string {
	switch k {
	case KindRefresh:
		return "refresh"
	case KindCreateChat:
		return "create-chat"
	case KindConfirmCreateChat:
		return "confirm-create-chat"
	case KindSendMessage:
		return "send-message"
	case KindConfirmMessage:
		return "confirm-message"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Job is a deferred operation owned by a user. Payload is opaque to the
// queue; for frame-carrying kinds it is the encoded Frame to re-emit.
type Job struct {
	ID       string    `json:"id"`
	User     Telephone `json:"user"`
	Kind     JobKind   `json:"kind"`
	Priority Priority  `json:"priority"`
	ChatID   ChatID    `json:"chat_id,omitempty"`
	Payload  []byte    `json:"payload,omitempty"`
	Retries  int       `json:"retries"`
}

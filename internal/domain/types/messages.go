package types

import "encoding/json"

// Event names a frame exchanged with the relay.
type Event string

const (
	EventConnect           Event = "connect"
	EventDisconnect        Event = "disconnect"
	EventAuthResponse      Event = "auth-response"
	EventCreateChat        Event = "create-chat"
	EventConfirmCreateChat Event = "confirm-create-chat"
	EventMessage           Event = "message"
	EventConfirmMessage    Event = "confirm-message"
	EventError             Event = "error"
)

// Frame is the unit sent over the transport.
type Frame struct {
	Event    Event    `json:"event"`
	Envelope Envelope `json:"envelope"`
}

// Envelope wraps every body. SignedMessage is the base64 Ed25519
// signature of the sender over the session challenge.
type Envelope struct {
	SignedMessage string          `json:"signed_message"`
	Sender        Telephone       `json:"sender"`
	Body          json.RawMessage `json:"body"`
}

// ChatRef addresses one side of a chat.
type ChatRef struct {
	Telephone Telephone `json:"telephone"`
	ChatID    ChatID    `json:"chat_id"`
}

// ConnectBody is sent on connect. Registration is set only at signup.
type ConnectBody struct {
	Telephone    Telephone     `json:"telephone"`
	Registration *Registration `json:"registration,omitempty"`
}

// AuthStatus is the outcome reported in an auth-response.
type AuthStatus string

const (
	AuthCreated AuthStatus = "created"
	AuthOK      AuthStatus = "ok"
	AuthFailed  AuthStatus = "failed"
)

// AuthResponseBody answers a connect.
type AuthResponseBody struct {
	Status AuthStatus `json:"status"`
	Msg    string     `json:"msg,omitempty"`
}

// CreateChatBody opens a chat. The relay fills OwnerName, OwnerIK and
// UsedKeys (X3DH prekey number, ratchet key number) before forwarding.
type CreateChatBody struct {
	Owner       ChatRef      `json:"owner"`
	User        Telephone    `json:"user"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	DHRatchet   X25519Public `json:"dh_ratchet"`
	EK          X25519Public `json:"EK"`
	OwnerName   string       `json:"owner_name,omitempty"`
	OwnerIK     X25519Public `json:"owner_ik"`
	UsedKeys    []int        `json:"used_keys,omitempty"`
}

// PeerKeys are the responder's public keys needed by the initiator.
type PeerKeys struct {
	DHRatchet X25519Public `json:"dh_ratchet"`
	OPK       X25519Public `json:"OPK"`
	IK        X25519Public `json:"IK"`
	SPK       X25519Public `json:"SPK"`
}

// ConfirmingUser describes the responder of a create-chat.
type ConfirmingUser struct {
	Name      string    `json:"name"`
	Telephone Telephone `json:"telephone"`
	ChatID    ChatID    `json:"chat_id"`
	Keys      PeerKeys  `json:"keys"`
}

// ConfirmCreateChatBody answers a create-chat.
type ConfirmCreateChatBody struct {
	Owner ChatRef        `json:"owner"`
	User  ConfirmingUser `json:"user"`
}

// MessageBody carries one ciphertext and the sender's fresh ratchet key.
type MessageBody struct {
	Sender    ChatRef      `json:"sender"`
	Receiver  ChatRef      `json:"receiver"`
	Cipher    []byte       `json:"cipher"`
	DHRatchet X25519Public `json:"dh_ratchet"`
}

// ConfirmMessageBody acknowledges a message. DHRatchet is the receiver's
// current ratchet key.
type ConfirmMessageBody struct {
	Sender    ChatRef      `json:"sender"`
	Receiver  ChatRef      `json:"receiver"`
	DHRatchet X25519Public `json:"dh_ratchet"`
}

// ErrorBody reports a relay rejection back to the originator.
type ErrorBody struct {
	Event Event  `json:"event"`
	Msg   string `json:"msg"`
}

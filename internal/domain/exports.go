package domain

import (
	interfaces "duet/internal/domain/interfaces"
	types "duet/internal/domain/types"
)

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	Telephone             = types.Telephone
	Fingerprint           = types.Fingerprint
	ChatID                = types.ChatID
	X25519Public          = types.X25519Public
	X25519Private         = types.X25519Private
	Ed25519Public         = types.Ed25519Public
	Ed25519Private        = types.Ed25519Private
	KeyKind               = types.KeyKind
	PrivateKey            = types.PrivateKey
	KeyLabel              = types.KeyLabel
	NumberedKey           = types.NumberedKey
	Registration          = types.Registration
	Account               = types.Account
	RootRatchet           = types.RootRatchet
	RatchetSet            = types.RatchetSet
	Chat                  = types.Chat
	Priority              = types.Priority
	JobKind               = types.JobKind
	Job                   = types.Job
	Event                 = types.Event
	Frame                 = types.Frame
	Envelope              = types.Envelope
	ChatRef               = types.ChatRef
	ConnectBody           = types.ConnectBody
	AuthStatus            = types.AuthStatus
	AuthResponseBody      = types.AuthResponseBody
	CreateChatBody        = types.CreateChatBody
	PeerKeys              = types.PeerKeys
	ConfirmingUser        = types.ConfirmingUser
	ConfirmCreateChatBody = types.ConfirmCreateChatBody
	MessageBody           = types.MessageBody
	ConfirmMessageBody    = types.ConfirmMessageBody
	ErrorBody             = types.ErrorBody
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	KeyStore          = interfaces.KeyStore
	RatchetStore      = interfaces.RatchetStore
	ChatStore         = interfaces.ChatStore
	AccountStore      = interfaces.AccountStore
	RegistrationStore = interfaces.RegistrationStore
	Transport         = interfaces.Transport
	IdentityService   = interfaces.IdentityService
	SessionService    = interfaces.SessionService
)

// Re-exported constants.
const (
	KeyDH      = types.KeyDH
	KeySigning = types.KeySigning

	LabelIdentity     = types.LabelIdentity
	LabelSignedPreKey = types.LabelSignedPreKey
	LabelSigning      = types.LabelSigning

	OneTimePreKeyCount = types.OneTimePreKeyCount

	PriorityAuth    = types.PriorityAuth
	PriorityChat    = types.PriorityChat
	PriorityMessage = types.PriorityMessage

	KindRefresh           = types.KindRefresh
	KindCreateChat        = types.KindCreateChat
	KindConfirmCreateChat = types.KindConfirmCreateChat
	KindSendMessage       = types.KindSendMessage
	KindConfirmMessage    = types.KindConfirmMessage

	EventConnect           = types.EventConnect
	EventDisconnect        = types.EventDisconnect
	EventAuthResponse      = types.EventAuthResponse
	EventCreateChat        = types.EventCreateChat
	EventConfirmCreateChat = types.EventConfirmCreateChat
	EventMessage           = types.EventMessage
	EventConfirmMessage    = types.EventConfirmMessage
	EventError             = types.EventError

	AuthCreated = types.AuthCreated
	AuthOK      = types.AuthOK
	AuthFailed  = types.AuthFailed
)

// Re-exported constructors.
var (
	DHKey              = types.DHKey
	SigningKey         = types.SigningKey
	OneTimePreKeyLabel = types.OneTimePreKeyLabel
	EphemeralLabel     = types.EphemeralLabel
	RatchetKeyLabel    = types.RatchetKeyLabel
)

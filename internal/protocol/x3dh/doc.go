// Package x3dh implements the extended triple Diffie-Hellman handshake used
// to bootstrap a chat's root ratchet.
//
// # Flows
//
// Initiator (SenderExchange), holding its identity key IK and the per-chat
// ephemeral key EK, against the responder's IK, signed prekey SPK and one
// one-time prekey OPK:
//
//	DH1 = IK·SPK, DH2 = EK·IK, DH3 = EK·SPK, DH4 = EK·OPK
//
// Responder (ReceiverExchange), holding SPK, IK and the consumed OPK:
//
//	DH1 = SPK·IK, DH2 = IK·EK, DH3 = SPK·EK, DH4 = OPK·EK
//
// The four outputs are concatenated in order and run through HKDF-SHA256
// (empty salt, empty info) to a 32-byte secret. The roles are not
// interchangeable: swapping them yields a different secret.
//
// # Errors
//
// domain.ErrMissingKey is returned when any of the inputs is nil. Other
// errors wrap low-order point rejections from curve25519.
package x3dh

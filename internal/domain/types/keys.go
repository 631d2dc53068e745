package types

import (
	"encoding/base64"
	"fmt"
)

// X25519Public is a Curve25519 public key. It travels as standard base64.
type X25519Public [32]byte

// Slice returns the key as a []byte.
func (p X25519Public) Slice() []byte { return p[:] }

// IsZero reports whether the key is unset.
func (p X25519Public) IsZero() bool { return p == X25519Public{} }

// String returns the base64 transport form.
func (p X25519Public) String() string { return base64.StdEncoding.EncodeToString(p[:]) }

// MarshalText implements encoding.TextMarshaler.
func (p X25519Public) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *X25519Public) UnmarshalText(b []byte) error {
	return decodeFixed(p[:], b, "x25519 public key")
}

// X25519Private is a Curve25519 private key.
type X25519Private [32]byte

// Slice returns the key as a []byte.
func (k X25519Private) Slice() []byte { return k[:] }

// Ed25519Public is an Ed25519 signing public key.
type Ed25519Public [32]byte

// Slice returns the key as a []byte.
func (p Ed25519Public) Slice() []byte { return p[:] }

// String returns the base64 transport form.
func (p Ed25519Public) String() string { return base64.StdEncoding.EncodeToString(p[:]) }

// MarshalText implements encoding.TextMarshaler.
func (p Ed25519Public) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Ed25519Public) UnmarshalText(b []byte) error {
	return decodeFixed(p[:], b, "ed25519 public key")
}

// Ed25519Private is an Ed25519 signing private key.
type Ed25519Private [64]byte

// Slice returns the key as a []byte.
func (k Ed25519Private) Slice() []byte { return k[:] }

func decodeFixed(dst, src []byte, what string) error {
	raw, err := base64.StdEncoding.DecodeString(string(src))
	if err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("decode %s: want %d bytes, got %d", what, len(dst), len(raw))
	}
	copy(dst, raw)
	return nil
}

// KeyKind tags which curve a PrivateKey belongs to.
type KeyKind int

const (
	// KeyDH is an X25519 key used for Diffie-Hellman.
	KeyDH KeyKind = iota + 1
	// KeySigning is an Ed25519 key used for envelope signatures.
	KeySigning
)

// String returns a short name for the kind.
func (k KeyKind) String() string {
	switch k {
	case KeyDH:
		return "dh"
	case KeySigning:
		return "signing"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// PrivateKey is either an X25519 or an Ed25519 private key, selected by Kind.
// Only the field matching Kind is meaningful.
type PrivateKey struct {
	Kind    KeyKind
	DH      X25519Private
	Signing Ed25519Private
}

// DHKey wraps an X25519 private key.
func DHKey(k X25519Private) PrivateKey { return PrivateKey{Kind: KeyDH, DH: k} }

// SigningKey wraps an Ed25519 private key.
func SigningKey(k Ed25519Private) PrivateKey { return PrivateKey{Kind: KeySigning, Signing: k} }

// KeyLabel names a persisted private key.
type KeyLabel string

// String returns the string form of the label.
func (l KeyLabel) String() string { return string(l) }

// Labels of the long-term keys created at signup.
const (
	LabelIdentity     KeyLabel = "id_key"
	LabelSignedPreKey KeyLabel = "sgn_key"
	LabelSigning      KeyLabel = "ed_key"
)

// OneTimePreKeyCount is the size of the pool generated at signup.
const OneTimePreKeyCount = 10

// OneTimePreKeyLabel returns the label of one-time prekey n (1-based).
func OneTimePreKeyLabel(n int) KeyLabel { return KeyLabel(fmt.Sprintf("opk-%d", n)) }

// EphemeralLabel returns the label of the X3DH ephemeral key for a chat.
func EphemeralLabel(chat ChatID) KeyLabel { return KeyLabel("eph-" + chat.String()) }

// RatchetKeyLabel returns the label of the initial ratchet key for a chat.
func RatchetKeyLabel(chat ChatID) KeyLabel { return KeyLabel("dhr-" + chat.String()) }

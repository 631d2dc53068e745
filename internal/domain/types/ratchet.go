package types

// RootRatchet is the 32-byte state of the root KDF chain.
type RootRatchet [32]byte

// RatchetSet is the complete per-chat ratchet state. All three fields are
// written and read together.
type RatchetSet struct {
	DHRatchet      X25519Private
	Root           RootRatchet
	PeerRatchetPub X25519Public
}

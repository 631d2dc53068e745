// Package crypto exposes the minimal primitives used by duet.
//
// Contents
//
//   - X25519 key generation, clamping, public derivation and Diffie–Hellman
//     (GenerateX25519, PublicX25519, DH)
//   - Ed25519 key generation, signing and verification (GenerateEd25519,
//     SignEd25519, VerifyEd25519)
//   - The session challenge signature carried in every envelope
//     (SignChallenge, VerifyChallenge)
//   - Short public-key fingerprints for display/logging (Fingerprint)
//
// All functions return fixed-size array types defined in internal/domain.
package crypto

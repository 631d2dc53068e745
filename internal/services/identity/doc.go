// Package identity creates the long-term key material of the local account.
//
// It generates the X25519 identity and signed prekeys, the Ed25519 signing
// key and a numbered pool of one-time prekeys, persists the private halves
// via the domain.KeyStore and caches the public registration.
package identity

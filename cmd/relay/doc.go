// Package main runs the duet relay: a websocket hub that authenticates
// nodes by their challenge signature, hands out one-time prekeys for chat
// handshakes and routes frames between telephones.
//
// HTTP API
//
//	GET /ws
//	    Upgrade to a websocket carrying JSON frames. The X-App-Secret header
//	    must match --appsecret when one is set.
//
//	GET /health
//	    Liveness probe; answers "ok".
//
// Behaviour
//
//   - Accounts and prekey pools are held in memory and lost on exit.
//   - Frames for offline telephones are parked in memory, or in Redis when
//     --redis is given (kept for seven days).
//   - The default listen address is :8080.
//
// The relay never sees plaintext or private keys; it only stores public
// registrations and forwards ciphertext.
package main

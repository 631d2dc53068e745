// Package relay implements the development relay that routes frames between
// duet nodes, together with the node-side transports that talk to it.
//
// The Hub keeps the account directory (public keys and the remaining
// one-time prekeys of every registered telephone), verifies the challenge
// signature of every frame against the sender's registered signing key, and
// routes frames to the online connection of the addressee. Frames for
// offline users are parked in a Mailbox (in memory or Redis) and flushed on
// their next successful login.
//
// On create-chat the Hub assigns the two lowest unused one-time prekeys of
// the addressee: the first is used for X3DH, the second becomes the
// addressee's initial ratchet key. Their numbers travel in used_keys.
//
// Transports:
//   - WSTransport dials the relay's /ws endpoint (gorilla/websocket).
//   - LocalTransport attaches a node to an in-process Hub; it can be switched
//     offline to simulate transient network failures.
//
// The relay never sees plaintext or private keys.
package relay

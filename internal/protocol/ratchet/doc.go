// Package ratchet implements the chat's Diffie-Hellman ratchet and its
// one-shot symmetric chains.
//
// Every outgoing message rotates the sender's ratchet key (RotateForSend):
// a new X25519 key pair is generated, DH(new, peer) is mixed into the root,
// and the root step's key output seeds a SendChain. The receiver mixes
// DH(its current key, sender's new key) into its own root (RotateForReceive)
// and never regenerates its key on receipt. Both sides therefore advance
// their root by one step per message.
//
// A chain yields one AES-256 key and one CBC IV and is then spent; calling
// Encrypt or Decrypt twice on the same chain fails with
// domain.ErrChainConsumed. Messages carry no MAC.
//
// Concurrency: RatchetSet values are NOT safe for concurrent use. Callers must
// serialise access per chat.
package ratchet

// Package session is the node-side orchestrator.
//
// It owns the active login, runs the X3DH handshake when a chat is created or
// confirmed, drives the Double Ratchet for every message with the
// tentative/commit protocol of the RatchetStore, and hands transient
// failures to the job queue for ordered re-delivery.
package session

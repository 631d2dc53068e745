// Package jobs implements the per-user retry queue for outbound protocol
// frames and the scheduler that drains it.
//
// Each user owns three classes of work:
//
//	priority 0  session refresh
//	priority 1  chat handshakes (create-chat, confirm-create-chat)
//	priority 2  per-chat message traffic, kept in one list per chat
//
// Resolve runs a class only when every lower class is empty, so a message
// can never be retried ahead of the handshake of its own chat. Within a
// list the first transient failure stops the pass and the job keeps its
// place at the head.
//
// A job failing with domain.ErrTransientNetwork is retried up to MaxRetries
// times. Any other failure drops it at once. Dropped jobs are reported to
// the Executor so it can roll back state tied to them.
package jobs

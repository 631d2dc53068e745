// Package store provides file-based persistence for a duet node.
//
// It contains concrete implementations of the domain storage interfaces,
// serialising data as JSON on disk. All methods are concurrency-safe via
// internal locking. Stored files live under the node's home directory.
//
// Private material (keys and ratchet sets) is sealed with a Sealer derived
// from the node master secret; directory data (chats, accounts, the
// published registration) is plain JSON.
//
// The package includes stores for:
//   - Private keys by label (KeyFileStore)
//   - Committed and tentative ratchet sets (RatchetFileStore)
//   - Chats (ChatFileStore)
//   - Account profiles (AccountFileStore)
//   - The published registration (RegistrationFileStore)
//
// A Postgres chat directory lives in the postgres subpackage.
package store

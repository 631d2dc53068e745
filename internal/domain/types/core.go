package types

// Telephone identifies an account on the relay. It doubles as the user id
// that scopes jobs and sessions.
type Telephone string

// String returns the string form of the telephone.
func (t Telephone) String() string { return string(t) }

// Fingerprint is a short identifier for public keys presented to users.
type Fingerprint string

// String returns the string form of the fingerprint.
func (f Fingerprint) String() string { return string(f) }

// ChatID is a locally assigned chat identifier (a UUID string).
type ChatID string

// String returns the string form of the chat identifier.
func (id ChatID) String() string { return string(id) }

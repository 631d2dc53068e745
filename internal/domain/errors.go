package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned when no key is stored under a label.
	ErrKeyNotFound = errors.New("key not found")
	// ErrDecryptionFailed is returned when stored material or a ciphertext
	// cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed")
	// ErrMissingKey is returned when a handshake input is absent.
	ErrMissingKey = errors.New("missing key")
	// ErrProtocolState is the parent of every ratchet or chat state violation.
	ErrProtocolState = errors.New("protocol state violation")

	ErrChainConsumed     = fmt.Errorf("%w: chain already consumed", ErrProtocolState)
	ErrNoRatchet         = fmt.Errorf("%w: no committed ratchet for chat", ErrProtocolState)
	ErrGenerationPending = fmt.Errorf("%w: previous message not yet confirmed", ErrProtocolState)
	ErrChatNotConfirmed  = fmt.Errorf("%w: chat not confirmed by peer", ErrProtocolState)
	ErrUnknownChat       = fmt.Errorf("%w: unknown chat", ErrProtocolState)

	ErrInvalidPriority = errors.New("invalid job priority")
	ErrMissingChatID   = errors.New("priority 2 job requires a chat id")

	// ErrTransientNetwork marks failures worth retrying through the job queue.
	ErrTransientNetwork = errors.New("transient network failure")
	// ErrPermanentFailure marks a rejected operation that must not be retried.
	ErrPermanentFailure = errors.New("permanent failure")

	ErrNoSession = errors.New("no active session")
)

package interfaces

import (
	"context"

	domaintypes "duet/internal/domain/types"
)

// Transport carries frames between a node and the relay.
//
// Emit returns an error wrapping ErrTransientNetwork when the frame could
// not be handed to the relay and may be retried.
type Transport interface {
	Emit(ctx context.Context, frame domaintypes.Frame) error
	Events() <-chan domaintypes.Frame
	Close() error
}

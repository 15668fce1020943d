// Package transport delivers one outbound message to the advisory model and
// yields the ordered sequence of inbound part deltas that make up the
// response. It is a black box with respect to model selection and token
// economics; the engine only sees deltas.
package transport

import (
	"context"

	"drafter/internal/types"
)

// Delta is one streamed update for the in-flight assistant message. Text and
// reasoning deltas carry incremental content; tool deltas carry the full part
// keyed by call id and are applied in place.
type Delta struct {
	MessageID string
	Part      types.Part
}

// Transport streams the assistant response for one turn. history holds the
// prior transcript only; the outbound message is not part of it, and a
// concrete transport places it on the wire exactly once. The delta channel is
// closed on completion; a transport failure is delivered on the error channel
// instead. Deltas for a single message arrive in order.
type Transport interface {
	Send(ctx context.Context, key types.ContextKey, outbound types.Message, history []types.Message) (<-chan Delta, <-chan error)
}

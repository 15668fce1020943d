package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"drafter/internal/types"
)

// ScriptedTransport replays queued turns. It backs tests and the CLI's
// offline mode, where no model endpoint is configured.
type ScriptedTransport struct {
	mu    sync.Mutex
	turns [][]types.Part
	errs  []error
	sends int
}

// NewScriptedTransport creates an empty scripted transport.
func NewScriptedTransport() *ScriptedTransport {
	return &ScriptedTransport{}
}

// QueueTurn enqueues the parts of one assistant response.
func (s *ScriptedTransport) QueueTurn(parts ...types.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, parts)
	s.errs = append(s.errs, nil)
}

// QueueError enqueues a turn that fails with err after delivering parts.
func (s *ScriptedTransport) QueueError(err error, parts ...types.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, parts)
	s.errs = append(s.errs, err)
}

// Sends reports how many turns have been requested.
func (s *ScriptedTransport) Sends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sends
}

// Send implements Transport. Each call consumes the next queued turn; an
// exhausted script delivers an empty completed turn.
func (s *ScriptedTransport) Send(ctx context.Context, _ types.ContextKey, _ types.Message, _ []types.Message) (<-chan Delta, <-chan error) {
	s.mu.Lock()
	var parts []types.Part
	var turnErr error
	if len(s.turns) > 0 {
		parts, s.turns = s.turns[0], s.turns[1:]
		turnErr, s.errs = s.errs[0], s.errs[1:]
	}
	s.sends++
	s.mu.Unlock()

	deltas := make(chan Delta, len(parts))
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)
		messageID := uuid.NewString()
		for _, p := range parts {
			select {
			case deltas <- Delta{MessageID: messageID, Part: p}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if turnErr != nil {
			errs <- turnErr
		}
	}()

	return deltas, errs
}

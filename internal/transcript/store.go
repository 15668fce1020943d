package transcript

import (
	"sync"
	"time"

	"drafter/internal/logging"
	"drafter/internal/types"
)

// Snapshot is a committed, read-mostly view of a store, shared between
// surfaces through the cache. Messages must be treated as immutable.
type Snapshot struct {
	Messages     []types.Message
	Initialized  bool
	LastLoadedAt time.Time
}

// Store holds the message sequence for one context. The session controller
// that created it owns all mutation; surfaces read committed snapshots.
// Methods are safe for concurrent use since surfaces run on their own
// goroutines.
type Store struct {
	mu          sync.Mutex
	key         types.ContextKey
	messages    []types.Message
	initialized bool
	loadedAt    time.Time
}

// NewStore creates an empty store for a context.
func NewStore(key types.ContextKey) *Store {
	return &Store{key: key}
}

// Key returns the context this store belongs to.
func (s *Store) Key() types.ContextKey {
	return s.key
}

// Snapshot returns the committed view of the store.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Messages: s.messages, Initialized: s.initialized, LastLoadedAt: s.loadedAt}
}

// Hydrate seeds the store from a cached snapshot taken by a sibling surface.
func (s *Store) Hydrate(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = snap.Messages
	s.initialized = snap.Initialized
	s.loadedAt = snap.LastLoadedAt
	logging.TranscriptDebug("store %s hydrated with %d messages", s.key, len(snap.Messages))
}

// MergeIncoming folds a loaded history batch into the store and marks it
// initialized. Safe to call any number of times with the same batch.
func (s *Store) MergeIncoming(incoming []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = Merge(s.messages, incoming)
	s.initialized = true
	s.loadedAt = time.Now()
	logging.TranscriptDebug("store %s merged %d incoming, %d total", s.key, len(incoming), len(s.messages))
}

// Append adds a complete message (user send, control trigger, notice).
// A message with a known id replaces the stored copy.
func (s *Store) Append(m types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = Merge(s.messages, []types.Message{m})
}

// ContainsText reports whether any message's flattened text equals the given
// content. Used for the content-based existence check before inserting a
// one-time synthetic notice.
func (s *Store) ContainsText(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages {
		if m.TextContent() == text {
			return true
		}
	}
	return false
}

// AppendStreamedPart applies one streamed delta to the in-flight message.
// If messageID is unknown a new assistant message is created. Tool parts are
// keyed by call id and updated in place, never appended as duplicates; text
// and reasoning deltas grow the trailing part of the same kind.
func (s *Store) AppendStreamedPart(messageID string, part types.Part) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.messages = append(s.messages, types.Message{
			ID:        messageID,
			Role:      types.RoleAssistant,
			CreatedAt: time.Now(),
		})
		idx = len(s.messages) - 1
	}

	// Copy-on-write so previously committed snapshots stay stable.
	msg := s.messages[idx]
	parts := make([]types.Part, len(msg.Parts))
	copy(parts, msg.Parts)
	msg.Parts = applyPart(parts, part)
	s.messages = append(append(append([]types.Message{}, s.messages[:idx]...), msg), s.messages[idx+1:]...)
}

// applyPart folds one delta into a part sequence.
func applyPart(parts []types.Part, part types.Part) []types.Part {
	switch part.Kind {
	case types.PartTool:
		if part.CallID != "" {
			for i := range parts {
				if parts[i].Kind == types.PartTool && parts[i].CallID == part.CallID {
					parts[i] = mergeToolPart(parts[i], part)
					return parts
				}
			}
		}
		return append(parts, part)

	case types.PartText:
		if n := len(parts); n > 0 && parts[n-1].Kind == types.PartText {
			parts[n-1].Text += part.Text
			return parts
		}
		return append(parts, part)

	case types.PartReasoning:
		if n := len(parts); n > 0 && parts[n-1].Kind == types.PartReasoning && parts[n-1].Streaming {
			parts[n-1].Text += part.Text
			parts[n-1].Streaming = part.Streaming
			return parts
		}
		return append(parts, part)

	case types.PartSuggestionBatch:
		// A turn carries at most one open batch; a second delta for it
		// replaces the trailing batch rather than duplicating it.
		if n := len(parts); n > 0 && parts[n-1].Kind == types.PartSuggestionBatch {
			parts[n-1] = part
			return parts
		}
		return append(parts, part)
	}
	return append(parts, part)
}

// mergeToolPart updates a known tool call in place, refusing to move its
// state backwards.
func mergeToolPart(existing, incoming types.Part) types.Part {
	if incoming.State.Rank() < existing.State.Rank() {
		logging.TranscriptDebug("ignoring stale tool state %s for call %s (at %s)",
			incoming.State, existing.CallID, existing.State)
		return existing
	}
	out := existing
	out.State = incoming.State
	if len(incoming.Input) > 0 {
		out.Input = incoming.Input
	}
	if len(incoming.Output) > 0 {
		out.Output = incoming.Output
	}
	if incoming.ErrorText != "" {
		out.ErrorText = incoming.ErrorText
	}
	if incoming.ToolName != "" {
		out.ToolName = incoming.ToolName
	}
	return out
}

// Display returns the renderer-facing message sequence.
func (s *Store) Display(deliverableReady bool) []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FilterForDisplay(s.messages, deliverableReady)
}

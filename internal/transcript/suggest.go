package transcript

import (
	"drafter/internal/types"
)

// =============================================================================
// SUGGESTION ACCUMULATOR
// =============================================================================
// Suggestions from prior turns accumulate so a user scrolling back sees them
// grow progressively. Collection walks most-recent-first for the bounded
// window, then re-reverses so the flattened list reads oldest-first.

const (
	// DefaultTurnWindow is how many qualifying prior assistant turns
	// contribute suggestions. Compact surfaces request a narrower window.
	DefaultTurnWindow = 12

	// CompactTurnWindow suits the popup surface.
	CompactTurnWindow = 3

	// DefaultSuggestionCap bounds the combined previous+current list.
	DefaultSuggestionCap = 16
)

// AccumulateSuggestions collects the flattened, chronologically ordered
// suggestions from up to window prior assistant turns, walking backward from
// currentIndex-1. A turn counts against the window only if it produced at
// least one suggestion. The current turn is excluded.
func AccumulateSuggestions(messages []types.Message, currentIndex, window int) []types.Suggestion {
	if window <= 0 {
		window = DefaultTurnWindow
	}
	if currentIndex > len(messages) {
		currentIndex = len(messages)
	}

	var batches [][]types.Suggestion
	visited := 0
	for i := currentIndex - 1; i >= 0 && visited < window; i-- {
		m := messages[i]
		if m.Role != types.RoleAssistant {
			continue
		}
		var turn []types.Suggestion
		for _, p := range m.Parts {
			if p.Kind == types.PartSuggestionBatch && p.Batch != nil {
				turn = append(turn, p.Batch.Suggestions...)
			}
		}
		if len(turn) == 0 {
			continue
		}
		batches = append(batches, turn)
		visited++
	}

	// Collected newest-first; emit oldest-first.
	var out []types.Suggestion
	for i := len(batches) - 1; i >= 0; i-- {
		out = append(out, batches[i]...)
	}
	return out
}

// CombineSuggestions appends the current turn's suggestions to the
// accumulated previous ones and applies the caller's cap, dropping the oldest
// overflow first.
func CombineSuggestions(previous, current []types.Suggestion, max int) []types.Suggestion {
	if max <= 0 {
		max = DefaultSuggestionCap
	}
	combined := make([]types.Suggestion, 0, len(previous)+len(current))
	combined = append(combined, previous...)
	combined = append(combined, current...)
	if len(combined) > max {
		combined = combined[len(combined)-max:]
	}
	return combined
}

// GreetingFor returns the greeting line of the message's first suggestion
// batch, suppressed when text content precedes the batch in the same message
// (the model already spoke; a canned greeting would read twice).
func GreetingFor(m types.Message) string {
	for _, p := range m.Parts {
		switch p.Kind {
		case types.PartText:
			if p.Text != "" {
				return ""
			}
		case types.PartSuggestionBatch:
			if p.Batch != nil {
				return p.Batch.Greeting
			}
		}
	}
	return ""
}

// Package transcript maintains the authoritative, de-duplicated, time-ordered
// message sequence for one conversation context and derives the renderable
// view from it. It reconciles two independent sources - a bulk history load
// and token-level streaming updates - without ever losing a streamed message
// the history load has not yet learned about.
package transcript

import (
	"sort"

	"drafter/internal/types"
)

// =============================================================================
// MERGE
// =============================================================================
// Merge is pure and deterministic: same inputs always yield the same output,
// and Merge(m, m) == Merge(m, nil) == m. That idempotence is what lets history
// loads and streamed appends commute (duplicate or out-of-order delivery is
// absorbed here, not treated as an error).

// Merge reconciles an incoming message batch (typically a history load) with
// the current sequence. Incoming messages whose id already exists replace the
// known copy part-by-part without regressing any tool state. A synthetic
// notice is additionally de-duplicated by exact text content, since reload
// cycles mint the notice under a fresh id. The union is sorted by CreatedAt.
func Merge(current, incoming []types.Message) []types.Message {
	if len(incoming) == 0 {
		out := make([]types.Message, len(current))
		copy(out, current)
		return out
	}

	byID := make(map[string]int, len(current))
	for i, m := range current {
		byID[m.ID] = i
	}

	merged := make([]types.Message, len(current))
	copy(merged, current)

	for _, in := range incoming {
		if i, ok := byID[in.ID]; ok {
			merged[i] = mergeMessage(merged[i], in)
			continue
		}
		if types.IsNotice(in) && containsNoticeText(merged, in.TextContent()) {
			continue
		}
		byID[in.ID] = len(merged)
		merged = append(merged, in)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})
	return merged
}

// mergeMessage replaces a known message with its incoming copy while keeping
// any tool part whose local state has advanced past the incoming one. A stale
// history snapshot must never rewind a tool call the stream already settled.
func mergeMessage(existing, incoming types.Message) types.Message {
	if len(existing.Parts) == 0 {
		return incoming
	}

	existingTools := make(map[string]types.Part, len(existing.Parts))
	for _, p := range existing.Parts {
		if p.Kind == types.PartTool && p.CallID != "" {
			existingTools[p.CallID] = p
		}
	}

	out := incoming
	out.Parts = make([]types.Part, len(incoming.Parts))
	copy(out.Parts, incoming.Parts)

	seen := make(map[string]bool, len(out.Parts))
	for i, p := range out.Parts {
		if p.Kind != types.PartTool || p.CallID == "" {
			continue
		}
		seen[p.CallID] = true
		if prior, ok := existingTools[p.CallID]; ok && prior.State.Rank() > p.State.Rank() {
			out.Parts[i] = prior
		}
	}

	// Tool calls the stream produced but the snapshot has not persisted yet
	// stay in the message.
	for _, p := range existing.Parts {
		if p.Kind == types.PartTool && p.CallID != "" && !seen[p.CallID] {
			out.Parts = append(out.Parts, p)
		}
	}

	return out
}

func containsNoticeText(messages []types.Message, text string) bool {
	if text == "" {
		return false
	}
	for _, m := range messages {
		if types.IsNotice(m) && m.TextContent() == text {
			return true
		}
	}
	return false
}

// FilterForDisplay removes messages that should never reach a renderer:
// internal control triggers (id sentinel prefix), and the synthetic
// onboarding notice once the target deliverable is ready. The canonical store
// keeps both for history fidelity; only the display projection drops them.
func FilterForDisplay(messages []types.Message, deliverableReady bool) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, m := range messages {
		if types.IsControl(m) {
			continue
		}
		if deliverableReady && types.IsNotice(m) {
			continue
		}
		out = append(out, m)
	}
	return out
}

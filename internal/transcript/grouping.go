package transcript

import (
	"fmt"

	"drafter/internal/types"
)

// =============================================================================
// GROUPING
// =============================================================================
// GroupParts folds one message's flat part sequence into the display groups a
// renderer consumes. Pure and deterministic: running it twice on the same
// input yields identical groups. Single left-to-right pass, O(n) in the
// number of parts.

// GroupKind discriminates display groups.
type GroupKind string

const (
	GroupText        GroupKind = "text"
	GroupReasoning   GroupKind = "reasoning"
	GroupTool        GroupKind = "tool-group"
	GroupSuggestions GroupKind = "suggestion-group"
)

// Group is a derived, renderer-facing clustering of a message's parts.
// Never persisted; recomputed on every store change.
type Group struct {
	Kind     GroupKind
	Parts    []types.Part
	Title    string
	Complete bool
}

// toolTitles maps known tool names to display phrasing for an in-flight
// tool group.
var toolTitles = map[string]string{
	"webSearch":           "Running a Web Search",
	"readDocuments":       "Reading Project Files",
	"generateSuggestions": "Preparing Suggestions",
	"inspectApp":          "Inspecting Your App",
}

// GroupParts converts a part sequence into display groups:
//
//  1. A text part closes any open tool group, then starts its own text group.
//  2. The first reasoning part always stands alone (the model's initial
//     thinking reads separately from later, tool-interleaved reasoning).
//  3. Later reasoning parts fold into the current tool group if one is open
//     or a tool part follows before the next text part; otherwise they stand
//     alone.
//  4. A suggestion batch closes any open tool group and keeps its position in
//     the sequence, so suggestions render exactly where the model emitted them.
//  5. Other tool parts join the open tool group (opening one if needed); the
//     group closes at the next text part or at the end of the sequence.
func GroupParts(parts []types.Part) []Group {
	var groups []Group
	var open *Group // open tool group
	seenReasoning := false

	// toolAhead[i] reports whether a tool part exists at or after index i
	// without a text part or suggestion batch intervening. Those two kinds
	// close tool groups, so reasoning never folds across them.
	toolAhead := make([]bool, len(parts)+1)
	for i := len(parts) - 1; i >= 0; i-- {
		switch parts[i].Kind {
		case types.PartTool:
			toolAhead[i] = true
		case types.PartText, types.PartSuggestionBatch:
			toolAhead[i] = false
		default:
			toolAhead[i] = toolAhead[i+1]
		}
	}

	closeOpen := func() {
		if open != nil {
			finishToolGroup(open)
			groups = append(groups, *open)
			open = nil
		}
	}

	for i, p := range parts {
		switch p.Kind {
		case types.PartText:
			closeOpen()
			groups = append(groups, Group{
				Kind:     GroupText,
				Parts:    []types.Part{p},
				Complete: true,
			})

		case types.PartReasoning:
			first := !seenReasoning
			seenReasoning = true
			if !first && open != nil {
				open.Parts = append(open.Parts, p)
				continue
			}
			if !first && toolAhead[i+1] {
				open = &Group{Kind: GroupTool, Parts: []types.Part{p}}
				continue
			}
			closeOpen()
			groups = append(groups, Group{
				Kind:     GroupReasoning,
				Parts:    []types.Part{p},
				Complete: !p.Streaming,
			})

		case types.PartSuggestionBatch:
			closeOpen()
			groups = append(groups, Group{
				Kind:     GroupSuggestions,
				Parts:    []types.Part{p},
				Complete: true,
			})

		case types.PartTool:
			if open == nil {
				open = &Group{Kind: GroupTool}
			}
			open.Parts = append(open.Parts, p)
		}
	}
	closeOpen()

	return groups
}

// finishToolGroup computes the completion flag and display title for a tool
// group once its boundary is known.
func finishToolGroup(g *Group) {
	completedCount := 0
	toolCount := 0
	var active *types.Part

	for i := range g.Parts {
		p := &g.Parts[i]
		if p.Kind != types.PartTool {
			continue
		}
		toolCount++
		if p.State == types.ToolInputStreaming {
			active = p
		}
		if p.State.Settled() {
			completedCount++
		}
	}

	if toolCount == 0 {
		g.Complete = true
		return
	}

	g.Complete = completedCount == toolCount
	if g.Complete {
		if completedCount == 1 {
			g.Title = "Completed 1 action"
		} else {
			g.Title = fmt.Sprintf("Completed %d actions", completedCount)
		}
		return
	}

	// Title follows the active part: the one currently streaming, or the
	// most recent tool part if none is.
	if active == nil {
		for i := len(g.Parts) - 1; i >= 0; i-- {
			if g.Parts[i].Kind == types.PartTool {
				active = &g.Parts[i]
				break
			}
		}
	}
	if active == nil {
		return
	}
	if title, ok := toolTitles[active.ToolName]; ok {
		g.Title = title
	} else {
		g.Title = fmt.Sprintf("Running %s", active.ToolName)
	}
}

package transcript

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drafter/internal/types"
)

func kinds(groups []Group) []GroupKind {
	out := make([]GroupKind, len(groups))
	for i, g := range groups {
		out[i] = g.Kind
	}
	return out
}

func TestGroupPartsDeterminism(t *testing.T) {
	parts := []types.Part{
		types.ReasoningPart("thinking", false),
		types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
		types.ReasoningPart("more thinking", false),
		types.ToolPart("readDocuments", "c2", types.ToolInputStreaming),
		types.TextPart("answer"),
	}
	first := GroupParts(parts)
	second := GroupParts(parts)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("grouping is not deterministic (-want +got):\n%s", diff)
	}
}

func TestReasoningToolTextScenario(t *testing.T) {
	parts := []types.Part{
		types.ReasoningPart("let me check", false),
		types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
		types.TextPart("here is what I found"),
	}

	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupReasoning, GroupTool, GroupText}, kinds(groups))
	assert.True(t, groups[1].Complete)
	assert.Equal(t, "Completed 1 action", groups[1].Title)
}

func TestTextClosesOpenToolGroup(t *testing.T) {
	parts := []types.Part{
		types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
		types.TextPart("done"),
		types.ToolPart("webSearch", "c2", types.ToolInputStreaming),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupTool, GroupText, GroupTool}, kinds(groups))
	assert.True(t, groups[0].Complete)
	assert.False(t, groups[2].Complete)
}

func TestFirstReasoningAlwaysStandsAlone(t *testing.T) {
	// Even with tools later in the sequence, the opening reasoning part is
	// its own group.
	parts := []types.Part{
		types.ReasoningPart("initial plan", false),
		types.ToolPart("webSearch", "c1", types.ToolInputAvailable),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupReasoning, GroupTool}, kinds(groups))
}

func TestFirstReasoningAfterToolClosesGroupInOrder(t *testing.T) {
	// A tool group already open when the first reasoning part arrives is
	// flushed first, so groups keep the part sequence's order.
	parts := []types.Part{
		types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
		types.ReasoningPart("interpreting", false),
		types.TextPart("answer"),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupTool, GroupReasoning, GroupText}, kinds(groups))
	assert.Equal(t, "Completed 1 action", groups[0].Title)
}

func TestLaterReasoningFoldsIntoOpenToolGroup(t *testing.T) {
	parts := []types.Part{
		types.ReasoningPart("plan", false),
		types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
		types.ReasoningPart("interpreting results", false),
		types.ToolPart("readDocuments", "c2", types.ToolOutputAvailable),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupReasoning, GroupTool}, kinds(groups))
	assert.Len(t, groups[1].Parts, 3)
}

func TestLaterReasoningJoinsUpcomingToolGroup(t *testing.T) {
	// No tool group open yet, but a tool part follows: the reasoning waits
	// inside the group that tool will open.
	parts := []types.Part{
		types.ReasoningPart("first", false),
		types.TextPart("intro"),
		types.ReasoningPart("pre-tool thought", false),
		types.ToolPart("webSearch", "c1", types.ToolInputStreaming),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupReasoning, GroupText, GroupTool}, kinds(groups))
	require.Len(t, groups[2].Parts, 2)
	assert.Equal(t, types.PartReasoning, groups[2].Parts[0].Kind)
}

func TestReasoningDoesNotFoldAcrossText(t *testing.T) {
	// A tool exists later in the sequence, but a text part separates it from
	// the reasoning. Folding across the boundary would leave an empty tool
	// group behind when the text closes it.
	parts := []types.Part{
		types.ReasoningPart("first", false),
		types.TextPart("intro"),
		types.ReasoningPart("aside", false),
		types.TextPart("middle"),
		types.ToolPart("webSearch", "c1", types.ToolInputStreaming),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupReasoning, GroupText, GroupReasoning, GroupText, GroupTool}, kinds(groups))
	for _, g := range groups {
		assert.NotEmpty(t, g.Parts)
	}
}

func TestLaterReasoningWithoutToolsStandsAlone(t *testing.T) {
	parts := []types.Part{
		types.ReasoningPart("first", false),
		types.TextPart("intro"),
		types.ReasoningPart("closing thought", true),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupReasoning, GroupText, GroupReasoning}, kinds(groups))
	assert.False(t, groups[2].Complete, "streaming reasoning group is pending")
}

func TestSuggestionBatchKeepsItsPosition(t *testing.T) {
	parts := []types.Part{
		types.TextPart("before"),
		types.ToolPart("generateSuggestions", "c1", types.ToolOutputAvailable),
		types.SuggestionBatchPart(&types.SuggestionOutput{
			Suggestions: []types.Suggestion{{ID: "s1", Title: "Add auth"}},
		}),
		types.TextPart("after"),
	}
	groups := GroupParts(parts)
	require.Equal(t, []GroupKind{GroupText, GroupTool, GroupSuggestions, GroupText}, kinds(groups))
	assert.True(t, groups[2].Complete)
}

func TestToolGroupPendingWhileInputIncomplete(t *testing.T) {
	for _, state := range []types.ToolState{types.ToolInputStreaming, types.ToolInputAvailable} {
		groups := GroupParts([]types.Part{
			types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
			types.ToolPart("webSearch", "c2", state),
		})
		require.Len(t, groups, 1)
		assert.False(t, groups[0].Complete, "state %s must keep the group pending", state)
	}
}

func TestToolGroupTitles(t *testing.T) {
	// Known tool, streaming: lookup table phrasing.
	groups := GroupParts([]types.Part{types.ToolPart("webSearch", "c1", types.ToolInputStreaming)})
	require.Len(t, groups, 1)
	assert.Equal(t, "Running a Web Search", groups[0].Title)

	// Unknown tool falls back to the raw name.
	groups = GroupParts([]types.Part{types.ToolPart("deployPreview", "c1", types.ToolInputAvailable)})
	assert.Equal(t, "Running deployPreview", groups[0].Title)

	// The active part is the streaming one, not the last one.
	groups = GroupParts([]types.Part{
		types.ToolPart("readDocuments", "c1", types.ToolInputStreaming),
		types.ToolPart("webSearch", "c2", types.ToolInputAvailable),
	})
	assert.Equal(t, "Reading Project Files", groups[0].Title)

	// All settled: count phrasing, error outcomes included.
	groups = GroupParts([]types.Part{
		types.ToolPart("webSearch", "c1", types.ToolOutputAvailable),
		types.ToolPart("readDocuments", "c2", types.ToolOutputError),
	})
	assert.Equal(t, "Completed 2 actions", groups[0].Title)
}

func TestEmptyPartsYieldNoGroups(t *testing.T) {
	assert.Empty(t, GroupParts(nil))
}

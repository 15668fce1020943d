package transcript

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drafter/internal/types"
)

func suggestionTurn(id string, sec int, titles ...string) types.Message {
	out := &types.SuggestionOutput{}
	for _, title := range titles {
		out.Suggestions = append(out.Suggestions, types.Suggestion{
			ID:    id + "-" + title,
			Title: title,
		})
	}
	return msgAt(id, types.RoleAssistant, sec, types.SuggestionBatchPart(out))
}

func titles(suggestions []types.Suggestion) []string {
	out := make([]string, len(suggestions))
	for i, s := range suggestions {
		out[i] = s.Title
	}
	return out
}

func TestAccumulateSuggestionsChronologicalOrder(t *testing.T) {
	messages := []types.Message{
		suggestionTurn("a1", 1, "oldest"),
		msgAt("u1", types.RoleUser, 2, types.TextPart("next")),
		suggestionTurn("a2", 3, "middle-1", "middle-2"),
		suggestionTurn("a3", 4, "newest"),
		msgAt("a4", types.RoleAssistant, 5, types.TextPart("current turn")),
	}

	got := AccumulateSuggestions(messages, len(messages)-1, DefaultTurnWindow)
	assert.Equal(t, []string{"oldest", "middle-1", "middle-2", "newest"}, titles(got),
		"collected most-recent-first but displayed oldest-first")
}

func TestAccumulateSuggestionsExcludesCurrentTurn(t *testing.T) {
	messages := []types.Message{
		suggestionTurn("a1", 1, "prior"),
		suggestionTurn("a2", 2, "current"),
	}
	got := AccumulateSuggestions(messages, 1, DefaultTurnWindow)
	assert.Equal(t, []string{"prior"}, titles(got))
}

func TestAccumulateSuggestionsWindowCountsOnlyQualifyingTurns(t *testing.T) {
	var messages []types.Message
	// Five suggestion-bearing turns interleaved with empty assistant turns.
	for i := 0; i < 5; i++ {
		messages = append(messages,
			suggestionTurn(fmt.Sprintf("s%d", i), i*2, fmt.Sprintf("turn-%d", i)),
			msgAt(fmt.Sprintf("e%d", i), types.RoleAssistant, i*2+1, types.TextPart("no suggestions")),
		)
	}

	got := AccumulateSuggestions(messages, len(messages), 2)
	assert.Equal(t, []string{"turn-3", "turn-4"}, titles(got),
		"empty assistant turns must not consume the window")
}

func TestAccumulateSuggestionsFlattensMultipleBatchesInOneTurn(t *testing.T) {
	m := msgAt("a1", types.RoleAssistant, 1,
		types.SuggestionBatchPart(&types.SuggestionOutput{Suggestions: []types.Suggestion{{ID: "1", Title: "first"}}}),
		types.TextPart("and also"),
		types.SuggestionBatchPart(&types.SuggestionOutput{Suggestions: []types.Suggestion{{ID: "2", Title: "second"}}}),
	)
	got := AccumulateSuggestions([]types.Message{m, msgAt("u", types.RoleUser, 2)}, 1, DefaultTurnWindow)
	assert.Equal(t, []string{"first", "second"}, titles(got), "intra-message order preserved")
}

func TestCombineSuggestionsCap(t *testing.T) {
	var prev, cur []types.Suggestion
	for i := 0; i < 10; i++ {
		prev = append(prev, types.Suggestion{ID: fmt.Sprintf("p%d", i)})
		cur = append(cur, types.Suggestion{ID: fmt.Sprintf("c%d", i)})
	}

	combined := CombineSuggestions(prev, cur, DefaultSuggestionCap)
	require.Len(t, combined, DefaultSuggestionCap, "never more than the cap")
	// The newest survive; the oldest overflow is dropped.
	assert.Equal(t, "p4", combined[0].ID)
	assert.Equal(t, "c9", combined[len(combined)-1].ID)

	small := CombineSuggestions(prev[:2], cur[:1], DefaultSuggestionCap)
	assert.Len(t, small, 3)
}

func TestGreetingSuppressedByPrecedingText(t *testing.T) {
	batch := types.SuggestionBatchPart(&types.SuggestionOutput{Greeting: "Welcome back!"})

	withText := msgAt("a1", types.RoleAssistant, 1, types.TextPart("Here's my take."), batch)
	assert.Empty(t, GreetingFor(withText))

	batchFirst := msgAt("a2", types.RoleAssistant, 2, batch, types.TextPart("More detail."))
	assert.Equal(t, "Welcome back!", GreetingFor(batchFirst))

	noBatch := msgAt("a3", types.RoleAssistant, 3, types.TextPart("plain"))
	assert.Empty(t, GreetingFor(noBatch))
}

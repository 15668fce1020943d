package usage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drafter/internal/types"
)

var key = types.ContextKey{ConversationID: "conv-1", Variant: "panel"}

func TestRecordAndSnapshot(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	require.NoError(t, err)

	tr.RecordTurn(key, 100, 250)
	tr.RecordTurn(key, 50, 75)
	tr.RecordTurn(types.ContextKey{ConversationID: "conv-2"}, 10, 20)

	snap := tr.Snapshot()
	assert.Equal(t, int64(3), snap.Total.Turns)
	assert.Equal(t, int64(160), snap.Total.InputTokens)
	assert.Equal(t, int64(345), snap.Total.OutputTokens)
	assert.Equal(t, int64(2), snap.ByConversation["conv-1"].Turns)
}

func TestInvalidateMarksStaleOnce(t *testing.T) {
	tr, err := NewTracker(t.TempDir())
	require.NoError(t, err)

	assert.False(t, tr.ConsumeStale(key))
	tr.Invalidate(key)
	assert.True(t, tr.ConsumeStale(key))
	assert.False(t, tr.ConsumeStale(key), "stale flag clears on consume")
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tr, err := NewTracker(dir)
	require.NoError(t, err)
	tr.RecordTurn(key, 100, 200)
	require.NoError(t, tr.Save())

	reloaded, err := NewTracker(dir)
	require.NoError(t, err)
	snap := reloaded.Snapshot()
	assert.Equal(t, int64(1), snap.Total.Turns)
	assert.Equal(t, int64(100), snap.ByConversation["conv-1"].InputTokens)
}

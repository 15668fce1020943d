package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drafter/internal/types"
)

func collect(t *testing.T, deltas <-chan Delta, errs <-chan error) ([]Delta, error) {
	t.Helper()
	var out []Delta
	for d := range deltas {
		out = append(out, d)
	}
	select {
	case err := <-errs:
		return out, err
	case <-time.After(2 * time.Second):
		t.Fatal("error channel never closed")
		return nil, nil
	}
}

func TestStreamClientDeliversDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/advise", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"messageId\":\"a1\",\"part\":{\"kind\":\"text\",\"text\":\"hel\"}}\n\n")
		fmt.Fprint(w, ": keepalive comment\n\n")
		fmt.Fprint(w, "data: {\"messageId\":\"a1\",\"part\":{\"kind\":\"text\",\"text\":\"lo\"}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewStreamClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	deltas, errs := c.Send(context.Background(), types.ContextKey{ConversationID: "conv-1"},
		types.NewUserMessage("hi"), nil)

	got, err := collect(t, deltas, errs)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].MessageID)
	assert.Equal(t, "hel", got[0].Part.Text)
	assert.Equal(t, "lo", got[1].Part.Text)
}

func TestStreamClientToolDelta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"messageId\":\"a1\",\"part\":{\"kind\":\"tool\",\"toolName\":\"webSearch\",\"callId\":\"c1\",\"state\":\"output-available\",\"output\":{\"hits\":2}}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewStreamClient(Config{BaseURL: srv.URL, APIKey: "k"})
	deltas, errs := c.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("hi"), nil)

	got, err := collect(t, deltas, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.ToolOutputAvailable, got[0].Part.State)
	assert.JSONEq(t, `{"hits":2}`, string(got[0].Part.Output))
}

func TestStreamClientSendsOutboundOnceAfterHistory(t *testing.T) {
	requests := make(chan adviseRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var wire adviseRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&wire))
		requests <- wire
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	history := []types.Message{
		types.NewUserMessage("earlier question"),
		types.NewAssistantMessage(),
	}
	outbound := types.NewUserMessage("hello")

	c := NewStreamClient(Config{BaseURL: srv.URL, APIKey: "k"})
	deltas, errs := c.Send(context.Background(), types.ContextKey{ConversationID: "conv-1"}, outbound, history)
	_, err := collect(t, deltas, errs)
	require.NoError(t, err)

	wire := <-requests
	require.Len(t, wire.Messages, 3)
	assert.Equal(t, outbound.ID, wire.Messages[2].ID)
	occurrences := 0
	for _, m := range wire.Messages {
		if m.ID == outbound.ID {
			occurrences++
		}
	}
	assert.Equal(t, 1, occurrences, "outbound message must appear on the wire exactly once")
}

func TestStreamClientRequiresAPIKey(t *testing.T) {
	c := NewStreamClient(Config{})
	deltas, errs := c.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("hi"), nil)
	_, err := collect(t, deltas, errs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key")
}

func TestStreamClientSurfacesHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewStreamClient(Config{BaseURL: srv.URL, APIKey: "k"})
	deltas, errs := c.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("hi"), nil)
	_, err := collect(t, deltas, errs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestStreamClientSurfacesInlineError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"error\":{\"message\":\"model overloaded\"}}\n\n")
	}))
	defer srv.Close()

	c := NewStreamClient(Config{BaseURL: srv.URL, APIKey: "k"})
	deltas, errs := c.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("hi"), nil)
	_, err := collect(t, deltas, errs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model overloaded")
}

func TestStreamClientSkipsMalformedChunks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json\n\n")
		fmt.Fprint(w, "data: {\"messageId\":\"a1\",\"part\":{\"kind\":\"text\",\"text\":\"ok\"}}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewStreamClient(Config{BaseURL: srv.URL, APIKey: "k"})
	deltas, errs := c.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("hi"), nil)
	got, err := collect(t, deltas, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ok", got[0].Part.Text)
}

func TestScriptedTransportReplaysTurns(t *testing.T) {
	s := NewScriptedTransport()
	s.QueueTurn(types.TextPart("hello"))
	s.QueueError(errors.New("boom"), types.TextPart("partial"))

	deltas, errs := s.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("hi"), nil)
	got, err := collect(t, deltas, errs)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Part.Text)

	deltas, errs = s.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("again"), nil)
	got, err = collect(t, deltas, errs)
	require.Error(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 2, s.Sends())

	// Exhausted script completes empty turns cleanly.
	deltas, errs = s.Send(context.Background(), types.ContextKey{}, types.NewUserMessage("more"), nil)
	got, err = collect(t, deltas, errs)
	require.NoError(t, err)
	assert.Empty(t, got)
}

// Package usage tracks advisory-turn usage and exposes the fire-and-forget
// invalidation signal the session controller raises once per settled turn.
// The engine never awaits or depends on its result.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"drafter/internal/logging"
	"drafter/internal/types"
)

// TurnCounts holds per-context turn sums.
type TurnCounts struct {
	Turns        int64 `json:"turns"`
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

func (tc *TurnCounts) add(input, output int) {
	tc.Turns++
	tc.InputTokens += int64(input)
	tc.OutputTokens += int64(output)
}

// Data is the root structure stored in persistence.
type Data struct {
	Version        string                `json:"version"`
	Total          TurnCounts            `json:"total"`
	ByConversation map[string]TurnCounts `json:"by_conversation"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Tracker manages usage recording and persistence. Cached aggregates are
// marked stale on invalidation so a billing surface re-reads them lazily.
type Tracker struct {
	mu       sync.Mutex
	data     Data
	filePath string
	stale    map[types.ContextKey]bool
}

// NewTracker creates a usage tracker persisting under the workspace path.
func NewTracker(workspacePath string) (*Tracker, error) {
	dir := filepath.Join(workspacePath, ".drafter")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create .drafter dir: %w", err)
	}

	t := &Tracker{
		filePath: filepath.Join(dir, "usage.json"),
		data: Data{
			Version:        "1.0",
			ByConversation: make(map[string]TurnCounts),
		},
		stale: make(map[types.ContextKey]bool),
	}
	if err := t.load(); err != nil {
		logging.Usage("starting with empty usage data: %v", err)
	}
	return t, nil
}

func (t *Tracker) load() error {
	data, err := os.ReadFile(t.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &t.data); err != nil {
		return err
	}
	if t.data.ByConversation == nil {
		t.data.ByConversation = make(map[string]TurnCounts)
	}
	return nil
}

// RecordTurn adds one settled turn's token counts.
func (t *Tracker) RecordTurn(key types.ContextKey, inputTokens, outputTokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.data.Total.add(inputTokens, outputTokens)
	counts := t.data.ByConversation[key.ConversationID]
	counts.add(inputTokens, outputTokens)
	t.data.ByConversation[key.ConversationID] = counts
	t.data.UpdatedAt = time.Now()
}

// Invalidate implements the session controller's usage notifier: it marks
// the context's cached aggregates stale and flushes best-effort.
func (t *Tracker) Invalidate(key types.ContextKey) {
	t.mu.Lock()
	t.stale[key] = true
	t.mu.Unlock()

	logging.Usage("usage invalidated for %s", key)
	if err := t.Save(); err != nil {
		logging.Usage("usage flush failed (ignored): %v", err)
	}
}

// ConsumeStale reports and clears the stale flag for a context.
func (t *Tracker) ConsumeStale(key types.ContextKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.stale[key]
	delete(t.stale, key)
	return was
}

// Snapshot returns a copy of the current usage data.
func (t *Tracker) Snapshot() Data {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := t.data
	out.ByConversation = make(map[string]TurnCounts, len(t.data.ByConversation))
	for k, v := range t.data.ByConversation {
		out.ByConversation[k] = v
	}
	return out
}

// Save writes the usage data to disk.
func (t *Tracker) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.MarshalIndent(t.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.filePath, data, 0644)
}

// Package session drives one logical conversation turn end-to-end: sending a
// user message, consuming the streamed assistant response, reconciling the
// transcript store against persisted history, and owning the one-time
// synthetic-notice policy.
package session

import (
	"context"
	"errors"
	"sync"

	"drafter/internal/cache"
	"drafter/internal/logging"
	"drafter/internal/transcript"
	"drafter/internal/transport"
	"drafter/internal/types"
)

// State is the controller's turn state.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateSettled
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateSettled:
		return "settled"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrBusy is returned when a send is attempted while a turn is in flight.
// Retry after a failure is by explicit user action, never automatic.
var ErrBusy = errors.New("a turn is already in flight")

// History is the persistence collaborator contract.
type History interface {
	LoadHistory(ctx context.Context, key types.ContextKey) ([]types.Message, error)
	AppendMessage(ctx context.Context, key types.ContextKey, m types.Message) error
}

// UsageNotifier receives the fire-and-forget invalidation signal raised once
// per settled turn.
type UsageNotifier interface {
	Invalidate(key types.ContextKey)
}

// Options configures a controller. Cache and Transport are required; History
// and Usage may be nil (history degrades to an empty load, usage to a no-op).
type Options struct {
	Key       types.ContextKey
	Cache     *cache.TranscriptCache
	Transport transport.Transport
	History   History
	Usage     UsageNotifier

	// OnUpdate fires after every committed transcript change.
	OnUpdate func(transcript.Snapshot)
	// OnNotify raises a non-blocking user-facing notification.
	OnNotify func(message string)

	// Text of the one-time onboarding notice. Empty disables it.
	OnboardingNotice string

	SuggestionWindow int
	SuggestionCap    int
}

// Controller owns the transcript store for one surface bound to a context.
// Sibling surfaces bound to the same context share committed snapshots
// through the cache, never the store itself.
type Controller struct {
	mu    sync.Mutex
	key   types.ContextKey
	store *transcript.Store
	cache *cache.TranscriptCache

	transport transport.Transport
	history   History
	usage     UsageNotifier

	onUpdate func(transcript.Snapshot)
	onNotify func(string)

	noticeText       string
	suggestionWindow int
	suggestionCap    int

	state            State
	busy             bool
	alive            bool
	noticeInserted   bool
	suggestPending   bool
	deliverableReady bool
	streamedID       string

	wg sync.WaitGroup
}

// NewController creates a controller for one surface.
func NewController(opts Options) *Controller {
	window := opts.SuggestionWindow
	if window <= 0 {
		window = transcript.DefaultTurnWindow
	}
	capN := opts.SuggestionCap
	if capN <= 0 {
		capN = transcript.DefaultSuggestionCap
	}
	return &Controller{
		key:              opts.Key,
		store:            transcript.NewStore(opts.Key),
		cache:            opts.Cache,
		transport:        opts.Transport,
		history:          opts.History,
		usage:            opts.Usage,
		onUpdate:         opts.OnUpdate,
		onNotify:         opts.OnNotify,
		noticeText:       opts.OnboardingNotice,
		suggestionWindow: window,
		suggestionCap:    capN,
		state:            StateIdle,
	}
}

// Mount binds the surface to its context: hydrate from a sibling's cached
// snapshot when one exists, otherwise issue the (deduplicated) history load.
// Either way exactly one merge runs.
func (c *Controller) Mount(ctx context.Context) {
	c.cache.Mount(c.key)
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()

	if snap, ok := c.cache.Get(c.key); ok && (snap.Initialized || len(snap.Messages) > 0) {
		logging.Session("surface %s hydrating from cached snapshot (%d messages)", c.key, len(snap.Messages))
		c.store.Hydrate(snap)
		c.store.MergeIncoming(snap.Messages)
		c.commit()
		return
	}

	incoming, err := c.cache.LoadOnce(c.key, func() ([]types.Message, error) {
		return c.loadHistory(ctx)
	})
	if err != nil {
		// A failed load is "no history": the surface stays usable.
		logging.Session("history load failed for %s, starting empty: %v", c.key, err)
		incoming = nil
	}
	c.store.MergeIncoming(incoming)
	c.commit()
}

// Unmount detaches the surface. Completions still in flight become no-ops.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
	c.cache.Unmount(c.key)
}

// Quiesce blocks until any in-flight turn has finished. Intended for tests
// and CLI shutdown, not for turn orchestration.
func (c *Controller) Quiesce() {
	c.wg.Wait()
}

func (c *Controller) loadHistory(ctx context.Context) ([]types.Message, error) {
	if c.history == nil {
		return nil, nil
	}
	return c.history.LoadHistory(ctx, c.key)
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

// SetDeliverableReady flips whether the onboarding notice is still relevant.
func (c *Controller) SetDeliverableReady(ready bool) {
	c.mu.Lock()
	c.deliverableReady = ready
	c.mu.Unlock()
	c.commit()
}

// Snapshot returns the committed transcript view.
func (c *Controller) Snapshot() transcript.Snapshot {
	return c.store.Snapshot()
}

// Display returns the renderer-facing message sequence.
func (c *Controller) Display() []types.Message {
	c.mu.Lock()
	ready := c.deliverableReady
	c.mu.Unlock()
	return c.store.Display(ready)
}

// Send starts a user-authored turn.
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.send(ctx, types.NewUserMessage(text))
}

// RequestSuggestions starts an internally-triggered turn that asks the model
// for a suggestion batch without user-visible text. The single-trigger guard
// keeps re-asserted trigger signals from stacking concurrent requests.
func (c *Controller) RequestSuggestions(ctx context.Context) error {
	c.mu.Lock()
	if c.suggestPending {
		c.mu.Unlock()
		logging.SessionDebug("suggestion request already pending for %s", c.key)
		return nil
	}
	c.suggestPending = true
	c.mu.Unlock()

	err := c.send(ctx, types.NewControlMessage("Generate suggestions for what to build next."))
	if err != nil {
		c.mu.Lock()
		c.suggestPending = false
		c.mu.Unlock()
	}
	return err
}

// send runs the Idle -> Sending -> Streaming -> Settled/Errored machine for
// one outbound message. It returns once the turn is accepted; streaming
// continues on delivery callbacks.
func (c *Controller) send(ctx context.Context, outbound types.Message) error {
	c.mu.Lock()
	if c.busy {
		c.mu.Unlock()
		return ErrBusy
	}
	c.busy = true
	c.state = StateSending
	c.streamedID = ""
	c.mu.Unlock()

	// The history view is captured before the outbound message lands in the
	// store; the transport owns appending the outbound to the wire request.
	historyView := c.store.Display(true)
	c.store.Append(outbound)
	c.commit()
	logging.Session("turn started for %s (%s)", c.key, outbound.ID)

	deltas, errs := c.transport.Send(ctx, c.key, outbound, historyView)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.persist(ctx, outbound)

		for d := range deltas {
			c.mu.Lock()
			c.state = StateStreaming
			c.streamedID = d.MessageID
			c.mu.Unlock()
			c.store.AppendStreamedPart(d.MessageID, d.Part)
			c.commit()
		}

		err := <-errs
		if err != nil {
			c.fail(err)
			return
		}
		c.settle(ctx)
	}()

	return nil
}

func (c *Controller) settle(ctx context.Context) {
	c.mu.Lock()
	c.state = StateSettled
	c.busy = false
	c.suggestPending = false
	streamedID := c.streamedID
	c.mu.Unlock()

	if streamedID != "" {
		for _, m := range c.store.Snapshot().Messages {
			if m.ID == streamedID {
				c.persist(ctx, m)
				break
			}
		}
	}

	if c.usage != nil {
		// Fire-and-forget: the turn does not await or depend on it.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.usage.Invalidate(c.key)
		}()
	}
	c.commit()
	logging.Session("turn settled for %s", c.key)
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.state = StateErrored
	c.busy = false
	c.suggestPending = false
	c.mu.Unlock()

	logging.Session("turn failed for %s: %v", c.key, err)
	c.notify("The advisor could not respond. Please try again.")
	c.commit()
}

// InsertOnboardingNotice inserts the one-time notice. The in-memory guard
// covers repeat calls within this controller's lifetime; the content-based
// existence check covers remounts where the guard was lost but the notice
// already arrived from cache or persisted history.
func (c *Controller) InsertOnboardingNotice(ctx context.Context) {
	c.mu.Lock()
	text := c.noticeText
	if text == "" || c.noticeInserted {
		c.mu.Unlock()
		return
	}
	c.noticeInserted = true
	c.mu.Unlock()

	if c.store.ContainsText(text) {
		logging.SessionDebug("onboarding notice already present for %s", c.key)
		return
	}

	notice := types.NewNoticeMessage(text)
	c.store.Append(notice)
	c.commit()
	c.persist(ctx, notice)
	logging.Session("onboarding notice inserted for %s", c.key)
}

// Suggestions returns what to offer the user alongside the given message:
// accumulated prior-turn suggestions plus the message's own, capped.
func (c *Controller) Suggestions(messageID string) []types.Suggestion {
	messages := c.Display()
	idx := len(messages)
	for i, m := range messages {
		if m.ID == messageID {
			idx = i
			break
		}
	}

	previous := transcript.AccumulateSuggestions(messages, idx, c.suggestionWindow)

	var current []types.Suggestion
	if idx < len(messages) {
		for _, p := range messages[idx].Parts {
			if p.Kind == types.PartSuggestionBatch && p.Batch != nil {
				current = append(current, p.Batch.Suggestions...)
			}
		}
	}
	return transcript.CombineSuggestions(previous, current, c.suggestionCap)
}

// persist appends a message to history best-effort. Write failures are
// logged and dropped; persistence is never user-blocking.
func (c *Controller) persist(ctx context.Context, m types.Message) {
	if c.history == nil {
		return
	}
	if err := c.history.AppendMessage(ctx, c.key, m); err != nil {
		logging.Session("persist failed for %s (ignored): %v", m.ID, err)
	}
}

// commit publishes the current snapshot to the cache and the surface.
// No-op once the surface has unmounted.
func (c *Controller) commit() {
	c.mu.Lock()
	alive := c.alive
	onUpdate := c.onUpdate
	c.mu.Unlock()

	if !alive {
		return
	}
	snap := c.store.Snapshot()
	c.cache.Set(c.key, snap)
	if onUpdate != nil {
		onUpdate(snap)
	}
}

func (c *Controller) notify(message string) {
	c.mu.Lock()
	onNotify := c.onNotify
	c.mu.Unlock()
	if onNotify != nil {
		onNotify(message)
	}
}

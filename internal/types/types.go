// Package types provides the shared message model used across Drafter packages.
// This package exists to break import cycles between transcript, session, and
// transport. Types in this package are foundational data structures with no
// complex dependencies.
package types

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// PART MODEL
// =============================================================================
// A Part is the smallest unit of assistant output. Parts arrive incrementally
// from the transport and are folded into Messages by the transcript store.

// PartKind discriminates the Part union.
type PartKind string

const (
	PartText            PartKind = "text"
	PartReasoning       PartKind = "reasoning"
	PartTool            PartKind = "tool"
	PartSuggestionBatch PartKind = "suggestion-batch"
)

// ToolState is the lifecycle state of a tool invocation part.
// States only move forward through this order; a merge never regresses one.
type ToolState string

const (
	ToolInputStreaming  ToolState = "input-streaming"
	ToolInputAvailable  ToolState = "input-available"
	ToolOutputAvailable ToolState = "output-available"
	ToolOutputError     ToolState = "output-error"
)

var toolStateRank = map[ToolState]int{
	ToolInputStreaming:  0,
	ToolInputAvailable:  1,
	ToolOutputAvailable: 2,
	ToolOutputError:     3,
}

// Rank returns the position of the state in the lifecycle order.
// Unknown states rank below every known state.
func (s ToolState) Rank() int {
	if r, ok := toolStateRank[s]; ok {
		return r
	}
	return -1
}

// Settled reports whether the tool invocation has finished (successfully or not).
func (s ToolState) Settled() bool {
	return s == ToolOutputAvailable || s == ToolOutputError
}

// TargetSurface identifies which product surface a suggestion should act on.
type TargetSurface string

const (
	SurfacePrimaryBuilder TargetSurface = "primary-builder"
	SurfaceAdvisor        TargetSurface = "advisor"
)

// Suggestion is a structured, clickable recommendation produced by a
// suggestion-generation tool call. Immutable once produced.
type Suggestion struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	ShortTitle    string        `json:"shortTitle,omitempty"`
	Description   string        `json:"description"`
	Icon          string        `json:"icon"`
	Color         string        `json:"color"`
	Prompt        string        `json:"prompt"`
	TargetSurface TargetSurface `json:"targetSurface"`
	Category      string        `json:"category"`
}

// SuggestionOutput is the structured output of one suggestion-batch part.
type SuggestionOutput struct {
	Greeting    string       `json:"greeting,omitempty"`
	Suggestions []Suggestion `json:"suggestions"`
}

// Part is the tagged union of assistant output fragments. Kind selects which
// fields are meaningful:
//
//	text:             Text
//	reasoning:        Text, Streaming
//	tool:             ToolName, CallID, State, Input, Output, ErrorText
//	suggestion-batch: Batch
//
// A single struct with a kind discriminator mirrors how these fragments
// travel on the wire and keeps the JSON codec trivial.
type Part struct {
	Kind PartKind `json:"kind"`

	// Text and reasoning fields
	Text      string `json:"text,omitempty"`
	Streaming bool   `json:"streaming,omitempty"`

	// Tool fields
	ToolName  string          `json:"toolName,omitempty"`
	CallID    string          `json:"callId,omitempty"`
	State     ToolState       `json:"state,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	ErrorText string          `json:"errorText,omitempty"`

	// Suggestion-batch fields
	Batch *SuggestionOutput `json:"output_batch,omitempty"`
}

// TextPart builds a text part.
func TextPart(content string) Part {
	return Part{Kind: PartText, Text: content}
}

// ReasoningPart builds a reasoning part.
func ReasoningPart(content string, streaming bool) Part {
	return Part{Kind: PartReasoning, Text: content, Streaming: streaming}
}

// ToolPart builds a tool invocation part.
func ToolPart(toolName, callID string, state ToolState) Part {
	return Part{Kind: PartTool, ToolName: toolName, CallID: callID, State: state}
}

// SuggestionBatchPart builds a suggestion-batch part.
func SuggestionBatchPart(out *SuggestionOutput) Part {
	return Part{Kind: PartSuggestionBatch, Batch: out}
}

// Pending reports whether the part is still in flight: a streaming reasoning
// fragment or a tool call that has not produced output yet.
func (p Part) Pending() bool {
	switch p.Kind {
	case PartReasoning:
		return p.Streaming
	case PartTool:
		return !p.State.Settled()
	default:
		return false
	}
}

// =============================================================================
// MESSAGE MODEL
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is an ordered part sequence with role and identity. IDs are unique
// within a transcript store; a later merge with the same id replaces the
// message rather than duplicating it.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Parts     []Part    `json:"parts"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUserMessage builds a user message with a fresh id.
func NewUserMessage(text string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Parts:     []Part{TextPart(text)},
		CreatedAt: time.Now(),
	}
}

// NewAssistantMessage builds an empty assistant message with a fresh id.
func NewAssistantMessage() Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		CreatedAt: time.Now(),
	}
}

// TextContent flattens the message's text parts into one string. Used for
// content-based matching and for persisting a plain-content column alongside
// the structured parts.
func (m Message) TextContent() string {
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Kind == PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// =============================================================================
// IDENTITY SENTINELS
// =============================================================================
// Control messages exist only to trigger backend behavior (e.g. requesting a
// suggestion batch) and are hidden from display. Synthetic notices are
// one-time system-authored messages matched by content across reload cycles.

const (
	// ControlIDPrefix marks internal-trigger messages that never render.
	ControlIDPrefix = "ctl:"

	// NoticeIDPrefix marks synthetic one-time notices (e.g. the onboarding
	// notice shown while the user's app is not yet generated).
	NoticeIDPrefix = "notice:"
)

// IsControl reports whether the message is an internal trigger.
func IsControl(m Message) bool {
	return strings.HasPrefix(m.ID, ControlIDPrefix)
}

// IsNotice reports whether the message is a synthetic one-time notice.
func IsNotice(m Message) bool {
	return strings.HasPrefix(m.ID, NoticeIDPrefix)
}

// NewControlMessage builds a hidden internal-trigger message.
func NewControlMessage(text string) Message {
	return Message{
		ID:        ControlIDPrefix + uuid.NewString(),
		Role:      RoleUser,
		Parts:     []Part{TextPart(text)},
		CreatedAt: time.Now(),
	}
}

// NewNoticeMessage builds a synthetic assistant notice.
func NewNoticeMessage(text string) Message {
	return Message{
		ID:        NoticeIDPrefix + uuid.NewString(),
		Role:      RoleAssistant,
		Parts:     []Part{TextPart(text)},
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// CONTEXT KEY
// =============================================================================

// ContextKey identifies one logical transcript: a conversation plus the
// variant of the surface bound to it. Comparable, so it can key maps.
type ContextKey struct {
	ConversationID string `json:"conversationId"`
	Variant        string `json:"variant"`
}

func (k ContextKey) String() string {
	if k.Variant == "" {
		return k.ConversationID
	}
	return k.ConversationID + "/" + k.Variant
}

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"drafter/internal/logging"
	"drafter/internal/types"
)

// Config holds configuration for the streaming client.
type Config struct {
	BaseURL          string
	APIKey           string
	Model            string
	Timeout          time.Duration
	StreamingTimeout time.Duration
}

// StreamClient talks to the advisory model endpoint over SSE.
type StreamClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	streamTO   time.Duration
}

// NewStreamClient creates a streaming client from config, applying defaults
// for anything unset.
func NewStreamClient(cfg Config) *StreamClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.StreamingTimeout == 0 {
		cfg.StreamingTimeout = 300 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.drafter.dev/v1"
	}
	return &StreamClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		streamTO:   cfg.StreamingTimeout,
	}
}

// wire request/response shapes

type adviseRequest struct {
	Model    string        `json:"model,omitempty"`
	Context  adviseContext `json:"context"`
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type adviseContext struct {
	ConversationID string `json:"conversationId"`
	Variant        string `json:"variant,omitempty"`
}

type wireMessage struct {
	ID      string       `json:"id"`
	Role    types.Role   `json:"role"`
	Content string       `json:"content"`
	Parts   []types.Part `json:"parts,omitempty"`
}

type streamChunk struct {
	MessageID string      `json:"messageId"`
	Part      *types.Part `json:"part,omitempty"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Send implements Transport. The returned delta channel receives part deltas
// as they arrive and is closed when the stream completes; transport failures
// go to the error channel.
func (c *StreamClient) Send(ctx context.Context, key types.ContextKey, outbound types.Message, history []types.Message) (<-chan Delta, <-chan error) {
	deltas := make(chan Delta, 100)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		if c.apiKey == "" {
			errs <- fmt.Errorf("API key not configured")
			return
		}

		messages := make([]wireMessage, 0, len(history)+1)
		for _, m := range history {
			messages = append(messages, wireMessage{ID: m.ID, Role: m.Role, Content: m.TextContent(), Parts: m.Parts})
		}
		messages = append(messages, wireMessage{ID: outbound.ID, Role: outbound.Role, Content: outbound.TextContent(), Parts: outbound.Parts})

		body, err := json.Marshal(adviseRequest{
			Model:    c.model,
			Context:  adviseContext{ConversationID: key.ConversationID, Variant: key.Variant},
			Messages: messages,
			Stream:   true,
		})
		if err != nil {
			errs <- fmt.Errorf("failed to marshal request: %w", err)
			return
		}

		streamCtx, cancel := context.WithTimeout(ctx, c.streamTO)
		defer cancel()

		req, err := http.NewRequestWithContext(streamCtx, "POST", c.baseURL+"/advise", bytes.NewReader(body))
		if err != nil {
			errs <- fmt.Errorf("failed to create request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			errs <- fmt.Errorf("request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			errs <- fmt.Errorf("advise request failed with status %d: %s", resp.StatusCode, string(b))
			return
		}

		logging.TransportDebug("stream open for %s", key)
		if err := c.readStream(streamCtx, resp.Body, deltas); err != nil {
			errs <- err
		}
	}()

	return deltas, errs
}

// readStream consumes SSE lines ("data: {...}") until the [DONE] terminator,
// the stream ends, or the context is cancelled.
func (c *StreamClient) readStream(ctx context.Context, body io.ReadCloser, deltas chan<- Delta) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	// The scanner runs in its own goroutine so ctx cancellation can
	// force-close the body and unblock Scan.
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
	}()

	for {
		select {
		case <-ctx.Done():
			body.Close()
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return fmt.Errorf("stream read failed: %w", err)
				default:
					return nil
				}
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				body.Close()
				return nil
			}

			var chunk streamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				logging.TransportDebug("skipping malformed chunk: %v", err)
				continue
			}
			if chunk.Error != nil {
				return fmt.Errorf("stream error: %s", chunk.Error.Message)
			}
			if chunk.Part == nil {
				continue
			}
			select {
			case deltas <- Delta{MessageID: chunk.MessageID, Part: *chunk.Part}:
			case <-ctx.Done():
				body.Close()
				return ctx.Err()
			}
		}
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"drafter/internal/session"
	"drafter/internal/transcript"
	"drafter/internal/types"
)

// runAsk sends one message, waits for the turn to settle, and prints the
// grouped response.
func runAsk(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	ctl := env.newController(func(msg string) {
		fmt.Fprintln(os.Stderr, msg)
	})
	ctl.Mount(ctx)
	defer ctl.Unmount()

	text := strings.Join(args, " ")
	if err := ctl.Send(ctx, text); err != nil {
		return err
	}
	state, err := waitSettle(ctx, ctl)
	if err != nil {
		return err
	}
	if state == session.StateErrored {
		return errors.New("the advisor could not respond")
	}

	if err := awaitAndPrint(ctx, env, ctl, text); err != nil {
		return err
	}
	ctl.Quiesce()
	return nil
}

// runChat is the interactive loop.
func runChat(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	ctl := env.newController(func(msg string) {
		fmt.Println(">>", msg)
	})
	ctl.Mount(ctx)
	defer ctl.Unmount()
	defer ctl.Quiesce()

	existing := ctl.Display()
	if len(existing) > 0 {
		fmt.Printf("Resuming conversation %q (%d messages).\n\n", conversation, len(existing))
		printTranscript(existing)
	} else {
		fmt.Printf("Starting conversation %q. Type /help for commands.\n\n", conversation)
	}
	ctl.InsertOnboardingNotice(ctx)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("you> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			done, err := handleCommand(ctx, env, ctl, line)
			if err != nil {
				fmt.Println("error:", err)
			}
			if done {
				return nil
			}
			continue
		}

		if err := ctl.Send(ctx, line); err != nil {
			if errors.Is(err, session.ErrBusy) {
				fmt.Println("Still working on the previous message.")
				continue
			}
			return err
		}
		if err := awaitAndPrint(ctx, env, ctl, line); err != nil {
			return err
		}
	}
}

func handleCommand(ctx context.Context, env *cmdEnv, ctl *session.Controller, line string) (quit bool, err error) {
	switch line {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Println("Commands: /quit /history /suggest /ready /usage /help")
	case "/history":
		printTranscript(ctl.Display())
	case "/suggest":
		if err := ctl.RequestSuggestions(ctx); err != nil {
			return false, err
		}
		return false, awaitAndPrint(ctx, env, ctl, "")
	case "/ready":
		// Marks the deliverable ready, which retires the onboarding notice.
		ctl.SetDeliverableReady(true)
		fmt.Println("Deliverable marked ready.")
	case "/usage":
		if env.tracker == nil {
			fmt.Println("Usage tracking is unavailable.")
			break
		}
		if env.tracker.ConsumeStale(env.key) {
			fmt.Println("(refreshed)")
		}
		data := env.tracker.Snapshot()
		fmt.Printf("Turns this conversation: %d\n", data.ByConversation[env.key.ConversationID].Turns)
	default:
		fmt.Println("Unknown command. Type /help.")
	}
	return false, nil
}

func awaitAndPrint(ctx context.Context, env *cmdEnv, ctl *session.Controller, userText string) error {
	state, err := waitSettle(ctx, ctl)
	if err != nil {
		return err
	}
	if state == session.StateErrored {
		return nil
	}
	last, ok := settledReply(ctl.Display())
	if !ok {
		return nil
	}
	recordTurn(env, userText, last)
	printMessage(last)
	if greeting := transcript.GreetingFor(last); greeting != "" {
		fmt.Printf("drafter> %s\n", greeting)
	}
	printSuggestions(ctl, last.ID)
	return nil
}

// settledReply returns the assistant message that closed the turn. A turn
// that produced nothing (exhausted offline script, errored stream) leaves the
// user's own message last; that is never echoed back as a reply.
func settledReply(messages []types.Message) (types.Message, bool) {
	if len(messages) == 0 {
		return types.Message{}, false
	}
	last := messages[len(messages)-1]
	if last.Role != types.RoleAssistant {
		return types.Message{}, false
	}
	return last, true
}

// waitSettle polls until the in-flight turn finishes or the context ends.
func waitSettle(ctx context.Context, ctl *session.Controller) (session.State, error) {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctl.State(), ctx.Err()
		case <-ticker.C:
			switch state := ctl.State(); state {
			case session.StateSettled, session.StateErrored, session.StateIdle:
				return state, nil
			}
		}
	}
}

func recordTurn(env *cmdEnv, userText string, reply types.Message) {
	if env.tracker == nil {
		return
	}
	// Rough four-chars-per-token estimate; the advise endpoint does not
	// report token usage yet.
	env.tracker.RecordTurn(env.key, len(userText)/4, len(reply.TextContent())/4)
}

func printTranscript(messages []types.Message) {
	for _, m := range messages {
		printMessage(m)
	}
}

func printMessage(m types.Message) {
	switch m.Role {
	case types.RoleUser:
		fmt.Printf("you> %s\n", m.TextContent())
		return
	case types.RoleAssistant:
		if types.IsNotice(m) {
			fmt.Printf(">> %s\n", m.TextContent())
			return
		}
	}

	for _, g := range transcript.GroupParts(m.Parts) {
		switch g.Kind {
		case transcript.GroupText:
			for _, p := range g.Parts {
				fmt.Printf("drafter> %s\n", p.Text)
			}
		case transcript.GroupReasoning:
			fmt.Printf("  [thinking] %s\n", firstLine(g.Parts))
		case transcript.GroupTool:
			marker := " "
			if g.Complete {
				marker = "✓"
			}
			fmt.Printf("  [%s] %s\n", marker, g.Title)
		case transcript.GroupSuggestions:
			// Rendered separately via printSuggestions.
		}
	}
}

func printSuggestions(ctl *session.Controller, messageID string) {
	suggestions := ctl.Suggestions(messageID)
	if len(suggestions) == 0 {
		return
	}
	fmt.Println("\nSuggestions:")
	for i, s := range suggestions {
		title := s.Title
		if s.ShortTitle != "" {
			title = s.ShortTitle
		}
		fmt.Printf("  %d. %s\n", i+1, title)
	}
	fmt.Println()
}

func firstLine(parts []types.Part) string {
	for _, p := range parts {
		if p.Text != "" {
			if i := strings.IndexByte(p.Text, '\n'); i >= 0 {
				return p.Text[:i]
			}
			return p.Text
		}
	}
	return ""
}

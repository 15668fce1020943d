package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"drafter/internal/cache"
	"drafter/internal/config"
	"drafter/internal/logging"
	"drafter/internal/session"
	"drafter/internal/store"
	"drafter/internal/transport"
	"drafter/internal/types"
	"drafter/internal/usage"
)

var (
	// Global flags
	verbose      bool
	apiKey       string
	workspace    string
	conversation string
	timeout      time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "drafter",
	Short: "Drafter - streaming advisory chat for app builders",
	Long: `Drafter is the advisory chat engine for AI-assisted app building.

It reconciles streamed assistant responses, persisted history, and
cross-surface shared state into a single consistent transcript, and
accumulates follow-up suggestions across recent turns.

Run without arguments to start the interactive chat session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		if workspace == "" {
			workspace, _ = os.Getwd()
		}
		if err := logging.Initialize(workspace); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// askCmd sends a single message and prints the settled response
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Send one message and print the advisor's response",
	Long: `Sends a single message through the full turn pipeline:
streamed response parts are reconciled into the transcript, the
transcript is persisted, and the final grouped view is printed.

Example:
  drafter ask "How should I structure the login flow?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// chatCmd starts the interactive session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive advisory chat session",
	RunE:  runChat,
}

// historyCmd manages persisted transcripts
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and manage persisted conversation history",
}

var historyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the persisted transcript for a conversation",
	RunE:  runHistoryShow,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations with persisted history",
	RunE:  runHistoryList,
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the persisted transcript for a conversation",
	RunE:  runHistoryClear,
}

// usageCmd shows recorded turn counts
var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show recorded turn usage",
	RunE:  runUsage,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Advisor API key (or set DRAFTER_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&conversation, "conversation", "c", "default", "Conversation id")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Operation timeout")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyClearCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(usageCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEnv wires the shared collaborators for one command invocation.
type cmdEnv struct {
	cfg     *config.Config
	history *store.LocalStore
	tracker *usage.Tracker
	key     types.ContextKey
}

func buildEnv() (*cmdEnv, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}

	dbPath := cfg.Storage.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	local, err := store.NewLocalStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history store: %w", err)
	}

	tracker, err := usage.NewTracker(workspace)
	if err != nil {
		logger.Warn("usage tracking disabled", zap.Error(err))
		tracker = nil
	}

	return &cmdEnv{
		cfg:     cfg,
		history: local,
		tracker: tracker,
		key:     types.ContextKey{ConversationID: conversation, Variant: "advisor"},
	}, nil
}

func (e *cmdEnv) Close() {
	if e.tracker != nil {
		_ = e.tracker.Save()
	}
	_ = e.history.Close()
}

// newTransport picks the streaming client when a key is configured, the
// scripted offline transport otherwise.
func (e *cmdEnv) newTransport() transport.Transport {
	if e.cfg.LLM.APIKey == "" {
		logger.Warn("no API key configured, running in offline mode")
		return transport.NewScriptedTransport()
	}
	reqTimeout, err := e.cfg.LLMTimeout()
	if err != nil {
		logger.Warn("invalid llm.timeout, using default", zap.Error(err))
	}
	streamTimeout, err := e.cfg.StreamingTimeout()
	if err != nil {
		logger.Warn("invalid llm.streaming_timeout, using default", zap.Error(err))
	}
	return transport.NewStreamClient(transport.Config{
		BaseURL:          e.cfg.LLM.BaseURL,
		APIKey:           e.cfg.LLM.APIKey,
		Model:            e.cfg.LLM.Model,
		Timeout:          reqTimeout,
		StreamingTimeout: streamTimeout,
	})
}

func (e *cmdEnv) newController(notify func(string)) *session.Controller {
	opts := session.Options{
		Key:              e.key,
		Cache:            cache.New(),
		Transport:        e.newTransport(),
		History:          e.history,
		OnboardingNotice: e.cfg.Advisor.OnboardingNotice,
		SuggestionWindow: e.cfg.Advisor.SuggestionTurnWindow,
		SuggestionCap:    e.cfg.Advisor.SuggestionCap,
		OnNotify:         notify,
	}
	if e.tracker != nil {
		opts.Usage = e.tracker
	}
	return session.NewController(opts)
}

// signalContext cancels on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	messages, err := env.history.LoadHistory(ctx, env.key)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(messages) == 0 {
		fmt.Println("No history for conversation", conversation)
		return nil
	}
	printTranscript(messages)
	return nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	keys, err := env.history.Contexts(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}
	if len(keys) == 0 {
		fmt.Println("No persisted conversations.")
		return nil
	}
	for _, k := range keys {
		fmt.Println(k.String())
	}
	return nil
}

func runHistoryClear(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.history.DeleteAll(context.Background(), env.key); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	fmt.Println("Cleared history for conversation", conversation)
	return nil
}

func runUsage(cmd *cobra.Command, args []string) error {
	env, err := buildEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	if env.tracker == nil {
		fmt.Println("Usage tracking is unavailable.")
		return nil
	}
	data := env.tracker.Snapshot()
	fmt.Printf("Total turns: %d\n", data.Total.Turns)
	for conv, counts := range data.ByConversation {
		fmt.Printf("  %s: %d turns\n", conv, counts.Turns)
	}
	return nil
}

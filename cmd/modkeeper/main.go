// Package main is the modkeeper CLI: a conversational moderation
// assistant over a scraped community corpus, with a background sampler
// reviewing posts while the moderator chats.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/genai"

	"modkeeper/internal/config"
)

var (
	// Global flags
	verbose    bool
	dataDir    string
	topic      string
	noSampler  bool
	confMethod string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "modkeeper",
	Short: "modkeeper - conversational community moderation assistant",
	Long: `modkeeper reviews community posts against the community's rules,
keeps a queue of flagged posts, and lets a moderator work through it in
plain language: approve, reject, ask why, or push back. Moderator
pushback becomes override rules that outrank the base rules on
re-review.

A background sampler keeps drawing unreviewed posts through the same
review pipeline while the chat is open.

Run without arguments to start the interactive session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context())
	},
}

// checkCmd runs one batch auto-review and exits
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Review every post in the topic once and print the verdicts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBatchCheck(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "community data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&topic, "topic", "", "topic to moderate (overrides config)")
	rootCmd.PersistentFlags().StringVar(&confMethod, "confidence-method", "", "log_odds or normalized_diff (overrides config)")
	rootCmd.Flags().BoolVar(&noSampler, "no-sampler", false, "disable the background sampler")

	rootCmd.AddCommand(checkCmd)
}

// loadConfig merges the dotfile config with command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if topic != "" {
		cfg.Data.Topic = topic
	}
	if confMethod != "" {
		cfg.Review.ConfidenceMethod = confMethod
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newGenaiClient builds the SDK client from the environment.
func newGenaiClient(ctx context.Context) (*genai.Client, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

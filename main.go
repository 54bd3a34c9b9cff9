package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/example/dreamate/internal/ai"
	"github.com/example/dreamate/internal/chat"
	"github.com/example/dreamate/internal/config"
	"github.com/example/dreamate/internal/database"
	"github.com/example/dreamate/internal/logger"
	"github.com/example/dreamate/internal/orchestrator"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "dreamate",
	Short: "Vocabulary reviews and persona chat",
	Long: `dreamate schedules vocabulary reviews with spaced repetition and
chats as configurable personas through an OpenAI-compatible or Anthropic model.

Available subcommands:
  bot     - Run the Telegram bot with reminders
  import  - Import vocabulary from .xlsx or .csv
  due     - List items due for review
  review  - Record a review rating for an item
  stats   - Show vocabulary statistics and recent reviews
  chat    - Send a message to a conversation`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional dotenv file")
	rootCmd.AddCommand(botCmd, importCmd, dueCmd, reviewCmd, statsCmd, chatCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app holds the wired services shared by the commands
type app struct {
	cfg           *config.Config
	log           zerolog.Logger
	db            *sqlx.DB
	vocab         *database.VocabRepository
	conversations *database.ConversationRepository
	profiles      *database.ProfileRepository
	completer     ai.Completer
	chat          *chat.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:           cfg,
		log:           log,
		db:            db,
		vocab:         database.NewVocabRepository(db, database.WithResetOnReAdd(cfg.VocabResetOnReAdd), database.WithLogger(log)),
		conversations: database.NewConversationRepository(db, database.WithLogger(log)),
		profiles:      database.NewProfileRepository(db),
	}

	seeded, err := database.SeedPersonas(ctx, a.conversations, cfg.PersonaSeedFile)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Debug().Int("personas", seeded).Str("file", cfg.PersonaSeedFile).Msg("personas seeded")

	// a missing key still yields a client; its calls fail and replies fall back
	a.completer, err = ai.NewFromConfig(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}
	if cfg.LLMAPIKey == "" {
		log.Warn().Str("provider", cfg.LLMProvider).Msg("LLM_API_KEY is empty, replies will use persona scripts")
	}

	orch := orchestrator.New(a.completer, orchestrator.Config{
		TextModel:   cfg.LLMTextModel,
		VisionModel: cfg.LLMVisionModel,
		Temperature: cfg.LLMTemperature,
		TopP:        cfg.LLMTopP,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}, log)
	a.chat = chat.NewService(a.conversations, a.profiles, orch, log)
	return a, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close database")
	}
}

func (a *app) exampleWriter() *ai.ExampleWriter {
	return ai.NewExampleWriter(a.completer, a.cfg.LLMTextModel, a.log)
}

// withApp wires the services for a command and closes them afterwards
func withApp(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()
		return run(cmd, a, args)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

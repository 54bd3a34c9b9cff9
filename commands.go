package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/example/dreamate/internal/bot"
	"github.com/example/dreamate/internal/excel"
	"github.com/example/dreamate/internal/metrics"
	"github.com/example/dreamate/internal/quiz"
	"github.com/example/dreamate/internal/scheduler"
	sr "github.com/example/dreamate/internal/spaced_repetition"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram bot with review reminders",
	Args:  cobra.NoArgs,
	RunE:  withApp(runBot),
}

func runBot(cmd *cobra.Command, a *app, _ []string) error {
	botCfg := bot.DefaultConfig()
	botCfg.Token = a.cfg.TelegramBotToken
	botCfg.OwnerChatID = a.cfg.TelegramOwnerChatID

	b, err := bot.New(botCfg, bot.Deps{
		Vocab:         a.vocab,
		Conversations: a.conversations,
		Chat:          a.chat,
		Examples:      a.exampleWriter(),
		Quiz:          quiz.NewBuilder(a.vocab),
	}, a.log)
	if err != nil {
		return err
	}

	sched := scheduler.New(a.vocab, b, scheduler.Config{
		Interval:  a.cfg.ReminderInterval,
		StartHour: a.cfg.NotificationStartHour,
		EndHour:   a.cfg.NotificationEndHour,
	}, a.log)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error { return b.Run(ctx) })
	g.Go(func() error { return sched.Run(ctx) })
	if a.cfg.MetricsAddr != "" {
		g.Go(func() error {
			a.log.Info().Str("addr", a.cfg.MetricsAddr).Msg("serving metrics")
			return metrics.Serve(ctx, a.cfg.MetricsAddr)
		})
	}
	return g.Wait()
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import vocabulary from an .xlsx or .csv file",
	Long: `Import vocabulary rows (term, definition, language, example).

Rows go through the regular add path, so an existing term is updated
instead of duplicated. A row whose first cell starts with "#" sets the
language of the rows that follow, e.g. "# fr".`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(runImport),
}

func init() {
	importCmd.Flags().String("sheet", "", "Excel sheet name (default: first sheet)")
	importCmd.Flags().Int("start-row", 2, "first data row (1-based)")
	importCmd.Flags().String("language", "", "language for rows without one")

	dueCmd.Flags().Int("limit", 20, "maximum number of items")
	statsCmd.Flags().Int("timeline", 10, "number of recent reviews to show")
	chatCmd.Flags().String("persona", "", "start a new conversation with this persona")
}

func runImport(cmd *cobra.Command, a *app, args []string) error {
	cfg := excel.DefaultImportConfig()
	cfg.FilePath = args[0]
	cfg.SheetName, _ = cmd.Flags().GetString("sheet")
	cfg.StartRow, _ = cmd.Flags().GetInt("start-row")
	cfg.DefaultLanguage, _ = cmd.Flags().GetString("language")

	result, err := excel.NewImporter(a.vocab, a.log).ImportFile(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "processed %d, created %d, updated %d, skipped %d\n",
		result.TotalProcessed, result.Created, result.Updated, result.Skipped)
	for _, e := range result.Errors {
		fmt.Fprintln(out, "  "+e)
	}
	return nil
}

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List items due for review",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		items, err := a.vocab.GetDue(cmd.Context(), limit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTERM\tDEFINITION\tPROFICIENCY\tNEXT REVIEW")
		for _, item := range items {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n", item.ID, item.Term, item.Definition, item.Proficiency, formatTime(item.NextReviewAt))
		}
		return w.Flush()
	}),
}

var reviewCmd = &cobra.Command{
	Use:   "review <id> <again|hard|good|easy>",
	Short: "Record a review rating for an item",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[0])
		}
		item, err := a.vocab.RecordReview(cmd.Context(), id, sr.ParseRating(args[1]))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: proficiency %d, ease %.2f, next review %s, mastered %t\n",
			item.Term, item.Proficiency, item.Ease, formatTime(item.NextReviewAt), item.Mastered)
		return nil
	}),
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show vocabulary statistics and recent reviews",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		stats, err := a.vocab.Stats(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total %d, mastered %d, due %d\n", stats.Total, stats.Mastered, stats.Due)

		limit, _ := cmd.Flags().GetInt("timeline")
		if limit <= 0 {
			return nil
		}
		entries, err := a.vocab.Timeline(cmd.Context(), limit)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintf(out, "  %s  %-6s %s\n", formatTime(&e.ReviewedAt), e.Rating, e.Term)
		}
		return nil
	}),
}

var chatCmd = &cobra.Command{
	Use:   "chat [conversation-id] <text>",
	Short: "Send a message to a conversation and print the reply",
	Long: `Send a message to a conversation and print the reply bubbles.

With --persona a new conversation is opened and every argument is the text.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		var conversationID string
		if personaID, _ := cmd.Flags().GetString("persona"); personaID != "" {
			conv, err := a.conversations.CreateConversation(ctx, personaID)
			if err != nil {
				return err
			}
			conversationID = conv.ID
			fmt.Fprintf(out, "conversation %s\n", conv.ID)
		} else {
			if len(args) < 2 {
				return fmt.Errorf("usage: %s", cmd.Use)
			}
			conversationID, args = args[0], args[1:]
		}

		result, err := a.chat.Send(ctx, conversationID, strings.Join(args, " "), nil, "")
		if err != nil {
			return err
		}
		for _, msg := range result.Messages {
			fmt.Fprintln(out, msg.Body)
		}
		if result.Reply.UsedFallback {
			a.log.Info().Msg("reply came from the persona script")
		}
		return nil
	}),
}

package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/example/dreamate/internal/chat"
	"github.com/example/dreamate/internal/quiz"
	sr "github.com/example/dreamate/internal/spaced_repetition"
	"github.com/example/dreamate/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// telegramAPI is the part of *tgbotapi.BotAPI the handlers use
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// VocabStore is the vocabulary storage used by the bot
type VocabStore interface {
	Add(ctx context.Context, fields models.VocabFields) (int64, error)
	Get(ctx context.Context, id int64) (*models.VocabItem, error)
	GetDue(ctx context.Context, limit int) ([]models.VocabItem, error)
	RecordReview(ctx context.Context, id int64, rating sr.Rating) (*models.VocabItem, error)
	Update(ctx context.Context, id int64, upd models.VocabUpdate) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (models.VocabStats, error)
}

// ConversationStore opens conversations with personas
type ConversationStore interface {
	ListPersonas(ctx context.Context) ([]models.Persona, error)
	GetPersona(ctx context.Context, id string) (*models.Persona, error)
	CreateConversation(ctx context.Context, personaID string) (*models.Conversation, error)
}

// Chat runs a conversation turn
type Chat interface {
	Send(ctx context.Context, conversationID string, body string, payload models.Payload, quote string) (*chat.Result, error)
}

// ExampleGenerator writes example sentences for vocabulary items
type ExampleGenerator interface {
	GenerateExampleWithFallback(ctx context.Context, item *models.VocabItem) string
}

// QuizBuilder builds quiz questions for vocabulary items
type QuizBuilder interface {
	Question(ctx context.Context, item models.VocabItem, qt quiz.QuestionType, optionCount int) (quiz.Question, error)
}

// Deps are the services the bot talks to
type Deps struct {
	Vocab         VocabStore
	Conversations ConversationStore
	Chat          Chat
	Examples      ExampleGenerator
	Quiz          QuizBuilder
}

// Bot represents the Telegram bot application
type Bot struct {
	botAPI *tgbotapi.BotAPI
	api    telegramAPI
	cfg    Config
	deps   Deps
	log    zerolog.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[int64]string // chat id -> conversation id

	qmu    sync.Mutex
	queues map[int64][]tgbotapi.Update // pending updates per chat with a running worker
}

// New creates a bot authorized with cfg.Token
func New(cfg Config, deps Deps, log zerolog.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %w", err)
	}

	b := newBot(botAPI, cfg, deps, log)
	b.botAPI = botAPI
	b.log.Info().Str("account", botAPI.Self.UserName).Msg("authorized")
	return b, nil
}

func newBot(api telegramAPI, cfg Config, deps Deps, log zerolog.Logger) *Bot {
	defaults := DefaultConfig()
	if cfg.DownloadTimeout <= 0 {
		cfg.DownloadTimeout = defaults.DownloadTimeout
	}
	if cfg.MaxPhotoBytes <= 0 {
		cfg.MaxPhotoBytes = defaults.MaxPhotoBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = defaults.HTTPClient
	}
	return &Bot{
		api:      api,
		cfg:      cfg,
		deps:     deps,
		log:      log.With().Str("component", "bot").Logger(),
		now:      time.Now,
		sessions: make(map[int64]string),
		queues:   make(map[int64][]tgbotapi.Update),
	}
}

// Run polls for updates until ctx is cancelled. Different chats are
// handled concurrently, updates within one chat in arrival order.
func (b *Bot) Run(ctx context.Context) error {
	if b.botAPI == nil {
		return errors.New("bot is not connected")
	}

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.botAPI.GetUpdatesChan(updateConfig)

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.botAPI.StopReceivingUpdates()
			b.log.Info().Msg("bot stopped")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.enqueue(ctx, &wg, update)
		}
	}
}

// enqueue queues update behind earlier updates of the same chat and starts
// a worker for the chat when none is running
func (b *Bot) enqueue(ctx context.Context, wg *sync.WaitGroup, update tgbotapi.Update) {
	chatID := updateChatID(update)

	b.qmu.Lock()
	pending, running := b.queues[chatID]
	b.queues[chatID] = append(pending, update)
	b.qmu.Unlock()
	if running {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		b.drain(ctx, chatID)
	}()
}

func (b *Bot) drain(ctx context.Context, chatID int64) {
	for {
		b.qmu.Lock()
		pending := b.queues[chatID]
		if len(pending) == 0 {
			delete(b.queues, chatID)
			b.qmu.Unlock()
			return
		}
		update := pending[0]
		b.queues[chatID] = pending[1:]
		b.qmu.Unlock()

		b.handleUpdate(ctx, update)
	}
}

func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil && update.CallbackQuery.Message.Chat != nil:
		return update.CallbackQuery.Message.Chat.ID
	default:
		return 0
	}
}

// SendReminder implements scheduler.Notifier
func (b *Bot) SendReminder(_ context.Context, stats models.VocabStats) error {
	if b.cfg.OwnerChatID == 0 {
		b.log.Debug().Int("due", stats.Due).Msg("no owner chat configured, reminder dropped")
		return nil
	}

	msg := tgbotapi.NewMessage(b.cfg.OwnerChatID,
		fmt.Sprintf("📚 有 %d 个单词等待复习（共 %d 个，已掌握 %d 个）。", stats.Due, stats.Total, stats.Mastered))
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "开始复习", CallbackData: callbackReview}}})
	return b.sendMessage(msg)
}

func (b *Bot) sendMessage(msg tgbotapi.Chattable) error {
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

func (b *Bot) sendText(chatID int64, text string) error {
	return b.sendMessage(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) session(chatID int64) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.sessions[chatID]
	return id, ok
}

func (b *Bot) setSession(chatID int64, conversationID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions[chatID] = conversationID
}

// downloadPhoto fetches a Telegram file and returns it base64 encoded
func (b *Bot) downloadPhoto(ctx context.Context, fileID string) (string, error) {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.DownloadTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download file: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, b.cfg.MaxPhotoBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if int64(len(data)) > b.cfg.MaxPhotoBytes {
		return "", fmt.Errorf("photo exceeds %d bytes", b.cfg.MaxPhotoBytes)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/internal/quiz"
	sr "github.com/example/dreamate/internal/spaced_repetition"
	"github.com/example/dreamate/pkg/models"
)

// Callback data prefixes
const (
	callbackPersona = "persona:"
	callbackRate    = "rate:"
	callbackReview  = "review"
	callbackQuiz    = "quiz:"
)

const quizOptions = 4

const helpText = `可用命令：
/start - 选择聊天对象
/persona <id> - 与指定角色开始新的对话
/add <单词> - <释义> - 添加单词
/review - 复习下一个到期的单词
/quiz - 用选择题复习下一个到期的单词
/stats - 学习统计
/star <id> - 收藏或取消收藏单词
/delete <id> - 删除单词
/example <id> - 生成例句
直接发送文字或图片即可聊天。`

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	var chatID int64
	switch {
	case update.Message != nil && update.Message.Chat != nil:
		chatID = update.Message.Chat.ID
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		chatID = update.CallbackQuery.Message.Chat.ID
		err = b.HandleCallback(ctx, update.CallbackQuery)
	default:
		return
	}

	if err != nil {
		b.log.Error().Err(err).Int64("chat_id", chatID).Msg("update failed")
		if sendErr := b.sendText(chatID, userMessage(err)); sendErr != nil {
			b.log.Warn().Err(sendErr).Msg("failed to report error")
		}
	}
}

// userMessage turns an error into text that is safe to show in the chat
func userMessage(err error) string {
	switch {
	case apperrors.IsValidation(err):
		return "⚠️ " + err.Error()
	case apperrors.IsNotFound(err):
		return "🔍 没有找到：" + err.Error()
	default:
		return "❌ 出了点问题，请稍后再试。"
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	if message.IsCommand() {
		return b.HandleCommand(ctx, message)
	}
	if len(message.Photo) > 0 {
		return b.handlePhoto(ctx, message)
	}
	if strings.TrimSpace(message.Text) != "" {
		return b.handleChatText(ctx, message)
	}
	return nil
}

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	chatID := message.Chat.ID
	args := strings.TrimSpace(message.CommandArguments())

	switch message.Command() {
	case "start":
		return b.handleStart(ctx, chatID)
	case "help":
		return b.sendText(chatID, helpText)
	case "persona":
		return b.openConversation(ctx, chatID, args)
	case "add":
		return b.handleAdd(ctx, chatID, args)
	case "review":
		return b.showNextCard(ctx, chatID)
	case "quiz":
		return b.showQuiz(ctx, chatID)
	case "stats":
		return b.handleStats(ctx, chatID)
	case "star":
		return b.handleStar(ctx, chatID, args)
	case "delete":
		return b.handleDelete(ctx, chatID, args)
	case "example":
		return b.handleExample(ctx, chatID, args)
	default:
		return b.sendText(chatID, "未知命令，发送 /help 查看帮助。")
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) error {
	personas, err := b.deps.Conversations.ListPersonas(ctx)
	if err != nil {
		return err
	}
	if len(personas) == 0 {
		return b.sendText(chatID, "还没有可以聊天的角色。\n\n"+helpText)
	}

	var buttons [][]MenuButton
	for _, p := range personas {
		buttons = append(buttons, []MenuButton{{Text: p.Name, CallbackData: callbackPersona + p.ID}})
	}
	msg := tgbotapi.NewMessage(chatID, "想和谁聊聊？")
	msg.ReplyMarkup = createKeyboard(buttons)
	return b.sendMessage(msg)
}

func (b *Bot) openConversation(ctx context.Context, chatID int64, personaID string) error {
	if personaID == "" {
		return apperrors.Validation("persona", "用法：/persona <id>")
	}
	persona, err := b.deps.Conversations.GetPersona(ctx, personaID)
	if err != nil {
		return err
	}
	conv, err := b.deps.Conversations.CreateConversation(ctx, persona.ID)
	if err != nil {
		return err
	}
	b.setSession(chatID, conv.ID)
	b.log.Info().Int64("chat_id", chatID).Str("conversation_id", conv.ID).Msg("conversation opened")

	greeting := persona.Greeting
	if strings.TrimSpace(greeting) == "" {
		greeting = fmt.Sprintf("你好，我是%s。", persona.Name)
	}
	return b.sendText(chatID, greeting)
}

func (b *Bot) handleChatText(ctx context.Context, message *tgbotapi.Message) error {
	var quote string
	if message.ReplyToMessage != nil {
		quote = message.ReplyToMessage.Text
	}
	return b.sendChat(ctx, message.Chat.ID, message.Text, nil, quote)
}

func (b *Bot) handlePhoto(ctx context.Context, message *tgbotapi.Message) error {
	// Telegram lists sizes smallest first
	photo := message.Photo[len(message.Photo)-1]
	data, err := b.downloadPhoto(ctx, photo.FileID)
	if err != nil {
		return err
	}

	payload := &models.ImagePayload{
		URI:      "tg://file/" + photo.FileID,
		MimeType: "image/jpeg",
		Width:    photo.Width,
		Height:   photo.Height,
		Base64:   data,
	}
	return b.sendChat(ctx, message.Chat.ID, message.Caption, payload, "")
}

func (b *Bot) sendChat(ctx context.Context, chatID int64, body string, payload models.Payload, quote string) error {
	conversationID, ok := b.session(chatID)
	if !ok {
		return b.handleStart(ctx, chatID)
	}

	result, err := b.deps.Chat.Send(ctx, conversationID, body, payload, quote)
	if err != nil {
		return err
	}
	for _, msg := range result.Messages {
		if err := b.sendText(chatID, msg.Body); err != nil {
			return err
		}
	}
	return nil
}

// parseAddArgs splits "term - definition"; the definition is optional.
func parseAddArgs(args string) (models.VocabFields, error) {
	term, definition, _ := strings.Cut(args, " - ")
	fields := models.VocabFields{
		Term:       strings.TrimSpace(term),
		Definition: strings.TrimSpace(definition),
	}
	if fields.Term == "" {
		return fields, apperrors.Validation("term", "用法：/add <单词> - <释义>")
	}
	return fields, nil
}

func (b *Bot) handleAdd(ctx context.Context, chatID int64, args string) error {
	fields, err := parseAddArgs(args)
	if err != nil {
		return err
	}
	id, err := b.deps.Vocab.Add(ctx, fields)
	if err != nil {
		return err
	}
	return b.sendText(chatID, fmt.Sprintf("✅ 已添加 #%d %s", id, fields.Term))
}

func (b *Bot) showNextCard(ctx context.Context, chatID int64) error {
	due, err := b.deps.Vocab.GetDue(ctx, 1)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return b.sendText(chatID, "🎉 暂时没有需要复习的单词。")
	}

	item := due[0]
	var text strings.Builder
	fmt.Fprintf(&text, "#%d %s", item.ID, item.Term)
	if item.Starred {
		text.WriteString(" ⭐")
	}
	if item.Definition != "" {
		fmt.Fprintf(&text, "\n\n释义：%s", item.Definition)
	}
	if item.Example != "" {
		fmt.Fprintf(&text, "\n例句：%s", item.Example)
	}

	msg := tgbotapi.NewMessage(chatID, text.String())
	msg.ReplyMarkup = ratingKeyboard(item.ID)
	return b.sendMessage(msg)
}

func ratingKeyboard(itemID int64) tgbotapi.InlineKeyboardMarkup {
	labels := []struct {
		text   string
		rating sr.Rating
	}{
		{"😵 忘了", sr.Again},
		{"😓 困难", sr.Hard},
		{"🙂 记得", sr.Good},
		{"😎 简单", sr.Easy},
	}
	var row []MenuButton
	for _, l := range labels {
		row = append(row, MenuButton{Text: l.text, CallbackData: fmt.Sprintf("%s%d:%s", callbackRate, itemID, l.rating)})
	}
	return createKeyboard([][]MenuButton{row})
}

// HandleCallback handles inline button presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	// Always answer the callback query to remove the loading state
	if _, err := b.api.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.log.Warn().Err(err).Msg("failed to answer callback")
	}

	chatID := callback.Message.Chat.ID
	switch data := callback.Data; {
	case data == callbackReview:
		return b.showNextCard(ctx, chatID)
	case strings.HasPrefix(data, callbackPersona):
		return b.openConversation(ctx, chatID, strings.TrimPrefix(data, callbackPersona))
	case strings.HasPrefix(data, callbackRate):
		return b.handleRate(ctx, chatID, strings.TrimPrefix(data, callbackRate))
	case strings.HasPrefix(data, callbackQuiz):
		return b.handleQuizAnswer(ctx, chatID, strings.TrimPrefix(data, callbackQuiz))
	default:
		return b.sendText(chatID, "⚠️ 未知操作")
	}
}

func (b *Bot) handleRate(ctx context.Context, chatID int64, data string) error {
	idPart, ratingPart, _ := strings.Cut(data, ":")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return apperrors.Validation("item", "invalid id "+idPart)
	}

	item, err := b.deps.Vocab.RecordReview(ctx, id, sr.ParseRating(ratingPart))
	if err != nil {
		return err
	}

	text := fmt.Sprintf("已记录「%s」，下次复习：%s", item.Term, b.untilReview(item))
	if item.Mastered {
		text += "\n🏅 已掌握"
	}
	if err := b.sendText(chatID, text); err != nil {
		return err
	}
	return b.showNextCard(ctx, chatID)
}

// untilReview describes how long until item is due again
func (b *Bot) untilReview(item *models.VocabItem) string {
	if item.NextReviewAt == nil {
		return "现在"
	}
	return formatInterval(item.NextReviewAt.Sub(b.now()).Round(time.Minute))
}

func formatInterval(d time.Duration) string {
	switch {
	case d < time.Hour:
		return fmt.Sprintf("%d 分钟后", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%.1f 小时后", d.Hours())
	default:
		return fmt.Sprintf("%.1f 天后", d.Hours()/24)
	}
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) error {
	stats, err := b.deps.Vocab.Stats(ctx)
	if err != nil {
		return err
	}
	return b.sendText(chatID, fmt.Sprintf("📊 单词总数：%d\n已掌握：%d\n待复习：%d", stats.Total, stats.Mastered, stats.Due))
}

func parseItemID(args, usage string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(args), "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("id", usage)
	}
	return id, nil
}

func (b *Bot) handleStar(ctx context.Context, chatID int64, args string) error {
	id, err := parseItemID(args, "用法：/star <id>")
	if err != nil {
		return err
	}
	item, err := b.deps.Vocab.Get(ctx, id)
	if err != nil {
		return err
	}
	starred := !item.Starred
	if err := b.deps.Vocab.Update(ctx, id, models.VocabUpdate{Starred: &starred}); err != nil {
		return err
	}
	if starred {
		return b.sendText(chatID, "⭐ 已收藏 "+item.Term)
	}
	return b.sendText(chatID, "已取消收藏 "+item.Term)
}

func (b *Bot) handleDelete(ctx context.Context, chatID int64, args string) error {
	id, err := parseItemID(args, "用法：/delete <id>")
	if err != nil {
		return err
	}
	if err := b.deps.Vocab.Delete(ctx, id); err != nil {
		return err
	}
	return b.sendText(chatID, fmt.Sprintf("🗑 已删除 #%d", id))
}

func (b *Bot) handleExample(ctx context.Context, chatID int64, args string) error {
	id, err := parseItemID(args, "用法：/example <id>")
	if err != nil {
		return err
	}
	item, err := b.deps.Vocab.Get(ctx, id)
	if err != nil {
		return err
	}

	example := b.deps.Examples.GenerateExampleWithFallback(ctx, item)
	if example != item.Example {
		if err := b.deps.Vocab.Update(ctx, id, models.VocabUpdate{Example: &example}); err != nil {
			return err
		}
	}
	return b.sendText(chatID, fmt.Sprintf("%s\n\n%s", item.Term, example))
}

func (b *Bot) showQuiz(ctx context.Context, chatID int64) error {
	due, err := b.deps.Vocab.GetDue(ctx, 1)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return b.sendText(chatID, "🎉 暂时没有需要复习的单词。")
	}

	item := due[0]
	q, err := b.deps.Quiz.Question(ctx, item, quiz.MultipleChoice, quizOptions)
	if errors.Is(err, quiz.ErrNotEnoughOptions) {
		// not enough definitions for choices, use a plain card instead
		return b.showNextCard(ctx, chatID)
	}
	if err != nil {
		return err
	}

	var buttons [][]MenuButton
	for i, option := range q.Options {
		buttons = append(buttons, []MenuButton{{
			Text:         option,
			CallbackData: fmt.Sprintf("%s%d:%d:%d", callbackQuiz, item.ID, i, q.CorrectIndex),
		}})
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("❓ #%d %s 的意思是？", item.ID, item.Term))
	msg.ReplyMarkup = createKeyboard(buttons)
	return b.sendMessage(msg)
}

// handleQuizAnswer parses "<id>:<chosen>:<correct>" and records the review
func (b *Bot) handleQuizAnswer(ctx context.Context, chatID int64, data string) error {
	parts := strings.Split(data, ":")
	if len(parts) != 3 {
		return apperrors.Validation("quiz", "malformed answer "+data)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return apperrors.Validation("quiz", "invalid id "+parts[0])
	}
	correct := parts[1] == parts[2]

	item, err := b.deps.Vocab.RecordReview(ctx, id, quiz.RatingFor(correct))
	if err != nil {
		return err
	}

	text := fmt.Sprintf("❌ 不对哦，「%s」的意思是：%s", item.Term, item.Definition)
	if correct {
		text = fmt.Sprintf("✅ 答对了！下次复习：%s", b.untilReview(item))
	}
	if err := b.sendText(chatID, text); err != nil {
		return err
	}
	return b.showQuiz(ctx, chatID)
}

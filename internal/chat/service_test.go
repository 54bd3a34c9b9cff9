package chat

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dreamate/internal/ai"
	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/internal/database"
	"github.com/example/dreamate/internal/orchestrator"
	"github.com/example/dreamate/pkg/models"
)

type fakeCompleter struct {
	reply string
	err   error
	delay time.Duration

	mu   sync.Mutex
	last ai.ChatRequest
}

func (f *fakeCompleter) Complete(_ context.Context, req ai.ChatRequest) (string, error) {
	f.mu.Lock()
	f.last = req
	f.mu.Unlock()
	time.Sleep(f.delay)
	return f.reply, f.err
}

func (f *fakeCompleter) Provider() string { return "fake" }

type fixture struct {
	service       *Service
	conversations *database.ConversationRepository
	profiles      *database.ProfileRepository
	completer     *fakeCompleter
	conv          *models.Conversation
}

func newFixture(t *testing.T, script ...string) *fixture {
	t.Helper()
	db, err := database.Connect(database.DriverSQLite, filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	tick := func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	conversations := database.NewConversationRepository(db, database.WithClock(tick))
	profiles := database.NewProfileRepository(db)
	require.NoError(t, conversations.UpsertPersona(ctx, models.Persona{
		ID:       "lin",
		Name:     "林夏",
		Persona:  "温柔的插画师",
		Greeting: "你来啦",
		Script:   script,
	}))
	conv, err := conversations.CreateConversation(ctx, "lin")
	require.NoError(t, err)

	completer := &fakeCompleter{}
	orch := orchestrator.New(completer, orchestrator.Config{
		TextModel:   "qwen-plus",
		VisionModel: "qwen-vl-plus",
		Timeout:     time.Second,
	}, zerolog.Nop())

	return &fixture{
		service:       NewService(conversations, profiles, orch, zerolog.Nop()),
		conversations: conversations,
		profiles:      profiles,
		completer:     completer,
		conv:          conv,
	}
}

func TestSendStoresTurnAndChunkedReply(t *testing.T) {
	f := newFixture(t)
	f.completer.reply = "辛苦啦！先喝口水。\n我陪着你"
	ctx := context.Background()

	res, err := f.service.Send(ctx, f.conv.ID, "今天好累", nil, "")
	require.NoError(t, err)
	assert.False(t, res.Reply.UsedFallback)
	require.Len(t, res.Messages, 2)
	assert.Equal(t, "辛苦啦！先喝口水。", res.Messages[0].Body)
	assert.Equal(t, "我陪着你", res.Messages[1].Body)

	msgs, err := f.conversations.ListMessages(ctx, f.conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "你来啦", msgs[0].Body)
	assert.Equal(t, models.SenderUser, msgs[1].Sender)
	assert.Equal(t, models.SenderAI, msgs[3].Sender)

	// the model saw the greeting and the user turn
	require.Len(t, f.completer.last.Messages, 2)
	assert.Equal(t, "今天好累", f.completer.last.Messages[1].Text)
}

func TestReplyFallbackAdvancesStoredCursor(t *testing.T) {
	f := newFixture(t, "嗯嗯", "然后呢？")
	f.completer.err = &apperrors.ExternalServiceError{Provider: "fake", StatusCode: 503}
	ctx := context.Background()

	want := []string{"嗯嗯", "然后呢？", "嗯嗯"}
	for i, line := range want {
		res, err := f.service.Reply(ctx, f.conv.ID)
		require.NoError(t, err)
		assert.True(t, res.Reply.UsedFallback)
		assert.Equal(t, line, res.Reply.Text, "reply %d", i)
	}

	conv, err := f.conversations.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.ScriptCursor)
}

func TestConcurrentSendsTakeTurns(t *testing.T) {
	f := newFixture(t, "L0", "L1", "L2")
	f.completer.err = errors.New("upstream timeout")
	f.completer.delay = 50 * time.Millisecond
	ctx := context.Background()

	replies := make([]string, 2)
	var wg sync.WaitGroup
	for i := range replies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.service.Send(ctx, f.conv.ID, "在吗", nil, "")
			if assert.NoError(t, err) {
				replies[i] = res.Reply.Text
			}
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"L0", "L1"}, replies)

	conv, err := f.conversations.GetConversation(ctx, f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.ScriptCursor)

	msgs, err := f.conversations.ListMessages(ctx, f.conv.ID, 0)
	require.NoError(t, err)
	var senders []models.Sender
	for _, m := range msgs {
		senders = append(senders, m.Sender)
	}
	assert.Equal(t, []models.Sender{
		models.SenderAI,
		models.SenderUser, models.SenderAI,
		models.SenderUser, models.SenderAI,
	}, senders, "each user turn is followed by its own reply")
}

func TestReplyPlaceholderWithEmptyScript(t *testing.T) {
	f := newFixture(t)
	f.completer.err = errors.New("dial tcp: connection refused")

	res, err := f.service.Reply(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Equal(t, orchestrator.FallbackPlaceholder, res.Reply.Text)
	require.Len(t, res.Messages, 1)

	conv, err := f.conversations.GetConversation(context.Background(), f.conv.ID)
	require.NoError(t, err)
	assert.Zero(t, conv.ScriptCursor)
}

func TestReplyUnknownConversation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Reply(context.Background(), "missing")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = f.service.Send(context.Background(), "missing", "hi", nil, "")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Send(context.Background(), f.conv.ID, "   ", nil, "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestSendUsesProfileAndAffection(t *testing.T) {
	f := newFixture(t)
	f.completer.reply = "嗯"
	ctx := context.Background()

	require.NoError(t, f.profiles.SaveUserProfile(ctx, models.UserProfile{Nickname: "小鱼"}))
	require.NoError(t, f.profiles.SetAffectionLevel(ctx, "lin", 4))

	affection := 25
	_, err := f.service.Send(ctx, f.conv.ID, "", &models.GiftPayload{Title: "玫瑰", Affection: &affection}, "")
	require.NoError(t, err)

	level, err := f.profiles.GetAffectionLevel(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, 5, level)

	assert.Contains(t, f.completer.last.System, "昵称：小鱼")
	assert.Contains(t, f.completer.last.System, orchestrator.StageFor(5).PromptHint)
	last := f.completer.last.Messages[len(f.completer.last.Messages)-1]
	assert.Equal(t, "送出了礼物：玫瑰", last.Text)
}

func TestAffectionDelta(t *testing.T) {
	three := 3
	tests := []struct {
		name string
		msg  models.Message
		want int
	}{
		{"short message", models.Message{Body: "嗨"}, 1},
		{"long message", models.Message{Body: string(make([]rune, 0)) + repeat("好", 130)}, 3},
		{"capped", models.Message{Body: repeat("好", 1000)}, 4},
		{"negative", models.Message{Body: "我讨厌你，别烦我"}, -3},
		{"negative english", models.Message{Body: "Shut Up"}, -2},
		{"gift", models.Message{Payload: &models.GiftPayload{Affection: &three}}, 3},
		{"gift without value", models.Message{Payload: &models.GiftPayload{}}, 1},
		{"empty", models.Message{Payload: &models.EmojiPayload{Key: "x"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AffectionDelta(&tt.msg))
		})
	}
}

func repeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}

func TestSplitChunksNeverEmpty(t *testing.T) {
	assert.Equal(t, []string{orchestrator.FallbackPlaceholder}, SplitChunks("  "))
	assert.Equal(t, []string{"好的。", "晚安"}, SplitChunks("好的。晚安"))
}

package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/pkg/models"
)

var testPersona = models.Persona{
	ID:       "lin",
	Name:     "林夏",
	Persona:  "温柔的插画师，喜欢猫和雨天。",
	Greeting: "你来啦，今天过得怎么样？",
	Script:   []string{"嗯嗯，我在听。", "然后呢？", "抱抱你。"},
}

func newConversationRepo(t *testing.T) (*ConversationRepository, *testClock) {
	t.Helper()
	clock := &testClock{now: t0}
	repo := NewConversationRepository(openTestDB(t), WithClock(clock.Now))
	require.NoError(t, repo.UpsertPersona(context.Background(), testPersona))
	return repo, clock
}

func TestUpsertPersona(t *testing.T) {
	repo, _ := newConversationRepo(t)
	ctx := context.Background()

	p, err := repo.GetPersona(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, testPersona, *p)

	updated := testPersona
	updated.Script = nil
	updated.Mood = "sleepy"
	require.NoError(t, repo.UpsertPersona(ctx, updated))

	p, err = repo.GetPersona(ctx, "lin")
	require.NoError(t, err)
	assert.Empty(t, p.Script)
	assert.Equal(t, "sleepy", p.Mood)

	personas, err := repo.ListPersonas(ctx)
	require.NoError(t, err)
	assert.Len(t, personas, 1)

	err = repo.UpsertPersona(ctx, models.Persona{ID: "x"})
	assert.True(t, apperrors.IsValidation(err))

	_, err = repo.GetPersona(ctx, "nobody")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestCreateConversationAddsGreeting(t *testing.T) {
	repo, _ := newConversationRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "lin")
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Zero(t, conv.ScriptCursor)

	detail, err := repo.GetConversationDetail(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, detail.Conversation.ID)
	assert.Equal(t, "林夏", detail.Persona.Name)
	assert.Equal(t, testPersona.Script, detail.Persona.Script)

	msgs, err := repo.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, models.SenderAI, msgs[0].Sender)
	assert.Equal(t, testPersona.Greeting, msgs[0].Body)

	_, err = repo.CreateConversation(ctx, "nobody")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestGetConversationDetailNotFound(t *testing.T) {
	repo, _ := newConversationRepo(t)

	_, err := repo.GetConversationDetail(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestAdvanceScriptCursor(t *testing.T) {
	repo, _ := newConversationRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "lin")
	require.NoError(t, err)

	require.NoError(t, repo.AdvanceScriptCursor(ctx, conv.ID, 2))
	stored, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ScriptCursor)

	assert.True(t, apperrors.IsNotFound(repo.AdvanceScriptCursor(ctx, "missing", 1)))
	assert.True(t, apperrors.IsValidation(repo.AdvanceScriptCursor(ctx, conv.ID, -1)))
}

func TestAppendAndListMessages(t *testing.T) {
	repo, clock := newConversationRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "lin")
	require.NoError(t, err)

	affection := 5
	inputs := []*models.Message{
		{Sender: models.SenderUser, Body: "看看我的猫", Payload: &models.ImagePayload{URI: "file:///cat.jpg", MimeType: "image/jpeg", Base64: "AAAA"}},
		{Sender: models.SenderAI, Body: "好可爱！"},
		{Sender: models.SenderUser, Body: "", Payload: &models.GiftPayload{ID: "rose", Title: "玫瑰", Affection: &affection}},
		{Sender: models.SenderUser, Body: "哈哈", Payload: &models.EmojiPayload{Key: "smile"}, QuotedBody: "好可爱！"},
	}
	for _, msg := range inputs {
		clock.Advance(time.Second)
		msg.ConversationID = conv.ID
		require.NoError(t, repo.AppendMessage(ctx, msg))
		assert.NotZero(t, msg.ID)
	}

	all, err := repo.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	tail, err := repo.ListMessages(ctx, conv.ID, 2)
	require.NoError(t, err)
	require.Len(t, tail, 2)

	gift, ok := tail[0].Payload.(*models.GiftPayload)
	require.True(t, ok)
	assert.Equal(t, "玫瑰", gift.Title)
	require.NotNil(t, gift.Affection)
	assert.Equal(t, 5, *gift.Affection)

	assert.Equal(t, &models.EmojiPayload{Key: "smile"}, tail[1].Payload)
	assert.Equal(t, "好可爱！", tail[1].QuotedBody)

	img, ok := all[1].Image()
	require.True(t, ok)
	assert.Equal(t, "AAAA", img.Base64)
	assert.Equal(t, "image/jpeg", img.MimeType)

	err = repo.AppendMessage(ctx, &models.Message{ConversationID: "missing", Sender: models.SenderUser, Body: "hi"})
	assert.True(t, apperrors.IsNotFound(err))
	err = repo.AppendMessage(ctx, &models.Message{ConversationID: conv.ID, Sender: "system", Body: "hi"})
	assert.True(t, apperrors.IsValidation(err))
}

func TestListMessagesToleratesUnknownKind(t *testing.T) {
	repo, _ := newConversationRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "lin")
	require.NoError(t, err)
	_, err = repo.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender, body, kind, payload, quoted_body, created_at)
		VALUES (?, 'user', 'hello', 'video', '{}', '', ?)`, conv.ID, toMillis(t0.Add(time.Minute)))
	require.NoError(t, err)

	msgs, err := repo.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[1].Body)
	assert.Nil(t, msgs[1].Payload)
}

func TestDeleteConversation(t *testing.T) {
	repo, _ := newConversationRepo(t)
	ctx := context.Background()

	conv, err := repo.CreateConversation(ctx, "lin")
	require.NoError(t, err)
	require.NoError(t, repo.DeleteConversation(ctx, conv.ID))

	_, err = repo.GetConversation(ctx, conv.ID)
	assert.True(t, apperrors.IsNotFound(err))
	msgs, err := repo.ListMessages(ctx, conv.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestProfileRepository(t *testing.T) {
	repo := NewProfileRepository(openTestDB(t))
	ctx := context.Background()

	profile, err := repo.GetUserProfile(ctx)
	require.NoError(t, err)
	assert.False(t, profile.HasFacts())

	require.NoError(t, repo.SaveUserProfile(ctx, models.UserProfile{Nickname: "小鱼", MBTI: "INFP"}))
	require.NoError(t, repo.SaveUserProfile(ctx, models.UserProfile{Nickname: "阿鱼", MBTI: "INFP", Zodiac: "双鱼座"}))
	profile, err = repo.GetUserProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "阿鱼", profile.Nickname)
	assert.Equal(t, "双鱼座", profile.Zodiac)

	level, err := repo.GetAffectionLevel(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, MinAffectionLevel, level)

	require.NoError(t, repo.SetAffectionLevel(ctx, "lin", 4))
	level, err = repo.GetAffectionLevel(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, 4, level)

	require.NoError(t, repo.SetAffectionLevel(ctx, "lin", -3))
	level, err = repo.GetAffectionLevel(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, MinAffectionLevel, level)
}

func TestAddAffection(t *testing.T) {
	repo := NewProfileRepository(openTestDB(t))
	ctx := context.Background()

	level, err := repo.AddAffection(ctx, "lin", 19)
	require.NoError(t, err)
	assert.Equal(t, 1, level)

	level, err = repo.AddAffection(ctx, "lin", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, level)

	level, err = repo.AddAffection(ctx, "lin", -100)
	require.NoError(t, err)
	assert.Equal(t, MinAffectionLevel, level)

	level, err = repo.AddAffection(ctx, "lin", 10_000)
	require.NoError(t, err)
	assert.Equal(t, MaxAffectionLevel, level)

	stored, err := repo.GetAffectionLevel(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, MaxAffectionLevel, stored)

	require.NoError(t, repo.SetAffectionLevel(ctx, "lin", 3))
	level, err = repo.AddAffection(ctx, "lin", 5)
	require.NoError(t, err)
	assert.Equal(t, 3, level)
}

func TestLevelForPoints(t *testing.T) {
	assert.Equal(t, 1, LevelForPoints(-5))
	assert.Equal(t, 1, LevelForPoints(0))
	assert.Equal(t, 3, LevelForPoints(40))
	assert.Equal(t, 6, LevelForPoints(1000))
}

func TestSeedPersonas(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "personas.yaml")

	n, err := SeedPersonas(ctx, repo, path)
	require.NoError(t, err)
	assert.Zero(t, n)

	content := `personas:
  - id: lin
    name: 林夏
    persona: 温柔的插画师
    greeting: 你来啦
    script:
      - 嗯嗯
      - 然后呢？
  - id: zhou
    name: 周野
    persona: 话不多的摄影师
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	n, err = SeedPersonas(ctx, repo, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lin, err := repo.GetPersona(ctx, "lin")
	require.NoError(t, err)
	assert.Equal(t, []string{"嗯嗯", "然后呢？"}, lin.Script)

	zhou, err := repo.GetPersona(ctx, "zhou")
	require.NoError(t, err)
	assert.Empty(t, zhou.Script)

	require.NoError(t, os.WriteFile(path, []byte("personas: [oops"), 0o644))
	_, err = SeedPersonas(ctx, repo, path)
	assert.Error(t, err)
}

func TestShippedPersonaFileLoads(t *testing.T) {
	personas, err := LoadPersonas(filepath.Join("..", "..", "data", "personas.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, personas)
	for _, p := range personas {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Script, "persona %s needs a fallback script", p.ID)
	}
}

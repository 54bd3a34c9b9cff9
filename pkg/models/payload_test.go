package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadText(t *testing.T) {
	for _, kind := range []string{"", "text"} {
		p, err := DecodePayload(kind, "ignored")
		require.NoError(t, err)
		assert.Nil(t, p)
		assert.Equal(t, KindText, KindOf(p))
	}
}

func TestDecodePayloadImage(t *testing.T) {
	p, err := DecodePayload("image", `{"uri":"file:///a.jpg","mime_type":"image/png","width":640,"base64":"QUJD"}`)
	require.NoError(t, err)

	img, ok := p.(*ImagePayload)
	require.True(t, ok)
	assert.Equal(t, "file:///a.jpg", img.URI)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, 640, img.Width)
	assert.Equal(t, "QUJD", img.Base64)
}

func TestDecodePayloadMalformedFallsBackToRaw(t *testing.T) {
	p, err := DecodePayload("image", "https://cdn.example.com/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, &ImagePayload{URI: "https://cdn.example.com/x.jpg"}, p)

	p, err = DecodePayload("gift", "{not json}")
	require.NoError(t, err)
	assert.Equal(t, &GiftPayload{Title: "{not json}"}, p)
}

func TestDecodePayloadGiftAlias(t *testing.T) {
	p, err := DecodePayload("gift", `{"giftId":"rose","title":"玫瑰","affection":5}`)
	require.NoError(t, err)

	gift := p.(*GiftPayload)
	assert.Equal(t, "rose", gift.ID)
	assert.Equal(t, "玫瑰", gift.Title)
	require.NotNil(t, gift.Affection)
	assert.Equal(t, 5, *gift.Affection)
}

func TestDecodePayloadUnknownKind(t *testing.T) {
	_, err := DecodePayload("hologram", "{}")
	assert.Error(t, err)
}

func TestEncodePayloadRoundTripKinds(t *testing.T) {
	payloads := []Payload{
		nil,
		&ImagePayload{URI: "u", MimeType: "image/jpeg"},
		&GiftPayload{ID: "g", Title: "花"},
		&ActionPayload{Title: "拥抱"},
		&PolaroidPayload{URI: "p", Caption: "c"},
		&EmojiPayload{Key: "smile"},
	}
	for _, p := range payloads {
		kind, raw, err := EncodePayload(p)
		require.NoError(t, err)
		assert.Equal(t, string(KindOf(p)), kind)

		decoded, err := DecodePayload(kind, raw)
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "【照片】", (&ImagePayload{}).Describe(""))
	assert.Equal(t, "【照片】看海", (&ImagePayload{}).Describe("看海"))
	assert.Equal(t, "送出了礼物", (&GiftPayload{}).Describe(""))
	assert.Equal(t, "送出了礼物：玫瑰", (&GiftPayload{Title: "玫瑰"}).Describe(""))
	assert.Equal(t, "[表情]", (&EmojiPayload{Key: "x"}).Describe(""))
	assert.Equal(t, "拍立得合影", (&PolaroidPayload{}).Describe(""))
	assert.Equal(t, "动作指令", (&ActionPayload{}).Describe(""))
}

func TestVocabItemIsDue(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	later := now.Add(time.Minute)

	assert.True(t, (&VocabItem{}).IsDue(now))
	assert.True(t, (&VocabItem{NextReviewAt: &now}).IsDue(now))
	assert.False(t, (&VocabItem{NextReviewAt: &later}).IsDue(now))
}

func TestUserProfileHasFacts(t *testing.T) {
	var nilProfile *UserProfile
	assert.False(t, nilProfile.HasFacts())
	assert.False(t, (&UserProfile{Gender: "男"}).HasFacts())
	assert.True(t, (&UserProfile{MBTI: "INFP"}).HasFacts())
}

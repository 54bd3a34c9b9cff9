package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/internal/database"
	"github.com/example/dreamate/internal/keylock"
	"github.com/example/dreamate/internal/orchestrator"
	"github.com/example/dreamate/pkg/models"
)

// negativeCues lower the affection towards a persona when found in a message.
var negativeCues = []string{
	"讨厌", "滚", "闭嘴", "生气", "气死", "别烦", "不理你",
	"hate you", "stupid", "idiot", "angry", "annoying", "shut up", "fuck",
}

// Conversations is the conversation storage used by Service
type Conversations interface {
	GetConversationDetail(ctx context.Context, id string) (*models.ConversationDetail, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	AdvanceScriptCursor(ctx context.Context, conversationID string, next int) error
}

// Profiles is the user profile storage used by Service
type Profiles interface {
	GetUserProfile(ctx context.Context) (*models.UserProfile, error)
	GetAffectionLevel(ctx context.Context, personaID string) (int, error)
	AddAffection(ctx context.Context, personaID string, delta int) (int, error)
}

// ReplyGenerator produces the next persona reply
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, in orchestrator.Input) orchestrator.Reply
}

// Result is a generated reply together with the stored AI messages
type Result struct {
	Reply    orchestrator.Reply
	Messages []models.Message
}

// Service runs a conversation turn: store the user message, generate the
// reply, persist the script cursor and store the reply chunks. Turns of one
// conversation run one at a time.
type Service struct {
	conversations Conversations
	profiles      Profiles
	replies       ReplyGenerator
	log           zerolog.Logger

	turns keylock.Map[string]
}

// NewService creates a new chat service
func NewService(conversations Conversations, profiles Profiles, replies ReplyGenerator, log zerolog.Logger) *Service {
	return &Service{
		conversations: conversations,
		profiles:      profiles,
		replies:       replies,
		log:           log.With().Str("component", "chat").Logger(),
	}
}

// Send stores a user message and replies to it
func (s *Service) Send(ctx context.Context, conversationID string, body string, payload models.Payload, quote string) (*Result, error) {
	body = strings.TrimSpace(body)
	if body == "" && payload == nil {
		return nil, apperrors.Validation("message", "body or payload is required")
	}

	unlock := s.turns.Lock(conversationID)
	defer unlock()

	detail, err := s.conversations.GetConversationDetail(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Sender:         models.SenderUser,
		Body:           body,
		Payload:        payload,
		QuotedBody:     strings.TrimSpace(quote),
	}
	if err := s.conversations.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	if delta := AffectionDelta(msg); delta != 0 {
		level, err := s.profiles.AddAffection(ctx, detail.Persona.ID, delta)
		if err != nil {
			s.log.Warn().Err(err).Str("persona_id", detail.Persona.ID).Msg("affection update failed")
		} else {
			s.log.Debug().Str("persona_id", detail.Persona.ID).Int("delta", delta).Int("level", level).Msg("affection updated")
		}
	}

	return s.reply(ctx, detail)
}

// Reply generates and stores the next persona message of a conversation.
// Unknown conversations surface as NotFoundError.
func (s *Service) Reply(ctx context.Context, conversationID string) (*Result, error) {
	unlock := s.turns.Lock(conversationID)
	defer unlock()

	detail, err := s.conversations.GetConversationDetail(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return s.reply(ctx, detail)
}

func (s *Service) reply(ctx context.Context, detail *models.ConversationDetail) (*Result, error) {
	conv := detail.Conversation

	history, err := s.conversations.ListMessages(ctx, conv.ID, orchestrator.HistoryWindow)
	if err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetUserProfile(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("user profile unavailable")
		profile = nil
	}
	level, err := s.profiles.GetAffectionLevel(ctx, detail.Persona.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("persona_id", detail.Persona.ID).Msg("affection level unavailable")
		level = database.MinAffectionLevel
	}

	reply := s.replies.GenerateReply(ctx, orchestrator.Input{
		Conversation:   conv,
		Persona:        detail.Persona,
		History:        history,
		Profile:        profile,
		AffectionLevel: level,
	})

	if reply.NextScriptCursor != conv.ScriptCursor {
		if err := s.conversations.AdvanceScriptCursor(ctx, conv.ID, reply.NextScriptCursor); err != nil {
			return nil, fmt.Errorf("failed to persist script cursor: %w", err)
		}
	}

	result := &Result{Reply: reply}
	for _, chunk := range SplitChunks(reply.Text) {
		msg := models.Message{ConversationID: conv.ID, Sender: models.SenderAI, Body: chunk}
		if err := s.conversations.AppendMessage(ctx, &msg); err != nil {
			return nil, err
		}
		result.Messages = append(result.Messages, msg)
	}

	s.log.Info().
		Str("conversation_id", conv.ID).
		Bool("fallback", reply.UsedFallback).
		Int("chunks", len(result.Messages)).
		Msg("reply delivered")
	return result, nil
}

// SplitChunks splits reply text into message bubbles, keeping at least one.
func SplitChunks(text string) []string {
	chunks := orchestrator.SplitReply(text)
	if len(chunks) == 0 {
		return []string{orchestrator.FallbackPlaceholder}
	}
	return chunks
}

// AffectionDelta scores a user message: negative cues lower affection by up
// to 4, otherwise longer messages raise it by 1 to 4. Gifts add their own
// affection value.
func AffectionDelta(msg *models.Message) int {
	if gift, ok := msg.Payload.(*models.GiftPayload); ok && gift != nil {
		if gift.Affection != nil {
			return *gift.Affection
		}
		return 1
	}

	content := strings.ToLower(msg.Body)
	if content == "" {
		return 0
	}
	hits := 0
	for _, cue := range negativeCues {
		if strings.Contains(content, cue) {
			hits++
		}
	}
	if hits > 0 {
		return -min(4, 1+hits)
	}
	return min(4, max(1, len([]rune(content))/40))
}

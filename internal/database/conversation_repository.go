package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/pkg/models"
)

type personaRow struct {
	ID       string `db:"id"`
	Name     string `db:"name"`
	Persona  string `db:"persona"`
	Greeting string `db:"greeting"`
	Mood     string `db:"mood"`
	Script   string `db:"script"`
}

func (r personaRow) toModel() (models.Persona, error) {
	p := models.Persona{
		ID:       r.ID,
		Name:     r.Name,
		Persona:  r.Persona,
		Greeting: r.Greeting,
		Mood:     r.Mood,
	}
	if r.Script != "" {
		if err := json.Unmarshal([]byte(r.Script), &p.Script); err != nil {
			return p, fmt.Errorf("failed to decode script of persona %s: %w", r.ID, err)
		}
	}
	return p, nil
}

type conversationRow struct {
	ID           string `db:"id"`
	PersonaID    string `db:"persona_id"`
	Title        string `db:"title"`
	ScriptCursor int    `db:"script_cursor"`
	CreatedAt    int64  `db:"created_at"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r conversationRow) toModel() models.Conversation {
	return models.Conversation{
		ID:           r.ID,
		PersonaID:    r.PersonaID,
		Title:        r.Title,
		ScriptCursor: r.ScriptCursor,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

type messageRow struct {
	ID             int64  `db:"id"`
	ConversationID string `db:"conversation_id"`
	Sender         string `db:"sender"`
	Body           string `db:"body"`
	Kind           string `db:"kind"`
	Payload        string `db:"payload"`
	QuotedBody     string `db:"quoted_body"`
	CreatedAt      int64  `db:"created_at"`
}

// ConversationRepository handles personas, conversations and their messages
type ConversationRepository struct {
	db   *sqlx.DB
	opts options
}

// NewConversationRepository creates a new repository instance
func NewConversationRepository(db *sqlx.DB, opts ...Option) *ConversationRepository {
	return &ConversationRepository{db: db, opts: newOptions(opts)}
}

// UpsertPersona creates or replaces a persona definition
func (r *ConversationRepository) UpsertPersona(ctx context.Context, p models.Persona) error {
	if strings.TrimSpace(p.ID) == "" {
		return apperrors.Validation("persona id", "must not be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return apperrors.Validation("persona name", "must not be empty")
	}
	script := p.Script
	if script == nil {
		script = []string{}
	}
	data, err := json.Marshal(script)
	if err != nil {
		return fmt.Errorf("failed to encode persona script: %w", err)
	}

	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO personas (id, name, persona, greeting, mood, script)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			persona = excluded.persona,
			greeting = excluded.greeting,
			mood = excluded.mood,
			script = excluded.script`),
		p.ID, p.Name, p.Persona, p.Greeting, p.Mood, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save persona: %w", err)
	}
	return nil
}

// GetPersona returns a persona by id
func (r *ConversationRepository) GetPersona(ctx context.Context, id string) (*models.Persona, error) {
	var row personaRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(
		`SELECT id, name, persona, greeting, mood, script FROM personas WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("persona", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get persona: %w", err)
	}
	p, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPersonas returns all personas ordered by name
func (r *ConversationRepository) ListPersonas(ctx context.Context) ([]models.Persona, error) {
	var rows []personaRow
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, name, persona, greeting, mood, script FROM personas ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list personas: %w", err)
	}
	personas := make([]models.Persona, 0, len(rows))
	for _, row := range rows {
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		personas = append(personas, p)
	}
	return personas, nil
}

// CreateConversation opens a new conversation with a persona. The persona
// greeting, when set, becomes the first message.
func (r *ConversationRepository) CreateConversation(ctx context.Context, personaID string) (*models.Conversation, error) {
	persona, err := r.GetPersona(ctx, personaID)
	if err != nil {
		return nil, err
	}

	now := r.opts.now()
	conv := models.Conversation{
		ID:        uuid.NewString(),
		PersonaID: persona.ID,
		Title:     persona.Name,
		CreatedAt: now.UTC().Truncate(time.Millisecond),
		UpdatedAt: now.UTC().Truncate(time.Millisecond),
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO conversations (id, persona_id, title, script_cursor, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`),
		conv.ID, conv.PersonaID, conv.Title, toMillis(now), toMillis(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	if greeting := strings.TrimSpace(persona.Greeting); greeting != "" {
		msg := &models.Message{ConversationID: conv.ID, Sender: models.SenderAI, Body: greeting}
		if err := insertMessage(ctx, tx, msg, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit conversation: %w", err)
	}

	r.opts.log.Debug().Str("conversation_id", conv.ID).Str("persona_id", persona.ID).Msg("conversation created")
	return &conv, nil
}

// GetConversation returns a conversation by id
func (r *ConversationRepository) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var row conversationRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT id, persona_id, title, script_cursor, created_at, updated_at
		FROM conversations WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("conversation", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	conv := row.toModel()
	return &conv, nil
}

// GetConversationDetail returns a conversation together with its persona
func (r *ConversationRepository) GetConversationDetail(ctx context.Context, id string) (*models.ConversationDetail, error) {
	conv, err := r.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	persona, err := r.GetPersona(ctx, conv.PersonaID)
	if err != nil {
		return nil, err
	}
	return &models.ConversationDetail{Conversation: *conv, Persona: *persona}, nil
}

// ListConversations returns the conversations with a persona, most recent first
func (r *ConversationRepository) ListConversations(ctx context.Context, personaID string) ([]models.Conversation, error) {
	var rows []conversationRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, persona_id, title, script_cursor, created_at, updated_at
		FROM conversations WHERE persona_id = ?
		ORDER BY updated_at DESC, id`), personaID)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	convs := make([]models.Conversation, 0, len(rows))
	for _, row := range rows {
		convs = append(convs, row.toModel())
	}
	return convs, nil
}

// AdvanceScriptCursor stores the fallback script offset of a conversation
func (r *ConversationRepository) AdvanceScriptCursor(ctx context.Context, conversationID string, next int) error {
	if next < 0 {
		return apperrors.Validation("script cursor", "must not be negative")
	}
	result, err := r.db.ExecContext(ctx, r.db.Rebind(
		`UPDATE conversations SET script_cursor = ?, updated_at = ? WHERE id = ?`),
		next, toMillis(r.opts.now()), conversationID)
	if err != nil {
		return fmt.Errorf("failed to advance script cursor: %w", err)
	}
	return requireAffected(result, "conversation", conversationID)
}

// AppendMessage stores a message and fills in its id and timestamp
func (r *ConversationRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	if msg.Sender != models.SenderUser && msg.Sender != models.SenderAI {
		return apperrors.Validation("sender", fmt.Sprintf("unknown sender %q", msg.Sender))
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := r.opts.now()
	result, err := tx.ExecContext(ctx, tx.Rebind(
		`UPDATE conversations SET updated_at = ? WHERE id = ?`), toMillis(now), msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	if err := requireAffected(result, "conversation", msg.ConversationID); err != nil {
		return err
	}

	if err := insertMessage(ctx, tx, msg, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, tx *sqlx.Tx, msg *models.Message, now time.Time) error {
	kind, raw, err := models.EncodePayload(msg.Payload)
	if err != nil {
		return err
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(`
		INSERT INTO messages (conversation_id, sender, body, kind, payload, quoted_body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		msg.ConversationID, string(msg.Sender), msg.Body, kind, raw, msg.QuotedBody, toMillis(now),
	).Scan(&msg.ID)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	msg.CreatedAt = fromMillis(toMillis(now))
	return nil
}

// ListMessages returns the last limit messages of a conversation in
// chronological order. A limit <= 0 returns the whole history.
// Messages whose payload cannot be decoded are kept as plain text.
func (r *ConversationRepository) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, sender, body, kind, payload, quoted_body, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC`
	args := []any{conversationID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []messageRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	messages := make([]models.Message, len(rows))
	for i, row := range rows {
		payload, err := models.DecodePayload(row.Kind, row.Payload)
		if err != nil {
			r.opts.log.Warn().Err(err).Int64("message_id", row.ID).Msg("dropping undecodable payload")
			payload = nil
		}
		messages[len(rows)-1-i] = models.Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			Sender:         models.Sender(row.Sender),
			Body:           row.Body,
			Payload:        payload,
			QuotedBody:     row.QuotedBody,
			CreatedAt:      fromMillis(row.CreatedAt),
		}
	}
	return messages, nil
}

// DeleteConversation removes a conversation and its messages
func (r *ConversationRepository) DeleteConversation(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM messages WHERE conversation_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if err := requireAffected(result, "conversation", id); err != nil {
		return err
	}
	return tx.Commit()
}

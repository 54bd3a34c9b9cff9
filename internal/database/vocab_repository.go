package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/internal/keylock"
	"github.com/example/dreamate/internal/metrics"
	sr "github.com/example/dreamate/internal/spaced_repetition"
	"github.com/example/dreamate/pkg/models"
)

const vocabColumns = `id, term, definition, language, example, audio_url, ease, interval_ms,
	proficiency, next_review_at, last_review_at, mastered, starred, created_at, updated_at`

type vocabRow struct {
	ID           int64         `db:"id"`
	Term         string        `db:"term"`
	Definition   string        `db:"definition"`
	Language     string        `db:"language"`
	Example      string        `db:"example"`
	AudioURL     string        `db:"audio_url"`
	Ease         float64       `db:"ease"`
	IntervalMs   int64         `db:"interval_ms"`
	Proficiency  int           `db:"proficiency"`
	NextReviewAt sql.NullInt64 `db:"next_review_at"`
	LastReviewAt sql.NullInt64 `db:"last_review_at"`
	Mastered     int           `db:"mastered"`
	Starred      int           `db:"starred"`
	CreatedAt    int64         `db:"created_at"`
	UpdatedAt    int64         `db:"updated_at"`
}

func (r vocabRow) toModel() models.VocabItem {
	return models.VocabItem{
		ID:           r.ID,
		Term:         r.Term,
		Definition:   r.Definition,
		Language:     r.Language,
		Example:      r.Example,
		AudioURL:     r.AudioURL,
		Ease:         r.Ease,
		IntervalMs:   r.IntervalMs,
		Proficiency:  r.Proficiency,
		NextReviewAt: fromNullMillis(r.NextReviewAt),
		LastReviewAt: fromNullMillis(r.LastReviewAt),
		Mastered:     r.Mastered != 0,
		Starred:      r.Starred != 0,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

// VocabRepository handles database operations for vocabulary items and their reviews
type VocabRepository struct {
	db    *sqlx.DB
	opts  options
	locks keylock.Map[int64]
}

// NewVocabRepository creates a new repository instance
func NewVocabRepository(db *sqlx.DB, opts ...Option) *VocabRepository {
	return &VocabRepository{db: db, opts: newOptions(opts)}
}

func (r *VocabRepository) now() time.Time {
	return r.opts.now()
}

// Add inserts a new item, or overwrites the fields of the item whose term
// matches case-insensitively, and returns its id.
// Scheduling state survives a duplicate add unless WithResetOnReAdd is set.
func (r *VocabRepository) Add(ctx context.Context, fields models.VocabFields) (int64, error) {
	term := strings.TrimSpace(fields.Term)
	if term == "" {
		return 0, apperrors.Validation("term", "must not be empty")
	}
	key := strings.ToLower(term)
	now := toMillis(r.now())

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.GetContext(ctx, &id, tx.Rebind(`SELECT id FROM vocab_items WHERE term_key = ?`), key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowxContext(ctx, tx.Rebind(`
			INSERT INTO vocab_items (term, term_key, definition, language, example, ease, interval_ms,
				proficiency, mastered, starred, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?)
			RETURNING id`),
			term, key, fields.Definition, fields.Language, fields.Example, models.DefaultEase, now, now,
		).Scan(&id)
		if err != nil {
			return 0, fmt.Errorf("failed to create vocab item: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("failed to look up vocab item: %w", err)
	default:
		query := `UPDATE vocab_items SET term = ?, definition = ?, language = ?, example = ?, updated_at = ?`
		if r.opts.resetOnReAdd {
			query += `, ease = 2.5, interval_ms = 0, proficiency = 0, next_review_at = NULL,
				last_review_at = NULL, mastered = 0`
		}
		query += ` WHERE id = ?`
		if _, err := tx.ExecContext(ctx, tx.Rebind(query),
			term, fields.Definition, fields.Language, fields.Example, now, id); err != nil {
			return 0, fmt.Errorf("failed to overwrite vocab item: %w", err)
		}
		r.opts.log.Debug().Int64("item_id", id).Str("term", term).Msg("duplicate term overwritten")
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit vocab item: %w", err)
	}
	return id, nil
}

// Get returns an item by id
func (r *VocabRepository) Get(ctx context.Context, id int64) (*models.VocabItem, error) {
	return getVocab(ctx, r.db, id)
}

// FindByTerm returns the item whose term matches case-insensitively
func (r *VocabRepository) FindByTerm(ctx context.Context, term string) (*models.VocabItem, error) {
	key := strings.ToLower(strings.TrimSpace(term))
	var row vocabRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`SELECT `+vocabColumns+` FROM vocab_items WHERE term_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("vocab item", term)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find vocab item: %w", err)
	}
	item := row.toModel()
	return &item, nil
}

func getVocab(ctx context.Context, q sqlx.ExtContext, id int64) (*models.VocabItem, error) {
	var row vocabRow
	err := sqlx.GetContext(ctx, q, &row, q.Rebind(`SELECT `+vocabColumns+` FROM vocab_items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("vocab item", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vocab item: %w", err)
	}
	item := row.toModel()
	return &item, nil
}

// GetDue returns items whose due date has passed, never-reviewed items
// first, then ascending by due date. A limit <= 0 returns all due items.
func (r *VocabRepository) GetDue(ctx context.Context, limit int) ([]models.VocabItem, error) {
	query := `SELECT ` + vocabColumns + ` FROM vocab_items
		WHERE next_review_at IS NULL OR next_review_at <= ?
		ORDER BY COALESCE(next_review_at, 0) ASC, id ASC`
	args := []any{toMillis(r.now())}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []vocabRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get due vocab items: %w", err)
	}
	return toItems(rows), nil
}

// Search returns items whose term or definition contains query
func (r *VocabRepository) Search(ctx context.Context, query string) ([]models.VocabItem, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	var rows []vocabRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT `+vocabColumns+` FROM vocab_items
		WHERE term_key LIKE ? OR LOWER(definition) LIKE ?
		ORDER BY term_key`), pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search vocab items: %w", err)
	}
	return toItems(rows), nil
}

// RecordReview applies rating to the item and appends the review record.
// Reviews of the same item are serialized; different items proceed in parallel.
func (r *VocabRepository) RecordReview(ctx context.Context, id int64, rating sr.Rating) (*models.VocabItem, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	item, err := getVocab(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	now := r.now()
	review := sr.Apply(item, rating, now)
	item.UpdatedAt = now

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE vocab_items SET ease = ?, interval_ms = ?, proficiency = ?, next_review_at = ?,
			last_review_at = ?, mastered = ?, updated_at = ?
		WHERE id = ?`),
		item.Ease, item.IntervalMs, item.Proficiency, nullMillis(item.NextReviewAt),
		nullMillis(item.LastReviewAt), boolToInt(item.Mastered), toMillis(now), id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update vocab schedule: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO vocab_reviews (item_id, rating, interval_ms, next_review_at, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		id, review.Rating, review.IntervalMs, toMillis(review.NextReviewAt), toMillis(review.ReviewedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record vocab review: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit vocab review: %w", err)
	}

	metrics.ReviewsTotal.WithLabelValues(review.Rating).Inc()
	r.opts.log.Debug().
		Int64("item_id", id).
		Str("rating", review.Rating).
		Int64("interval_ms", item.IntervalMs).
		Bool("mastered", item.Mastered).
		Msg("vocab review recorded")

	return item, nil
}

// Update applies a partial update to an item
func (r *VocabRepository) Update(ctx context.Context, id int64, upd models.VocabUpdate) error {
	if upd.IsEmpty() {
		_, err := r.Get(ctx, id)
		return err
	}

	var sets []string
	var args []any
	if upd.Definition != nil {
		sets = append(sets, "definition = ?")
		args = append(args, *upd.Definition)
	}
	if upd.Language != nil {
		sets = append(sets, "language = ?")
		args = append(args, *upd.Language)
	}
	if upd.Example != nil {
		sets = append(sets, "example = ?")
		args = append(args, *upd.Example)
	}
	if upd.AudioURL != nil {
		sets = append(sets, "audio_url = ?")
		args = append(args, *upd.AudioURL)
	}
	if upd.Starred != nil {
		sets = append(sets, "starred = ?")
		args = append(args, boolToInt(*upd.Starred))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(r.now()), id)

	query := `UPDATE vocab_items SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	result, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("failed to update vocab item: %w", err)
	}
	return requireAffected(result, "vocab item", id)
}

// SaveAudio caches the pronunciation audio URL of an item
func (r *VocabRepository) SaveAudio(ctx context.Context, id int64, url string) error {
	return r.Update(ctx, id, models.VocabUpdate{AudioURL: &url})
}

// Delete removes an item together with its review history
func (r *VocabRepository) Delete(ctx context.Context, id int64) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM vocab_reviews WHERE item_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete vocab reviews: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM vocab_items WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete vocab item: %w", err)
	}
	if err := requireAffected(result, "vocab item", id); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats counts all, mastered and currently due items
func (r *VocabRepository) Stats(ctx context.Context) (models.VocabStats, error) {
	var stats models.VocabStats
	err := r.db.GetContext(ctx, &stats, r.db.Rebind(`
		SELECT
			COUNT(*) AS total,
			COALESCE(SUM(CASE WHEN mastered = 1 THEN 1 ELSE 0 END), 0) AS mastered,
			COALESCE(SUM(CASE WHEN next_review_at IS NULL OR next_review_at <= ? THEN 1 ELSE 0 END), 0) AS due
		FROM vocab_items`), toMillis(r.now()))
	if err != nil {
		return stats, fmt.Errorf("failed to get vocab stats: %w", err)
	}
	return stats, nil
}

// Timeline returns the most recent reviews, newest first
func (r *VocabRepository) Timeline(ctx context.Context, limit int) ([]models.ReviewEntry, error) {
	if limit <= 0 {
		limit = 300
	}
	var rows []struct {
		ID           int64  `db:"id"`
		ItemID       int64  `db:"item_id"`
		Term         string `db:"term"`
		Rating       string `db:"rating"`
		IntervalMs   int64  `db:"interval_ms"`
		NextReviewAt int64  `db:"next_review_at"`
		CreatedAt    int64  `db:"created_at"`
	}
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT r.id, r.item_id, v.term, r.rating, r.interval_ms, r.next_review_at, r.created_at
		FROM vocab_reviews r
		JOIN vocab_items v ON v.id = r.item_id
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get vocab timeline: %w", err)
	}

	entries := make([]models.ReviewEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.ReviewEntry{
			VocabReview: models.VocabReview{
				ID:           row.ID,
				ItemID:       row.ItemID,
				Rating:       row.Rating,
				IntervalMs:   row.IntervalMs,
				NextReviewAt: fromMillis(row.NextReviewAt),
				ReviewedAt:   fromMillis(row.CreatedAt),
			},
			Term: row.Term,
		})
	}
	return entries, nil
}

// Count returns the number of stored items
func (r *VocabRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM vocab_items`); err != nil {
		return 0, fmt.Errorf("failed to count vocab items: %w", err)
	}
	return n, nil
}

func toItems(rows []vocabRow) []models.VocabItem {
	items := make([]models.VocabItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toModel())
	}
	return items
}

func requireAffected(result sql.Result, entity string, id any) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound(entity, id)
	}
	return nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/example/dreamate/pkg/models"
)

const (
	defaultProfileID = "default"

	// MinAffectionLevel is the level of a persona the user never interacted with.
	MinAffectionLevel = 1
	MaxAffectionLevel = 6

	// AffectionPerLevel is the number of affection points between two levels.
	AffectionPerLevel = 20
)

// ProfileRepository stores the user profile and per-persona affection levels
type ProfileRepository struct {
	db *sqlx.DB
}

// NewProfileRepository creates a new repository instance
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetUserProfile returns the stored profile, or an empty profile when none was saved
func (r *ProfileRepository) GetUserProfile(ctx context.Context) (*models.UserProfile, error) {
	var profile models.UserProfile
	err := r.db.GetContext(ctx, &profile, r.db.Rebind(`
		SELECT nickname, gender, mbti, zodiac, birthday
		FROM user_settings WHERE id = ?`), defaultProfileID)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserProfile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user profile: %w", err)
	}
	return &profile, nil
}

// SaveUserProfile replaces the stored profile
func (r *ProfileRepository) SaveUserProfile(ctx context.Context, p models.UserProfile) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO user_settings (id, nickname, gender, mbti, zodiac, birthday)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			nickname = excluded.nickname,
			gender = excluded.gender,
			mbti = excluded.mbti,
			zodiac = excluded.zodiac,
			birthday = excluded.birthday`),
		defaultProfileID, p.Nickname, p.Gender, p.MBTI, p.Zodiac, p.Birthday,
	)
	if err != nil {
		return fmt.Errorf("failed to save user profile: %w", err)
	}
	return nil
}

// GetAffectionLevel returns the affection level towards a persona, at least MinAffectionLevel
func (r *ProfileRepository) GetAffectionLevel(ctx context.Context, personaID string) (int, error) {
	var level int
	err := r.db.GetContext(ctx, &level, r.db.Rebind(
		`SELECT affection_level FROM persona_progress WHERE persona_id = ?`), personaID)
	if errors.Is(err, sql.ErrNoRows) {
		return MinAffectionLevel, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get affection level: %w", err)
	}
	return max(MinAffectionLevel, level), nil
}

// SetAffectionLevel stores the affection level towards a persona
func (r *ProfileRepository) SetAffectionLevel(ctx context.Context, personaID string, level int) error {
	level = min(MaxAffectionLevel, max(MinAffectionLevel, level))
	return r.saveProgress(ctx, r.db, personaID, (level-MinAffectionLevel)*AffectionPerLevel, level)
}

// AddAffection adds delta affection points towards a persona and returns the
// resulting level. Points never drop below zero.
func (r *ProfileRepository) AddAffection(ctx context.Context, personaID string, delta int) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var points int
	err = tx.GetContext(ctx, &points, tx.Rebind(
		`SELECT affection_points FROM persona_progress WHERE persona_id = ?`), personaID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to get affection points: %w", err)
	}

	points = max(0, points+delta)
	level := LevelForPoints(points)
	if err := r.saveProgress(ctx, tx, personaID, points, level); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit affection: %w", err)
	}
	return level, nil
}

// LevelForPoints maps accumulated affection points to a level.
func LevelForPoints(points int) int {
	return min(MaxAffectionLevel, MinAffectionLevel+max(0, points)/AffectionPerLevel)
}

func (r *ProfileRepository) saveProgress(ctx context.Context, q sqlx.ExecerContext, personaID string, points, level int) error {
	_, err := q.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO persona_progress (persona_id, affection_points, affection_level)
		VALUES (?, ?, ?)
		ON CONFLICT (persona_id) DO UPDATE SET
			affection_points = excluded.affection_points,
			affection_level = excluded.affection_level`),
		personaID, points, level,
	)
	if err != nil {
		return fmt.Errorf("failed to save affection: %w", err)
	}
	return nil
}

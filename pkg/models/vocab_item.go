package models

import "time"

// DefaultEase is the ease factor of a freshly added item.
const DefaultEase = 2.5

// VocabItem represents a memorized term and its review schedule
type VocabItem struct {
	ID           int64      `json:"id"`
	Term         string     `json:"term"`
	Definition   string     `json:"definition"`
	Language     string     `json:"language"`
	Example      string     `json:"example,omitempty"`
	AudioURL     string     `json:"audio_url,omitempty"`
	Ease         float64    `json:"ease"`
	IntervalMs   int64      `json:"interval_ms"`
	Proficiency  int        `json:"proficiency"`
	NextReviewAt *time.Time `json:"next_review_at"`
	LastReviewAt *time.Time `json:"last_review_at"`
	Mastered     bool       `json:"mastered"`
	Starred      bool       `json:"starred"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsDue reports whether the item should be reviewed at now.
// Items that were never scheduled are always due.
func (v *VocabItem) IsDue(now time.Time) bool {
	return v.NextReviewAt == nil || !v.NextReviewAt.After(now)
}

// VocabFields are the caller-supplied fields of a new item
type VocabFields struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
	Language   string `json:"language"`
	Example    string `json:"example,omitempty"`
}

// VocabUpdate is a partial update; nil fields are left untouched
type VocabUpdate struct {
	Definition *string `json:"definition,omitempty"`
	Language   *string `json:"language,omitempty"`
	Example    *string `json:"example,omitempty"`
	AudioURL   *string `json:"audio_url,omitempty"`
	Starred    *bool   `json:"starred,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u VocabUpdate) IsEmpty() bool {
	return u.Definition == nil && u.Language == nil && u.Example == nil &&
		u.AudioURL == nil && u.Starred == nil
}

// VocabStats summarizes the item store
type VocabStats struct {
	Total    int `json:"total" db:"total"`
	Mastered int `json:"mastered" db:"mastered"`
	Due      int `json:"due" db:"due"`
}

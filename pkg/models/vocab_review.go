package models

import "time"

// VocabReview is the append-only audit record of one rating event
type VocabReview struct {
	ID           int64     `json:"id"`
	ItemID       int64     `json:"item_id"`
	Rating       string    `json:"rating"`
	IntervalMs   int64     `json:"interval_ms"`
	NextReviewAt time.Time `json:"next_review_at"`
	ReviewedAt   time.Time `json:"reviewed_at"`
}

// ReviewEntry is a review joined with the reviewed term, used by the timeline.
type ReviewEntry struct {
	VocabReview
	Term string `json:"term"`
}

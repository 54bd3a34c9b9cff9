package spaced_repetition

import (
	"math"
	"sort"
	"time"

	"github.com/example/dreamate/pkg/models"
)

const (
	// Day is the base unit of review intervals.
	Day = 24 * time.Hour

	// MinEase and MaxEase bound the ease factor.
	MinEase = 1.3
	MaxEase = 2.8

	// MinimumDelay is the earliest a review may be scheduled after now.
	MinimumDelay = 10 * time.Minute

	// MasteryProficiency and MasteryInterval must both be reached for mastery.
	MasteryProficiency = 6
	MasteryInterval    = 14 * Day

	// MaxInterval caps review intervals so due dates stay representable.
	MaxInterval = 100 * 365 * Day

	againInterval   = 5 * time.Minute
	hardMinInterval = 12 * time.Hour
)

// State is the scheduling part of a vocabulary item
type State struct {
	Ease        float64
	IntervalMs  int64
	Proficiency int
	Mastered    bool
}

// Result is the state after a review plus the resulting due date
type Result struct {
	State
	NextReviewAt time.Time
	LastReviewAt time.Time
}

// StateOf extracts the scheduling state of an item.
func StateOf(item *models.VocabItem) State {
	return State{
		Ease:        item.Ease,
		IntervalMs:  item.IntervalMs,
		Proficiency: item.Proficiency,
		Mastered:    item.Mastered,
	}
}

// Schedule computes the state that follows rating the item at now.
// Out-of-range ratings are treated as Good.
func Schedule(state State, rating Rating, now time.Time) Result {
	ease := clampEase(state.Ease)
	interval := state.IntervalMs
	proficiency := state.Proficiency

	var next int64
	switch rating.Normalize() {
	case Again:
		next = againInterval.Milliseconds()
		ease = math.Max(MinEase, ease-0.2)
	case Hard:
		base := (Day / 2).Milliseconds()
		if interval > 0 {
			base = scale(interval, 1.2)
		}
		next = max(hardMinInterval.Milliseconds(), base)
		ease = math.Max(MinEase, ease-0.05)
		proficiency++
	case Good:
		next = Day.Milliseconds()
		if interval > 0 {
			next = scale(interval, ease)
		}
		proficiency++
	case Easy:
		next = 2 * Day.Milliseconds()
		if interval > 0 {
			next = scale(interval, ease+0.3)
		}
		ease = math.Min(MaxEase, ease+0.15)
		proficiency++
	}

	next = min(next, MaxInterval.Milliseconds())
	delay := max(next, MinimumDelay.Milliseconds())

	return Result{
		State: State{
			Ease:        ease,
			IntervalMs:  next,
			Proficiency: proficiency,
			Mastered:    state.Mastered || IsMastered(proficiency, next),
		},
		NextReviewAt: now.Add(time.Duration(delay) * time.Millisecond),
		LastReviewAt: now,
	}
}

// Apply reviews item in place and returns the audit record of the review.
func Apply(item *models.VocabItem, rating Rating, now time.Time) models.VocabReview {
	rating = rating.Normalize()
	res := Schedule(StateOf(item), rating, now)

	item.Ease = res.Ease
	item.IntervalMs = res.IntervalMs
	item.Proficiency = res.Proficiency
	item.Mastered = res.Mastered
	nextReviewAt := res.NextReviewAt
	lastReviewAt := res.LastReviewAt
	item.NextReviewAt = &nextReviewAt
	item.LastReviewAt = &lastReviewAt

	return models.VocabReview{
		ItemID:       item.ID,
		Rating:       rating.String(),
		IntervalMs:   res.IntervalMs,
		NextReviewAt: nextReviewAt,
		ReviewedAt:   now,
	}
}

// IsMastered determines if a word is considered mastered
func IsMastered(proficiency int, intervalMs int64) bool {
	return proficiency >= MasteryProficiency && intervalMs >= MasteryInterval.Milliseconds()
}

// DueItems returns the items due at now, oldest due date first, capped at
// limit. Never-scheduled items sort first. A limit <= 0 means no cap.
func DueItems(items []models.VocabItem, now time.Time, limit int) []models.VocabItem {
	var due []models.VocabItem
	for _, item := range items {
		if item.IsDue(now) {
			due = append(due, item)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		ti, tj := dueSince(due[i]), dueSince(due[j])
		if ti != tj {
			return ti < tj
		}
		return due[i].ID < due[j].ID
	})

	if limit > 0 && len(due) > limit {
		return due[:limit]
	}
	return due
}

func dueSince(item models.VocabItem) int64 {
	if item.NextReviewAt == nil {
		return 0
	}
	return item.NextReviewAt.UnixMilli()
}

func clampEase(ease float64) float64 {
	if ease <= 0 || math.IsNaN(ease) {
		ease = models.DefaultEase
	}
	return math.Min(MaxEase, math.Max(MinEase, ease))
}

// scale multiplies ms by factor, saturating at MaxInterval.
func scale(ms int64, factor float64) int64 {
	v := math.Round(float64(ms) * factor)
	if v >= float64(MaxInterval.Milliseconds()) {
		return MaxInterval.Milliseconds()
	}
	return int64(v)
}

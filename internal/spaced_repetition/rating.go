package spaced_repetition

import (
	"fmt"
	"strings"
)

// Rating represents the user's assessment of recall quality
type Rating int

const (
	Again Rating = iota + 1 // Could not recall
	Hard                    // Recalled with significant effort
	Good                    // Recalled
	Easy                    // Recalled effortlessly
)

var ratingNames = [...]string{Again: "again", Hard: "hard", Good: "good", Easy: "easy"}

// ParseRating maps a user-submitted rating to a Rating.
// Matching ignores case and surrounding space; anything unrecognized is Good.
func ParseRating(s string) Rating {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "again":
		return Again
	case "hard":
		return Hard
	case "easy":
		return Easy
	default:
		return Good
	}
}

// IsValid reports whether r is one of Again through Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

// Normalize returns r, or Good when r is out of range.
func (r Rating) Normalize() Rating {
	if r.IsValid() {
		return r
	}
	return Good
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

package models

// Persona is the static definition of a virtual character
type Persona struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Persona  string   `json:"persona" yaml:"persona"`
	Greeting string   `json:"greeting" yaml:"greeting"`
	Mood     string   `json:"mood,omitempty" yaml:"mood"`
	Script   []string `json:"script" yaml:"script"`
}

// UserProfile holds optional facts about the user that personas may consider
type UserProfile struct {
	Nickname string `json:"nickname" db:"nickname"`
	Gender   string `json:"gender" db:"gender"`
	MBTI     string `json:"mbti" db:"mbti"`
	Zodiac   string `json:"zodiac" db:"zodiac"`
	Birthday string `json:"birthday" db:"birthday"`
}

// HasFacts reports whether any prompt-relevant field is set.
func (p *UserProfile) HasFacts() bool {
	if p == nil {
		return false
	}
	return p.Nickname != "" || p.MBTI != "" || p.Zodiac != "" || p.Birthday != ""
}

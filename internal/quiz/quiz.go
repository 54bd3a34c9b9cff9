package quiz

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	sr "github.com/example/dreamate/internal/spaced_repetition"
	"github.com/example/dreamate/pkg/models"
)

// ErrNotEnoughOptions is returned when no distractor definitions exist
var ErrNotEnoughOptions = errors.New("not enough items with definitions for a multiple choice question")

const blank = "_______"

// QuestionType represents different types of questions
type QuestionType string

const (
	// MultipleChoice asks for the definition of a term
	MultipleChoice QuestionType = "multiple_choice"
	// TextInput asks the user to type the term for a definition
	TextInput QuestionType = "text_input"
	// ContextTest asks the user to fill the term into its example sentence
	ContextTest QuestionType = "context"
)

// Source lists the vocabulary that distractors are drawn from
type Source interface {
	Search(ctx context.Context, query string) ([]models.VocabItem, error)
}

// Question represents a single quiz question
type Question struct {
	Item            models.VocabItem
	Type            QuestionType
	Options         []string // multiple choice only
	CorrectIndex    int      // index of the definition in Options
	ContextSentence string   // example with the term blanked out
}

// Builder generates quiz questions for vocabulary items
type Builder struct {
	source Source

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBuilder creates a new question builder
func NewBuilder(source Source) *Builder {
	return NewBuilderWithSeed(source, time.Now().UnixNano())
}

// NewBuilderWithSeed creates a builder with a deterministic shuffle
func NewBuilderWithSeed(source Source, seed int64) *Builder {
	return &Builder{source: source, rnd: rand.New(rand.NewSource(seed))}
}

// Question builds a question of type qt for item. Up to optionCount-1
// distractors are used for multiple choice.
func (b *Builder) Question(ctx context.Context, item models.VocabItem, qt QuestionType, optionCount int) (Question, error) {
	q := Question{Item: item, Type: qt}

	switch qt {
	case MultipleChoice:
		if strings.TrimSpace(item.Definition) == "" {
			return q, ErrNotEnoughOptions
		}
		all, err := b.source.Search(ctx, "")
		if err != nil {
			return q, err
		}
		options := b.distractors(item, all, optionCount-1)
		if len(options) == 0 {
			return q, ErrNotEnoughOptions
		}

		options = append(options, item.Definition)
		correctIndex := len(options) - 1
		b.shuffle(len(options), func(i, j int) {
			if i == correctIndex {
				correctIndex = j
			} else if j == correctIndex {
				correctIndex = i
			}
			options[i], options[j] = options[j], options[i]
		})
		q.Options = options
		q.CorrectIndex = correctIndex

	case ContextTest:
		sentence := item.Example
		if sentence == "" {
			sentence = "This is a sentence with the word " + item.Term + "."
		}
		q.ContextSentence = replaceWordWithBlank(sentence, item.Term)
	}
	return q, nil
}

// distractors picks up to count definitions of other items, preferring
// items of the same language
func (b *Builder) distractors(item models.VocabItem, all []models.VocabItem, count int) []string {
	var same, other []string
	seen := map[string]bool{strings.ToLower(strings.TrimSpace(item.Definition)): true}
	for _, candidate := range all {
		def := strings.TrimSpace(candidate.Definition)
		key := strings.ToLower(def)
		if candidate.ID == item.ID || def == "" || seen[key] {
			continue
		}
		seen[key] = true
		if strings.EqualFold(candidate.Language, item.Language) {
			same = append(same, def)
		} else {
			other = append(other, def)
		}
	}

	b.shuffle(len(same), func(i, j int) { same[i], same[j] = same[j], same[i] })
	b.shuffle(len(other), func(i, j int) { other[i], other[j] = other[j], other[i] })

	options := append(same, other...)
	if len(options) > count {
		options = options[:count]
	}
	return options
}

func (b *Builder) shuffle(n int, swap func(i, j int)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rnd.Shuffle(n, swap)
}

// IsCorrect checks a chosen option or a typed answer.
func (q Question) IsCorrect(answer string) bool {
	answer = strings.TrimSpace(answer)
	switch q.Type {
	case MultipleChoice:
		return answer == q.Options[q.CorrectIndex]
	default:
		return strings.EqualFold(answer, strings.TrimSpace(q.Item.Term))
	}
}

// RatingFor maps a quiz answer to a review rating.
func RatingFor(correct bool) sr.Rating {
	if correct {
		return sr.Good
	}
	return sr.Again
}

// replaceWordWithBlank blanks the first case-insensitive occurrence of word,
// or appends a blank when the word does not occur
func replaceWordWithBlank(sentence, word string) string {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(strings.TrimSpace(word)))
	if err != nil || word == "" {
		return sentence + " " + blank
	}
	loc := re.FindStringIndex(sentence)
	if loc == nil {
		return sentence + " " + blank
	}
	return sentence[:loc[0]] + blank + sentence[loc[1]:]
}

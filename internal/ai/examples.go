package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/dreamate/pkg/models"
)

// ExampleWriter generates example sentences for vocabulary items
type ExampleWriter struct {
	completer   Completer
	model       string
	temperature float32
	log         zerolog.Logger
}

// NewExampleWriter creates a new example writer
func NewExampleWriter(completer Completer, model string, log zerolog.Logger) *ExampleWriter {
	return &ExampleWriter{
		completer:   completer,
		model:       model,
		temperature: 0.7,
		log:         log.With().Str("component", "examples").Logger(),
	}
}

// GenerateExample generates a short example sentence that uses the term
func (w *ExampleWriter) GenerateExample(ctx context.Context, item *models.VocabItem) (string, error) {
	if w.completer == nil {
		return "", errors.New("no completer configured")
	}
	prompt := fmt.Sprintf("请用%s写一个自然、简短、实用的例句，句中必须包含“%s”", languageName(item.Language), item.Term)
	if item.Definition != "" {
		prompt += fmt.Sprintf("（释义：%s）", item.Definition)
	}
	prompt += "。只返回例句本身，不要解释。"

	example, err := w.completer.Complete(ctx, ChatRequest{
		Model:       w.model,
		System:      "你是一名语言学习助手，擅长为单词编写地道的例句。",
		Messages:    []ChatMessage{{Role: RoleUser, Text: prompt}},
		Temperature: w.temperature,
		MaxTokens:   100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate example: %w", err)
	}

	example = strings.Trim(strings.TrimSpace(example), "\"“”")
	if example == "" {
		return "", fmt.Errorf("empty example returned for %q", item.Term)
	}
	return example, nil
}

// GenerateExampleWithFallback generates an example with fallback to the stored one
func (w *ExampleWriter) GenerateExampleWithFallback(ctx context.Context, item *models.VocabItem) string {
	example, err := w.GenerateExample(ctx, item)
	if err != nil {
		w.log.Warn().Err(err).Str("term", item.Term).Msg("example generation failed")

		if item.Example != "" {
			return item.Example
		}
		return fmt.Sprintf("This is an example of the word '%s'.", item.Term)
	}
	return example
}

func languageName(code string) string {
	switch strings.ToLower(code) {
	case "", "en":
		return "英语"
	case "ja":
		return "日语"
	case "ko":
		return "韩语"
	case "fr":
		return "法语"
	case "de":
		return "德语"
	case "es":
		return "西班牙语"
	default:
		return code
	}
}

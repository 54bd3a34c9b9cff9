package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/example/dreamate/internal/apperrors"
)

const (
	providerAnthropic = "anthropic"

	defaultAnthropicMaxTokens = 1024
)

// AnthropicConfig configures the Anthropic Messages API client
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// AnthropicClient implements Completer using the Claude Messages API
type AnthropicClient struct {
	client *anthropic.Client
	apiKey string
}

// NewAnthropicClient creates a new Claude API client
func NewAnthropicClient(cfg AnthropicConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	return &AnthropicClient{
		client: &client,
		apiKey: cfg.APIKey,
	}
}

// Provider implements Completer.
func (c *AnthropicClient) Provider() string {
	return providerAnthropic
}

// Complete implements Completer.
func (c *AnthropicClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", &apperrors.ExternalServiceError{Provider: providerAnthropic, Message: "missing API key"}
	}

	message, err := c.client.Messages.New(ctx, toAnthropicParams(req))
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &apperrors.ExternalServiceError{
				Provider:   providerAnthropic,
				StatusCode: apiErr.StatusCode,
				Message:    apiErr.Error(),
				Err:        err,
			}
		}
		return "", &apperrors.ExternalServiceError{Provider: providerAnthropic, Err: err}
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.AsText().Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func toAnthropicParams(req ChatRequest) anthropic.MessageNewParams {
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(req.Messages)),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	// Claude accepts temperature or top_p, not both
	switch {
	case req.Temperature > 0:
		params.Temperature = anthropic.Float(float64(req.Temperature))
	case req.TopP > 0:
		params.TopP = anthropic.Float(float64(req.TopP))
	}

	for _, m := range req.Messages {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(m.Images)+1)
		for _, img := range m.Images {
			mime := img.MimeType
			if mime == "" {
				mime = "image/jpeg"
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(mime, img.Base64))
		}
		if m.Text != "" || len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock(m.Text))
		}

		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(blocks...))
		}
	}
	return params
}

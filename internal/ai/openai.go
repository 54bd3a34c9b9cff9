package ai

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/example/dreamate/internal/apperrors"
)

const providerOpenAI = "openai"

// OpenAIConfig configures an OpenAI-compatible endpoint
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// WorkspaceID is sent as X-DashScope-Workspace when set.
	WorkspaceID string
	HTTPClient  *http.Client
}

// OpenAIClient talks to any OpenAI-compatible chat completion API
type OpenAIClient struct {
	client *openai.Client
	apiKey string
}

// NewOpenAIClient creates a new client. A client without an API key fails
// every request.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.WorkspaceID != "" {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &headerTransport{
			base:    base,
			headers: map[string]string{"X-DashScope-Workspace": cfg.WorkspaceID},
		}
		httpClient = &wrapped
	}
	clientCfg.HTTPClient = httpClient

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientCfg),
		apiKey: cfg.APIKey,
	}
}

// Provider implements Completer.
func (c *OpenAIClient) Provider() string {
	return providerOpenAI
}

// Complete implements Completer.
func (c *OpenAIClient) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", &apperrors.ExternalServiceError{Provider: providerOpenAI, Message: "missing API key"}
	}

	resp, err := c.client.CreateChatCompletion(ctx, toOpenAIRequest(req))
	if err != nil {
		return "", toOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toOpenAIRequest(req ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser}
		if m.Role == RoleAssistant {
			msg.Role = openai.ChatMessageRoleAssistant
		}

		// Use multimodal format if there are images, otherwise use simple string content
		if len(m.Images) > 0 {
			parts := make([]openai.ChatMessagePart, 0, len(m.Images)+1)
			if m.Text != "" {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeText,
					Text: m.Text,
				})
			}
			for _, img := range m.Images {
				parts = append(parts, openai.ChatMessagePart{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    img.DataURL(),
						Detail: openai.ImageURLDetailAuto,
					},
				})
			}
			msg.MultiContent = parts
		} else {
			msg.Content = m.Text
		}
		messages = append(messages, msg)
	}

	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	}
}

func toOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &apperrors.ExternalServiceError{
			Provider:   providerOpenAI,
			StatusCode: apiErr.HTTPStatusCode,
			Message:    apiErr.Message,
			Err:        err,
		}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &apperrors.ExternalServiceError{
			Provider:   providerOpenAI,
			StatusCode: reqErr.HTTPStatusCode,
			Err:        err,
		}
	}
	return &apperrors.ExternalServiceError{Provider: providerOpenAI, Err: err}
}

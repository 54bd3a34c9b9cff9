package ai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/example/dreamate/internal/config"
)

// Role is the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Image is an inline image attached to a chat message
type Image struct {
	MimeType string
	Base64   string
}

// DataURL renders the image as a data: URL.
func (i Image) DataURL() string {
	mime := i.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mime, i.Base64)
}

// ChatMessage is one provider-neutral chat turn
type ChatMessage struct {
	Role   Role
	Text   string
	Images []Image
}

// ChatRequest is a provider-neutral chat completion request
type ChatRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// HasImages reports whether any message carries an inline image.
func (r ChatRequest) HasImages() bool {
	for _, m := range r.Messages {
		if len(m.Images) > 0 {
			return true
		}
	}
	return false
}

// Completer sends a chat completion request and returns the reply text.
// Transport, auth and API failures are returned as *apperrors.ExternalServiceError.
type Completer interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	Provider() string
}

// NewFromConfig builds the completer selected by LLM_PROVIDER.
func NewFromConfig(cfg *config.Config) (Completer, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		return NewOpenAIClient(OpenAIConfig{
			APIKey:      cfg.LLMAPIKey,
			BaseURL:     cfg.LLMBaseURL,
			WorkspaceID: cfg.LLMWorkspaceID,
		}), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(AnthropicConfig{
			APIKey: cfg.LLMAPIKey,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.LLMProvider)
	}
}

// headerTransport adds fixed headers to every request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/internal/config"
	"github.com/example/dreamate/pkg/models"
)

func sampleRequest() ChatRequest {
	return ChatRequest{
		Model:  "qwen-vl-plus",
		System: "请严格扮演“林夏”",
		Messages: []ChatMessage{
			{Role: RoleUser, Text: "你好"},
			{Role: RoleAssistant, Text: "你来啦"},
			{Role: RoleUser, Text: "看看这张", Images: []Image{{MimeType: "image/png", Base64: "iVBOR"}}},
		},
		Temperature: 0.7,
		TopP:        0.8,
		MaxTokens:   256,
	}
}

func TestOpenAIClientComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "ws-1", r.Header.Get("X-DashScope-Workspace"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"  嗯，我在。 "},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", WorkspaceID: "ws-1"})
	reply, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "嗯，我在。", reply)

	assert.Equal(t, "qwen-vl-plus", body["model"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 4)

	system := messages[0].(map[string]any)
	assert.Equal(t, "system", system["role"])
	assistant := messages[2].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])

	last := messages[3].(map[string]any)
	parts, ok := last["content"].([]any)
	require.True(t, ok, "image turn is sent as multi content")
	require.Len(t, parts, 2)
	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	assert.Equal(t, "data:image/png;base64,iVBOR", image["image_url"].(map[string]any)["url"])
}

func TestOpenAIClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"invalid api key","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-bad", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), sampleRequest())
	require.Error(t, err)

	var extErr *apperrors.ExternalServiceError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "openai", extErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, extErr.StatusCode)
	assert.Contains(t, extErr.Message, "invalid api key")
}

func TestOpenAIClientMissingKey(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.Complete(context.Background(), sampleRequest())
	assert.True(t, apperrors.IsExternal(err))
}

func TestAnthropicClientComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("X-Api-Key"))

		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &body))

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude","content":[{"type":"text","text":"好呀～"}],"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "ak-test", BaseURL: srv.URL})
	reply, err := client.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "好呀～", reply)

	assert.Equal(t, float64(256), body["max_tokens"])
	assert.InDelta(t, 0.7, body["temperature"], 1e-6)
	assert.NotContains(t, body, "top_p")
	system, ok := body["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, "请严格扮演“林夏”", system[0].(map[string]any)["text"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 3)
	last := messages[2].(map[string]any)
	content := last["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, "image", content[0].(map[string]any)["type"])
	assert.Equal(t, "text", content[1].(map[string]any)["type"])
}

func TestAnthropicParamsSamplingFallsBackToTopP(t *testing.T) {
	req := sampleRequest()
	req.Temperature = 0

	params := toAnthropicParams(req)
	assert.False(t, params.Temperature.Valid())
	require.True(t, params.TopP.Valid())
	assert.InDelta(t, 0.8, params.TopP.Value, 1e-6)
}

func TestAnthropicClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "ak-bad", BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), sampleRequest())

	var extErr *apperrors.ExternalServiceError
	require.True(t, errors.As(err, &extErr))
	assert.Equal(t, "anthropic", extErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, extErr.StatusCode)
}

func TestNewFromConfig(t *testing.T) {
	c, err := NewFromConfig(&config.Config{LLMProvider: config.ProviderAnthropic})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Provider())

	c, err = NewFromConfig(&config.Config{LLMProvider: config.ProviderOpenAI})
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Provider())

	_, err = NewFromConfig(&config.Config{LLMProvider: "gemini"})
	assert.Error(t, err)
}

func TestHasImages(t *testing.T) {
	assert.True(t, sampleRequest().HasImages())
	assert.False(t, ChatRequest{Messages: []ChatMessage{{Role: RoleUser, Text: "hi"}}}.HasImages())
}

type stubCompleter struct {
	reply string
	err   error
	last  ChatRequest
}

func (s *stubCompleter) Complete(_ context.Context, req ChatRequest) (string, error) {
	s.last = req
	return s.reply, s.err
}

func (s *stubCompleter) Provider() string { return "stub" }

func TestExampleWriter(t *testing.T) {
	item := &models.VocabItem{Term: "serendipity", Definition: "意外之喜", Language: "en"}

	stub := &stubCompleter{reply: "“Finding this café was pure serendipity.”"}
	w := NewExampleWriter(stub, "qwen-plus", zerolog.Nop())
	example, err := w.GenerateExample(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "Finding this café was pure serendipity.", example)
	assert.Contains(t, stub.last.Messages[0].Text, "serendipity")
	assert.Contains(t, stub.last.Messages[0].Text, "英语")

	failing := NewExampleWriter(&stubCompleter{err: errors.New("down")}, "qwen-plus", zerolog.Nop())
	assert.Equal(t, "This is an example of the word 'serendipity'.", failing.GenerateExampleWithFallback(context.Background(), item))

	item.Example = "A stored example."
	assert.Equal(t, "A stored example.", failing.GenerateExampleWithFallback(context.Background(), item))

	empty := NewExampleWriter(&stubCompleter{reply: "  "}, "qwen-plus", zerolog.Nop())
	_, err = empty.GenerateExample(context.Background(), item)
	assert.Error(t, err)
}

package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dreamate/internal/ai"
	"github.com/example/dreamate/internal/apperrors"
	"github.com/example/dreamate/internal/metrics"
	"github.com/example/dreamate/pkg/models"
)

// FallbackPlaceholder is replied when the model fails and the persona has no script.
const FallbackPlaceholder = "我在呢，先陪你聊聊，稍后继续深入。"

const defaultTimeout = 20 * time.Second

var errEmptyReply = errors.New("empty reply")

// Config holds model selection and sampling settings
type Config struct {
	TextModel   string
	VisionModel string
	Temperature float32
	TopP        float32
	MaxTokens   int
	Timeout     time.Duration
}

// Input is everything needed to produce the next reply of a conversation
type Input struct {
	Conversation   models.Conversation
	Persona        models.Persona
	History        []models.Message
	Profile        *models.UserProfile
	AffectionLevel int
}

// Reply is the outcome of GenerateReply
type Reply struct {
	Text             string
	UsedFallback     bool
	NextScriptCursor int
	Model            string
}

// Orchestrator produces persona replies and degrades to the persona script
// when the model is unavailable
type Orchestrator struct {
	completer ai.Completer
	cfg       Config
	log       zerolog.Logger
}

// New creates a new orchestrator
func New(completer ai.Completer, cfg Config, log zerolog.Logger) *Orchestrator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.TextModel
	}
	return &Orchestrator{
		completer: completer,
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
	}
}

// SelectModel returns the vision model when the request carries an inline image.
func (o *Orchestrator) SelectModel(hasImages bool) string {
	if hasImages {
		return o.cfg.VisionModel
	}
	return o.cfg.TextModel
}

// completion is the result of a single model call.
type completion struct {
	text string
	err  error
}

func (c completion) ok() bool {
	return c.err == nil && strings.TrimSpace(c.text) != ""
}

// GenerateReply produces the next AI message. It always returns non-empty
// text: model failures, timeouts and empty answers resolve to the next line
// of the persona script, or to FallbackPlaceholder when the script is empty.
func (o *Orchestrator) GenerateReply(ctx context.Context, in Input) Reply {
	start := time.Now()
	defer func() {
		metrics.ReplyDuration.Observe(time.Since(start).Seconds())
	}()

	req := ai.ChatRequest{
		System:      BuildSystemPrompt(in.Persona, in.Profile, in.AffectionLevel),
		Messages:    BuildMessages(in.History),
		Temperature: o.cfg.Temperature,
		TopP:        o.cfg.TopP,
		MaxTokens:   o.cfg.MaxTokens,
	}
	req.Model = o.SelectModel(req.HasImages())

	res := o.complete(ctx, req)
	if res.ok() {
		metrics.RepliesTotal.WithLabelValues(metrics.OutcomeModel).Inc()
		return Reply{
			Text:             strings.TrimSpace(res.text),
			NextScriptCursor: in.Conversation.ScriptCursor,
			Model:            req.Model,
		}
	}

	if res.err != nil {
		metrics.LLMErrorsTotal.WithLabelValues(o.provider()).Inc()
	}
	reply := Fallback(in.Persona.Script, in.Conversation.ScriptCursor)
	outcome := metrics.OutcomeFallbackScript
	if len(in.Persona.Script) == 0 {
		outcome = metrics.OutcomeFallbackPlaceholder
	}
	metrics.RepliesTotal.WithLabelValues(outcome).Inc()

	err := res.err
	if err == nil {
		err = errEmptyReply
	}
	o.log.Warn().
		Err(err).
		Str("conversation_id", in.Conversation.ID).
		Str("model", req.Model).
		Str("outcome", outcome).
		Int("next_cursor", reply.NextScriptCursor).
		Msg("model reply unavailable, using fallback")

	return reply
}

func (o *Orchestrator) complete(ctx context.Context, req ai.ChatRequest) completion {
	if o.completer == nil {
		return completion{err: errors.New("no completer configured")}
	}

	// only the timeout ends the call; a caller that goes away does not
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Timeout)
	defer cancel()

	done := make(chan completion, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error().Interface("panic", r).Msg("completer panicked")
				done <- completion{err: errors.New("completer panicked")}
			}
		}()
		text, err := o.completer.Complete(callCtx, req)
		done <- completion{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res
	case <-callCtx.Done():
		return completion{err: &apperrors.ExternalServiceError{
			Provider: o.provider(),
			Message:  "timed out after " + o.cfg.Timeout.String(),
			Err:      callCtx.Err(),
		}}
	}
}

func (o *Orchestrator) provider() string {
	if o.completer == nil {
		return "none"
	}
	return o.completer.Provider()
}

// Fallback picks the scripted line at cursor and advances the cursor.
// An empty script yields FallbackPlaceholder and leaves the cursor unchanged.
func Fallback(script []string, cursor int) Reply {
	n := len(script)
	if n == 0 {
		return Reply{Text: FallbackPlaceholder, UsedFallback: true, NextScriptCursor: cursor}
	}

	idx := ((cursor % n) + n) % n
	text := strings.TrimSpace(script[idx])
	if text == "" {
		text = FallbackPlaceholder
	}
	return Reply{
		Text:             text,
		UsedFallback:     true,
		NextScriptCursor: (idx + 1) % n,
	}
}

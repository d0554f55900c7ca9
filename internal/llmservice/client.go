package llmservice

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"faq-rag/internal/config"
	"faq-rag/internal/models"
)

const (
	DefaultTemperature = 0.2
	DefaultTimeout     = 60 * time.Second
)

var (
	thinkTagRegex    = regexp.MustCompile(models.ThinkTag)
	errEmptyResponse = errors.New("model returned no choices")
)

// GenerationError is returned when the provider call fails or yields nothing.
type GenerationError struct {
	Model string
	Err   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (%s): %v", e.Model, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TimeoutError is returned when the call does not finish within the bound.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("generation timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// NewModel creates the chat model selected by the config.
func NewModel(cfg *config.LLMConfig) (llms.Model, error) {
	log.Debug().Interface("llmConfig", map[string]string{
		"provider": cfg.Provider,
		"base_url": cfg.BaseURL,
		"model":    cfg.Model,
	}).Msg("Creating inference model")

	switch cfg.Provider {
	case config.ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("init openai client: %w", err)
		}
		return llm, nil
	case config.ProviderOllama:
		llm, err := ollama.New(ollama.WithServerURL(cfg.BaseURL), ollama.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("init ollama client: %w", err)
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

// Generator turns a rendered prompt into answer text. Calls are not retried.
type Generator struct {
	model       llms.Model
	name        string
	temperature float64
	timeout     time.Duration
}

type Option func(*Generator)

func WithTemperature(t float64) Option {
	return func(g *Generator) { g.temperature = t }
}

// WithTimeout bounds every call; d <= 0 keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithModelName sets the name reported in errors and logs.
func WithModelName(name string) Option {
	return func(g *Generator) { g.name = name }
}

func New(model llms.Model, opts ...Option) *Generator {
	g := &Generator{
		model:       model,
		name:        "llm",
		temperature: DefaultTemperature,
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	messages := []llms.MessageContent{llms.TextParts(llms.ChatMessageTypeHuman, prompt)}
	resp, err := g.model.GenerateContent(cctx, messages, llms.WithTemperature(g.temperature))
	if err != nil {
		if ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return "", &TimeoutError{Timeout: g.timeout}
		}
		return "", &GenerationError{Model: g.name, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &GenerationError{Model: g.name, Err: errEmptyResponse}
	}

	text := strings.TrimSpace(thinkTagRegex.ReplaceAllString(resp.Choices[0].Content, ""))
	log.Debug().Str("model", g.name).Dur("elapsed", time.Since(start)).Int("chars", len(text)).Msg("Generated answer")
	return text, nil
}

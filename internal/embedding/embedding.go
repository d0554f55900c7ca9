package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
)

// DefaultMaxChars is the truncation window applied before embedding. It
// keeps inputs inside the 512 token limit of typical sentence encoders.
const DefaultMaxChars = 2000

var (
	ErrEmptyInput  = errors.New("text is empty")
	ErrEmptyVector = errors.New("provider returned an empty vector")
	ErrZeroVector  = errors.New("provider returned a zero vector")
)

// Error is returned when a text cannot be embedded.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("embedding %s: %v", e.Op, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

// Model wraps a langchaingo embedder with the truncation policy and input
// and output validation.
type Model struct {
	embedder embeddings.Embedder
	maxChars int
}

func New(embedder embeddings.Embedder, maxChars int) *Model {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Model{embedder: embedder, maxChars: maxChars}
}

func (m *Model) MaxChars() int { return m.maxChars }

// Embed maps text to a vector.
func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	in, err := m.prepare(text)
	if err != nil {
		return nil, &Error{Op: "query", Err: err}
	}
	vec, err := m.embedder.EmbedQuery(ctx, in)
	if err != nil {
		return nil, &Error{Op: "query", Err: err}
	}
	if err := check(vec); err != nil {
		return nil, &Error{Op: "query", Err: err}
	}
	return vec, nil
}

// EmbedBatch embeds texts in one provider call, returning vectors in input order.
func (m *Model) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, t := range texts {
		in, err := m.prepare(t)
		if err != nil {
			return nil, &Error{Op: "documents", Err: fmt.Errorf("text %d: %w", i, err)}
		}
		inputs[i] = in
	}

	vecs, err := m.embedder.EmbedDocuments(ctx, inputs)
	if err != nil {
		return nil, &Error{Op: "documents", Err: err}
	}
	if len(vecs) != len(inputs) {
		return nil, &Error{Op: "documents", Err: fmt.Errorf("provider returned %d vectors for %d texts", len(vecs), len(inputs))}
	}
	for i, v := range vecs {
		if err := check(v); err != nil {
			return nil, &Error{Op: "documents", Err: fmt.Errorf("text %d: %w", i, err)}
		}
	}
	return vecs, nil
}

func (m *Model) prepare(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	out := Truncate(text, m.maxChars)
	if len(out) < len(text) {
		log.Debug().Int("max_chars", m.maxChars).Int("length", len([]rune(text))).Msg("Truncated text before embedding")
	}
	return out, nil
}

func check(vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	var sum float64
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("provider returned a non-finite value")
		}
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return ErrZeroVector
	}
	return nil
}

// Truncate cuts text to at most maxChars runes. When the cut falls inside a
// word it backs off to the last whitespace within the final tenth of the
// window, if there is one.
func Truncate(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if maxChars <= 0 || len(runes) <= maxChars {
		return text
	}

	end := maxChars
	if !unicode.IsSpace(runes[end]) {
		lookBack := max(maxChars/10, 1)
		for i := end - 1; i >= end-lookBack && i > 0; i-- {
			if unicode.IsSpace(runes[i]) {
				end = i
				break
			}
		}
	}
	return strings.TrimSpace(string(runes[:end]))
}

package rag

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"faq-rag/internal/models"
	"faq-rag/internal/prompt"
	"faq-rag/internal/vectorindex"
)

type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type AnswerOptions struct {
	TopK int
	// ContextLimit caps the context block in runes, 0 means no cap.
	ContextLimit int
}

// Answer retrieves the records nearest to question and asks the generator
// to answer from them. A fallback reply from the model is a declined
// Answer, not an error.
func Answer(ctx context.Context, idx *vectorindex.Index, embedder QueryEmbedder, generator Generator, question string, opts AnswerOptions) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, ErrEmptyQuestion
	}
	if idx == nil {
		return models.Answer{}, ErrNoIndex
	}

	vec, err := embedder.Embed(ctx, question)
	if err != nil {
		return models.Answer{}, err
	}
	hits, err := idx.Query(ctx, vec, opts.TopK)
	if err != nil {
		return models.Answer{}, err
	}
	records := make([]models.Record, len(hits))
	for i, h := range hits {
		records[i] = h.Record
		log.Debug().Str("source", h.Record.Source).Float32("distance", h.Distance).Msg("Retrieved record")
	}

	p := prompt.Assemble(records, question, opts.ContextLimit)
	text, err := generator.Generate(ctx, p.Text)
	if err != nil {
		return models.Answer{}, err
	}

	ans := models.Answer{Question: question, Text: text, Sources: p.Used}
	if models.IsFallback(text) {
		ans.Text = models.FallbackAnswer
		ans.Declined = true
	}
	if ans.Sources == nil {
		ans.Sources = []models.Record{}
	}
	return ans, nil
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }

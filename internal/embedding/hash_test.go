package embedding

import (
	"context"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	h := NewHashEmbedder(0)
	ctx := context.Background()

	v1, _ := h.EmbedQuery(ctx, "Do you provide a job guarantee?")
	v2, _ := h.EmbedQuery(ctx, "Do you provide a job guarantee?")
	if len(v1) != DefaultHashDims {
		t.Fatalf("expected %d dims, got %d", DefaultHashDims, len(v1))
	}
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("embeddings not deterministic at index %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}

func TestHashEmbedderIgnoresCaseAndPunctuation(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()

	a, _ := h.EmbedQuery(ctx, "What is X?")
	b, _ := h.EmbedQuery(ctx, "what IS x")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected identical vectors, differ at %d", i)
		}
	}
}

func TestHashEmbedderDocumentsMatchQuery(t *testing.T) {
	h := NewHashEmbedder(32)
	ctx := context.Background()

	docs, err := h.EmbedDocuments(ctx, []string{"alpha beta", "gamma"})
	if err != nil {
		t.Fatalf("EmbedDocuments: %v", err)
	}
	q, _ := h.EmbedQuery(ctx, "gamma")
	for i := range q {
		if docs[1][i] != q[i] {
			t.Fatalf("document and query vectors differ at %d", i)
		}
	}
}

func TestHashEmbedderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHashEmbedder(8).EmbedQuery(ctx, "x"); err == nil {
		t.Fatalf("expected error for canceled context")
	}
}

package embedding

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeEmbedder struct {
	calls  int
	inputs []string
	vec    []float32
	err    error
}

func (f *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short text untouched", "hello world", 20, "hello world"},
		{"exact length", "hello", 5, "hello"},
		{"cut at whitespace", "aaaaaaaaa bbbbbbbbbb", 12, "aaaaaaaaa bb"},
		{"back off inside word", "aaaaaaaaaaaaaaaaaa bbbbbbbbbb", 20, "aaaaaaaaaaaaaaaaaa"},
		{"no whitespace in window", strings.Repeat("a", 30), 10, strings.Repeat("a", 10)},
		{"counts runes", "ééééé", 3, "ééé"},
		{"disabled", "abc", 0, "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.in, tt.max); got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestModelEmbedTruncates(t *testing.T) {
	fake := &fakeEmbedder{vec: []float32{1, 0}}
	m := New(fake, 10)

	if _, err := m.Embed(context.Background(), strings.Repeat("word ", 10)); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if got := len([]rune(fake.inputs[0])); got > 10 {
		t.Fatalf("expected input of at most 10 runes, got %d", got)
	}
}

func TestModelEmbedErrors(t *testing.T) {
	tests := []struct {
		name string
		fake *fakeEmbedder
		text string
		is   error
	}{
		{"empty input", &fakeEmbedder{vec: []float32{1}}, "   ", ErrEmptyInput},
		{"provider failure", &fakeEmbedder{err: errors.New("connection refused")}, "hi", nil},
		{"empty vector", &fakeEmbedder{}, "hi", ErrEmptyVector},
		{"zero vector", &fakeEmbedder{vec: []float32{0, 0}}, "hi", ErrZeroVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.fake, 0).Embed(context.Background(), tt.text)
			var embErr *Error
			if !errors.As(err, &embErr) {
				t.Fatalf("expected embedding Error, got %v", err)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Fatalf("expected %v, got %v", tt.is, err)
			}
		})
	}
}

func TestModelEmbedBatch(t *testing.T) {
	fake := &fakeEmbedder{vec: []float32{0, 1}}
	vecs, err := New(fake, 0).EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 || fake.calls != 1 {
		t.Fatalf("expected 3 vectors from 1 call, got %d vectors from %d calls", len(vecs), fake.calls)
	}

	_, err = New(fake, 0).EmbedBatch(context.Background(), []string{"a", ""})
	if !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
}

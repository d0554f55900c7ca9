package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"faq-rag/internal/api/handlers"
	"faq-rag/internal/embedding"
	"faq-rag/internal/llmservice"
	"faq-rag/internal/models"
	"faq-rag/internal/rag"
)

type fakeService struct {
	askErr     error
	rebuildErr error
	question   string
}

func (f *fakeService) Rebuild(ctx context.Context) (rag.Stats, error) {
	if f.rebuildErr != nil {
		return rag.Stats{}, f.rebuildErr
	}
	return rag.Stats{Records: 3, Dimensions: 8}, nil
}

func (f *fakeService) Ask(ctx context.Context, question string) (models.Answer, error) {
	f.question = question
	if f.askErr != nil {
		return models.Answer{}, f.askErr
	}
	return models.Answer{
		Question: question,
		Text:     "X is a thing.",
		Sources:  []models.Record{{Content: "prompt: What is X?", Source: "What is X?"}},
	}, nil
}

func (f *fakeService) Status() rag.Status {
	return rag.Status{State: rag.StateIndexReady, Stats: rag.Stats{Records: 3, Dimensions: 8}}
}

func do(t *testing.T, svc *fakeService, method, path, body string) (int, map[string]any) {
	t.Helper()
	app := SetupRouter(handlers.NewFAQHandler(svc))
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("response is not json: %s", raw)
		}
	}
	return resp.StatusCode, out
}

func TestAsk(t *testing.T) {
	svc := &fakeService{}
	code, body := do(t, svc, "POST", "/api/ask", `{"question":"What is X?"}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %v", code, body)
	}
	if body["answer"] != "X is a thing." || body["declined"] != false {
		t.Fatalf("unexpected body %v", body)
	}
	if sources, ok := body["sources"].([]any); !ok || len(sources) != 1 {
		t.Fatalf("expected one source, got %v", body["sources"])
	}
	if svc.question != "What is X?" {
		t.Fatalf("question not forwarded, got %q", svc.question)
	}
}

func TestAskBadRequest(t *testing.T) {
	for _, body := range []string{`{"question":"   "}`, `{}`, `not json`} {
		code, _ := do(t, &fakeService{}, "POST", "/api/ask", body)
		if code != 400 {
			t.Fatalf("body %q: expected 400, got %d", body, code)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{rag.ErrNoIndex, 503},
		{rag.ErrBusy, 409},
		{&llmservice.TimeoutError{}, 504},
		{&llmservice.GenerationError{Model: "m", Err: errors.New("401")}, 502},
		{&embedding.Error{Op: "query", Err: errors.New("refused")}, 502},
		{fmt.Errorf("wrapped: %w", rag.ErrBusy), 409},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		code, body := do(t, &fakeService{askErr: tt.err}, "POST", "/api/ask", `{"question":"q"}`)
		if code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, code)
		}
		if body["error"] != tt.err.Error() {
			t.Fatalf("expected error message %q, got %v", tt.err.Error(), body["error"])
		}
	}
}

func TestRebuild(t *testing.T) {
	code, body := do(t, &fakeService{}, "POST", "/api/rebuild", "")
	if code != 200 || body["records"] != float64(3) || body["dimensions"] != float64(8) {
		t.Fatalf("unexpected response %d %v", code, body)
	}

	code, _ = do(t, &fakeService{rebuildErr: rag.ErrBusy}, "POST", "/api/rebuild", "")
	if code != 409 {
		t.Fatalf("expected 409, got %d", code)
	}
}

func TestStatusAndHealth(t *testing.T) {
	code, body := do(t, &fakeService{}, "GET", "/api/status", "")
	if code != 200 || body["state"] != "index_ready" || body["records"] != float64(3) {
		t.Fatalf("unexpected status %d %v", code, body)
	}
	code, body = do(t, &fakeService{}, "GET", "/healthz", "")
	if code != 200 || body["status"] != "ok" {
		t.Fatalf("unexpected health %d %v", code, body)
	}
}

package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/core/ports"
	"github.com/clinassist/ng12-assistant/internal/infrastructure/resilience"
)

func testExecutor(attempts int) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    attempts,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
}

func TestGenerateSendsSystemPromptAndOptions(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"  Refer urgently. [Source 1]  "}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen-model", "embed-model", testExecutor(1))
	answer, err := client.Generate(context.Background(), "You are a guideline assistant.", "What about haemoptysis?", ports.GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   1024,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "Refer urgently. [Source 1]" {
		t.Fatalf("expected trimmed response, got %q", answer)
	}

	if captured["model"] != "gen-model" {
		t.Fatalf("expected gen model, got %v", captured["model"])
	}
	if captured["system"] != "You are a guideline assistant." {
		t.Fatalf("expected system prompt, got %v", captured["system"])
	}
	if captured["prompt"] != "What about haemoptysis?" {
		t.Fatalf("expected user prompt, got %v", captured["prompt"])
	}
	if captured["stream"] != false {
		t.Fatalf("expected stream=false, got %v", captured["stream"])
	}
	options, ok := captured["options"].(map[string]any)
	if !ok {
		t.Fatalf("expected options object, got %v", captured["options"])
	}
	if options["temperature"] != 0.2 {
		t.Fatalf("expected temperature 0.2, got %v", options["temperature"])
	}
	if options["num_predict"] != float64(1024) {
		t.Fatalf("expected num_predict 1024, got %v", options["num_predict"])
	}
}

func TestGenerateRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"response":"ok"}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", testExecutor(3))
	answer, err := client.Generate(context.Background(), "", "hello", ports.GenerateOptions{})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if answer != "ok" {
		t.Fatalf("unexpected answer %q", answer)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestGenerateWrapsExhaustedRetriesAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down for maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", testExecutor(2))
	_, err := client.Generate(context.Background(), "", "hello", ports.GenerateOptions{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if !strings.Contains(err.Error(), "down for maintenance") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestGenerateDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", testExecutor(3))
	_, err := client.Generate(context.Background(), "", "hello", ports.GenerateOptions{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("client errors must not be marked temporary: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls.Load())
	}
}

func TestGenerateUnavailableWithoutBaseURL(t *testing.T) {
	client := New("", "gen", "embed", testExecutor(1))
	if client.Available() {
		t.Fatalf("expected Available() == false without base url")
	}
	_, err := client.Generate(context.Background(), "", "hello", ports.GenerateOptions{})
	if !domain.IsKind(err, domain.ErrCollaboratorUnavailable) {
		t.Fatalf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestEmbedQueryReturnsFirstVector(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed-model", testExecutor(1))
	embedder := NewEmbedder(client)
	vector, err := embedder.EmbedQuery(context.Background(), "haemoptysis referral")
	if err != nil {
		t.Fatalf("EmbedQuery() error = %v", err)
	}
	if len(vector) != 3 || vector[0] != 0.1 {
		t.Fatalf("unexpected vector %v", vector)
	}
	if captured["model"] != "embed-model" {
		t.Fatalf("expected embed model, got %v", captured["model"])
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	client := New(server.URL, "gen", "embed", testExecutor(1))
	embedder := NewEmbedder(client)
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

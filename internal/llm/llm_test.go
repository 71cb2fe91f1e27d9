package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected /api/generate, got %s", r.URL.Path)
		}
		var req generateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected a non-streaming request")
		}
		if req.Model != "llama3" {
			t.Errorf("Expected default model llama3, got %s", req.Model)
		}
		json.NewEncoder(w).Encode(generateResponse{Response: "result = df.head(10)"})
	}))
	defer srv.Close()

	client := NewOllama(Config{BaseURL: srv.URL + "/"}, srv.Client())
	got, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "result = df.head(10)" {
		t.Errorf("Unexpected response %q", got)
	}
}

func TestOllamaEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingsRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" {
			t.Errorf("Expected embedding model, got %s", req.Model)
		}
		json.NewEncoder(w).Encode(embeddingsResponse{Embedding: []float64{0.1, 0.2}})
	}))
	defer srv.Close()

	client := NewOllama(Config{BaseURL: srv.URL, EmbeddingModel: "nomic-embed-text"}, nil)
	vec, err := client.Embed(context.Background(), "name: Ann")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("Expected 2 dimensions, got %d", len(vec))
	}
}

func TestOpenAIGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Expected /v1/chat/completions, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Expected bearer token, got %q", got)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "gpt-4o-mini" || req.Temperature != 0 || len(req.Messages) != 1 {
			t.Errorf("Unexpected request %+v", req)
		}
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"result = len(df)"}}]}`))
	}))
	defer srv.Close()

	client, err := New(Config{Provider: "openai", BaseURL: srv.URL + "/v1", APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got != "result = len(df)" {
		t.Errorf("Unexpected response %q", got)
	}
}

func TestStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewOllama(Config{BaseURL: srv.URL}, nil).Generate(context.Background(), "x")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected a StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", statusErr.Code)
	}
}

func TestNewNotConfigured(t *testing.T) {
	for _, cfg := range []Config{{}, {Provider: "none"}, {Provider: "openai"}} {
		if _, err := New(cfg); !errors.Is(err, ErrNotConfigured) {
			t.Errorf("New(%+v): expected ErrNotConfigured, got %v", cfg, err)
		}
	}
	if _, err := New(Config{Provider: "bard"}); err == nil || errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected an unknown provider error, got %v", err)
	}
}

func TestManagerSwap(t *testing.T) {
	m, err := NewManager(Config{})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	if m.Available() {
		t.Error("Manager without provider should not be available")
	}
	if _, err := m.Generate(context.Background(), "x"); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}

	if err := m.Update(Config{Provider: "ollama", Model: "mistral"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !m.Available() || m.Config().Model != "mistral" {
		t.Errorf("Expected ollama/mistral to be active, got %+v", m.Config())
	}
}

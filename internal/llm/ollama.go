package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const (
	defaultOllamaURL   = "http://localhost:11434"
	defaultOllamaModel = "llama3"
)

// Ollama talks to a local Ollama server.
type Ollama struct {
	config Config
	client *http.Client
}

func NewOllama(cfg Config, client *http.Client) *Ollama {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOllamaModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.Model
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Ollama{config: cfg, client: client}
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type embeddingsRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingsResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Generate calls /api/generate without streaming.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:   o.config.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	}
	var genResp generateResponse
	if err := o.post(ctx, "/api/generate", reqBody, &genResp); err != nil {
		return "", err
	}
	return genResp.Response, nil
}

// Embed calls /api/embeddings.
func (o *Ollama) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := embeddingsRequest{Model: o.config.EmbeddingModel, Prompt: text}
	var embResp embeddingsResponse
	if err := o.post(ctx, "/api/embeddings", reqBody, &embResp); err != nil {
		return nil, err
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("ollama returned an empty embedding")
	}
	return embResp.Embedding, nil
}

func (o *Ollama) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "ollama request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: "ollama", Code: resp.StatusCode, Body: string(respBody)}
	}
	return errors.Wrap(json.Unmarshal(respBody, out), "decode ollama response")
}

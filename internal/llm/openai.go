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
	defaultOpenAIURL            = "https://api.openai.com"
	defaultOpenAIModel          = "gpt-4o-mini"
	defaultOpenAIEmbeddingModel = "text-embedding-3-small"
)

// OpenAI talks to an OpenAI-compatible chat completions API.
type OpenAI struct {
	config Config
	client *http.Client
}

func NewOpenAI(cfg Config, client *http.Client) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIURL
	}
	cfg.BaseURL = strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1")
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultOpenAIEmbeddingModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAI{config: cfg, client: client}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Generate sends the prompt as a single user message at temperature 0.
func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model:       o.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	}
	var chatResp chatResponse
	if err := o.post(ctx, "/v1/chat/completions", reqBody, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return chatResp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float64, error) {
	reqBody := embeddingRequest{Model: o.config.EmbeddingModel, Input: text}
	var embResp embeddingResponse
	if err := o.post(ctx, "/v1/embeddings", reqBody, &embResp); err != nil {
		return nil, err
	}
	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, errors.New("openai returned an empty embedding")
	}
	return embResp.Data[0].Embedding, nil
}

func (o *OpenAI) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.config.BaseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.config.APIKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "openai request failed")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Provider: "openai", Code: resp.StatusCode, Body: string(respBody)}
	}
	return errors.Wrap(json.Unmarshal(respBody, out), "decode openai response")
}

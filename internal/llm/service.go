package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Providers understood by New.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// ErrNotConfigured is returned when no generation backend is set up.
var ErrNotConfigured = errors.New("no language model is configured")

// Generator produces text for a prompt in a single round trip.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Embedder maps text to a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Client is a backend that can both generate and embed.
type Client interface {
	Generator
	Embedder
}

type Config struct {
	Provider       string
	BaseURL        string
	Model          string
	EmbeddingModel string
	APIKey         string
	Timeout        time.Duration
}

// StatusError is a non-200 answer from a backend.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status: %d %s", e.Provider, e.Code, strings.TrimSpace(e.Body))
}

// New builds a client for cfg. It returns ErrNotConfigured when the
// provider is empty or "none", or when OpenAI has no API key.
func New(cfg Config) (Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return nil, ErrNotConfigured
	case ProviderOllama:
		return NewOllama(cfg, httpClient), nil
	case ProviderOpenAI:
		if cfg.APIKey == "" {
			return nil, errors.Wrap(ErrNotConfigured, "openai provider needs an API key")
		}
		return NewOpenAI(cfg, httpClient), nil
	}
	return nil, errors.Errorf("unknown llm provider %q", cfg.Provider)
}

// Manager holds the active client and lets it be replaced at runtime.
// It is safe for concurrent use.
type Manager struct {
	mu     sync.RWMutex
	config Config
	client Client
}

// NewManager builds the initial client. An unconfigured provider is not an
// error: the manager then reports ErrNotConfigured on every call.
func NewManager(cfg Config) (*Manager, error) {
	m := &Manager{}
	if err := m.Update(cfg); err != nil && !errors.Is(err, ErrNotConfigured) {
		return nil, err
	}
	return m, nil
}

// Update swaps in a client built from cfg. The config is kept even when
// the provider is unconfigured so it can be reported back.
func (m *Manager) Update(cfg Config) error {
	client, err := New(cfg)
	if err != nil && !errors.Is(err, ErrNotConfigured) {
		return err
	}
	m.mu.Lock()
	m.config = cfg
	m.client = client
	m.mu.Unlock()
	return err
}

func (m *Manager) Config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Available reports whether a backend is configured.
func (m *Manager) Available() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

func (m *Manager) current() (Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, ErrNotConfigured
	}
	return m.client, nil
}

func (m *Manager) Generate(ctx context.Context, prompt string) (string, error) {
	c, err := m.current()
	if err != nil {
		return "", err
	}
	return c.Generate(ctx, prompt)
}

func (m *Manager) Embed(ctx context.Context, text string) ([]float64, error) {
	c, err := m.current()
	if err != nil {
		return nil, err
	}
	return c.Embed(ctx, text)
}

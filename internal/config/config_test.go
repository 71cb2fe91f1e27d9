package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("Expected port 8000, got %d", cfg.Server.Port)
	}
	if cfg.Pipeline.MaxRows != 10 || cfg.Pipeline.SampleRows != 5 {
		t.Errorf("Expected 10/5, got %d/%d", cfg.Pipeline.MaxRows, cfg.Pipeline.SampleRows)
	}
	if cfg.Translator.Strategy != "auto" {
		t.Errorf("Expected auto strategy, got %s", cfg.Translator.Strategy)
	}
	if cfg.Registry.Capacity != 0 || cfg.Registry.TTL != 0 {
		t.Errorf("Expected an unbounded registry, got %+v", cfg.Registry)
	}
	if cfg.LLM.Timeout != 60*time.Second {
		t.Errorf("Expected 60s timeout, got %s", cfg.LLM.Timeout)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9090
llm:
  provider: openai
  model: gpt-4o-mini
registry:
  capacity: 20
  ttl: 30m
pipeline:
  fallback_on_error: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NLQ_TRANSLATOR_STRATEGY", "rules")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Registry.Capacity != 20 || cfg.Registry.TTL != 30*time.Minute {
		t.Errorf("Expected capacity 20 and 30m ttl, got %+v", cfg.Registry)
	}
	if !cfg.Pipeline.FallbackOnError {
		t.Error("Expected fallback_on_error from the file")
	}
	if cfg.Translator.Strategy != "rules" {
		t.Errorf("Expected env override, got %s", cfg.Translator.Strategy)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("Expected OPENAI_API_KEY to be used, got %q", cfg.LLM.APIKey)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Expected an error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{
		Server:     ServerConfig{Port: 8000},
		Storage:    StorageConfig{Kind: "postgres"},
		Embeddings: EmbeddingsConfig{Provider: "hash"},
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected postgres storage without a dsn to be rejected")
	}
	cfg.Storage.DSN = "postgres://localhost/nlq"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected a valid config, got %v", err)
	}
	cfg.Embeddings.Provider = "word2vec"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected an unknown embeddings provider to be rejected")
	}
}

package config

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Translator TranslatorConfig `mapstructure:"translator"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Vector     VectorConfig     `mapstructure:"vector"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
	MaxUploadSize int64    `mapstructure:"max_upload_size"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// EmbeddingsConfig selects the row embedder. Provider "hash" needs no
// model; "ollama" and "openai" reuse the LLM base URL and key when their
// own are empty.
type EmbeddingsConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	Model    string `mapstructure:"model"`
	Dims     int    `mapstructure:"dims"`
}

type TranslatorConfig struct {
	Strategy string `mapstructure:"strategy"`
}

type PipelineConfig struct {
	MaxRows         int  `mapstructure:"max_rows"`
	SampleRows      int  `mapstructure:"sample_rows"`
	FallbackOnError bool `mapstructure:"fallback_on_error"`
}

type RegistryConfig struct {
	Capacity uint64        `mapstructure:"capacity"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StorageConfig struct {
	Kind string `mapstructure:"kind"` // "file", "postgres", "none"
	Dir  string `mapstructure:"dir"`
	DSN  string `mapstructure:"dsn"`
	// Restore reloads stored uploads at startup (file storage only).
	Restore bool `mapstructure:"restore"`
}

type VectorConfig struct {
	SnapshotPath string `mapstructure:"snapshot_path"`
	Workers      int    `mapstructure:"workers"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Format      string `mapstructure:"format"` // "json" or "console"
	Development bool   `mapstructure:"development"`
}

// EnvPrefix prefixes environment overrides, e.g. NLQ_LLM_API_KEY.
const EnvPrefix = "NLQ"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_upload_size", 100<<20)

	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("embeddings.provider", "hash")
	v.SetDefault("embeddings.base_url", "")
	v.SetDefault("embeddings.model", "")
	v.SetDefault("embeddings.dims", 256)

	v.SetDefault("translator.strategy", "auto")

	v.SetDefault("pipeline.max_rows", 10)
	v.SetDefault("pipeline.sample_rows", 5)
	v.SetDefault("pipeline.fallback_on_error", false)

	v.SetDefault("registry.capacity", 0)
	v.SetDefault("registry.ttl", time.Duration(0))

	v.SetDefault("storage.kind", "file")
	v.SetDefault("storage.dir", "uploads")
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.restore", true)

	v.SetDefault("vector.snapshot_path", "vectorstore/index.bson")
	v.SetDefault("vector.workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.development", false)
}

// Load reads defaults, then the config file, then environment overrides.
// With path empty, config.{json,yaml} is looked up in ./configs and
// /etc/nlq; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs/")
		v.AddConfigPath("/etc/nlq/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unable to unmarshal config")
	}

	if cfg.LLM.APIKey == "" && strings.EqualFold(cfg.LLM.Provider, "openai") {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return &cfg, cfg.Validate()
}

// Validate rejects values the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("invalid server.port %d", c.Server.Port)
	}
	switch strings.ToLower(c.Storage.Kind) {
	case "file", "none":
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for postgres storage")
		}
	default:
		return errors.Errorf("unknown storage.kind %q", c.Storage.Kind)
	}
	switch strings.ToLower(c.Embeddings.Provider) {
	case "hash", "ollama", "openai":
	default:
		return errors.Errorf("unknown embeddings.provider %q", c.Embeddings.Provider)
	}
	return nil
}

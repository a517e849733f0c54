package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/raptorgraph-backend/internal/platform/apierr"
	"github.com/yungbote/raptorgraph-backend/internal/platform/envutil"
)

// Config is the process configuration: an optional YAML file selected by
// APP_CONFIG_FILE, then environment overrides keyed with the APP_/VECTOR_/
// EMBEDDING_/RAPTOR_ prefixes.
type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
	Raptor     RaptorConfig     `yaml:"raptor"`
}

type AppConfig struct {
	Port        string   `yaml:"port"`
	Mode        string   `yaml:"mode"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	SSLRootCert string `yaml:"ssl_root_cert"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type EmbeddingConfig struct {
	Model       string        `yaml:"model"`
	Dimension   int           `yaml:"dimension"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	InputType   string        `yaml:"input_type"`
	RPMLimit    float64       `yaml:"rpm_limit"`
	Concurrency int           `yaml:"concurrency"`
	BatchSize   int           `yaml:"batch_size"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SummarizerConfig struct {
	DefaultModel string        `yaml:"default_model"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"max_tokens"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	RPMLimit     float64       `yaml:"rpm_limit"`
	Concurrency  int           `yaml:"concurrency"`
	Timeout      time.Duration `yaml:"timeout"`
}

type RaptorConfig struct {
	MinK           int     `yaml:"min_k"`
	MaxK           int     `yaml:"max_k"`
	RPMLimit       float64 `yaml:"rpm_limit"`
	LLMConcurrency int     `yaml:"llm_concurrency"`
	MaxTreeLevels  int     `yaml:"max_tree_levels"`
	ChunkSize      int     `yaml:"chunk_size"`
	ChunkOverlap   int     `yaml:"chunk_overlap"`
}

// Load reads the optional YAML file, applies env overrides and validates.
func Load() (*Config, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, apierr.Wrap(apierr.KindConfiguration, "config_file_unreadable", "reading config file", err).
				WithContext(map[string]any{"path": path})
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, apierr.Wrap(apierr.KindConfiguration, "config_file_invalid", "parsing config file", err).
				WithContext(map[string]any{"path": path})
		}
	}

	applyEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Port: "8080",
			Mode: "development",
		},
		Embedding: EmbeddingConfig{
			Model:       "voyage-3-large",
			Dimension:   1024,
			RPMLimit:    60,
			Concurrency: 4,
			BatchSize:   64,
			Timeout:     60 * time.Second,
		},
		Summarizer: SummarizerConfig{
			DefaultModel: "gpt-4o-mini",
			Temperature:  0.2,
			MaxTokens:    512,
			RPMLimit:     60,
			Concurrency:  4,
			Timeout:      60 * time.Second,
		},
		Raptor: RaptorConfig{
			MinK:           2,
			MaxK:           50,
			RPMLimit:       3,
			LLMConcurrency: 3,
			MaxTreeLevels:  10,
			ChunkSize:      1200,
			ChunkOverlap:   150,
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.App.Port = envutil.Str("APP_PORT", cfg.App.Port)
	cfg.App.Mode = envutil.Str("APP_MODE", cfg.App.Mode)
	if v := envutil.Str("APP_CORS_ORIGINS", ""); v != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				origins = append(origins, p)
			}
		}
		cfg.App.CORSOrigins = origins
	}

	cfg.Database.DSN = envutil.Str("VECTOR_DATABASE_DSN", cfg.Database.DSN)
	cfg.Database.SSLRootCert = envutil.Str("VECTOR_DATABASE_SSL_ROOT_CERT", cfg.Database.SSLRootCert)
	cfg.Redis.Addr = envutil.Str("VECTOR_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envutil.Str("VECTOR_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envutil.Int("VECTOR_REDIS_DB", cfg.Redis.DB)

	cfg.Embedding.Model = envutil.Str("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.Dimension = envutil.Int("EMBEDDING_DIMENSION", cfg.Embedding.Dimension)
	cfg.Embedding.APIKey = envutil.Str("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = envutil.Str("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.InputType = envutil.Str("EMBEDDING_INPUT_TYPE", cfg.Embedding.InputType)
	cfg.Embedding.RPMLimit = envutil.Float("EMBEDDING_RPM_LIMIT", cfg.Embedding.RPMLimit)
	cfg.Embedding.Concurrency = envutil.Int("EMBEDDING_CONCURRENCY", cfg.Embedding.Concurrency)
	cfg.Embedding.BatchSize = envutil.Int("EMBEDDING_BATCH_SIZE", cfg.Embedding.BatchSize)
	cfg.Embedding.Timeout = envutil.Duration("EMBEDDING_TIMEOUT", cfg.Embedding.Timeout)

	cfg.Summarizer.DefaultModel = envutil.Str("RAPTOR_SUMMARIZER_MODEL", cfg.Summarizer.DefaultModel)
	cfg.Summarizer.Temperature = envutil.Float("RAPTOR_SUMMARIZER_TEMPERATURE", cfg.Summarizer.Temperature)
	cfg.Summarizer.MaxTokens = envutil.Int("RAPTOR_SUMMARIZER_MAX_TOKENS", cfg.Summarizer.MaxTokens)
	cfg.Summarizer.APIKey = envutil.Str("RAPTOR_SUMMARIZER_API_KEY", cfg.Summarizer.APIKey)
	cfg.Summarizer.BaseURL = envutil.Str("RAPTOR_SUMMARIZER_BASE_URL", cfg.Summarizer.BaseURL)
	cfg.Summarizer.RPMLimit = envutil.Float("RAPTOR_SUMMARIZER_RPM_LIMIT", cfg.Summarizer.RPMLimit)
	cfg.Summarizer.Concurrency = envutil.Int("RAPTOR_SUMMARIZER_CONCURRENCY", cfg.Summarizer.Concurrency)
	cfg.Summarizer.Timeout = envutil.Duration("RAPTOR_SUMMARIZER_TIMEOUT", cfg.Summarizer.Timeout)

	cfg.Raptor.MinK = envutil.Int("RAPTOR_MIN_K", cfg.Raptor.MinK)
	cfg.Raptor.MaxK = envutil.Int("RAPTOR_MAX_K", cfg.Raptor.MaxK)
	cfg.Raptor.RPMLimit = envutil.Float("RAPTOR_RPM_LIMIT", cfg.Raptor.RPMLimit)
	cfg.Raptor.LLMConcurrency = envutil.Int("RAPTOR_LLM_CONCURRENCY", cfg.Raptor.LLMConcurrency)
	cfg.Raptor.MaxTreeLevels = envutil.Int("RAPTOR_MAX_TREE_LEVELS", cfg.Raptor.MaxTreeLevels)
	cfg.Raptor.ChunkSize = envutil.Int("RAPTOR_CHUNK_SIZE", cfg.Raptor.ChunkSize)
	cfg.Raptor.ChunkOverlap = envutil.Int("RAPTOR_CHUNK_OVERLAP", cfg.Raptor.ChunkOverlap)

	// Summarizer rides the embedding provider credential unless given its own.
	if cfg.Summarizer.APIKey == "" {
		cfg.Summarizer.APIKey = cfg.Embedding.APIKey
	}
	if cfg.Summarizer.BaseURL == "" {
		cfg.Summarizer.BaseURL = cfg.Embedding.BaseURL
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return apierr.New(apierr.KindConfiguration, "missing_dsn", "database.dsn is required (VECTOR_DATABASE_DSN)")
	}
	if c.Embedding.Dimension <= 0 {
		return apierr.New(apierr.KindConfiguration, "invalid_dimension", fmt.Sprintf("embedding.dimension must be positive, got %d", c.Embedding.Dimension))
	}
	if c.Raptor.MinK < 1 || c.Raptor.MaxK < c.Raptor.MinK {
		return apierr.New(apierr.KindConfiguration, "invalid_cluster_bounds", fmt.Sprintf("raptor.min_k/max_k out of order: %d/%d", c.Raptor.MinK, c.Raptor.MaxK))
	}
	if c.Raptor.MaxTreeLevels < 1 {
		return apierr.New(apierr.KindConfiguration, "invalid_max_levels", "raptor.max_tree_levels must be at least 1")
	}
	return nil
}

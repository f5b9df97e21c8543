// Package config loads process configuration from defaults, an optional YAML
// file and the environment, in that order of precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sashabaranov/go-openai"
	"gopkg.in/yaml.v3"
)

// ChatSettings bounds one chat turn.
type ChatSettings struct {
	Model               string  `yaml:"model" env:"OPENAI_MODEL"`
	EmbeddingModel      string  `yaml:"embedding_model" env:"EMBEDDING_MODEL"`
	EmbeddingDimensions int     `yaml:"embedding_dimensions" env:"EMBEDDING_DIMENSIONS"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" env:"SIMILARITY_THRESHOLD"`
	MaxContextChunks    int     `yaml:"max_context_chunks" env:"MAX_CONTEXT_CHUNKS"`
	MaxHistoryLength    int     `yaml:"max_history_length" env:"MAX_HISTORY_LENGTH"`
	Temperature         float64 `yaml:"temperature" env:"TEMPERATURE"`
}

// Validate checks every setting is in range.
func (c ChatSettings) Validate() error {
	switch {
	case strings.TrimSpace(c.Model) == "":
		return errors.New("chat model must be set")
	case strings.TrimSpace(c.EmbeddingModel) == "":
		return errors.New("embedding model must be set")
	case c.EmbeddingDimensions < 0:
		return errors.Errorf("embedding dimensions must not be negative, got %d", c.EmbeddingDimensions)
	case c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1:
		return errors.Errorf("similarity threshold must be within [0, 1], got %v", c.SimilarityThreshold)
	case c.MaxContextChunks < 1:
		return errors.Errorf("max context chunks must be at least 1, got %d", c.MaxContextChunks)
	case c.MaxHistoryLength < 0:
		return errors.Errorf("max history length must not be negative, got %d", c.MaxHistoryLength)
	case c.Temperature < 0 || c.Temperature > 2:
		return errors.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	return nil
}

// OpenAI configures the OpenAI-compatible client used for chat and embeddings.
type OpenAI struct {
	APIKey  string        `yaml:"-" env:"OPENAI_API_KEY"`
	BaseURL string        `yaml:"base_url" env:"OPENAI_BASE_URL"`
	Timeout time.Duration `yaml:"timeout" env:"UPSTREAM_TIMEOUT"`
}

// Database selects the relational store and vector backend.
type Database struct {
	Driver        string `yaml:"driver" env:"DATABASE_DRIVER"`
	DSN           string `yaml:"dsn" env:"DATABASE_DSN"`
	VectorBackend string `yaml:"vector_backend" env:"VECTOR_BACKEND"`
	Migrate       bool   `yaml:"migrate" env:"DATABASE_MIGRATE"`
}

// Ingest configures uploads and the vectorization workflow.
type Ingest struct {
	UploadDir         string        `yaml:"upload_dir" env:"UPLOAD_DIR"`
	WatchUploads      bool          `yaml:"watch_uploads" env:"WATCH_UPLOADS"`
	Transport         string        `yaml:"transport" env:"WORKFLOW_TRANSPORT"`
	WebhookURL        string        `yaml:"webhook_url" env:"WEBHOOK_URL"`
	Topic             string        `yaml:"topic" env:"INGEST_TOPIC"`
	Group             string        `yaml:"group" env:"INGEST_GROUP"`
	PDFServiceURL     string        `yaml:"pdf_service_url" env:"PDF_SERVICE_URL"`
	ChunkSize         int           `yaml:"chunk_size" env:"CHUNK_SIZE"`
	ChunkOverlap      int           `yaml:"chunk_overlap" env:"CHUNK_OVERLAP"`
	WorkerConcurrency int           `yaml:"worker_concurrency" env:"WORKER_CONCURRENCY"`
	TriggerTimeout    time.Duration `yaml:"trigger_timeout" env:"WEBHOOK_TIMEOUT"`
}

// Server holds listen addresses and session handling.
type Server struct {
	HTTPAddr          string `yaml:"http_addr" env:"HTTP_ADDR"`
	WorkerAddr        string `yaml:"worker_addr" env:"WORKER_ADDR"`
	RedisAddr         string `yaml:"redis_addr" env:"REDIS_ADDR"`
	SerializeSessions bool   `yaml:"serialize_sessions" env:"SERIALIZE_SESSIONS"`
}

// Log configures the global zerolog logger.
type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Config is the root configuration.
type Config struct {
	Chat     ChatSettings `yaml:"chat"`
	OpenAI   OpenAI       `yaml:"openai"`
	Database Database     `yaml:"database"`
	Ingest   Ingest       `yaml:"ingest"`
	Server   Server       `yaml:"server"`
	Log      Log          `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Chat: ChatSettings{
			Model:               openai.GPT4Turbo1106,
			EmbeddingModel:      string(openai.AdaEmbeddingV2),
			SimilarityThreshold: 0.7,
			MaxContextChunks:    5,
			MaxHistoryLength:    10,
			Temperature:         0.7,
		},
		OpenAI: OpenAI{Timeout: 60 * time.Second},
		Database: Database{
			Driver:        "sqlite",
			DSN:           "./data/docchat.db",
			VectorBackend: "sqlite",
			Migrate:       true,
		},
		Ingest: Ingest{
			UploadDir:         "./uploads",
			Transport:         "webhook",
			Topic:             "docchat.ingest",
			Group:             "docchat-workers",
			PDFServiceURL:     "http://localhost:8081",
			ChunkSize:         1000,
			ChunkOverlap:      200,
			WorkerConcurrency: 4,
			TriggerTimeout:    10 * time.Second,
		},
		Server: Server{
			HTTPAddr:          ":8080",
			WorkerAddr:        ":8090",
			SerializeSessions: true,
		},
		Log: Log{Level: "info", Format: "console"},
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first if present. path names an optional YAML file; variables set in
// the environment override it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "loading .env")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parsing config %s", path)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parsing environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if err := c.Chat.Validate(); err != nil {
		return err
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return errors.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Database.VectorBackend {
	case "sqlite", "postgres", "memory":
	default:
		return errors.Errorf("unknown vector backend %q", c.Database.VectorBackend)
	}
	if c.Database.VectorBackend != "memory" && c.Database.VectorBackend != c.Database.Driver {
		return errors.Errorf("vector backend %q requires database driver %q", c.Database.VectorBackend, c.Database.VectorBackend)
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return errors.New("postgres requires DATABASE_DSN")
	}
	switch c.Ingest.Transport {
	case "webhook":
	case "redis":
		if c.Database.VectorBackend == "memory" {
			return errors.New("memory vector backend vectorizes inside serve and cannot use the redis transport")
		}
		if c.Server.RedisAddr == "" {
			return errors.New("redis workflow transport requires REDIS_ADDR")
		}
	default:
		return errors.Errorf("unknown workflow transport %q", c.Ingest.Transport)
	}
	if c.Ingest.ChunkSize < 1 {
		return errors.Errorf("chunk size must be at least 1, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return errors.Errorf("chunk overlap must be within [0, %d), got %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}
	if c.Ingest.WorkerConcurrency < 1 {
		return errors.Errorf("worker concurrency must be at least 1, got %d", c.Ingest.WorkerConcurrency)
	}
	return nil
}

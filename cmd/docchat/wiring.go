package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/0xcro3dile/docchat-go/internal/adapters/loader"
	"github.com/0xcro3dile/docchat-go/internal/adapters/parser"
	"github.com/0xcro3dile/docchat-go/internal/adapters/postgres"
	"github.com/0xcro3dile/docchat-go/internal/adapters/sqlite"
	"github.com/0xcro3dile/docchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docchat-go/internal/config"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
	"github.com/0xcro3dile/docchat-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/docchat-go/internal/infrastructure/http"
)

// backend is the storage selected by configuration.
type backend struct {
	history ports.HistoryStore
	docs    ports.DocumentRepository
	vectors ports.VectorStore
	ping    httpserver.HealthCheck
	close   func() error
}

func openBackend(ctx context.Context, cfg *config.Config) (*backend, error) {
	var b backend
	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx, cfg.Chat.EmbeddingDimensions); err != nil {
				db.Close()
				return nil, err
			}
		}
		b = backend{history: db.History(), docs: db.Documents(), vectors: db.Vectors(), close: db.Close}
		b.ping = func(context.Context) error { return db.Ping() }
	default:
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		b = backend{history: db.History(), docs: db.Documents(), vectors: db.Vectors(), close: db.Close}
		b.ping = func(context.Context) error { return db.Ping() }
	}

	if cfg.Database.VectorBackend == "memory" {
		log.Warn().Str("component", "main").Msg("vectors are kept in memory and are lost on restart")
		b.vectors = vectordb.NewInMemoryStore()
	}
	log.Info().Str("component", "main").
		Str("driver", cfg.Database.Driver).
		Str("vector_backend", cfg.Database.VectorBackend).
		Msg("storage opened")
	return &b, nil
}

// newOpenAIClient builds a client for any OpenAI-compatible endpoint. The
// timeout bounds time to response headers so long streams are not cut off.
func newOpenAIClient(c config.OpenAI) *openai.Client {
	ocfg := openai.DefaultConfig(c.APIKey)
	if c.BaseURL != "" {
		ocfg.BaseURL = c.BaseURL
	}
	ocfg.HTTPClient = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: c.Timeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	return openai.NewClientWithConfig(ocfg)
}

// newRedisClient connects to addr and verifies it answers.
func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "connecting to redis at %s", addr)
	}
	return client, nil
}

// consumerName identifies this process within the consumer group.
func consumerName() string {
	host, err := os.Hostname()
	if err != nil {
		host = "docchat"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// newVectorWorker builds the vectorization pool over store. The returned
// worker is also a ports.WorkflowTrigger for in-process ingestion.
func newVectorWorker(cfg *config.Config, store *backend, embedder ports.EmbeddingService) *httpserver.WorkerServer {
	pdf := parser.NewPDFServiceParser(cfg.Ingest.PDFServiceURL, cfg.OpenAI.Timeout)
	uploads := loader.NewLoader(cfg.Ingest.UploadDir, pdf)

	vectorize := usecases.NewVectorizeUseCase(store.docs, uploads, embedder, store.vectors, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	worker := httpserver.NewWorkerServer(vectorize, cfg.Server.WorkerAddr, cfg.Ingest.WorkerConcurrency)
	worker.AddHealthCheck("database", store.ping)
	worker.AddHealthCheck("pdf_service", func(ctx context.Context) error {
		if !pdf.IsServiceHealthy(ctx) {
			return errors.New("pdf extraction service is unreachable")
		}
		return nil
	})
	return worker
}

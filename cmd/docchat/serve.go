package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/docchat-go/internal/adapters/embedding"
	"github.com/0xcro3dile/docchat-go/internal/adapters/filewatcher"
	"github.com/0xcro3dile/docchat-go/internal/adapters/llm"
	"github.com/0xcro3dile/docchat-go/internal/adapters/queue"
	"github.com/0xcro3dile/docchat-go/internal/adapters/sessionlock"
	"github.com/0xcro3dile/docchat-go/internal/adapters/webhook"
	"github.com/0xcro3dile/docchat-go/internal/config"
	"github.com/0xcro3dile/docchat-go/internal/domain/ports"
	"github.com/0xcro3dile/docchat-go/internal/domain/usecases"
	httpserver "github.com/0xcro3dile/docchat-go/internal/infrastructure/http"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat and ingestion API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	var rdb *redis.Client
	if cfg.Server.RedisAddr != "" {
		if rdb, err = newRedisClient(ctx, cfg.Server.RedisAddr); err != nil {
			return err
		}
		defer rdb.Close()
	}

	client := newOpenAIClient(cfg.OpenAI)
	embedder := embedding.NewOpenAIAdapter(client, cfg.Chat.EmbeddingModel, cfg.Chat.EmbeddingDimensions)
	completions := llm.NewOpenAIAdapter(client, cfg.Chat.Model, cfg.Chat.Temperature)

	var locker ports.SessionLocker
	switch {
	case !cfg.Server.SerializeSessions:
		log.Warn().Str("component", "main").Msg("session serialization disabled")
	case rdb != nil:
		locker = sessionlock.NewRedis(rdb, 5*time.Minute)
	default:
		locker = sessionlock.NewLocal()
	}

	// In-memory vectors exist only in this process, so ingestion runs here too.
	var inProcess *httpserver.WorkerServer
	var trigger ports.WorkflowTrigger
	if cfg.Database.VectorBackend == "memory" {
		inProcess = newVectorWorker(cfg, store, embedder)
		trigger = inProcess
		log.Info().Str("component", "main").Msg("vectorizing uploads in-process")
	} else {
		t, closeTrigger, err := newTrigger(cfg, rdb)
		if err != nil {
			return err
		}
		defer closeTrigger()
		trigger = t
	}

	chat := usecases.NewChatUseCase(embedder, store.vectors, store.history, completions, locker, usecases.ChatOptions{
		SimilarityThreshold: cfg.Chat.SimilarityThreshold,
		MaxContextChunks:    cfg.Chat.MaxContextChunks,
		MaxHistoryLength:    cfg.Chat.MaxHistoryLength,
	})
	ingest := usecases.NewIngestUseCase(store.docs, trigger)

	server := httpserver.NewServer(chat, ingest, cfg.Server.HTTPAddr)
	server.AddHealthCheck("database", store.ping)
	if rdb != nil {
		server.AddHealthCheck("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	var uploads *filewatcher.UploadWatcher
	if cfg.Ingest.WatchUploads {
		watcher, err := filewatcher.NewFSNotifyWatcher(nil)
		if err != nil {
			return err
		}
		defer watcher.Stop()
		uploads = filewatcher.NewUploadWatcher(watcher, ingest.Accept, 0)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Start(ctx) })
	if inProcess != nil {
		g.Go(func() error { return inProcess.Run(ctx) })
	}
	if uploads != nil {
		g.Go(func() error { return uploads.Run(ctx, cfg.Ingest.UploadDir) })
	}

	return g.Wait()
}

// newTrigger selects how ingestion jobs reach the worker.
func newTrigger(cfg *config.Config, rdb *redis.Client) (ports.WorkflowTrigger, func() error, error) {
	switch cfg.Ingest.Transport {
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("redis workflow transport requires REDIS_ADDR")
		}
		pub, err := queue.NewRedisPublisher(rdb)
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating ingest publisher")
		}
		p := queue.NewPublisher(pub, cfg.Ingest.Topic)
		return p, p.Close, nil
	default:
		if cfg.Ingest.WebhookURL == "" {
			log.Warn().Str("component", "main").Msg("WEBHOOK_URL is not set; every ingestion will fail to trigger")
		}
		return webhook.NewTrigger(cfg.Ingest.WebhookURL, cfg.Ingest.TriggerTimeout), func() error { return nil }, nil
	}
}

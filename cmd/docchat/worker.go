package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xcro3dile/docchat-go/internal/adapters/embedding"
	"github.com/0xcro3dile/docchat-go/internal/adapters/queue"
	"github.com/0xcro3dile/docchat-go/internal/config"
)

func newWorkerCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the document vectorization worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorker(ctx, cfg)
		},
	}
}

func runWorker(ctx context.Context, cfg *config.Config) error {
	if cfg.Database.VectorBackend == "memory" {
		return errors.New("memory vector backend vectorizes inside serve; a separate worker would fill its own store")
	}
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.close()

	client := newOpenAIClient(cfg.OpenAI)
	embedder := embedding.NewOpenAIAdapter(client, cfg.Chat.EmbeddingModel, cfg.Chat.EmbeddingDimensions)
	worker := newVectorWorker(cfg, store, embedder)

	var consumer *queue.Consumer
	if cfg.Ingest.Transport == "redis" {
		rdb, err := newRedisClient(ctx, cfg.Server.RedisAddr)
		if err != nil {
			return err
		}
		defer rdb.Close()
		sub, err := queue.NewRedisSubscriber(rdb, cfg.Ingest.Group, consumerName())
		if err != nil {
			return errors.Wrap(err, "creating ingest subscriber")
		}
		consumer = queue.NewConsumer(sub, cfg.Ingest.Topic, worker.Process)
		defer consumer.Close()
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(ctx) })
	if consumer != nil {
		g.Go(func() error { return consumer.Run(ctx) })
	}

	return g.Wait()
}

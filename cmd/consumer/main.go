package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/internal/model"
	"github.com/minhdq/repo-miner/pkg/db"
	"github.com/minhdq/repo-miner/pkg/kafka"
	"github.com/minhdq/repo-miner/pkg/log"
)

func main() {
	// Load configuration
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, _ := log.NewCslLogger()

	// Setup warehouse
	mysql, _ := db.NewMysql(config)
	repoModel, _ := model.NewRepo(config, logger, mysql)
	if err := mysql.Migrate(repoModel); err != nil {
		logger.Error(context.Background(), "Failed to migrate warehouse: %v", err)
		os.Exit(1)
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	startRepoConsumer(ctx, config, logger, repoModel)

	// Wait for termination signal
	<-sigCh
	logger.Info(ctx, "Received shutdown signal, gracefully shutting down...")
	cancel()
}

func startRepoConsumer(ctx context.Context, config *cfg.Config, logger log.Logger, repoModel *model.Repo) {
	consumer := kafka.NewConsumer(config, logger, config.Kafka.Producer.TopicRepo, "repo-consumer-group")

	batchSize := 100
	batchTimeout := 5 * time.Second

	// Channel to collect messages for batch processing
	messages := make(chan model.RepoMessage, batchSize*2)

	// Batch processor
	go processBatchedRepos(ctx, messages, batchSize, batchTimeout, logger, repoModel)

	// Register handler for repo messages
	consumer.RegisterHandler("repo", func(data []byte) error {
		var repoMsg model.RepoMessage
		if err := json.Unmarshal(data, &repoMsg); err != nil {
			return fmt.Errorf("failed to unmarshal repo message: %w", err)
		}

		select {
		case messages <- repoMsg:
		case <-ctx.Done():
			return ctx.Err()
		}

		return nil
	})

	// Start consumer in a goroutine
	go func() {
		if err := consumer.Start(ctx); err != nil {
			logger.Error(ctx, "Repo consumer error: %v", err)
		}
	}()

	logger.Info(ctx, "Repository consumer started successfully")
}

// processBatchedRepos flushes repo messages into the warehouse in
// batches, either when the batch fills or when the timer fires.
func processBatchedRepos(ctx context.Context, messages <-chan model.RepoMessage, batchSize int,
	batchTimeout time.Duration, logger log.Logger, repoModel *model.Repo) {

	var batch []model.RepoMessage
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			// Flush what is left before exiting
			if len(batch) > 0 {
				flushBatch(ctx, batch, logger, repoModel)
			}
			return

		case msg := <-messages:
			batch = append(batch, msg)

			if len(batch) >= batchSize {
				flushBatch(ctx, batch, logger, repoModel)
				batch = nil
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			if len(batch) > 0 {
				flushBatch(ctx, batch, logger, repoModel)
				batch = nil
			}
			timer.Reset(batchTimeout)
		}
	}
}

func flushBatch(ctx context.Context, batch []model.RepoMessage, logger log.Logger, repoModel *model.Repo) {
	if err := repoModel.CreateBatch(batch); err != nil {
		logger.Error(ctx, "Failed to save batch of repositories: %v", err)
	} else {
		logger.Info(ctx, "Saved batch of %d repositories", len(batch))
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/internal/lister"
	"github.com/minhdq/repo-miner/pkg/kafka"
	"github.com/minhdq/repo-miner/pkg/log"
	"github.com/spf13/cobra"
)

var (
	flagMinStars int
	flagPublish  bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "list-repos <language> <count>",
		Short:         "List the most starred repositories of a language with their head commits",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().IntVar(&flagMinStars, "min-stars", 0, "minimum star count for the search")
	cmd.Flags().BoolVar(&flagPublish, "publish", false, "publish the records to the repo topic")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "list-repos: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	count, err := strconv.Atoi(args[1])
	if err != nil || count < 0 {
		return fmt.Errorf("count must be a non-negative integer, got %q", args[1])
	}

	config := loadConfig()
	if flagMinStars > 0 {
		config.GithubApi.MinStars = flagMinStars
	}

	logger, _ := log.NewCslLogger()
	repoLister, err := lister.NewLister(logger, config)
	if err != nil {
		return err
	}

	if flagPublish {
		producer := kafka.NewProducer(config, logger, config.Kafka.Producer.TopicRepo)
		defer producer.Close()
		repoLister.Publisher = producer
	}

	records, err := repoLister.List(ctx, args[0], count)
	if err != nil {
		return err
	}

	for _, record := range records {
		sha := record.LatestCommitSHA
		if sha == "" {
			sha = "-"
		}
		fmt.Printf("%s %d %s\n", record.Identifier(), record.StarCount, sha)
	}
	return nil
}

func loadConfig() *cfg.Config {
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		// No yaml next to the binary, run on the defaults
		mock, _ := cfg.NewMockLoader()
		config, _ = mock.Load()
	}
	return config
}

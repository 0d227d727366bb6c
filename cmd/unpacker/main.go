package main

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/minhdq/repo-miner/cfg"
	"github.com/minhdq/repo-miner/internal/flattener"
	"github.com/minhdq/repo-miner/pkg/log"
	"github.com/spf13/cobra"
)

var (
	flagDest     string
	flagDb       string
	flagRepos    string
	flagInclude  []string
	flagExclude  []string
	flagMaxFiles int
	flagMaxSize  int64
	flagDryRun   bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "unpack-repo <archive>",
		Short:         "Unpack a repository archive into a flat directory",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	cmd.Flags().StringVarP(&flagDest, "dest", "b", "", "destination directory")
	cmd.Flags().StringVarP(&flagDb, "db", "M", "", "record the source map into this sqlite file")
	cmd.Flags().StringVarP(&flagRepos, "repos", "R", "", "repos listing mapping commits to repo and branch")
	cmd.Flags().StringArrayVarP(&flagInclude, "include", "A", nil, "only extract paths matching this pattern")
	cmd.Flags().StringArrayVarP(&flagExclude, "exclude", "J", nil, "skip paths matching this pattern")
	cmd.Flags().IntVarP(&flagMaxFiles, "max-files", "f", 0, "stop after this many files")
	cmd.Flags().Int64VarP(&flagMaxSize, "max-size", "m", 0, "skip files larger than this many bytes")
	cmd.Flags().BoolVarP(&flagDryRun, "dry-run", "n", false, "record without writing any files")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "unpack-repo: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	config := loadConfig()
	logger, _ := log.NewCslLogger()

	include, err := compilePatterns(flagInclude)
	if err != nil {
		return err
	}
	exclude, err := compilePatterns(flagExclude)
	if err != nil {
		return err
	}

	f, err := flattener.NewFlattener(logger, config, flattener.Options{
		Dest:      flagDest,
		DbPath:    flagDb,
		ReposFile: flagRepos,
		Include:   include,
		Exclude:   exclude,
		MaxFiles:  flagMaxFiles,
		MaxSize:   flagMaxSize,
		DryRun:    flagDryRun,
	})
	if err != nil {
		return err
	}

	if _, err := f.Unpack(ctx, args[0]); err != nil {
		return err
	}
	return nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

func loadConfig() *cfg.Config {
	loader, _ := cfg.NewViperLoader()
	config, err := loader.Load()
	if err != nil {
		mock, _ := cfg.NewMockLoader()
		config, _ = mock.Load()
	}
	return config
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/DreamCats/tweetsearch/cmd/tweetsearch/internal"
	"github.com/DreamCats/tweetsearch/internal/config"
	"github.com/DreamCats/tweetsearch/internal/indexer"
	"github.com/DreamCats/tweetsearch/internal/progress"
)

var (
	cfgFile string
	verbose bool
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tweetsearch",
		Short: "Semantic search over a tweet archive",
		Long: `tweetsearch embeds every tweet of an archive once, stores the vectors in a
persistent collection, and answers free-text queries by meaning.

The first run builds the collection; later runs reuse it.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (default ~/.tweetsearch/config/tweetsearch.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(newIndexCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newStatsCommand())
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tweetsearch %s\n", internal.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// app is the per-process runtime shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	idx      *indexer.Indexer
	closeLog func() error
}

func openApp(ctx context.Context, subcommand string) (*app, error) {
	cfg, err := internal.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := internal.SetupLogging(subcommand, cfg.Store.Path, verbose)
	if err != nil {
		logger.Warn("log file unavailable, logging to stderr only", "error", err)
	}

	idx, err := indexer.NewIndexer(ctx, cfg, logger)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, idx: idx, closeLog: closeLog}, nil
}

func (a *app) Close() error {
	return errors.Join(a.idx.Close(), a.closeLog())
}

// ensureIndex builds the collection on first use and reports what happened
// on w.
func (a *app) ensureIndex(ctx context.Context, w io.Writer) (indexer.Result, error) {
	stats, err := a.idx.Stats(ctx)
	if err != nil {
		return indexer.Result{}, err
	}
	if stats.Count == 0 {
		fmt.Fprintln(w, "Indexing tweets... this only happens once")
	}

	res, err := a.idx.EnsureIndex(ctx, a.idx.Source(), progress.Default(a.logger))
	if err != nil {
		if res.Indexed > 0 {
			fmt.Fprintf(w, "Indexing stopped after %d tweets; the collection is partial. Remove %s to rebuild.\n",
				res.Indexed, a.cfg.Store.Path)
		}
		return res, err
	}

	if !res.AlreadyBuilt {
		fmt.Fprintf(w, "Indexing complete! %d tweets indexed", res.Indexed)
		if res.Skipped > 0 {
			fmt.Fprintf(w, " (%d malformed records skipped)", res.Skipped)
		}
		fmt.Fprintf(w, " in %s\n", res.Duration.Round(time.Millisecond))
	}
	fmt.Fprintln(w, "Database ready")
	return res, nil
}

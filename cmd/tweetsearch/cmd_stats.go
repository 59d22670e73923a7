package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/DreamCats/tweetsearch/internal/indexer"
)

func newStatsCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), "stats")
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.idx.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func printStats(w io.Writer, stats *indexer.Stats) {
	fmt.Fprintf(w, "📊 Collection %q\n", stats.Namespace)
	fmt.Fprintf(w, "   Backend:     %s (%s)\n", stats.Backend, stats.Location)
	fmt.Fprintf(w, "   Tweets:      %d\n", stats.Count)
	if stats.BuildState != "" {
		fmt.Fprintf(w, "   Build state: %s\n", stats.BuildState)
	}
	fmt.Fprintf(w, "   Keyword:     %d docs\n", stats.KeywordDocs)
	fmt.Fprintf(w, "   Embedding:   %s (%d dims)\n", stats.Model, stats.Dimensions)
	if stats.SizeBytes > 0 {
		fmt.Fprintf(w, "   Size:        %.2f MB (%d collections)\n", float64(stats.SizeBytes)/(1024*1024), len(stats.Collections))
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

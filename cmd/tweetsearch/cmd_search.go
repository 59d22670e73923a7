package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/DreamCats/tweetsearch/internal/retrieval"
)

const noMatchesMessage = "No matches found. Try a different search term."

type searchOptions struct {
	topK       int
	keyword    bool
	hybrid     bool
	jsonOutput bool
}

func newSearchCommand() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search tweets by meaning",
		Long: `Search the collection with a free-text query.

Without a query, search reads one query per line from stdin, prompting when
stdin is a terminal. An empty line runs nothing; "quit" ends the session.
The collection is built first if it is still empty.`,
		Example: `  tweetsearch search "space travel"
  tweetsearch search -k 3 --hybrid "electric cars"
  tweetsearch search --keyword starship --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, "search")
			if err != nil {
				return err
			}
			defer a.Close()

			if !cmd.Flags().Changed("top-k") {
				opts.topK = a.cfg.Search.DefaultTopK
			}
			if _, err := a.ensureIndex(ctx, cmd.ErrOrStderr()); err != nil {
				return err
			}

			run := opts.runner(a.idx.Searcher())
			out := cmd.OutOrStdout()
			if len(args) > 0 {
				return runQuery(ctx, out, cmd.ErrOrStderr(), run, strings.Join(args, " "), opts.jsonOutput)
			}

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			return promptLoop(ctx, cmd.InOrStdin(), out, interactive, func(query string) error {
				return runQuery(ctx, out, cmd.ErrOrStderr(), run, query, opts.jsonOutput)
			})
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 10, "number of results (default from search.default_top_k)")
	cmd.Flags().BoolVar(&opts.keyword, "keyword", false, "keyword search on the full-text index")
	cmd.Flags().BoolVar(&opts.hybrid, "hybrid", false, "blend semantic and keyword scores")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "output as JSON")
	cmd.MarkFlagsMutuallyExclusive("keyword", "hybrid")

	return cmd
}

type queryFunc func(ctx context.Context, query string) (retrieval.Results, error)

func (o searchOptions) runner(s *retrieval.Searcher) queryFunc {
	switch {
	case o.keyword:
		return func(ctx context.Context, query string) (retrieval.Results, error) {
			return s.SearchKeyword(ctx, query, o.topK)
		}
	case o.hybrid:
		return func(ctx context.Context, query string) (retrieval.Results, error) {
			return s.SearchHybrid(ctx, query, retrieval.DefaultHybridOptions(o.topK))
		}
	default:
		return func(ctx context.Context, query string) (retrieval.Results, error) {
			return s.Search(ctx, query, o.topK)
		}
	}
}

// runQuery answers one query. A rejected result count is reported and
// treated as an empty answer rather than failing the session.
func runQuery(ctx context.Context, out, errOut io.Writer, run queryFunc, query string, jsonOutput bool) error {
	res, err := run(ctx, query)
	if errors.Is(err, retrieval.ErrInvalidTopK) {
		fmt.Fprintf(errOut, "Invalid result count: %v\n", err)
		res, err = retrieval.Results{Query: strings.TrimSpace(query)}, nil
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if res.NoQuery {
		return nil
	}

	if jsonOutput {
		return writeJSON(out, res)
	}
	printResults(out, res)
	return nil
}

func printResults(w io.Writer, res retrieval.Results) {
	if res.NoMatches() {
		fmt.Fprintln(w, noMatchesMessage)
		return
	}

	fmt.Fprintf(w, "\nFound %d results for %q:\n\n", len(res.Items), res.Query)
	for i, item := range res.Items {
		fmt.Fprintf(w, "%d. 📅 %s\n", i+1, item.Date)
		fmt.Fprintf(w, "   %s\n", strings.ReplaceAll(item.Text, "\n", "\n   "))
		if verbose {
			fmt.Fprintf(w, "   [%s] score %.3f\n", item.ID, item.Score)
			for _, reason := range item.Reasons {
				fmt.Fprintf(w, "   - %s\n", reason)
			}
		}
		fmt.Fprintln(w)
	}
}

// promptLoop reads queries line by line until EOF, "quit" or cancellation.
// Errors from fn are reported and the loop continues.
func promptLoop(ctx context.Context, in io.Reader, out io.Writer, interactive bool, fn func(query string) error) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if interactive {
			fmt.Fprint(out, "\n🔎 Search tweets (empty line skips, \"quit\" exits): ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "⚠️  %v\n", err)
		}
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/tweetsearch/internal/retrieval"
)

func fixedResults(items ...retrieval.Result) queryFunc {
	return func(ctx context.Context, query string) (retrieval.Results, error) {
		q := strings.TrimSpace(query)
		if q == "" {
			return retrieval.Results{NoQuery: true}, nil
		}
		return retrieval.Results{Query: q, Items: items}, nil
	}
}

func TestRunQueryPrintsDateAndText(t *testing.T) {
	var out, errOut bytes.Buffer
	run := fixedResults(
		retrieval.Result{ID: "id_0", Text: "I love Mars", Date: "2019-01-01"},
		retrieval.Result{ID: "id_4", Text: "Starship\nflies", Date: "2019-02-01"},
	)

	require.NoError(t, runQuery(context.Background(), &out, &errOut, run, "space travel", false))
	text := out.String()
	assert.Contains(t, text, `Found 2 results for "space travel"`)
	assert.Contains(t, text, "1. 📅 2019-01-01\n   I love Mars\n")
	assert.Contains(t, text, "   Starship\n   flies\n")
	assert.Empty(t, errOut.String())
}

func TestRunQueryNoMatches(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, &out, fixedResults(), "zzz", false))
	assert.Equal(t, noMatchesMessage+"\n", out.String())
}

func TestRunQueryBlankPrintsNothing(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, &out, fixedResults(), "   ", false))
	assert.Empty(t, out.String())
}

func TestRunQueryInvalidTopKIsNoMatches(t *testing.T) {
	var out, errOut bytes.Buffer
	run := func(ctx context.Context, query string) (retrieval.Results, error) {
		return retrieval.Results{}, retrieval.ErrInvalidTopK
	}

	require.NoError(t, runQuery(context.Background(), &out, &errOut, run, "mars", false))
	assert.Equal(t, noMatchesMessage+"\n", out.String())
	assert.Contains(t, errOut.String(), "Invalid result count")
}

func TestRunQueryJSON(t *testing.T) {
	var out bytes.Buffer
	run := fixedResults(retrieval.Result{ID: "id_0", Text: "I love Mars", Date: "2019-01-01", Score: 0.9})

	require.NoError(t, runQuery(context.Background(), &out, &out, run, "mars", true))
	assert.Contains(t, out.String(), `"query": "mars"`)
	assert.Contains(t, out.String(), `"text": "I love Mars"`)
}

func TestRunQueryStoreError(t *testing.T) {
	var out bytes.Buffer
	run := func(ctx context.Context, query string) (retrieval.Results, error) {
		return retrieval.Results{}, errors.New("disk gone")
	}
	err := runQuery(context.Background(), &out, &out, run, "mars", false)
	assert.ErrorContains(t, err, "disk gone")
}

func TestPromptLoop(t *testing.T) {
	in := strings.NewReader("mars\n\n   \nbroken\ntesla\nquit\nnever\n")
	var out bytes.Buffer
	var seen []string

	err := promptLoop(context.Background(), in, &out, false, func(query string) error {
		seen = append(seen, query)
		if query == "broken" {
			return errors.New("boom")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"mars", "broken", "tesla"}, seen)
	assert.Contains(t, out.String(), "boom")
	assert.NotContains(t, out.String(), "Search tweets")
}

func TestPromptLoopInteractivePrompts(t *testing.T) {
	var out bytes.Buffer
	err := promptLoop(context.Background(), strings.NewReader("mars\n"), &out, true, func(string) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(out.String(), "Search tweets"))
}

func TestPromptLoopStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	err := promptLoop(ctx, strings.NewReader("mars\n"), &out, false, func(string) error {
		t.Fatal("query ran after cancel")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"index", "search", "stats", "init", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	search, _, err := root.Find([]string{"search"})
	require.NoError(t, err)
	assert.NotNil(t, search.Flags().Lookup("top-k"))
	assert.Equal(t, "k", search.Flags().Lookup("top-k").Shorthand)
}

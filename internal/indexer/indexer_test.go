package indexer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/tweetsearch/internal/config"
)

const archive = `window.YTD.tweets.part0 = [
  {"tweet": {"full_text": "Starship is going to Mars", "created_at": "Mon Jan 01 10:00:00 +0000 2024"}},
  {"tweet": {"full_text": "Tesla autopilot update rolling out", "created_at": "Tue Jan 02 10:00:00 +0000 2024"}},
  {"tweet": {"created_at": "Wed Jan 03 10:00:00 +0000 2024"}},
  {"tweet": {"full_text": "Optimus robot folding laundry", "created_at": "Thu Jan 04 10:00:00 +0000 2024"}}
]`

func testConfig(t *testing.T, keyword bool) *config.Config {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "tweets.js")
	require.NoError(t, os.WriteFile(src, []byte(archive), 0o644))

	cfg, err := config.Parse([]byte(fmt.Sprintf(`
embedding:
  provider: local
  dimensions: 128
store:
  path: %s
source:
  path: %s
  expected_total: 4
indexer:
  batch_size: 2
  keyword_index: %t
`, filepath.Join(dir, "data"), src, keyword)))
	require.NoError(t, err)
	return cfg
}

func TestIndexerEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, true)

	idx, err := NewIndexer(ctx, cfg, nil)
	require.NoError(t, err)

	res, err := idx.EnsureIndex(ctx, idx.Source(), nil)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, res.State)
	assert.Equal(t, 3, res.Indexed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Batches)

	searcher := idx.Searcher()
	assert.True(t, searcher.HasKeywordIndex())

	found, err := searcher.Search(ctx, "Starship Mars", 1)
	require.NoError(t, err)
	require.Len(t, found.Items, 1)
	assert.Equal(t, "Starship is going to Mars", found.Items[0].Text)
	assert.Equal(t, "Mon Jan 01 10:00:00 +0000 2024", found.Items[0].Date)

	kw, err := searcher.SearchKeyword(ctx, "laundry", 5)
	require.NoError(t, err)
	require.Len(t, kw.Items, 1)
	assert.Equal(t, "id_2", kw.Items[0].ID)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tweets", stats.Namespace)
	assert.Equal(t, "sqlite", stats.Backend)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, "complete", stats.BuildState)
	assert.Equal(t, 3, stats.KeywordDocs)
	assert.Equal(t, 128, stats.Dimensions)
	assert.Equal(t, []string{"tweets"}, stats.Collections)
	assert.Equal(t, filepath.Join(cfg.Store.Path, "collections.db"), stats.Location)
	require.NoError(t, idx.Close())

	// A second process reuses the persisted collection.
	var logs bytes.Buffer
	idx, err = NewIndexer(ctx, cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer idx.Close()

	res, err = idx.EnsureIndex(ctx, idx.Source(), nil)
	require.NoError(t, err)
	assert.True(t, res.AlreadyBuilt)
	assert.NotContains(t, logs.String(), "keyword index does not match")

	stats, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, "hashed-bow-v1", stats.Model)
}

func TestIndexerWarnsWhenKeywordIndexLagsCollection(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, false)

	idx, err := NewIndexer(ctx, cfg, nil)
	require.NoError(t, err)
	_, err = idx.EnsureIndex(ctx, idx.Source(), nil)
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	// Enabling the keyword index after the build leaves it empty for good.
	enabled := true
	cfg.Indexer.KeywordIndex = &enabled
	var logs bytes.Buffer
	idx, err = NewIndexer(ctx, cfg, slog.New(slog.NewTextHandler(&logs, nil)))
	require.NoError(t, err)
	defer idx.Close()

	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), "keyword index does not match")
	assert.Contains(t, logs.String(), "collection_count=3")
	assert.Contains(t, logs.String(), "keyword_docs=0")

	res, err := idx.EnsureIndex(ctx, idx.Source(), nil)
	require.NoError(t, err)
	assert.True(t, res.AlreadyBuilt)
}

func TestIndexerWithoutKeywordIndex(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndexer(ctx, testConfig(t, false), nil)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.EnsureIndex(ctx, idx.Source(), nil)
	require.NoError(t, err)

	searcher := idx.Searcher()
	assert.False(t, searcher.HasKeywordIndex())

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.KeywordDocs)
}

func TestIndexerMissingSource(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, false)
	cfg.Source.Path = filepath.Join(t.TempDir(), "nope.json")

	idx, err := NewIndexer(ctx, cfg, nil)
	require.NoError(t, err)
	defer idx.Close()

	_, err = idx.EnsureIndex(ctx, idx.Source(), nil)
	assert.Error(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)
}

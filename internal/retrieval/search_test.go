package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DreamCats/tweetsearch/internal/store"
	"github.com/DreamCats/tweetsearch/internal/textindex"
)

// stubCollection returns canned matches and records each query.
type stubCollection struct {
	matches []store.Match
	err     error
	queries []store.Query
}

func (c *stubCollection) Name() string                         { return "tweets" }
func (c *stubCollection) Count(ctx context.Context) (int, error) { return len(c.matches), nil }
func (c *stubCollection) Add(ctx context.Context, b store.Batch) error {
	return errors.New("read only")
}

func (c *stubCollection) Query(ctx context.Context, q store.Query) ([]store.Match, error) {
	c.queries = append(c.queries, q)
	if c.err != nil {
		return nil, c.err
	}
	if q.NResults < len(c.matches) {
		return c.matches[:q.NResults], nil
	}
	return c.matches, nil
}

type stubKeyword struct {
	hits    []textindex.Hit
	queries []string
}

func (k *stubKeyword) Search(ctx context.Context, query string, limit int) ([]textindex.Hit, error) {
	k.queries = append(k.queries, query)
	if limit < len(k.hits) {
		return k.hits[:limit], nil
	}
	return k.hits, nil
}

func tweetMatches() []store.Match {
	return []store.Match{
		{ID: "id_2", Document: "I love Mars", Metadata: store.Metadata{"date": "2021-01-01"}, Distance: 0.1},
		{ID: "id_0", Document: "Starship update", Metadata: store.Metadata{"date": "2021-01-02"}, Distance: 0.4},
		{ID: "id_1", Document: "Cybertruck", Metadata: store.Metadata{"date": "2021-01-03"}, Distance: 0.9},
	}
}

func TestSearchMapsMatches(t *testing.T) {
	coll := &stubCollection{matches: tweetMatches()}
	s := NewSearcher(coll)

	res, err := s.Search(context.Background(), "  space travel  ", 2)
	require.NoError(t, err)
	assert.Equal(t, "space travel", res.Query)
	assert.False(t, res.NoMatches())
	require.Len(t, res.Items, 2)
	assert.Equal(t, "id_2", res.Items[0].ID)
	assert.Equal(t, "I love Mars", res.Items[0].Text)
	assert.Equal(t, "2021-01-01", res.Items[0].Date)
	require.NotNil(t, res.Items[0].Distance)
	assert.InDelta(t, 0.1, *res.Items[0].Distance, 1e-6)
	assert.InDelta(t, 0.9, res.Items[0].Score, 1e-6)
	assert.Equal(t, "Starship update", res.Items[1].Text)

	require.Len(t, coll.queries, 1)
	assert.Equal(t, store.Query{Text: "space travel", NResults: 2}, coll.queries[0])
}

func TestSearchBlankQueryNeverReachesStore(t *testing.T) {
	coll := &stubCollection{matches: tweetMatches()}
	s := NewSearcher(coll)

	for _, q := range []string{"", "   ", "\n\t"} {
		res, err := s.Search(context.Background(), q, 5)
		require.NoError(t, err)
		assert.True(t, res.NoQuery)
		assert.False(t, res.NoMatches())
		assert.Empty(t, res.Items)
	}
	assert.Empty(t, coll.queries)
}

func TestSearchRejectsNonPositiveTopK(t *testing.T) {
	coll := &stubCollection{matches: tweetMatches()}
	s := NewSearcher(coll)

	for _, k := range []int{0, -3} {
		_, err := s.Search(context.Background(), "mars", k)
		assert.ErrorIs(t, err, ErrInvalidTopK)
	}
	assert.Empty(t, coll.queries)
}

func TestSearchNoMatches(t *testing.T) {
	s := NewSearcher(&stubCollection{})
	res, err := s.Search(context.Background(), "mars", 5)
	require.NoError(t, err)
	assert.True(t, res.NoMatches())
}

func TestSearchStoreError(t *testing.T) {
	s := NewSearcher(&stubCollection{err: errors.New("disk gone")})
	_, err := s.Search(context.Background(), "mars", 5)
	assert.ErrorContains(t, err, "disk gone")
}

func TestSearchKeyword(t *testing.T) {
	kw := &stubKeyword{hits: []textindex.Hit{
		{ID: "id_2", Text: "I love Mars", Date: "2021-01-01", Score: 2.5},
	}}
	s := NewSearcher(&stubCollection{}, WithKeywordIndex(kw))
	assert.True(t, s.HasKeywordIndex())

	res, err := s.SearchKeyword(context.Background(), "mars", 5)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, float32(2.5), res.Items[0].Score)
	assert.Equal(t, []string{"mars"}, kw.queries)

	_, err = NewSearcher(&stubCollection{}).SearchKeyword(context.Background(), "mars", 5)
	assert.ErrorIs(t, err, ErrNoKeywordIndex)

	_, err = s.SearchKeyword(context.Background(), "mars", 0)
	assert.ErrorIs(t, err, ErrInvalidTopK)
}

func TestSearchKeywordExpandsSynonyms(t *testing.T) {
	kw := &stubKeyword{}
	s := NewSearcher(&stubCollection{},
		WithKeywordIndex(kw),
		WithSynonyms(NewSynonymsExpander(map[string][]string{"spacex": {"starship", "falcon"}})),
	)

	_, err := s.SearchKeyword(context.Background(), "SpaceX news", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"SpaceX news spacex starship falcon"}, kw.queries)
}

func TestSearchHybridBlends(t *testing.T) {
	kw := &stubKeyword{hits: []textindex.Hit{
		{ID: "id_1", Text: "Cybertruck", Date: "2021-01-03", Score: 3},
		{ID: "id_9", Text: "keyword only", Date: "2021-02-01", Score: 1},
	}}
	s := NewSearcher(&stubCollection{matches: tweetMatches()}, WithKeywordIndex(kw))

	res, err := s.SearchHybrid(context.Background(), "cybertruck", HybridOptions{TopK: 3, VectorWeight: 1, KeywordWeight: 1})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	for i := 1; i < len(res.Items); i++ {
		assert.GreaterOrEqual(t, res.Items[i-1].Score, res.Items[i].Score)
	}
	// id_1: 0.5*0.1 + 0.5*1.0 beats id_2: 0.5*0.9.
	assert.Equal(t, "id_1", res.Items[0].ID)
	assert.Contains(t, res.Items[0].Reasons, "top keyword match")
	require.NotNil(t, res.Items[0].Distance)
	assert.InDelta(t, 0.9, *res.Items[0].Distance, 1e-6)
	assert.Equal(t, "id_2", res.Items[1].ID)
}

func TestSearchHybridKeywordOnlyHasNoDistance(t *testing.T) {
	kw := &stubKeyword{hits: []textindex.Hit{
		{ID: "id_9", Text: "keyword only", Date: "2021-02-01", Score: 1},
	}}
	s := NewSearcher(&stubCollection{matches: tweetMatches()}, WithKeywordIndex(kw))

	res, err := s.SearchHybrid(context.Background(), "laundry", HybridOptions{TopK: 4, VectorWeight: 0.1, KeywordWeight: 0.9})
	require.NoError(t, err)

	var found bool
	for _, item := range res.Items {
		if item.ID != "id_9" {
			continue
		}
		found = true
		assert.Nil(t, item.Distance)
		data, err := json.Marshal(item)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "distance")
	}
	assert.True(t, found)
}

func TestSearchHybridFallsBackToSemantic(t *testing.T) {
	s := NewSearcher(&stubCollection{matches: tweetMatches()})
	res, err := s.SearchHybrid(context.Background(), "mars", DefaultHybridOptions(2))
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "id_2", res.Items[0].ID)
	assert.Empty(t, res.Items[0].Reasons)
}

func TestSynonymsExpander(t *testing.T) {
	e := NewSynonymsExpander(map[string][]string{
		"tesla":  {"model 3", "model-y"},
		"spacex": {"starship"},
		"empty":  {" "},
	})

	expanded, matches := e.Expand("new #Tesla model_3 review")
	assert.Equal(t, "new #Tesla model_3 review tesla model 3 model-y", expanded)
	require.Len(t, matches, 1)
	assert.Equal(t, "tesla", matches[0].Canonical)

	// Whole words only.
	expanded, matches = e.Expand("teslas")
	assert.Equal(t, "teslas", expanded)
	assert.Empty(t, matches)

	var nilExpander *SynonymsExpander
	expanded, matches = nilExpander.Expand("mars")
	assert.Equal(t, "mars", expanded)
	assert.Nil(t, matches)

	assert.Nil(t, NewSynonymsExpander(nil))
}

func TestLoadSynonymsFile(t *testing.T) {
	e, err := LoadSynonymsFile("")
	require.NoError(t, err)
	assert.Nil(t, e)

	e, err = LoadSynonymsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Nil(t, e)

	path := filepath.Join(t.TempDir(), "synonyms.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\nsynonyms:\n  mars: [red planet]\n"), 0o644))
	e, err = LoadSynonymsFile(path)
	require.NoError(t, err)
	expanded, _ := e.Expand("the red planet")
	assert.Equal(t, "the red planet mars red planet", expanded)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("synonyms: [oops"), 0o644))
	_, err = LoadSynonymsFile(bad)
	assert.Error(t, err)
}

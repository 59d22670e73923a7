// Package retrieval answers free-text queries against an indexed collection.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/DreamCats/tweetsearch/internal/store"
	"github.com/DreamCats/tweetsearch/internal/textindex"
)

// ErrInvalidTopK rejects a non-positive result count before the store is asked.
var ErrInvalidTopK = errors.New("retrieval: topK must be positive")

// ErrNoKeywordIndex is returned by keyword searches when no index is attached.
var ErrNoKeywordIndex = errors.New("retrieval: keyword index is not available")

// Result is one returned tweet.
type Result struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Date string `json:"date"`
	// Distance is the cosine distance; nil for results only the keyword
	// index found.
	Distance *float32 `json:"distance,omitempty"`
	// Score is higher-is-better: similarity for semantic results, the bleve
	// score for keyword results, the blend for hybrid results.
	Score   float32  `json:"score"`
	Reasons []string `json:"reasons,omitempty"`
}

// Results is the ordered answer to one query.
type Results struct {
	Query string   `json:"query"`
	Items []Result `json:"results"`
	// NoQuery marks a blank query that was never run.
	NoQuery bool `json:"no_query,omitempty"`
}

// NoMatches reports a query that ran and found nothing.
func (r Results) NoMatches() bool {
	return !r.NoQuery && len(r.Items) == 0
}

// KeywordIndex is the full-text side of the searcher.
type KeywordIndex interface {
	Search(ctx context.Context, query string, limit int) ([]textindex.Hit, error)
}

// Searcher runs queries against one collection.
type Searcher struct {
	collection store.Collection
	keyword    KeywordIndex
	synonyms   *SynonymsExpander
	logger     *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithKeywordIndex attaches a full-text index.
func WithKeywordIndex(idx KeywordIndex) Option {
	return func(s *Searcher) { s.keyword = idx }
}

// WithSynonyms expands keyword queries with synonym groups.
func WithSynonyms(e *SynonymsExpander) Option {
	return func(s *Searcher) { s.synonyms = e }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// NewSearcher returns a Searcher over collection.
func NewSearcher(collection store.Collection, opts ...Option) *Searcher {
	s := &Searcher{collection: collection, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasKeywordIndex reports whether keyword and hybrid searches are possible.
func (s *Searcher) HasKeywordIndex() bool {
	return s.keyword != nil
}

// Search embeds query and returns up to topK tweets by ascending distance.
// A blank query returns Results with NoQuery set and never reaches the store.
func (s *Searcher) Search(ctx context.Context, query string, topK int) (Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Results{NoQuery: true}, nil
	}
	if topK <= 0 {
		return Results{Query: query}, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}

	matches, err := s.collection.Query(ctx, store.Query{Text: query, NResults: topK})
	if err != nil {
		return Results{Query: query}, fmt.Errorf("query %s: %w", s.collection.Name(), err)
	}
	s.logger.Debug("semantic search", "query", query, "top_k", topK, "hits", len(matches))

	items := make([]Result, len(matches))
	for i, m := range matches {
		items[i] = Result{
			ID:       m.ID,
			Text:     m.Document,
			Date:     m.Metadata["date"],
			Distance: &m.Distance,
			Score:    1 - m.Distance,
		}
	}
	return Results{Query: query, Items: items}, nil
}

// SearchKeyword matches query words against the full-text index.
func (s *Searcher) SearchKeyword(ctx context.Context, query string, topK int) (Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Results{NoQuery: true}, nil
	}
	if topK <= 0 {
		return Results{Query: query}, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if s.keyword == nil {
		return Results{Query: query}, ErrNoKeywordIndex
	}

	expanded, groups := s.synonyms.Expand(query)
	if len(groups) > 0 {
		s.logger.Debug("keyword query expanded", "query", query, "expanded", expanded)
	}

	hits, err := s.keyword.Search(ctx, expanded, topK)
	if err != nil {
		return Results{Query: query}, fmt.Errorf("keyword search: %w", err)
	}

	items := make([]Result, len(hits))
	for i, h := range hits {
		items[i] = Result{ID: h.ID, Text: h.Text, Date: h.Date, Score: float32(h.Score)}
	}
	return Results{Query: query, Items: items}, nil
}

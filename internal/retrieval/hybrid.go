package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// HybridOptions weights the semantic and keyword sides of a hybrid search.
type HybridOptions struct {
	TopK          int
	VectorWeight  float32
	KeywordWeight float32
}

// DefaultHybridOptions returns default search options
func DefaultHybridOptions(topK int) HybridOptions {
	return HybridOptions{
		TopK:          topK,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
	}
}

// SearchHybrid blends semantic similarity with keyword rank. Each side
// fetches 2*TopK candidates; the blend is sorted by combined score.
func (s *Searcher) SearchHybrid(ctx context.Context, query string, opts HybridOptions) (Results, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Results{NoQuery: true}, nil
	}
	if opts.TopK <= 0 {
		return Results{Query: query}, fmt.Errorf("%w: got %d", ErrInvalidTopK, opts.TopK)
	}
	if s.keyword == nil {
		return s.Search(ctx, query, opts.TopK)
	}

	// Normalize weights
	total := opts.VectorWeight + opts.KeywordWeight
	if total <= 0 {
		opts.VectorWeight, total = 1, 1
	}
	opts.VectorWeight /= total
	opts.KeywordWeight /= total

	semantic, err := s.Search(ctx, query, opts.TopK*2)
	if err != nil {
		return Results{Query: query}, err
	}
	keyword, err := s.SearchKeyword(ctx, query, opts.TopK*2)
	if err != nil {
		return Results{Query: query}, err
	}

	combined := make(map[string]*combinedResult)
	order := make([]string, 0, len(semantic.Items)+len(keyword.Items))
	for _, r := range semantic.Items {
		combined[r.ID] = &combinedResult{item: r, vectorScore: r.Score}
		order = append(order, r.ID)
	}
	for i, r := range keyword.Items {
		// Rank-based so bleve scores and cosine similarity share a scale.
		score := float32(1.0 - float64(i)/float64(len(keyword.Items)))
		if existing, ok := combined[r.ID]; ok {
			existing.keywordScore = score
			continue
		}
		combined[r.ID] = &combinedResult{item: r, keywordScore: score}
		order = append(order, r.ID)
	}

	items := make([]Result, 0, len(combined))
	for _, id := range order {
		c := combined[id]
		item := c.item
		item.Score = opts.VectorWeight*c.vectorScore + opts.KeywordWeight*c.keywordScore
		item.Reasons = generateReasons(c)
		items = append(items, item)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Score > items[j].Score
	})
	if len(items) > opts.TopK {
		items = items[:opts.TopK]
	}
	return Results{Query: query, Items: items}, nil
}

type combinedResult struct {
	item         Result
	vectorScore  float32
	keywordScore float32
}

// generateReasons explains why a result was returned
func generateReasons(c *combinedResult) []string {
	var reasons []string

	if c.vectorScore > 0.7 {
		reasons = append(reasons, "strong semantic similarity")
	} else if c.vectorScore > 0.4 {
		reasons = append(reasons, "moderate semantic similarity")
	}

	if c.keywordScore > 0.7 {
		reasons = append(reasons, "top keyword match")
	} else if c.keywordScore > 0 {
		reasons = append(reasons, "keyword match")
	}

	if len(reasons) == 0 {
		reasons = append(reasons, "match found")
	}
	return reasons
}

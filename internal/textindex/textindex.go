// Package textindex keeps a bleve full-text index beside a vector collection
// so tweets can also be found by exact words.
package textindex

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Doc is one indexed tweet.
type Doc struct {
	Text string `json:"text"`
	Date string `json:"date"`
}

// Hit is a keyword match.
type Hit struct {
	ID    string
	Text  string
	Date  string
	Score float64
}

// Index wraps a bleve index on disk.
type Index struct {
	index bleve.Index
	dir   string
}

// Dir returns the index location for a namespace under the store path.
func Dir(storePath, namespace string) string {
	return filepath.Join(storePath, namespace+".bleve")
}

// Open opens the index at dir, creating it when missing.
func Open(dir string) (*Index, error) {
	index, err := bleve.Open(dir)
	if err == nil {
		return &Index{index: index, dir: dir}, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("create text index dir: %w", err)
	}
	index, err = bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &Index{index: index, dir: dir}, nil
}

// IndexBatch adds docs under ids in one bleve batch.
func (i *Index) IndexBatch(ids []string, docs []Doc) error {
	if len(ids) != len(docs) {
		return fmt.Errorf("ids and docs length mismatch: %d vs %d", len(ids), len(docs))
	}
	batch := i.index.NewBatch()
	for n, id := range ids {
		if err := batch.Index(id, docs[n]); err != nil {
			return fmt.Errorf("index %s: %w", id, err)
		}
	}
	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("apply bleve batch: %w", err)
	}
	return nil
}

// Count returns the number of indexed docs.
func (i *Index) Count() (int, error) {
	n, err := i.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("bleve doc count: %w", err)
	}
	return int(n), nil
}

// Search runs a match query over tweet text and returns up to limit hits in
// score order. A blank query returns nothing.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}

	match := bleve.NewMatchQuery(query)
	match.SetField("text")
	req := bleve.NewSearchRequestOptions(match, limit, 0, false)
	req.Fields = []string{"text", "date"}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{ID: h.ID, Score: h.Score}
		if v, ok := h.Fields["text"].(string); ok {
			hit.Text = v
		}
		if v, ok := h.Fields["date"].(string); ok {
			hit.Date = v
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.index.Close()
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultAnalyzer = "en"
	indexMapping.DefaultField = "text"

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Store = true
	textField.Index = true
	docMapping.AddFieldMappingsAt("text", textField)

	dateField := bleve.NewTextFieldMapping()
	dateField.Store = true
	dateField.Index = false
	dateField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("date", dateField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}

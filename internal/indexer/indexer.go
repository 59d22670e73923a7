// Package indexer wires the embedding service, the vector store and the
// keyword index into one runtime, and builds the collection on first use.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/DreamCats/tweetsearch/internal/config"
	"github.com/DreamCats/tweetsearch/internal/embedding"
	"github.com/DreamCats/tweetsearch/internal/progress"
	"github.com/DreamCats/tweetsearch/internal/retrieval"
	"github.com/DreamCats/tweetsearch/internal/source"
	"github.com/DreamCats/tweetsearch/internal/store"
	"github.com/DreamCats/tweetsearch/internal/textindex"
)

// Indexer holds the process-wide handles: one embedding service, one store,
// one collection for the configured namespace.
type Indexer struct {
	cfg          *config.Config
	logger       *slog.Logger
	embedService *embedding.Service
	store        store.Store
	collection   store.Collection
	keyword      *textindex.Index
	synonyms     *retrieval.SynonymsExpander
}

// NewIndexer opens everything cfg describes. The embedding client itself is
// created lazily on the first encode.
func NewIndexer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	embedService, err := embedding.NewService(&cfg.Embedding, logger.With("component", "embedding"))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	return newIndexer(ctx, cfg, embedService, logger)
}

func newIndexer(ctx context.Context, cfg *config.Config, embedService *embedding.Service, logger *slog.Logger) (*Indexer, error) {
	st, err := store.Open(cfg.Store, cfg.Embedding.Dimensions, embedService, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	collection, err := st.GetOrCreateCollection(ctx, cfg.Store.Namespace)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}

	synonyms, err := retrieval.LoadSynonymsFile(cfg.Search.SynonymsFile)
	if err != nil {
		st.Close()
		return nil, err
	}

	idx := &Indexer{
		cfg:          cfg,
		logger:       logger,
		embedService: embedService,
		store:        st,
		collection:   collection,
		synonyms:     synonyms,
	}

	if cfg.KeywordIndexEnabled() {
		kw, err := textindex.Open(textindex.Dir(cfg.Store.Path, cfg.Store.Namespace))
		if err != nil {
			// Semantic search does not need it.
			logger.Warn("keyword index unavailable", "error", err)
		} else {
			idx.keyword = kw
			idx.warnIfKeywordStale(ctx)
		}
	}
	return idx, nil
}

// warnIfKeywordStale flags a keyword index that does not cover a built
// collection. The build never runs again for that collection, so the index
// will not catch up on its own.
func (idx *Indexer) warnIfKeywordStale(ctx context.Context) {
	count, err := idx.collection.Count(ctx)
	if err != nil || count == 0 {
		return
	}
	docs, err := idx.keyword.Count()
	if err != nil {
		idx.logger.Warn("keyword index count failed", "error", err)
		return
	}
	if docs != count {
		idx.logger.Warn("keyword index does not match the collection; keyword and hybrid search will miss tweets until store.path is removed and rebuilt",
			"collection_count", count,
			"keyword_docs", docs)
	}
}

// Source returns the configured record source.
func (idx *Indexer) Source() source.Source {
	return source.NewFileSource(idx.cfg.Source.Path, source.Format(idx.cfg.Source.Format), idx.logger.With("component", "source"))
}

// EnsureIndex builds the collection from src unless it already holds entries.
func (idx *Indexer) EnsureIndex(ctx context.Context, src source.Source, rep progress.Reporter) (Result, error) {
	b := &Builder{
		Collection:    idx.collection,
		Embedder:      idx.embedService,
		BatchSize:     idx.cfg.Indexer.BatchSize,
		ExpectedTotal: idx.cfg.Source.ExpectedTotal,
		Progress:      rep,
		Logger:        idx.logger.With("component", "indexer"),
	}
	if idx.keyword != nil {
		b.Keyword = idx.keyword
	}
	return b.Build(ctx, src)
}

// Searcher returns a query service over the collection.
func (idx *Indexer) Searcher() *retrieval.Searcher {
	opts := []retrieval.Option{
		retrieval.WithLogger(idx.logger.With("component", "retrieval")),
		retrieval.WithSynonyms(idx.synonyms),
	}
	if idx.keyword != nil {
		opts = append(opts, retrieval.WithKeywordIndex(idx.keyword))
	}
	return retrieval.NewSearcher(idx.collection, opts...)
}

// Stats describes the collection.
type Stats struct {
	Namespace   string `json:"namespace"`
	Backend     string `json:"backend"`
	Location    string `json:"location"`
	Count       int    `json:"count"`
	BuildState  string `json:"build_state,omitempty"`
	KeywordDocs int    `json:"keyword_docs"`
	Model       string `json:"model"`
	Dimensions  int    `json:"dimensions"`

	// Collections and SizeBytes are filled for the sqlite backend only.
	Collections []string `json:"collections,omitempty"`
	SizeBytes   int64    `json:"size_bytes,omitempty"`
}

// Stats reports the collection's size and build marker.
func (idx *Indexer) Stats(ctx context.Context) (*Stats, error) {
	count, err := idx.collection.Count(ctx)
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		Namespace:  idx.cfg.Store.Namespace,
		Backend:    idx.cfg.Store.Backend,
		Location:   idx.cfg.Store.Path,
		Count:      count,
		Model:      idx.embedService.Model(),
		Dimensions: idx.embedService.Dimensions(),
	}
	// A provider that cannot load yet (missing key) still reports its config.
	if stats.Model == "" {
		stats.Model = idx.cfg.Embedding.Model
		stats.Dimensions = idx.cfg.Embedding.Dimensions
	}
	if idx.cfg.Store.Backend == "qdrant" {
		stats.Location = idx.cfg.Store.QdrantURL
	}
	if marker, ok := idx.collection.(store.BuildMarker); ok {
		state, err := marker.BuildState(ctx)
		if err != nil {
			return nil, err
		}
		stats.BuildState = string(state)
	}
	if db, ok := idx.store.(*store.SQLiteStore); ok {
		names, err := db.ListCollections(ctx)
		if err != nil {
			return nil, err
		}
		dbStats, err := db.Stats(ctx)
		if err != nil {
			return nil, err
		}
		stats.Collections = names
		stats.SizeBytes = dbStats.SizeBytes
		stats.Location = db.Path()
	}
	if idx.keyword != nil {
		if n, err := idx.keyword.Count(); err == nil {
			stats.KeywordDocs = n
		}
	}
	return stats, nil
}

// Close releases the store and keyword index.
func (idx *Indexer) Close() error {
	var errs []error
	if idx.keyword != nil {
		errs = append(errs, idx.keyword.Close())
	}
	errs = append(errs, idx.store.Close())
	return errors.Join(errs...)
}

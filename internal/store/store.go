// Package store persists embedded tweets in named collections and answers
// nearest-neighbor queries over them.
//
// A Collection is append-only: entries are added in batches that either land
// completely or not at all, and nothing here updates or deletes an entry.
// Callers must serialize writers to the same collection.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/DreamCats/tweetsearch/internal/config"
)

var (
	// ErrDuplicateID is returned when a batch reuses an id already present in
	// the collection or repeats one within itself.
	ErrDuplicateID = errors.New("store: duplicate id")

	// ErrLengthMismatch is returned when batch columns differ in length.
	ErrLengthMismatch = errors.New("store: batch length mismatch")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the collection's.
	ErrDimensionMismatch = errors.New("store: vector dimension mismatch")

	// ErrNoEmbedder is returned for text queries on a store opened without one.
	ErrNoEmbedder = errors.New("store: text query needs an embedder")

	// ErrEmptyQuery is returned when a query carries neither text nor vector.
	ErrEmptyQuery = errors.New("store: query has neither text nor vector")
)

// Metadata is the per-entry attribute map; tweets carry {"date": ...}.
type Metadata map[string]string

// Entry is one persisted unit.
type Entry struct {
	ID       string
	Vector   []float32
	Document string
	Metadata Metadata
}

// Batch is the column-oriented insert payload. All four slices must have the
// same length.
type Batch struct {
	IDs       []string
	Vectors   [][]float32
	Documents []string
	Metadatas []Metadata
}

// Len returns the number of entries in the batch.
func (b Batch) Len() int { return len(b.IDs) }

// Validate checks column lengths, vector dimensions and in-batch id uniqueness.
func (b Batch) Validate() error {
	n := len(b.IDs)
	if len(b.Vectors) != n || len(b.Documents) != n || len(b.Metadatas) != n {
		return fmt.Errorf("%w: ids=%d vectors=%d documents=%d metadatas=%d",
			ErrLengthMismatch, n, len(b.Vectors), len(b.Documents), len(b.Metadatas))
	}
	seen := make(map[string]struct{}, n)
	for i, id := range b.IDs {
		if id == "" {
			return fmt.Errorf("store: empty id at position %d", i)
		}
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %s repeated in batch", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		if len(b.Vectors[i]) == 0 {
			return fmt.Errorf("store: empty vector for %s", id)
		}
		if len(b.Vectors[i]) != len(b.Vectors[0]) {
			return fmt.Errorf("%w: %s has %d, batch has %d",
				ErrDimensionMismatch, id, len(b.Vectors[i]), len(b.Vectors[0]))
		}
	}
	return nil
}

// Query selects entries by similarity to Text (embedded by the store's
// Embedder) or to Vector. Vector wins when both are set.
type Query struct {
	Text     string
	Vector   []float32
	NResults int
}

// Match is a query hit. Distance is cosine distance, 0 for identical direction.
type Match struct {
	ID       string
	Document string
	Metadata Metadata
	Distance float32
}

// Embedder turns texts into vectors for text queries.
type Embedder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
}

// Store hands out collections by namespace.
type Store interface {
	// GetOrCreateCollection returns the durable collection named name,
	// creating it on first use. It never fails because the collection exists.
	GetOrCreateCollection(ctx context.Context, name string) (Collection, error)
	Close() error
}

// Collection is a named, isolated set of entries.
type Collection interface {
	Name() string
	Count(ctx context.Context) (int, error)
	// Add appends a batch atomically.
	Add(ctx context.Context, batch Batch) error
	// Query returns up to NResults matches ordered by non-decreasing distance.
	// An empty collection yields an empty slice.
	Query(ctx context.Context, q Query) ([]Match, error)
}

// BuildState is the observational build marker some backends keep.
type BuildState string

const (
	BuildUnknown  BuildState = ""
	BuildEmpty    BuildState = "empty"
	BuildIndexing BuildState = "indexing"
	BuildComplete BuildState = "complete"
)

// BuildMarker is implemented by collections that can record build progress.
// The marker never gates a build; it only reports.
type BuildMarker interface {
	BuildState(ctx context.Context) (BuildState, error)
	SetBuildState(ctx context.Context, state BuildState) error
}

// Open opens the backend named in cfg. dims is the embedding dimension, used
// by backends that size collections up front.
func Open(cfg config.StoreConfig, dims int, embedder Embedder, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Backend {
	case "", "sqlite":
		return OpenSQLite(filepath.Join(cfg.Path, "collections.db"), embedder, logger)
	case "qdrant":
		return NewQdrantStore(QdrantConfig{
			URL:    cfg.QdrantURL,
			APIKey: cfg.QdrantAPIKey,
			Dims:   dims,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

// queryVector resolves q to a vector, embedding q.Text when needed.
func queryVector(ctx context.Context, embedder Embedder, q Query) ([]float32, error) {
	if len(q.Vector) > 0 {
		return q.Vector, nil
	}
	if q.Text == "" {
		return nil, ErrEmptyQuery
	}
	if embedder == nil {
		return nil, ErrNoEmbedder
	}
	vecs, err := embedder.Encode(ctx, []string{q.Text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embed query: no vector returned")
	}
	return vecs[0], nil
}

package store

import (
	"container/heap"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/DreamCats/tweetsearch/internal/embedding"
)

// sqliteCollection is one namespace inside a SQLiteStore.
type sqliteCollection struct {
	store *SQLiteStore
	name  string
}

func (c *sqliteCollection) Name() string { return c.name }

// Count returns the number of entries stored
func (c *sqliteCollection) Count(ctx context.Context) (int, error) {
	var count int
	err := c.store.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE collection = ?", c.name).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return count, nil
}

// Add inserts the batch in a single transaction. Any failure, including an id
// that already exists, rolls the whole batch back.
func (c *sqliteCollection) Add(ctx context.Context, batch Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}

	tx, err := c.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	dims, err := collectionDimension(ctx, tx, c.name)
	if err != nil {
		return err
	}
	if dims != 0 && dims != len(batch.Vectors[0]) {
		return fmt.Errorf("%w: collection %s has %d, batch has %d",
			ErrDimensionMismatch, c.name, dims, len(batch.Vectors[0]))
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), -1) + 1 FROM entries WHERE collection = ?", c.name).Scan(&next); err != nil {
		return fmt.Errorf("failed to read sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entries (collection, seq, id, document, metadata, dimension, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, id := range batch.IDs {
		meta, err := json.Marshal(batch.Metadatas[i])
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", id, err)
		}
		vector := batch.Vectors[i]
		if _, err := stmt.ExecContext(ctx, c.name, next+int64(i), id, batch.Documents[i],
			string(meta), len(vector), vectorToBlob(vector)); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s already in collection %s", ErrDuplicateID, id, c.name)
			}
			return fmt.Errorf("failed to insert %s: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE collections SET updated_at = ? WHERE name = ?",
		time.Now().UTC().Format(time.RFC3339), c.name); err != nil {
		return fmt.Errorf("failed to touch collection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Query scans every vector in the collection and keeps the NResults closest
// by cosine distance. Equal distances keep insertion order.
func (c *sqliteCollection) Query(ctx context.Context, q Query) ([]Match, error) {
	if q.NResults <= 0 {
		return nil, fmt.Errorf("store: n_results must be positive, got %d", q.NResults)
	}

	count, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []Match{}, nil
	}

	queryVec, err := queryVector(ctx, c.store.embedder, q)
	if err != nil {
		return nil, err
	}

	rows, err := c.store.sqlDB.QueryContext(ctx,
		"SELECT seq, id, document, metadata, vector FROM entries WHERE collection = ? ORDER BY seq",
		c.name)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", err)
	}
	defer rows.Close()

	top := &matchHeap{}
	for rows.Next() {
		var (
			cand candidate
			meta string
			blob []byte
		)
		if err := rows.Scan(&cand.seq, &cand.match.ID, &cand.match.Document, &meta, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		vector, err := blobToVector(blob)
		if err != nil {
			c.store.logger.Warn("skipping malformed vector", "collection", c.name, "id", cand.match.ID, "error", err)
			continue
		}
		if len(vector) != len(queryVec) {
			return nil, fmt.Errorf("%w: query has %d, entry %s has %d",
				ErrDimensionMismatch, len(queryVec), cand.match.ID, len(vector))
		}
		cand.match.Distance = embedding.CosineDistance(queryVec, vector)

		if top.Len() < q.NResults {
			cand.match.Metadata = decodeMetadata(meta)
			heap.Push(top, cand)
			continue
		}
		if cand.better((*top)[0]) {
			cand.match.Metadata = decodeMetadata(meta)
			(*top)[0] = cand
			heap.Fix(top, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	matches := make([]Match, top.Len())
	for i := len(matches) - 1; i >= 0; i-- {
		matches[i] = heap.Pop(top).(candidate).match
	}
	return matches, nil
}

// BuildState reads the collection's build marker.
func (c *sqliteCollection) BuildState(ctx context.Context) (BuildState, error) {
	var state string
	err := c.store.sqlDB.QueryRowContext(ctx,
		"SELECT build_state FROM collections WHERE name = ?", c.name).Scan(&state)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return BuildUnknown, nil
		}
		return BuildUnknown, fmt.Errorf("failed to read build state: %w", err)
	}
	return BuildState(state), nil
}

// SetBuildState records the collection's build marker.
func (c *sqliteCollection) SetBuildState(ctx context.Context, state BuildState) error {
	_, err := c.store.sqlDB.ExecContext(ctx,
		"UPDATE collections SET build_state = ?, updated_at = ? WHERE name = ?",
		string(state), time.Now().UTC().Format(time.RFC3339), c.name)
	if err != nil {
		return fmt.Errorf("failed to set build state: %w", err)
	}
	return nil
}

func collectionDimension(ctx context.Context, tx *sql.Tx, name string) (int, error) {
	var dims int
	err := tx.QueryRowContext(ctx,
		"SELECT dimension FROM entries WHERE collection = ? LIMIT 1", name).Scan(&dims)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read collection dimension: %w", err)
	}
	return dims, nil
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

func decodeMetadata(raw string) Metadata {
	if raw == "" {
		return Metadata{}
	}
	var meta Metadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil || meta == nil {
		return Metadata{}
	}
	return meta
}

type candidate struct {
	seq   int64
	match Match
}

// better reports whether c ranks ahead of o.
func (c candidate) better(o candidate) bool {
	if c.match.Distance != o.match.Distance {
		return c.match.Distance < o.match.Distance
	}
	return c.seq < o.seq
}

// matchHeap keeps the worst retained candidate at the root.
type matchHeap []candidate

func (h matchHeap) Len() int           { return len(h) }
func (h matchHeap) Less(i, j int) bool { return h[j].better(h[i]) }
func (h matchHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *matchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// vectorToBlob converts a float32 slice to a little-endian binary blob
func vectorToBlob(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:i*4+4], math.Float32bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to a float32 slice
func blobToVector(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("blob size %d is not a multiple of 4", len(blob))
	}
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4 : i*4+4]))
	}
	return vector, nil
}

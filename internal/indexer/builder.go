package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/DreamCats/tweetsearch/internal/progress"
	"github.com/DreamCats/tweetsearch/internal/source"
	"github.com/DreamCats/tweetsearch/internal/store"
	"github.com/DreamCats/tweetsearch/internal/textindex"
)

// State is where a collection stands in the one-shot build.
type State string

const (
	StateEmpty    State = "EMPTY"
	StateIndexing State = "INDEXING"
	StateComplete State = "COMPLETE"
)

// IDPrefix is prepended to the running record number to form entry ids.
const IDPrefix = "id_"

// ErrEmbedding wraps any embedding failure during a build.
var ErrEmbedding = errors.New("indexer: embedding failed")

// KeywordSink receives every batch that lands in the collection.
type KeywordSink interface {
	IndexBatch(ids []string, docs []textindex.Doc) error
}

// Result summarizes one Build call.
type Result struct {
	State State
	// AlreadyBuilt is set when the collection was non-empty on entry and
	// nothing was read.
	AlreadyBuilt bool
	Indexed      int
	// Skipped counts malformed source records.
	Skipped  int
	Batches  int
	Duration time.Duration
}

// Builder fills an empty collection from a record source exactly once.
type Builder struct {
	Collection store.Collection
	Embedder   store.Embedder
	// BatchSize is the window size; values below 1 fall back to 256.
	BatchSize int
	// ExpectedTotal is passed to Progress as the estimated total.
	ExpectedTotal int
	Progress      progress.Reporter
	Keyword       KeywordSink
	Logger        *slog.Logger
}

// Build runs the EMPTY -> INDEXING -> COMPLETE machine. The only gate is the
// collection count observed on entry: a non-empty collection is treated as
// complete and the source is never opened.
func (b *Builder) Build(ctx context.Context, src source.Source) (Result, error) {
	start := time.Now()
	logger := b.logger()

	count, err := b.Collection.Count(ctx)
	if err != nil {
		return Result{State: StateEmpty}, fmt.Errorf("count %s: %w", b.Collection.Name(), err)
	}
	if count > 0 {
		b.warnIfIncomplete(ctx, count)
		logger.Info("collection already built, skipping", "collection", b.Collection.Name(), "count", count)
		return Result{State: StateComplete, AlreadyBuilt: true}, nil
	}

	it, err := src.Open()
	if err != nil {
		return Result{State: StateEmpty}, err
	}
	defer it.Close()

	b.mark(ctx, store.BuildIndexing)
	logger.Info("indexing started", "collection", b.Collection.Name(), "batch_size", b.batchSize())

	res := Result{State: StateIndexing}
	err = foldWindows(it, b.batchSize(), func(window []source.Record) error {
		if err := b.flush(ctx, window, res.Indexed); err != nil {
			return err
		}
		res.Indexed += len(window)
		res.Batches++
		if b.Progress != nil {
			b.Progress.Update(res.Indexed, b.ExpectedTotal)
		}
		return nil
	})
	res.Skipped = it.Skipped()
	if err != nil {
		logger.Error("indexing aborted", "collection", b.Collection.Name(), "indexed", res.Indexed, "error", err)
		return res, err
	}

	if b.Progress != nil {
		b.Progress.Finish()
	}
	b.mark(ctx, store.BuildComplete)

	res.State = StateComplete
	res.Duration = time.Since(start)
	logger.Info("indexing complete",
		"collection", b.Collection.Name(),
		"indexed", res.Indexed,
		"skipped", res.Skipped,
		"batches", res.Batches,
		"duration", res.Duration)
	return res, nil
}

// flush embeds one window and inserts it with ids starting at offset.
func (b *Builder) flush(ctx context.Context, window []source.Record, offset int) error {
	batch := store.Batch{
		IDs:       make([]string, len(window)),
		Documents: make([]string, len(window)),
		Metadatas: make([]store.Metadata, len(window)),
	}
	for i, rec := range window {
		batch.IDs[i] = IDPrefix + strconv.Itoa(offset+i)
		batch.Documents[i] = rec.Text
		batch.Metadatas[i] = store.Metadata{"date": rec.Date}
	}

	vectors, err := b.Embedder.Encode(ctx, batch.Documents)
	if err != nil {
		return fmt.Errorf("%w: records %d-%d: %w", ErrEmbedding, offset, offset+len(window)-1, err)
	}
	batch.Vectors = vectors

	if err := b.Collection.Add(ctx, batch); err != nil {
		return fmt.Errorf("insert records %d-%d: %w", offset, offset+len(window)-1, err)
	}

	if b.Keyword != nil {
		docs := make([]textindex.Doc, len(window))
		for i, rec := range window {
			docs[i] = textindex.Doc{Text: rec.Text, Date: rec.Date}
		}
		if err := b.Keyword.IndexBatch(batch.IDs, docs); err != nil {
			b.logger().Warn("keyword index update failed", "from", batch.IDs[0], "error", err)
		}
	}
	return nil
}

// foldWindows feeds the iterator to fn in windows of size records. The last
// window may be shorter and takes the same path.
func foldWindows(it source.Iterator, size int, fn func([]source.Record) error) error {
	window := make([]source.Record, 0, min(size, 1024))
	for it.Next() {
		window = append(window, it.Record())
		if len(window) < size {
			continue
		}
		if err := fn(window); err != nil {
			return err
		}
		window = window[:0]
	}
	if err := it.Err(); err != nil {
		return err
	}
	if len(window) == 0 {
		return nil
	}
	return fn(window)
}

// warnIfIncomplete flags a collection whose marker says a previous build
// never finished. The count gate still wins.
func (b *Builder) warnIfIncomplete(ctx context.Context, count int) {
	marker, ok := b.Collection.(store.BuildMarker)
	if !ok {
		return
	}
	state, err := marker.BuildState(ctx)
	if err != nil {
		b.logger().Warn("read build state", "collection", b.Collection.Name(), "error", err)
		return
	}
	if state != store.BuildComplete {
		b.logger().Warn("collection is non-empty but its last build did not finish; it may be partial",
			"collection", b.Collection.Name(), "count", count, "build_state", string(state))
	}
}

func (b *Builder) mark(ctx context.Context, state store.BuildState) {
	marker, ok := b.Collection.(store.BuildMarker)
	if !ok {
		return
	}
	if err := marker.SetBuildState(ctx, state); err != nil {
		b.logger().Warn("record build state", "collection", b.Collection.Name(), "state", string(state), "error", err)
	}
}

func (b *Builder) batchSize() int {
	if b.BatchSize < 1 {
		return 256
	}
	return b.BatchSize
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.Default()
	}
	return b.Logger
}

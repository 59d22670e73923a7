package store

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

const (
	payloadID       = "entry_id"
	payloadDocument = "document"
	payloadSeq      = "seq"
	payloadMetaPfx  = "meta_"
)

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	// URL is the Qdrant gRPC address (e.g. "http://localhost:6334").
	URL    string
	APIKey string
	// Dims sizes collections created by this store.
	Dims int
}

// QdrantStore keeps each collection as a Qdrant collection with cosine
// distance. Entry ids are mapped to deterministic UUIDs.
type QdrantStore struct {
	client   *qdrant.Client
	dims     int
	embedder Embedder
	logger   *slog.Logger

	mu          sync.Mutex
	collections map[string]*qdrantCollection
}

// NewQdrantStore connects to the server at cfg.URL.
func NewQdrantStore(cfg QdrantConfig, embedder Embedder, logger *slog.Logger) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Dims <= 0 {
		return nil, fmt.Errorf("qdrant store needs a positive vector dimension, got %d", cfg.Dims)
	}
	if logger == nil {
		logger = slog.Default()
	}

	qcfg, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	qcfg.APIKey = cfg.APIKey

	client, err := qdrant.NewClient(qcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	return &QdrantStore{
		client:      client,
		dims:        cfg.Dims,
		embedder:    embedder,
		logger:      logger.With("component", "store", "backend", "qdrant"),
		collections: make(map[string]*qdrantCollection),
	}, nil
}

func parseQdrantURL(raw string) (*qdrant.Config, error) {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}
	port := 6334
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid qdrant port: %w", err)
		}
		port = p
	}
	return &qdrant.Config{
		Host:   u.Hostname(),
		Port:   port,
		UseTLS: u.Scheme == "https",
	}, nil
}

// Close implements Store.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// GetOrCreateCollection implements Store.
func (s *QdrantStore) GetOrCreateCollection(ctx context.Context, name string) (Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("collection name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.collections[name]; ok {
		return c, nil
	}

	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("qdrant collection check failed: %w", err)
	}
	if !exists {
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant create collection %s: %w", name, err)
		}
		s.logger.Info("collection created", "collection", name, "dims", s.dims)
	}

	c := &qdrantCollection{store: s, name: name}
	s.collections[name] = c
	return c, nil
}

type qdrantCollection struct {
	store *QdrantStore
	name  string
}

func (c *qdrantCollection) Name() string { return c.name }

func (c *qdrantCollection) Count(ctx context.Context) (int, error) {
	n, err := c.store.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count failed: %w", err)
	}
	return int(n), nil
}

// Add checks every id against the collection before a waited upsert, so a
// duplicate rejects the batch before anything is written.
func (c *qdrantCollection) Add(ctx context.Context, batch Batch) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	if batch.Len() == 0 {
		return nil
	}
	if dims := len(batch.Vectors[0]); dims != c.store.dims {
		return fmt.Errorf("%w: collection %s has %d, batch has %d",
			ErrDimensionMismatch, c.name, c.store.dims, dims)
	}

	ids := make([]*qdrant.PointId, batch.Len())
	for i, id := range batch.IDs {
		ids[i] = qdrant.NewID(c.pointID(id))
	}
	existing, err := c.store.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: c.name,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayloadInclude(payloadID),
	})
	if err != nil {
		return fmt.Errorf("qdrant duplicate check failed: %w", err)
	}
	if len(existing) > 0 {
		dup := existing[0].GetPayload()[payloadID].GetStringValue()
		return fmt.Errorf("%w: %s already in collection %s", ErrDuplicateID, dup, c.name)
	}

	base, err := c.Count(ctx)
	if err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, batch.Len())
	for i, id := range batch.IDs {
		payload := map[string]any{
			payloadID:       id,
			payloadDocument: batch.Documents[i],
			payloadSeq:      int64(base + i),
		}
		for k, v := range batch.Metadatas[i] {
			payload[payloadMetaPfx+k] = v
		}
		points[i] = &qdrant.PointStruct{
			Id:      ids[i],
			Vectors: qdrant.NewVectors(batch.Vectors[i]...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	_, err = c.store.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

func (c *qdrantCollection) Query(ctx context.Context, q Query) ([]Match, error) {
	if q.NResults <= 0 {
		return nil, fmt.Errorf("store: n_results must be positive, got %d", q.NResults)
	}
	vector, err := queryVector(ctx, c.store.embedder, q)
	if err != nil {
		return nil, err
	}
	if len(vector) != c.store.dims {
		return nil, fmt.Errorf("%w: query has %d, collection has %d",
			ErrDimensionMismatch, len(vector), c.store.dims)
	}

	limit := uint64(q.NResults)
	points, err := c.store.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search failed: %w", err)
	}

	cands := make([]candidate, 0, len(points))
	for _, point := range points {
		cands = append(cands, pointCandidate(point))
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].better(cands[j]) })

	matches := make([]Match, len(cands))
	for i, cand := range cands {
		matches[i] = cand.match
	}
	return matches, nil
}

func (c *qdrantCollection) pointID(id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(c.name+"/"+id)).String()
}

func pointCandidate(point *qdrant.ScoredPoint) candidate {
	cand := candidate{
		match: Match{
			Metadata: Metadata{},
			Distance: 1 - point.GetScore(),
		},
	}
	for k, v := range point.GetPayload() {
		switch {
		case k == payloadID:
			cand.match.ID = v.GetStringValue()
		case k == payloadDocument:
			cand.match.Document = v.GetStringValue()
		case k == payloadSeq:
			cand.seq = v.GetIntegerValue()
		case strings.HasPrefix(k, payloadMetaPfx):
			cand.match.Metadata[strings.TrimPrefix(k, payloadMetaPfx)] = v.GetStringValue()
		}
	}
	return cand
}

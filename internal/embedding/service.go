package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/DreamCats/tweetsearch/internal/config"
)

// ErrEmptyInput is returned when there is nothing to embed.
var ErrEmptyInput = errors.New("embedding: empty input")

// Client is the interface for embedding providers
type Client interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
}

// BatchError reports a failed provider request covering texts[Start:End].
type BatchError struct {
	Start, End int
	Err        error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("embed texts %d-%d: %v", e.Start, e.End, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Service turns text batches into vectors. The provider client is created
// on first use and reused for the life of the Service.
type Service struct {
	batchSize int
	workers   int
	limiter   *rate.Limiter
	logger    *slog.Logger

	newClient func() (Client, error)
	once      sync.Once
	client    Client
	initErr   error
}

// NewService creates a new embedding service. The provider is validated
// here but not contacted until the first Encode.
func NewService(cfg *config.EmbeddingConfig, logger *slog.Logger) (*Service, error) {
	var factory func() (Client, error)
	switch cfg.Provider {
	case "local":
		factory = func() (Client, error) { return NewLocalClient(cfg.Dimensions), nil }
	case "openai":
		factory = func() (Client, error) { return NewOpenAIClient(cfg) }
	case "volcengine":
		factory = func() (Client, error) { return NewVolcEngineClient(cfg) }
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	svc := newService(factory, cfg.BatchSize, cfg.MaxWorkers, logger)
	if cfg.RequestsPerSecond > 0 {
		svc.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return svc, nil
}

// NewServiceWithClient wraps an existing client.
func NewServiceWithClient(client Client, batchSize, workers int) *Service {
	return newService(func() (Client, error) { return client, nil }, batchSize, workers, nil)
}

func newService(factory func() (Client, error), batchSize, workers int, logger *slog.Logger) *Service {
	if batchSize <= 0 {
		batchSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		batchSize: batchSize,
		workers:   workers,
		logger:    logger,
		newClient: factory,
	}
}

func (s *Service) load() (Client, error) {
	s.once.Do(func() {
		s.client, s.initErr = s.newClient()
		if s.initErr == nil {
			s.logger.Debug("embedding client ready", "model", s.client.Model(), "dimensions", s.client.Dimensions())
		}
	})
	return s.client, s.initErr
}

// Encode returns one vector per text, in input order. Any failed request
// fails the whole call; no partial result is returned.
func (s *Service) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	client, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}

	results := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for start := 0; start < len(texts); start += s.batchSize {
		end := min(start+s.batchSize, len(texts))
		g.Go(func() error {
			if s.limiter != nil {
				if err := s.limiter.Wait(gctx); err != nil {
					return &BatchError{Start: start, End: end, Err: err}
				}
			}
			vecs, err := client.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return &BatchError{Start: start, End: end, Err: err}
			}
			if len(vecs) != end-start {
				return &BatchError{Start: start, End: end,
					Err: fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs))}
			}
			copy(results[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dim := len(results[0])
	for i, v := range results {
		if len(v) == 0 || len(v) != dim {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return results, nil
}

// Dimensions returns the dimension of the embeddings, loading the client if needed.
func (s *Service) Dimensions() int {
	client, err := s.load()
	if err != nil {
		return 0
	}
	return client.Dimensions()
}

// Model returns the provider model name, loading the client if needed.
func (s *Service) Model() string {
	client, err := s.load()
	if err != nil {
		return ""
	}
	return client.Model()
}

package movie

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

// Defaults for bulk writes.
const (
	DefaultBatchSize   = 50
	DefaultConcurrency = 4
)

// ItemResult is the outcome of writing one movie.
type ItemResult struct {
	ID  string
	Err error
}

// OK reports whether the movie was stored.
func (r ItemResult) OK() bool { return r.Err == nil }

// ImportSummary aggregates an import run.
type ImportSummary struct {
	Total    int
	Imported int
	Failed   []ItemResult
}

// ProgressFunc is called after every stored batch with the number of
// processed items so far.
type ProgressFunc func(done, total int)

// Service embeds and stores movies.
type Service struct {
	repo        Repository
	embed       Embedder
	enricher    Enricher
	logger      *zap.Logger
	batchSize   int
	concurrency int
}

// New creates a movie service.
func New(repo Repository, embed Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:        repo,
		embed:       embed,
		logger:      logger,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
}

// WithBatchSize configures how many movies go into one storage write.
func (s *Service) WithBatchSize(n int) *Service {
	if n > 0 {
		s.batchSize = n
	}
	return s
}

// WithConcurrency configures the number of parallel embedding calls.
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// WithEnricher attaches TMDB metadata to movies before they are embedded.
func (s *Service) WithEnricher(e Enricher) *Service {
	s.enricher = e
	return s
}

// EnsureIndex creates the search index if it is missing.
func (s *Service) EnsureIndex(ctx context.Context) error {
	if err := s.repo.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	return nil
}

// Reset drops and recreates the search index.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.repo.DropIndex(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return s.EnsureIndex(ctx)
}

// Get returns a stored movie. Missing movies wrap domain.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (dommovie.Movie, error) {
	m, err := s.repo.Get(ctx, id)
	if err != nil {
		return dommovie.Movie{}, fmt.Errorf("get movie %s: %w", id, err)
	}
	return m, nil
}

// Delete removes a stored movie. Missing movies wrap domain.ErrNotFound.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete movie %s: %w", id, err)
	}
	return nil
}

// Upsert embeds every movie's searchable content and stores the batch.
// Embeddings are attached to the given slice in place. Failures are reported
// per item and results follow the input order.
func (s *Service) Upsert(ctx context.Context, movies []dommovie.Movie) []ItemResult {
	results := make([]ItemResult, len(movies))
	for i := range movies {
		results[i].ID = movies[i].ID()
	}

	embedded := s.embedAll(ctx, movies, results)

	for start := 0; start < len(embedded); start += s.batchSize {
		end := min(start+s.batchSize, len(embedded))
		s.store(ctx, movies, embedded[start:end], results)
	}
	return results
}

// Import validates inputs and upserts them batch by batch. Only context
// cancellation aborts the run; everything else lands in Failed.
func (s *Service) Import(ctx context.Context, inputs []Input, progress ProgressFunc) (ImportSummary, error) {
	summary := ImportSummary{Total: len(inputs)}

	valid := make([]dommovie.Movie, 0, len(inputs))
	for i := range inputs {
		m, err := dommovie.New(inputs[i].Fields())
		if err != nil {
			summary.Failed = append(summary.Failed, ItemResult{ID: string(inputs[i].ID), Err: err})
			continue
		}
		valid = append(valid, m)
	}

	done := len(summary.Failed)
	for start := 0; start < len(valid); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err //nolint:wrapcheck // caller cancellation
		}

		end := min(start+s.batchSize, len(valid))
		for _, r := range s.Upsert(ctx, valid[start:end]) {
			if r.OK() {
				summary.Imported++
			} else {
				summary.Failed = append(summary.Failed, r)
			}
		}

		done += end - start
		if progress != nil {
			progress(done, summary.Total)
		}
	}

	s.logger.Info("Import finished",
		zap.Int("total", summary.Total),
		zap.Int("imported", summary.Imported),
		zap.Int("failed", len(summary.Failed)),
	)
	return summary, nil
}

// embedAll returns the indexes of movies
// that were embedded successfully, in input order.
func (s *Service) embedAll(ctx context.Context, movies []dommovie.Movie, results []ItemResult) []int {
	ok := make([]bool, len(movies))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i := range movies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			if s.enricher != nil && movies[i].TMDBID() > 0 {
				movies[i] = movies[i].WithEnrichment(s.enricher.Enrich(ctx, movies[i].TMDBID()))
			}
			res, err := s.embed.Embed(ctx, movies[i].SearchableContent())
			if err != nil {
				results[i].Err = fmt.Errorf("embed: %w", err)
				s.logger.Warn("Movie embedding failed",
					zap.String("movie_id", movies[i].ID()),
					zap.Error(err),
				)
				return nil
			}
			movies[i] = movies[i].WithEmbedding(res.Embedding)
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	idx := make([]int, 0, len(movies))
	for i, embedded := range ok {
		if embedded {
			idx = append(idx, i)
		}
	}
	return idx
}

func (s *Service) store(ctx context.Context, movies []dommovie.Movie, idx []int, results []ItemResult) {
	batch := make([]dommovie.Movie, len(idx))
	for j, i := range idx {
		batch[j] = movies[i]
	}
	if err := s.repo.Upsert(ctx, batch); err != nil {
		for _, i := range idx {
			results[i].Err = fmt.Errorf("store: %w", err)
		}
		s.logger.Error("Movie batch write failed", zap.Int("size", len(batch)), zap.Error(err))
	}
}

package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/candidate"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/request"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/result"
	"github.com/kailas-cloud/cinefuse/internal/logger"
	"github.com/kailas-cloud/cinefuse/internal/metrics"
)

// Default call timeouts.
const (
	DefaultEmbedTimeout     = 10 * time.Second
	DefaultRetrievalTimeout = 5 * time.Second
)

// Config holds the orchestrator timeouts. Zero values use the defaults.
type Config struct {
	EmbedTimeout     time.Duration
	RetrievalTimeout time.Duration
}

// Service runs hybrid searches: embed, retrieve from both sources concurrently,
// merge, fuse, normalize and finalize.
type Service struct {
	lexical LexicalRetriever
	vector  VectorRetriever
	embed   Embedder
	movies  MovieReader
	cfg     Config
}

// New creates a search service. movies may be nil, in which case boosts never
// fire and results carry no metadata.
func New(lexical LexicalRetriever, vector VectorRetriever, embed Embedder, movies MovieReader, cfg Config) *Service {
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = DefaultEmbedTimeout
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultRetrievalTimeout
	}
	return &Service{lexical: lexical, vector: vector, embed: embed, movies: movies, cfg: cfg}
}

// retrieval is the materialized candidate set shared by every fusion run of a query.
type retrieval struct {
	pipeline pipeline
	merged   []candidate.Merged
	sources  int
	reasons  []result.DegradeReason
}

// Search executes one query under its own fusion configuration.
func (s *Service) Search(ctx context.Context, req *request.Request) (*result.Response, error) {
	start := time.Now()
	strategy := string(req.Fusion().Strategy())

	resp, err := s.search(ctx, req, start)
	metrics.SearchDuration.WithLabelValues(strategy).Observe(time.Since(start).Seconds())
	metrics.SearchRequestsTotal.WithLabelValues(strategy, outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Service) search(ctx context.Context, req *request.Request, start time.Time) (*result.Response, error) {
	r, err := s.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	docs := s.loadBoostDocs(ctx, req, r.merged)
	resp, err := s.rank(ctx, req, req.Fusion(), r, docs)
	if err != nil {
		return nil, err
	}

	s.hydrate(ctx, docs, resp)
	resp.Duration = time.Since(start)
	return resp, nil
}

// Compare retrieves once and ranks the same candidates under every config.
// Responses are returned in config order.
func (s *Service) Compare(
	ctx context.Context, req *request.Request, configs []fusion.Config,
) ([]result.Response, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: at least one fusion strategy is required", domain.ErrInvalidQuery)
	}

	start := time.Now()
	r, err := s.retrieve(ctx, req)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues("compare", outcome(err)).Inc()
		return nil, err
	}

	docs := s.loadBoostDocs(ctx, req, r.merged)
	out := make([]result.Response, 0, len(configs))
	for _, cfg := range configs {
		resp, rankErr := s.rank(ctx, req, cfg, r, docs)
		if rankErr != nil {
			metrics.SearchRequestsTotal.WithLabelValues("compare", outcome(rankErr)).Inc()
			return nil, rankErr
		}
		out = append(out, *resp)
	}

	if docs == nil {
		docs = s.loadDocs(ctx, collectIDs(out))
	}
	for i := range out {
		s.hydrate(ctx, docs, &out[i])
		out[i].Duration = time.Since(start)
	}
	metrics.SearchRequestsTotal.WithLabelValues("compare", outcome(nil)).Inc()
	return out, nil
}

// retrieve runs the Received → Retrieving stages and merges the candidates.
func (s *Service) retrieve(ctx context.Context, req *request.Request) (retrieval, error) {
	log := logger.FromContext(ctx)
	var r retrieval

	wantLexical := req.Mode().WantsLexical()
	wantVector := req.Mode().WantsVector()
	vector := req.Vector()

	if wantVector && !req.HasVector() {
		if err := r.pipeline.advance(EmbeddingRequested); err != nil {
			return r, err
		}
		v, err := s.embedQuery(ctx, req.Text())
		switch {
		case ctx.Err() != nil:
			r.pipeline.fail()
			return r, ctx.Err() //nolint:wrapcheck // caller cancellation is returned as is
		case err != nil:
			log.Warn("embedding unavailable, continuing with lexical signal only", zap.Error(err))
			r.degrade(result.EmbeddingUnavailable)
			wantVector, wantLexical = false, true
		default:
			vector = v
		}
	}

	if err := r.pipeline.advance(Retrieving); err != nil {
		return r, err
	}

	var (
		lexical, semantic []candidate.Retrieved
		lexErr, vecErr    error
	)
	g, gctx := errgroup.WithContext(ctx)
	if wantLexical {
		g.Go(func() error {
			lexical, lexErr = s.retrieveLexical(gctx, req)
			return nil
		})
	}
	if wantVector {
		g.Go(func() error {
			semantic, vecErr = s.retrieveVector(gctx, req, vector)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		r.pipeline.fail()
		return r, err //nolint:wrapcheck // caller cancellation is returned as is
	}

	if lexErr != nil {
		log.Warn("lexical retrieval failed", zap.Error(lexErr))
		r.degrade(result.LexicalUnavailable)
	}
	if vecErr != nil {
		log.Warn("vector retrieval failed", zap.Error(vecErr))
		r.degrade(result.VectorUnavailable)

		// A semantic query keeps a signal by falling back to the lexical source.
		if !wantLexical {
			lexical, lexErr = s.retrieveLexical(ctx, req)
			if ctx.Err() != nil {
				r.pipeline.fail()
				return r, ctx.Err() //nolint:wrapcheck // caller cancellation is returned as is
			}
			if lexErr != nil {
				r.degrade(result.LexicalUnavailable)
			}
		}
	}

	lexOK := lexErr == nil && (wantLexical || vecErr != nil)
	vecOK := vecErr == nil && wantVector
	if !lexOK && !vecOK {
		r.pipeline.fail()
		return r, fmt.Errorf("%w: no relevance signal available: %w",
			domain.ErrRetrievalUnavailable, errors.Join(lexErr, vecErr))
	}

	if err := r.pipeline.advance(Merging); err != nil {
		return r, err
	}
	r.merged = merge(lexical, semantic)
	r.sources = activeSources(r.merged)

	if len(r.reasons) > 0 {
		for _, reason := range r.reasons {
			metrics.SearchDegradedTotal.WithLabelValues(string(reason)).Inc()
		}
		log.Info("search degraded", zap.Any("reasons", r.reasons))
	}
	return r, nil
}

// rank runs the Fusing → Completed stages over a forked pipeline.
func (s *Service) rank(
	ctx context.Context, req *request.Request, cfg fusion.Config,
	r retrieval, docs map[string]movie.Movie,
) (*result.Response, error) {
	p := r.pipeline
	log := logger.FromContext(ctx)

	if err := p.advance(Fusing); err != nil {
		return nil, s.invariant(ctx, err)
	}
	items, err := fuse(r.merged, cfg)
	if err != nil {
		p.fail()
		return nil, s.invariant(ctx, err)
	}
	if cfg.Strategy() == fusion.WeightedSum {
		logScaleMismatch(log, r.merged)
	}

	if err = p.advance(Normalizing); err != nil {
		return nil, s.invariant(ctx, err)
	}
	raw := make([]float64, len(items))
	for i := range items {
		raw[i] = items[i].raw
	}
	normalized := normalize(raw, cfg, r.sources)

	if err = p.advance(Finalizing); err != nil {
		return nil, s.invariant(ctx, err)
	}
	results, total, err := finalize(score(items, normalized), finalizeInput{
		boosts:   req.Boosts(),
		docs:     docs,
		terms:    terms(req.Text()),
		minScore: req.MinScore(),
		limit:    req.Limit(),
	})
	if err != nil {
		p.fail()
		return nil, s.invariant(ctx, err)
	}

	if err = p.advance(Completed); err != nil {
		return nil, s.invariant(ctx, err)
	}

	return &result.Response{
		Query:    req.Text(),
		Mode:     req.Mode(),
		Fusion:   cfg,
		Results:  results,
		Total:    total,
		Degraded: len(r.reasons) > 0,
		Reasons:  slices.Clone(r.reasons),
	}, nil
}

func (s *Service) embedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.embed == nil {
		return nil, fmt.Errorf("%w: no embedder configured", domain.ErrEmbeddingUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	res, err := s.embed.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(res.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", domain.ErrEmbeddingUnavailable)
	}
	return res.Embedding, nil
}

func (s *Service) retrieveLexical(ctx context.Context, req *request.Request) ([]candidate.Retrieved, error) {
	if s.lexical == nil {
		return nil, fmt.Errorf("%w: no lexical source configured", domain.ErrRetrievalUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.lexical.RetrieveLexical(ctx, req.Text(), req.CandidateCap(), req.Filter())
	metrics.RetrievalDuration.WithLabelValues(string(candidate.Lexical)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalErrorsTotal.WithLabelValues(string(candidate.Lexical)).Inc()
		return nil, fmt.Errorf("retrieve lexical: %w", err)
	}
	return out, nil
}

func (s *Service) retrieveVector(
	ctx context.Context, req *request.Request, vector []float32,
) ([]candidate.Retrieved, error) {
	if s.vector == nil {
		return nil, fmt.Errorf("%w: no vector source configured", domain.ErrRetrievalUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RetrievalTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.vector.RetrieveVector(ctx, vector, req.CandidateCap(), req.Filter())
	metrics.RetrievalDuration.WithLabelValues(string(candidate.Vector)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RetrievalErrorsTotal.WithLabelValues(string(candidate.Vector)).Inc()
		return nil, fmt.Errorf("retrieve vector: %w", err)
	}
	return out, nil
}

// loadBoostDocs loads documents for every candidate when boosts are requested,
// since a boost can lift a candidate above minScore. Returns nil otherwise.
func (s *Service) loadBoostDocs(ctx context.Context, req *request.Request, merged []candidate.Merged) map[string]movie.Movie {
	if len(req.Boosts()) == 0 || len(merged) == 0 {
		return nil
	}
	ids := make([]string, len(merged))
	for i, m := range merged {
		ids[i] = m.ID()
	}
	return s.loadDocs(ctx, ids)
}

func (s *Service) loadDocs(ctx context.Context, ids []string) map[string]movie.Movie {
	if s.movies == nil || len(ids) == 0 {
		return nil
	}
	docs, err := s.movies.GetMany(ctx, ids)
	if err != nil {
		logger.FromContext(ctx).Warn("movie metadata unavailable", zap.Int("ids", len(ids)), zap.Error(err))
		return nil
	}
	return docs
}

// hydrate attaches metadata to the results. docs, when already loaded for
// boosting, is reused.
func (s *Service) hydrate(ctx context.Context, docs map[string]movie.Movie, resp *result.Response) {
	if len(resp.Results) == 0 {
		return
	}
	if docs == nil {
		docs = s.loadDocs(ctx, resp.IDs())
	}
	for i, r := range resp.Results {
		if m, ok := docs[r.ID()]; ok {
			resp.Results[i] = r.WithMovie(&m)
		}
	}
}

func (s *Service) invariant(ctx context.Context, err error) error {
	logger.FromContext(ctx).Error("search invariant violated", zap.Error(err))
	return err
}

func (r *retrieval) degrade(reason result.DegradeReason) {
	if !slices.Contains(r.reasons, reason) {
		r.reasons = append(r.reasons, reason)
	}
}

// logScaleMismatch flags weighted sums over sources whose raw ranges differ by
// more than an order of magnitude.
func logScaleMismatch(log *zap.Logger, merged []candidate.Merged) {
	lexLo, lexHi := math.Inf(1), math.Inf(-1)
	vecLo, vecHi := math.Inf(1), math.Inf(-1)
	for _, m := range merged {
		if sig, ok := m.Lexical(); ok {
			lexLo, lexHi = math.Min(lexLo, sig.Score), math.Max(lexHi, sig.Score)
		}
		if sig, ok := m.Vector(); ok {
			vecLo, vecHi = math.Min(vecLo, sig.Score), math.Max(vecHi, sig.Score)
		}
	}
	if math.IsInf(lexHi, -1) || math.IsInf(vecHi, -1) || vecHi <= 0 {
		return
	}
	if ratio := lexHi / vecHi; ratio > 10 || ratio < 0.1 {
		log.Debug("weighted sum over mismatched score scales",
			zap.Float64s("lexical_range", []float64{lexLo, lexHi}),
			zap.Float64s("vector_range", []float64{vecLo, vecHi}),
		)
	}
}

func collectIDs(rs []result.Response) []string {
	seen := make(map[string]struct{})
	var ids []string
	for i := range rs {
		for _, id := range rs[i].IDs() {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		return "unavailable"
	}
	return "error"
}

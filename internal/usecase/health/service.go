package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates search still answers with fewer signals
	// (lexical-only while the embedding provider is down).
	Degraded Status = "degraded"
	// Unhealthy indicates search cannot answer at all.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Component names in Report.Checks.
const (
	ComponentDatabase  = "database"
	ComponentIndex     = "index"
	ComponentEmbedding = "embedding"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

var errIndexMissing = errors.New("movie index does not exist")

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	db        DBPinger
	index     IndexChecker
	embedding EmbeddingChecker
	timeout   time.Duration
	logger    *zap.Logger
}

// New creates a Service. embedding can be nil.
func New(db DBPinger, embedding EmbeddingChecker) *Service {
	return &Service{db: db, embedding: embedding, timeout: DefaultCheckTimeout, logger: zap.NewNop()}
}

// WithIndex adds the search index check.
func (s *Service) WithIndex(index IndexChecker) *Service {
	s.index = index
	return s
}

// WithTimeout configures the per-component timeout.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithLogger sets the logger used to report failing components.
func (s *Service) WithLogger(l *zap.Logger) *Service {
	if l != nil {
		s.logger = l
	}
	return s
}

// Check runs all component checks concurrently. A failing database or
// missing index makes search impossible; a failing embedding provider
// only removes the semantic signal.
func (s *Service) Check(ctx context.Context) Report {
	var (
		mu     sync.Mutex
		checks = make(map[string]CheckResult)
		g      errgroup.Group
	)

	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			result := CheckOK
			if err := fn(cctx); err != nil {
				result = CheckError
				s.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			}
			mu.Lock()
			checks[name] = result
			mu.Unlock()
			return nil
		})
	}

	run(ComponentDatabase, s.db.Ping)
	if s.index != nil {
		run(ComponentIndex, func(ctx context.Context) error {
			ok, err := s.index.IndexReady(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return errIndexMissing
			}
			return nil
		})
	}
	if s.embedding != nil {
		run(ComponentEmbedding, s.embedding.HealthCheck)
	}
	_ = g.Wait()

	return Report{Status: aggregate(checks), Checks: checks}
}

func aggregate(checks map[string]CheckResult) Status {
	if checks[ComponentDatabase] == CheckError || checks[ComponentIndex] == CheckError {
		return Unhealthy
	}
	if checks[ComponentEmbedding] == CheckError {
		return Degraded
	}
	return Healthy
}

package result

import (
	"time"

	"github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/mode"
)

// Breakdown explains how a result's score was produced.
// A nil raw score or a zero rank means the source did not return the movie.
type Breakdown struct {
	LexicalRaw  *float64
	VectorRaw   *float64
	LexicalRank int
	VectorRank  int
	FusedRaw    float64
}

// Boost records a field boost that fired for a result.
type Boost struct {
	Field  string
	Factor float64
}

// Scored is a single ranked hit.
type Scored struct {
	id        string
	score     float64
	breakdown Breakdown
	boosts    []Boost
	movie     *movie.Movie
}

// New creates a scored result with a normalized score in [0, 100].
func New(id string, score float64, breakdown Breakdown) Scored {
	return Scored{id: id, score: score, breakdown: breakdown}
}

// ID returns the logical movie id.
func (s *Scored) ID() string { return s.id }

// Score returns the normalized score after boosts.
func (s *Scored) Score() float64 { return s.score }

// FusedRaw returns the strategy output before normalization.
func (s *Scored) FusedRaw() float64 { return s.breakdown.FusedRaw }

// Breakdown returns the per-source contributions.
func (s *Scored) Breakdown() Breakdown { return s.breakdown }

// Boosts returns the boosts applied, in application order.
func (s *Scored) Boosts() []Boost { return s.boosts }

// Movie returns the hydrated metadata, or nil when hydration was skipped or failed.
func (s *Scored) Movie() *movie.Movie { return s.movie }

// WithBoost returns a copy with the score replaced and the boost recorded.
func (s Scored) WithBoost(b Boost, score float64) Scored {
	s.boosts = append(s.boosts[:len(s.boosts):len(s.boosts)], b)
	s.score = score
	return s
}

// WithMovie returns a copy carrying movie metadata.
func (s Scored) WithMovie(m *movie.Movie) Scored {
	s.movie = m
	return s
}

// DegradeReason names a signal that was requested but could not be used.
type DegradeReason string

// Degradation reasons.
const (
	EmbeddingUnavailable DegradeReason = "embedding_unavailable"
	LexicalUnavailable   DegradeReason = "lexical_unavailable"
	VectorUnavailable    DegradeReason = "vector_unavailable"
)

// Response is the outcome of one search.
type Response struct {
	Query    string
	Mode     mode.Mode
	Fusion   fusion.Config
	Results  []Scored
	Total    int
	Degraded bool
	Reasons  []DegradeReason
	Duration time.Duration
}

// IDs returns the result ids in rank order.
func (r *Response) IDs() []string {
	ids := make([]string, len(r.Results))
	for i := range r.Results {
		ids[i] = r.Results[i].ID()
	}
	return ids
}

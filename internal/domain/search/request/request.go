package request

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/mode"
)

// Search parameter limits.
const (
	// MaxQueryLength is the maximum allowed search query length.
	MaxQueryLength      = 4096
	DefaultCandidateCap = 100
	MaxCandidateCap     = 500
	DefaultLimit        = 20
	MaxLimit            = 100
	MaxScore            = 100
)

// BoostFields lists the movie fields a boost may target, in application order.
var BoostFields = []string{"genres", "overview", "title"}

// Defaults carries the deployment-wide values applied when a query leaves a
// parameter unset. Zero fields fall back to the package constants.
type Defaults struct {
	Limit        int
	MaxLimit     int
	CandidateCap int
	Fusion       fusion.Config
	FusionParams fusion.Params // deployment parameters a query falls back to
	Boosts       map[string]float64
}

// Params is the raw, unvalidated query input.
type Params struct {
	Text         string
	Vector       []float32
	Mode         mode.Mode
	Filter       filter.Filter
	Fusion       fusion.Config
	Boosts       map[string]float64
	Limit        int
	CandidateCap int
	MinScore     float64
}

// Request is a validated search query.
type Request struct {
	text         string
	vector       []float32
	searchMode   mode.Mode
	filter       filter.Filter
	fusion       fusion.Config
	boosts       map[string]float64
	limit        int
	candidateCap int
	minScore     float64
}

// New validates and normalizes search parameters against d.
// Defaults: mode=hybrid, fusion=rrf(k=60), limit=20, candidate cap=100.
// Every validation failure wraps domain.ErrInvalidQuery.
func New(p Params, d Defaults) (Request, error) {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return Request{}, invalid("query text is required")
	}
	if len(text) > MaxQueryLength {
		return Request{}, invalid("query too long (max %d chars)", MaxQueryLength)
	}

	m := p.Mode
	if m == "" {
		m = mode.Hybrid
	}
	if !m.IsValid() {
		return Request{}, invalid("invalid search mode: %q", m)
	}

	if p.Vector != nil {
		if len(p.Vector) == 0 {
			return Request{}, invalid("query vector is empty")
		}
		for i, v := range p.Vector {
			if !finite(float64(v)) {
				return Request{}, invalid("query vector has non-finite component at %d", i)
			}
		}
	}

	maxLimit := orInt(d.MaxLimit, MaxLimit)
	limit := p.Limit
	switch {
	case limit < 0:
		return Request{}, invalid("limit must be positive, got %d", limit)
	case limit == 0:
		limit = orInt(d.Limit, DefaultLimit)
	}
	limit = min(limit, maxLimit)

	candidateCap := p.CandidateCap
	switch {
	case candidateCap < 0:
		return Request{}, invalid("candidate cap must be positive, got %d", candidateCap)
	case candidateCap == 0:
		candidateCap = orInt(d.CandidateCap, DefaultCandidateCap)
	}
	candidateCap = min(max(candidateCap, limit), MaxCandidateCap)

	if !finite(p.MinScore) || p.MinScore < 0 || p.MinScore > MaxScore {
		return Request{}, invalid("min_score must be between 0 and %d", MaxScore)
	}

	cfg := p.Fusion
	if cfg.IsZero() {
		cfg = d.Fusion
	}
	if cfg.IsZero() {
		cfg = fusion.Default()
	}

	boosts := p.Boosts
	if boosts == nil {
		boosts = d.Boosts
	}
	cleaned, err := validateBoosts(boosts)
	if err != nil {
		return Request{}, err
	}

	return Request{
		text:         text,
		vector:       p.Vector,
		searchMode:   m,
		filter:       p.Filter,
		fusion:       cfg,
		boosts:       cleaned,
		limit:        limit,
		candidateCap: candidateCap,
		minScore:     p.MinScore,
	}, nil
}

func validateBoosts(in map[string]float64) (map[string]float64, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(in))
	for field, factor := range in {
		name := strings.ToLower(strings.TrimSpace(field))
		if !slices.Contains(BoostFields, name) {
			return nil, invalid("unknown boost field %q (allowed: %s)", field, strings.Join(BoostFields, ", "))
		}
		if !finite(factor) || factor <= 0 {
			return nil, invalid("boost factor for %q must be a positive number", name)
		}
		out[name] = factor
	}
	return out, nil
}

// Text returns the trimmed query text.
func (r *Request) Text() string { return r.text }

// Vector returns the caller-supplied query vector, or nil when it must be embedded.
func (r *Request) Vector() []float32 { return r.vector }

// HasVector reports whether the query arrived pre-embedded.
func (r *Request) HasVector() bool { return len(r.vector) > 0 }

// Mode returns the requested signals.
func (r *Request) Mode() mode.Mode { return r.searchMode }

// Filter returns the pre-filter applied by both sources.
func (r *Request) Filter() filter.Filter { return r.filter }

// Fusion returns the fusion configuration.
func (r *Request) Fusion() fusion.Config { return r.fusion }

// Boosts returns the field boost factors keyed by field name.
func (r *Request) Boosts() map[string]float64 { return r.boosts }

// Limit returns the maximum number of results to return.
func (r *Request) Limit() int { return r.limit }

// CandidateCap returns the per-source retrieval cap.
func (r *Request) CandidateCap() int { return r.candidateCap }

// MinScore returns the minimum normalized score a result must reach.
func (r *Request) MinScore() float64 { return r.minScore }

// WithFusion returns a copy evaluated under another fusion configuration.
func (r Request) WithFusion(cfg fusion.Config) Request {
	r.fusion = cfg
	return r
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrInvalidQuery, fmt.Sprintf(format, args...))
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

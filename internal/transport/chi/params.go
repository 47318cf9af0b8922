package chi

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/mode"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/request"
)

// searchParams is the transport-neutral search input shared by GET and POST.
type searchParams struct {
	query          string
	limit          *int
	candidateCap   *int
	mode           *string
	strategies     []string
	keywordWeight  *float64
	semanticWeight *float64
	k              *float64
	alpha          *float64
	minScore       *float64
	genres         []string
	yearFrom       *int
	yearTo         *int
	boosts         map[string]float64
	vector         []float32
}

// paramError is a query parameter that failed to bind.
type paramError struct {
	param string
	err   error
}

func (e *paramError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.param, e.err)
}

// bindSearchQuery binds GET query parameters. genre, strategy and boost are
// repeatable (form style, exploded).
func bindSearchQuery(r *http.Request) (searchParams, error) {
	q := r.URL.Query()
	p := searchParams{query: q.Get("q")}

	var (
		strategy *[]string
		genres   *[]string
		boosts   *[]string
	)
	binds := []struct {
		name string
		dest any
	}{
		{"limit", &p.limit},
		{"candidate_cap", &p.candidateCap},
		{"mode", &p.mode},
		{"strategy", &strategy},
		{"keyword_weight", &p.keywordWeight},
		{"semantic_weight", &p.semanticWeight},
		{"k", &p.k},
		{"alpha", &p.alpha},
		{"min_score", &p.minScore},
		{"genre", &genres},
		{"year_from", &p.yearFrom},
		{"year_to", &p.yearTo},
		{"boost", &boosts},
	}
	for _, b := range binds {
		if err := bindOptional(q, b.name, b.dest); err != nil {
			return searchParams{}, err
		}
	}

	if strategy != nil {
		p.strategies = *strategy
	}
	if genres != nil {
		p.genres = *genres
	}
	if boosts != nil {
		parsed, err := parseBoosts(*boosts)
		if err != nil {
			return searchParams{}, &paramError{param: "boost", err: err}
		}
		p.boosts = parsed
	}
	return p, nil
}

func bindOptional(q url.Values, name string, dest any) error {
	if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
		return &paramError{param: name, err: err}
	}
	return nil
}

func searchParamsFromBody(b *SearchBody) searchParams {
	p := searchParams{
		query:          b.Query,
		limit:          b.Limit,
		candidateCap:   b.CandidateCap,
		mode:           b.Mode,
		keywordWeight:  b.KeywordWeight,
		semanticWeight: b.SemanticWeight,
		k:              b.K,
		alpha:          b.Alpha,
		minScore:       b.MinScore,
		genres:         b.Genres,
		yearFrom:       b.YearFrom,
		yearTo:         b.YearTo,
		boosts:         b.Boosts,
		vector:         b.Vector,
	}
	if b.Strategy != nil {
		p.strategies = []string{*b.Strategy}
	}
	return p
}

// parseBoosts turns "title:2" pairs into a factor map.
func parseBoosts(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		field, raw, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("%q: want field:factor", pair)
		}
		factor, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("%q: factor is not a number", pair)
		}
		out[strings.TrimSpace(field)] = factor
	}
	return out, nil
}

func (p *searchParams) fusionParams() fusion.Params {
	return fusion.Params{
		KeywordWeight:  p.keywordWeight,
		SemanticWeight: p.semanticWeight,
		K:              p.k,
		Alpha:          p.alpha,
	}
}

// fusionFor resolves the single strategy of a search. With no strategy and no
// parameters the deployment default stands.
func (p *searchParams) fusionFor(d request.Defaults) (fusion.Config, error) {
	var name string
	if len(p.strategies) > 0 {
		name = p.strategies[0]
	}
	fp := p.fusionParams()
	if strings.TrimSpace(name) == "" && fp == (fusion.Params{}) {
		return fusion.Config{}, nil
	}
	cfg, err := fusion.Resolve(name, fp, d.FusionParams, d.Fusion.Strategy())
	if err != nil {
		return fusion.Config{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}
	return cfg, nil
}

// toRequest validates the parameters under the deployment defaults.
func (p *searchParams) toRequest(d request.Defaults) (request.Request, error) {
	f, err := filter.New(p.genres, p.yearFrom, p.yearTo)
	if err != nil {
		return request.Request{}, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
	}

	cfg, err := p.fusionFor(d)
	if err != nil {
		return request.Request{}, err
	}

	rp := request.Params{
		Text:     p.query,
		Vector:   p.vector,
		Filter:   f,
		Fusion:   cfg,
		Boosts:   p.boosts,
		Limit:    deref(p.limit),
		MinScore: deref(p.minScore),
	}
	if p.mode != nil {
		rp.Mode = mode.Mode(strings.ToLower(strings.TrimSpace(*p.mode)))
	}
	if p.candidateCap != nil {
		rp.CandidateCap = *p.candidateCap
	}

	req, err := request.New(rp, d)
	if err != nil {
		return request.Request{}, fmt.Errorf("build search request: %w", err)
	}
	return req, nil
}

// compareConfigs resolves every requested strategy; none selects all three.
// Each strategy takes the parameters it understands from the query, then from
// the deployment.
func (p *searchParams) compareConfigs(d request.Defaults) ([]fusion.Config, error) {
	names := p.strategies
	if len(names) == 0 {
		names = []string{string(fusion.WeightedSum), string(fusion.RRF), string(fusion.AlphaBlend)}
	}
	fp := p.fusionParams().Or(d.FusionParams)
	configs := make([]fusion.Config, 0, len(names))
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		cfg, err := fusion.Parse(name, fp)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrInvalidQuery, err)
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// Package fusion holds the per-query fusion configuration: a tagged variant over
// weighted sum, Reciprocal Rank Fusion and alpha blending.
package fusion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Strategy identifies a fusion algorithm.
type Strategy string

// Supported strategies.
const (
	WeightedSum Strategy = "weighted"
	RRF         Strategy = "rrf"
	AlphaBlend  Strategy = "alpha"
)

// Defaults.
const (
	DefaultRRFK           = 60.0
	DefaultAlpha          = 0.5
	DefaultKeywordWeight  = 0.5
	DefaultSemanticWeight = 0.5
)

// Config is an immutable fusion configuration. Only the fields of its strategy are meaningful.
type Config struct {
	strategy       Strategy
	keywordWeight  float64
	semanticWeight float64
	k              float64
	alpha          float64
}

// Params carries optional strategy parameters; nil means "use the default".
type Params struct {
	KeywordWeight  *float64
	SemanticWeight *float64
	K              *float64
	Alpha          *float64
}

// NewWeightedSum creates a weighted-sum config. Weights are clamped to [0,1].
func NewWeightedSum(keywordWeight, semanticWeight float64) (Config, error) {
	if !finite(keywordWeight) || !finite(semanticWeight) {
		return Config{}, fmt.Errorf("weights must be finite")
	}
	return Config{
		strategy:       WeightedSum,
		keywordWeight:  clamp01(keywordWeight),
		semanticWeight: clamp01(semanticWeight),
	}, nil
}

// NewRRF creates a Reciprocal Rank Fusion config with smoothing constant k > 0.
func NewRRF(k float64) (Config, error) {
	if !finite(k) || k <= 0 {
		return Config{}, fmt.Errorf("rrf k must be a positive finite number, got %v", k)
	}
	return Config{strategy: RRF, k: k}, nil
}

// NewAlphaBlend creates an alpha-blend config. Alpha is clamped to [0,1]:
// 0 is keyword-only, 1 is semantic-only.
func NewAlphaBlend(alpha float64) (Config, error) {
	if !finite(alpha) {
		return Config{}, fmt.Errorf("alpha must be finite")
	}
	return Config{strategy: AlphaBlend, alpha: clamp01(alpha)}, nil
}

// Default returns RRF with k=60.
func Default() Config {
	return Config{strategy: RRF, k: DefaultRRFK}
}

// Parse builds a config from a strategy name and optional parameters.
// An empty name selects the default strategy.
func Parse(name string, p Params) (Config, error) {
	if strings.TrimSpace(name) == "" {
		if p.K != nil {
			return NewRRF(*p.K)
		}
		return Default(), nil
	}

	s, err := ParseStrategy(name)
	if err != nil {
		return Config{}, err
	}

	switch s {
	case WeightedSum:
		return NewWeightedSum(
			orDefault(p.KeywordWeight, DefaultKeywordWeight),
			orDefault(p.SemanticWeight, DefaultSemanticWeight),
		)
	case RRF:
		return NewRRF(orDefault(p.K, DefaultRRFK))
	case AlphaBlend:
		return NewAlphaBlend(orDefault(p.Alpha, DefaultAlpha))
	}
	return Config{}, fmt.Errorf("unknown fusion strategy %q", name)
}

// Resolve builds a single query's config. q holds the parameters the query set
// and base the deployment's, used for anything q leaves unset. Without a name
// the strategy is inferred from q (weights, k or alpha) and falls back to def.
// Parameters of another strategy are rejected rather than silently dropped.
func Resolve(name string, q, base Params, def Strategy) (Config, error) {
	var s Strategy
	if strings.TrimSpace(name) != "" {
		var err error
		if s, err = ParseStrategy(name); err != nil {
			return Config{}, err
		}
	} else {
		inferred := q.strategies()
		switch len(inferred) {
		case 0:
			s = def
		case 1:
			s = inferred[0]
		default:
			return Config{}, fmt.Errorf("parameters of %s and %s cannot be combined", inferred[0], inferred[1])
		}
	}
	if s == "" {
		s = RRF
	}

	for _, other := range q.strategies() {
		if other != s {
			return Config{}, fmt.Errorf("%s parameters do not apply to the %s strategy", other, s)
		}
	}
	return Parse(string(s), q.Or(base))
}

// Or returns p with every unset field taken from fallback.
func (p Params) Or(fallback Params) Params {
	pick := func(a, b *float64) *float64 {
		if a != nil {
			return a
		}
		return b
	}
	return Params{
		KeywordWeight:  pick(p.KeywordWeight, fallback.KeywordWeight),
		SemanticWeight: pick(p.SemanticWeight, fallback.SemanticWeight),
		K:              pick(p.K, fallback.K),
		Alpha:          pick(p.Alpha, fallback.Alpha),
	}
}

// strategies lists, in declaration order, the strategies whose parameters are set.
func (p Params) strategies() []Strategy {
	var out []Strategy
	if p.KeywordWeight != nil || p.SemanticWeight != nil {
		out = append(out, WeightedSum)
	}
	if p.K != nil {
		out = append(out, RRF)
	}
	if p.Alpha != nil {
		out = append(out, AlphaBlend)
	}
	return out
}

// ParseStrategy resolves a strategy name, accepting the common aliases.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "weighted", "weighted_sum", "linear":
		return WeightedSum, nil
	case "rrf", "reciprocal_rank_fusion":
		return RRF, nil
	case "alpha", "alpha_blend", "hybrid_ratio":
		return AlphaBlend, nil
	}
	return "", fmt.Errorf("unknown fusion strategy %q (want weighted, rrf or alpha)", name)
}

// Strategy returns the algorithm tag.
func (c Config) Strategy() Strategy { return c.strategy }

// KeywordWeight returns the lexical weight (WeightedSum).
func (c Config) KeywordWeight() float64 { return c.keywordWeight }

// SemanticWeight returns the vector weight (WeightedSum).
func (c Config) SemanticWeight() float64 { return c.semanticWeight }

// K returns the RRF smoothing constant.
func (c Config) K() float64 { return c.k }

// Alpha returns the semantic share (AlphaBlend).
func (c Config) Alpha() float64 { return c.alpha }

// IsZero reports whether the config was never initialized.
func (c Config) IsZero() bool { return c.strategy == "" }

// Params returns the effective parameters keyed by their wire names.
func (c Config) Params() map[string]float64 {
	switch c.strategy {
	case WeightedSum:
		return map[string]float64{
			"keyword_weight":  c.keywordWeight,
			"semantic_weight": c.semanticWeight,
		}
	case RRF:
		return map[string]float64{"k": c.k}
	case AlphaBlend:
		return map[string]float64{
			"alpha":           c.alpha,
			"keyword_weight":  1 - c.alpha,
			"semantic_weight": c.alpha,
		}
	}
	return nil
}

// String renders the config, e.g. "rrf(k=60)".
func (c Config) String() string {
	switch c.strategy {
	case WeightedSum:
		return fmt.Sprintf("weighted(keyword=%s,semantic=%s)", ff(c.keywordWeight), ff(c.semanticWeight))
	case RRF:
		return fmt.Sprintf("rrf(k=%s)", ff(c.k))
	case AlphaBlend:
		return fmt.Sprintf("alpha(alpha=%s)", ff(c.alpha))
	}
	return "unset"
}

func ff(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

func clamp01(v float64) float64 { return math.Max(0, math.Min(1, v)) }

func orDefault(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

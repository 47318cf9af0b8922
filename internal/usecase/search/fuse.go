package search

import (
	"math"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/candidate"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
)

// fused is a merged candidate with its raw strategy output.
type fused struct {
	candidate candidate.Merged
	raw       float64
}

// fuse scores every merged candidate under cfg. Absent signals contribute 0.
func fuse(merged []candidate.Merged, cfg fusion.Config) ([]fused, error) {
	out := make([]fused, len(merged))

	switch cfg.Strategy() {
	case fusion.WeightedSum:
		kw, sw := cfg.KeywordWeight(), cfg.SemanticWeight()
		for i, m := range merged {
			var raw float64
			if s, ok := m.Lexical(); ok {
				raw += kw * s.Score
			}
			if s, ok := m.Vector(); ok {
				raw += sw * s.Score
			}
			out[i] = fused{candidate: m, raw: raw}
		}

	case fusion.RRF:
		k := cfg.K()
		for i, m := range merged {
			var raw float64
			if s, ok := m.Lexical(); ok {
				raw += 1 / (k + float64(s.Rank))
			}
			if s, ok := m.Vector(); ok {
				raw += 1 / (k + float64(s.Rank))
			}
			out[i] = fused{candidate: m, raw: raw}
		}

	case fusion.AlphaBlend:
		alpha := cfg.Alpha()
		lexNorm := lexicalScaler(merged)
		for i, m := range merged {
			var lex, vec float64
			if s, ok := m.Lexical(); ok {
				lex = lexNorm(s.Score)
			}
			if s, ok := m.Vector(); ok {
				vec = unitSimilarity(s.Score)
			}
			out[i] = fused{candidate: m, raw: alpha*vec + (1-alpha)*lex}
		}

	default:
		return nil, domain.NewInvariantViolation("fusing", "unsupported fusion strategy %q", cfg.Strategy())
	}

	for _, f := range out {
		if math.IsNaN(f.raw) || math.IsInf(f.raw, 0) {
			return nil, domain.NewInvariantViolation("fusing", "non-finite fused score for %q", f.candidate.ID())
		}
	}
	return out, nil
}

// lexicalScaler min-max scales present lexical scores of the batch into [0, 1].
// A degenerate batch maps every present score to 1.
func lexicalScaler(merged []candidate.Merged) func(float64) float64 {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, m := range merged {
		if s, ok := m.Lexical(); ok {
			lo, hi = math.Min(lo, s.Score), math.Max(hi, s.Score)
		}
	}
	span := hi - lo
	return func(v float64) float64 {
		if span <= 0 {
			return 1
		}
		return clamp((v-lo)/span, 0, 1)
	}
}

// unitSimilarity maps a similarity in [-1, 1] onto [0, 1].
func unitSimilarity(s float64) float64 {
	return clamp((s+1)/2, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

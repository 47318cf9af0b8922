package search

import (
	"math"

	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
)

// scoreCeiling is the top of the normalized scale.
const scoreCeiling = 100.0

// normalize maps raw fused scores onto [0, 100]. The transform is monotonic.
//
// WeightedSum has no known range and is min-max scaled over the batch. RRF is
// bounded by n/(k+1) for n active sources and AlphaBlend by [0, 1], so both use
// a fixed affine map. A degenerate min-max batch maps to 100.
func normalize(raw []float64, cfg fusion.Config, sources int) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}

	switch cfg.Strategy() {
	case fusion.RRF:
		upper := float64(max(sources, 1)) / (cfg.K() + 1)
		for i, v := range raw {
			out[i] = clamp(v/upper*scoreCeiling, 0, scoreCeiling)
		}
	case fusion.AlphaBlend:
		for i, v := range raw {
			out[i] = clamp(v*scoreCeiling, 0, scoreCeiling)
		}
	default:
		minMax(raw, out)
	}
	return out
}

func minMax(raw, out []float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		lo, hi = math.Min(lo, v), math.Max(hi, v)
	}
	span := hi - lo
	for i, v := range raw {
		if span <= 0 {
			out[i] = scoreCeiling
			continue
		}
		out[i] = clamp((v-lo)/span*scoreCeiling, 0, scoreCeiling)
	}
}

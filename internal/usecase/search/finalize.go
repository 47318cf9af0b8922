package search

import (
	"cmp"
	"maps"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/candidate"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/result"
)

// minTermLength is the shortest token that counts as a query term.
const minTermLength = 2

// finalizeInput groups what finalize needs beyond the scored results.
type finalizeInput struct {
	boosts   map[string]float64
	docs     map[string]movie.Movie
	terms    map[string]struct{}
	minScore float64
	limit    int
}

// score assembles scored results from fused candidates and their normalized scores.
func score(items []fused, normalized []float64) []result.Scored {
	out := make([]result.Scored, len(items))
	for i, f := range items {
		var b result.Breakdown
		if s, ok := f.candidate.Lexical(); ok {
			v := s.Score
			b.LexicalRaw, b.LexicalRank = &v, s.Rank
		}
		if s, ok := f.candidate.Vector(); ok {
			v := s.Score
			b.VectorRaw, b.VectorRank = &v, s.Rank
		}
		b.FusedRaw = f.raw
		out[i] = result.New(f.candidate.ID(), normalized[i], b)
	}
	return out
}

// finalize dedupes by id keeping the best score, applies field boosts, drops
// results below minScore, sorts and truncates. It returns the surviving results
// and the hit count before truncation.
func finalize(items []result.Scored, in finalizeInput) ([]result.Scored, int, error) {
	best := make(map[string]int, len(items))
	deduped := make([]result.Scored, 0, len(items))
	for _, r := range items {
		if i, ok := best[r.ID()]; ok {
			if r.Score() > deduped[i].Score() {
				deduped[i] = r
			}
			continue
		}
		best[r.ID()] = len(deduped)
		deduped = append(deduped, r)
	}

	if len(in.boosts) > 0 && len(in.terms) > 0 {
		fields := slices.Sorted(maps.Keys(in.boosts))
		for i, r := range deduped {
			doc, ok := in.docs[r.ID()]
			if !ok {
				continue
			}
			for _, field := range fields {
				text, known := doc.Field(field)
				if !known || !matchesAny(text, in.terms) {
					continue
				}
				factor := in.boosts[field]
				r = r.WithBoost(result.Boost{Field: field, Factor: factor}, math.Min(r.Score()*factor, scoreCeiling))
			}
			deduped[i] = r
		}
	}

	kept := deduped[:0]
	for _, r := range deduped {
		if r.Score() >= in.minScore {
			kept = append(kept, r)
		}
	}

	slices.SortFunc(kept, func(a, b result.Scored) int {
		if c := cmp.Compare(b.Score(), a.Score()); c != 0 {
			return c
		}
		return candidate.CompareIDs(a.ID(), b.ID())
	})

	total := len(kept)
	if len(kept) > in.limit {
		kept = kept[:in.limit]
	}

	if err := checkResults(kept); err != nil {
		return nil, 0, err
	}
	return kept, total, nil
}

// checkResults verifies that ids are unique and every score is within [0, 100].
func checkResults(rs []result.Scored) error {
	seen := make(map[string]struct{}, len(rs))
	for _, r := range rs {
		if _, dup := seen[r.ID()]; dup {
			return domain.NewInvariantViolation("finalizing", "duplicate id %q", r.ID())
		}
		seen[r.ID()] = struct{}{}
		if s := r.Score(); math.IsNaN(s) || s < 0 || s > scoreCeiling {
			return domain.NewInvariantViolation("finalizing", "score %v out of range for %q", s, r.ID())
		}
	}
	return nil
}

// terms splits text into case-folded alphanumeric tokens of at least two characters.
func terms(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range tokenize(text) {
		out[tok] = struct{}{}
	}
	return out
}

func matchesAny(text string, queryTerms map[string]struct{}) bool {
	for _, tok := range tokenize(text) {
		if _, ok := queryTerms[tok]; ok {
			return true
		}
	}
	return false
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return slices.DeleteFunc(fields, func(s string) bool {
		return len([]rune(s)) < minTermLength
	})
}

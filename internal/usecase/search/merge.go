package search

import (
	"slices"

	"github.com/kailas-cloud/cinefuse/internal/domain/search/candidate"
)

// merge full-outer-joins both source lists on id. A movie returned by one source
// only carries an absent signal for the other. Repeated ids within a list keep
// their best-ranked occurrence. Output is ordered by ascending id.
func merge(lexical, vector []candidate.Retrieved) []candidate.Merged {
	byID := make(map[string]candidate.Merged, len(lexical)+len(vector))

	for _, c := range lexical {
		m, ok := byID[c.ID]
		if !ok {
			m = candidate.NewMerged(c.ID)
		}
		if prev, has := m.Lexical(); has && prev.Rank <= c.Rank {
			continue
		}
		byID[c.ID] = m.WithLexical(candidate.Signal{Score: c.Score, Rank: c.Rank})
	}
	for _, c := range vector {
		m, ok := byID[c.ID]
		if !ok {
			m = candidate.NewMerged(c.ID)
		}
		if prev, has := m.Vector(); has && prev.Rank <= c.Rank {
			continue
		}
		byID[c.ID] = m.WithVector(candidate.Signal{Score: c.Score, Rank: c.Rank})
	}

	out := make([]candidate.Merged, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b candidate.Merged) int {
		return candidate.CompareIDs(a.ID(), b.ID())
	})
	return out
}

// activeSources counts the sources that contributed at least one candidate.
func activeSources(merged []candidate.Merged) int {
	var lex, vec bool
	for _, m := range merged {
		_, l := m.Lexical()
		_, v := m.Vector()
		lex, vec = lex || l, vec || v
		if lex && vec {
			break
		}
	}
	n := 0
	if lex {
		n++
	}
	if vec {
		n++
	}
	return n
}

// Package candidate holds the query-scoped candidate types produced by the
// retrieval sources and joined by the merger.
package candidate

import (
	"cmp"
	"slices"
	"strconv"
)

// Source tags the retrieval source that produced a candidate.
type Source string

// Retrieval sources.
const (
	Lexical Source = "lexical"
	Vector  Source = "vector"
)

// Hit is an unranked (id, raw score) pair as returned by a store.
type Hit struct {
	ID    string
	Score float64
}

// Retrieved is a ranked candidate from a single source. Rank is 1-based.
type Retrieved struct {
	ID     string
	Score  float64
	Rank   int
	Source Source
}

// Signal is one source's contribution to a merged candidate.
type Signal struct {
	Score float64
	Rank  int
}

// Merged joins both sources for one logical id. A missing signal is absent, not zero.
type Merged struct {
	id         string
	lexical    Signal
	vector     Signal
	hasLexical bool
	hasVector  bool
}

// NewMerged creates a merged candidate with no signals.
func NewMerged(id string) Merged { return Merged{id: id} }

// WithLexical returns a copy carrying the lexical signal.
func (m Merged) WithLexical(s Signal) Merged {
	m.lexical, m.hasLexical = s, true
	return m
}

// WithVector returns a copy carrying the vector signal.
func (m Merged) WithVector(s Signal) Merged {
	m.vector, m.hasVector = s, true
	return m
}

// ID returns the logical entity id.
func (m Merged) ID() string { return m.id }

// Lexical returns the lexical signal and whether it is present.
func (m Merged) Lexical() (Signal, bool) { return m.lexical, m.hasLexical }

// Vector returns the vector signal and whether it is present.
func (m Merged) Vector() (Signal, bool) { return m.vector, m.hasVector }

// Rank orders hits by descending score, breaking ties by ascending id, keeps at
// most limit of them and assigns 1-based ranks. Repeated ids keep their best occurrence.
func Rank(source Source, hits []Hit, limit int) []Retrieved {
	sorted := slices.Clone(hits)
	slices.SortStableFunc(sorted, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return CompareIDs(a.ID, b.ID)
	})

	out := make([]Retrieved, 0, min(len(sorted), max(limit, 0)))
	seen := make(map[string]struct{}, len(sorted))
	for _, h := range sorted {
		if len(out) >= limit {
			break
		}
		if _, dup := seen[h.ID]; dup {
			continue
		}
		seen[h.ID] = struct{}{}
		out = append(out, Retrieved{ID: h.ID, Score: h.Score, Rank: len(out) + 1, Source: source})
	}
	return out
}

// CompareIDs orders logical ids ascending: numerically when both are integers,
// lexically otherwise. Integers sort before non-integers.
func CompareIDs(a, b string) int {
	ai, aErr := strconv.ParseInt(a, 10, 64)
	bi, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		return cmp.Compare(ai, bi)
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return cmp.Compare(a, b)
}

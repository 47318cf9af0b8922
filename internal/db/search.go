package db

import "github.com/kailas-cloud/cinefuse/internal/domain/search/filter"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	Filter       filter.Filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for full-text search.
type TextQuery struct {
	IndexName    string
	Query        string
	Filter       filter.Filter
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search. Score is driver
// normalized: BM25/ts_rank for text search, similarity for KNN.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SimilarityFromDistance turns a cosine distance in [0, 2] into a cosine
// similarity in [-1, 1]. Float noise past either end is pulled back in.
func SimilarityFromDistance(distance float64) float64 {
	return min(1, max(-1, 1-distance))
}

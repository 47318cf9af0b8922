package search

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/kailas-cloud/cinefuse/internal/db"
	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/candidate"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
)

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
}

var (
	knnReturnFields  = []string{db.FieldVectorScore, db.FieldGenres, db.FieldYear}
	bm25ReturnFields = []string{db.FieldGenres, db.FieldYear}
)

// Repo implements the lexical and vector retrievers of usecase/search over a db.Searcher.
type Repo struct {
	store     store
	indexName string
	keyPrefix string
}

// New creates a search repository for the movie index under storagePrefix.
func New(s store, storagePrefix string) *Repo {
	return &Repo{
		store:     s,
		indexName: movie.IndexName(storagePrefix),
		keyPrefix: movie.KeyPrefix(storagePrefix),
	}
}

// RetrieveLexical runs a full-text search and ranks the hits by raw score.
func (r *Repo) RetrieveLexical(
	ctx context.Context, text string, limit int, f filter.Filter,
) ([]candidate.Retrieved, error) {
	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.indexName,
		Query:        text,
		Filter:       f,
		TopK:         limit,
		ReturnFields: bm25ReturnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search: %w", domain.ErrRetrievalUnavailable, err)
	}

	hits, err := r.hits(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: lexical search: %w", domain.ErrRetrievalUnavailable, err)
	}
	return candidate.Rank(candidate.Lexical, hits, limit), nil
}

// RetrieveVector runs a KNN search and ranks the hits by similarity.
func (r *Repo) RetrieveVector(
	ctx context.Context, vector []float32, limit int, f filter.Filter,
) ([]candidate.Retrieved, error) {
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		Filter:       f,
		Vector:       vector,
		K:            limit,
		ReturnFields: knnReturnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", domain.ErrRetrievalUnavailable, err)
	}

	hits, err := r.hits(sr)
	if err != nil {
		return nil, fmt.Errorf("%w: vector search: %w", domain.ErrRetrievalUnavailable, err)
	}
	return candidate.Rank(candidate.Vector, hits, limit), nil
}

// hits maps store entries onto logical movie ids. A non-finite score means
// the store answered with something we cannot rank.
func (r *Repo) hits(sr *db.SearchResult) ([]candidate.Hit, error) {
	if sr == nil || len(sr.Entries) == 0 {
		return nil, nil
	}

	hits := make([]candidate.Hit, 0, len(sr.Entries))
	for _, e := range sr.Entries {
		if math.IsNaN(e.Score) || math.IsInf(e.Score, 0) {
			return nil, fmt.Errorf("malformed score %v for %s", e.Score, e.Key)
		}
		id := strings.TrimPrefix(e.Key, r.keyPrefix)
		if id == "" {
			continue
		}
		hits = append(hits, candidate.Hit{ID: id, Score: e.Score})
	}
	return hits, nil
}

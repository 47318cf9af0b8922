package search

import (
	"context"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	"github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/candidate"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/filter"
)

// LexicalRetriever returns full-text candidates ranked by descending raw score.
// Failures wrap domain.ErrRetrievalUnavailable.
type LexicalRetriever interface {
	RetrieveLexical(ctx context.Context, text string, limit int, f filter.Filter) ([]candidate.Retrieved, error)
}

// VectorRetriever returns nearest-neighbour candidates ranked by descending similarity.
// Failures wrap domain.ErrRetrievalUnavailable.
type VectorRetriever interface {
	RetrieveVector(ctx context.Context, vector []float32, limit int, f filter.Filter) ([]candidate.Retrieved, error)
}

// Embedder vectorizes query text. Failures wrap domain.ErrEmbeddingUnavailable.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// MovieReader loads movie metadata for boosting and hydration.
// Missing ids are absent from the returned map.
type MovieReader interface {
	GetMany(ctx context.Context, ids []string) (map[string]movie.Movie, error)
}

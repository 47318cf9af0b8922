package movie

import (
	"context"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

// Repository defines the storage contract for the movie catalog.
type Repository interface {
	EnsureIndex(ctx context.Context) error
	DropIndex(ctx context.Context) error
	Upsert(ctx context.Context, movies []dommovie.Movie) error
	Get(ctx context.Context, id string) (dommovie.Movie, error)
	Delete(ctx context.Context, id string) error
}

// Embedder vectorizes document text. Expected to carry the document instruction.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Enricher supplies optional metadata for a movie by its TMDB id.
// It never fails: unavailable data yields an empty enrichment.
type Enricher interface {
	Enrich(ctx context.Context, tmdbID int64) dommovie.Enrichment
}

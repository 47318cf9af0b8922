package movie

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kailas-cloud/cinefuse/internal/db"
	"github.com/kailas-cloud/cinefuse/internal/domain"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

// store is the consumer interface for the movie catalog (ISP).
type store interface {
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo stores movies as hashes under a shared key prefix covered by one search index.
type Repo struct {
	store     store
	keyPrefix string
	indexName string
	vectorDim int
	hnsw      db.HNSW
}

// New creates a movie repository.
func New(s store, storagePrefix string, vectorDim int) *Repo {
	return &Repo{
		store:     s,
		keyPrefix: dommovie.KeyPrefix(storagePrefix),
		indexName: dommovie.IndexName(storagePrefix),
		vectorDim: vectorDim,
		hnsw:      DefaultHNSW,
	}
}

// WithHNSW overrides the set HNSW graph parameters.
func (r *Repo) WithHNSW(cfg db.HNSW) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruction > 0 {
		r.hnsw.EFConstruction = cfg.EFConstruction
	}
	if cfg.EFRuntime > 0 {
		r.hnsw.EFRuntime = cfg.EFRuntime
	}
	return r
}

// EnsureIndex creates the movie index unless it already exists.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	if exists {
		return nil
	}

	def, err := buildIndex(r.indexName, r.keyPrefix, r.vectorDim, r.hnsw)
	if err != nil {
		return fmt.Errorf("build index: %w", err)
	}
	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", def, err)
	}
	return nil
}

// IndexReady reports whether the movie index exists.
func (r *Repo) IndexReady(ctx context.Context) (bool, error) {
	ok, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", r.indexName, err)
	}
	return ok, nil
}

// DropIndex removes the movie index. Stored documents are kept and get
// re-indexed by the next EnsureIndex. A missing index is not an error.
func (r *Repo) DropIndex(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index %s: %w", r.indexName, err)
	}
	return nil
}

// Upsert writes movies in one pipelined batch. Every movie must carry an
// embedding of the index dimension.
func (r *Repo) Upsert(ctx context.Context, movies []dommovie.Movie) error {
	if len(movies) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, len(movies))
	for i := range movies {
		m := &movies[i]
		if len(m.Embedding()) != r.vectorDim {
			return fmt.Errorf("%w: movie %s has embedding of dim %d, index expects %d",
				domain.ErrInvalidMovie, m.ID(), len(m.Embedding()), r.vectorDim)
		}
		fields, err := buildHashFields(m)
		if err != nil {
			return fmt.Errorf("encode movie %s: %w", m.ID(), err)
		}
		items[i] = db.HashSetItem{Key: r.key(m.ID()), Fields: fields}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("store movies: %w", err)
	}
	return nil
}

// Get returns a movie by id.
func (r *Repo) Get(ctx context.Context, id string) (dommovie.Movie, error) {
	found, err := r.GetMany(ctx, []string{id})
	if err != nil {
		return dommovie.Movie{}, err
	}
	m, ok := found[id]
	if !ok {
		return dommovie.Movie{}, domain.ErrNotFound
	}
	return m, nil
}

// GetMany loads movies in one round-trip. Missing ids are absent from the result.
func (r *Repo) GetMany(ctx context.Context, ids []string) (map[string]dommovie.Movie, error) {
	if len(ids) == 0 {
		return map[string]dommovie.Movie{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}

	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load movies: %w", err)
	}

	out := make(map[string]dommovie.Movie, len(ids))
	for i, h := range hashes {
		if i >= len(ids) || len(h) == 0 {
			continue
		}
		out[ids[i]] = parseHashFields(ids[i], h)
	}
	return out, nil
}

// Delete removes a movie.
func (r *Repo) Delete(ctx context.Context, id string) error {
	key := r.key(id)

	exists, err := r.store.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("check exists %s: %w", key, err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if err := r.store.Del(ctx, key); err != nil {
		return fmt.Errorf("del %s: %w", key, err)
	}
	return nil
}

func (r *Repo) key(id string) string {
	return r.keyPrefix + strings.TrimSpace(id)
}

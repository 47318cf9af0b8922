package movie

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/cinefuse/internal/db"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

const (
	testPrefix = "cinefuse:"
	testDim    = 4
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetMultiFn    func(ctx context.Context, items []db.HashSetItem) error
	hgetAllMultiFn func(ctx context.Context, keys []string) ([]map[string]string, error)
	delFn          func(ctx context.Context, key string) error
	existsFn       func(ctx context.Context, key string) (bool, error)
	createIndexFn  func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn    func(ctx context.Context, name string) error
	indexExistsFn  func(ctx context.Context, name string) (bool, error)
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiFn != nil {
		return m.hgetAllMultiFn(ctx, keys)
	}
	out := make([]map[string]string, len(keys))
	for i := range out {
		out[i] = map[string]string{}
	}
	return out, nil
}

func (m *mockStore) Del(ctx context.Context, key string) error {
	if m.delFn != nil {
		return m.delFn(ctx, key)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, testPrefix, testDim), ms
}

func testMovie(t *testing.T, id, title string) dommovie.Movie {
	t.Helper()
	m, err := dommovie.New(dommovie.Fields{
		ID:          id,
		TMDBID:      603,
		Title:       title,
		Overview:    "A hacker learns the truth about reality.",
		Genres:      []string{"Action", "Science Fiction"},
		ReleaseDate: time.Date(1999, 3, 30, 0, 0, 0, 0, time.UTC),
		Extra:       map[string]string{"director": "Wachowski"},
	})
	if err != nil {
		t.Fatalf("movie.New: %v", err)
	}
	return m.WithEmbedding([]float32{0.1, 0.2, 0.3, 0.4})
}

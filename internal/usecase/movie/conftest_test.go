package movie

import (
	"context"
	"strings"
	"sync"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
)

type mockRepo struct {
	mu         sync.Mutex
	upserts    [][]dommovie.Movie
	upsertErr  error
	ensureErr  error
	dropErr    error
	dropped    bool
	ensured    int
	movies     map[string]dommovie.Movie
	deletedIDs []string
}

func (m *mockRepo) EnsureIndex(context.Context) error {
	m.ensured++
	return m.ensureErr
}

func (m *mockRepo) DropIndex(context.Context) error {
	m.dropped = true
	return m.dropErr
}

func (m *mockRepo) Upsert(_ context.Context, movies []dommovie.Movie) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, append([]dommovie.Movie(nil), movies...))
	return m.upsertErr
}

func (m *mockRepo) Get(_ context.Context, id string) (dommovie.Movie, error) {
	mv, ok := m.movies[id]
	if !ok {
		return dommovie.Movie{}, domain.ErrNotFound
	}
	return mv, nil
}

func (m *mockRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.movies[id]; !ok {
		return domain.ErrNotFound
	}
	m.deletedIDs = append(m.deletedIDs, id)
	return nil
}

func (m *mockRepo) stored() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for _, batch := range m.upserts {
		for i := range batch {
			ids = append(ids, batch[i].ID())
		}
	}
	return ids
}

// mockEmbedder fails for texts containing failOn and records every call.
type mockEmbedder struct {
	mu     sync.Mutex
	texts  []string
	failOn string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.failOn != "" && strings.Contains(text, m.failOn) {
		return domain.EmbeddingResult{}, domain.ErrEmbeddingUnavailable
	}
	return domain.EmbeddingResult{Embedding: []float32{0.5, 0.5}, TotalTokens: 3}, nil
}

// mockEnricher returns a fixed director for every known id.
type mockEnricher struct {
	mu  sync.Mutex
	ids []int64
}

func (m *mockEnricher) Enrich(_ context.Context, tmdbID int64) dommovie.Enrichment {
	m.mu.Lock()
	m.ids = append(m.ids, tmdbID)
	m.mu.Unlock()
	return dommovie.Enrichment{Keywords: []string{"heist"}, Director: "Michael Mann"}
}

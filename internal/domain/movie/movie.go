package movie

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/cinefuse/internal/domain"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Size limits.
const (
	MaxIDLength       = 128
	MaxTitleLength    = 512
	MaxOverviewLength = 16384
	MaxGenres         = 16
	MaxExtraFields    = 32
)

// Fields is the unvalidated input for New.
type Fields struct {
	ID          string
	TMDBID      int64
	Title       string
	Overview    string
	Genres      []string
	Poster      string
	ReleaseDate time.Time
	Extra       map[string]string
}

// Movie is the catalog entity (immutable value object). The fixed fields are
// typed; anything else a source provides goes to the Extra map.
type Movie struct {
	id          string
	tmdbID      int64
	title       string
	overview    string
	genres      []string
	poster      string
	releaseDate time.Time
	extra       map[string]string
	enrichment  Enrichment
	embedding   []float32
}

// Enrichment is optional metadata from The Movie Database that only feeds the
// searchable content. It is not stored as separate fields.
type Enrichment struct {
	Keywords   []string
	Characters []string // cast members and the characters they play
	Director   string
}

// IsEmpty reports whether the enrichment adds nothing.
func (e Enrichment) IsEmpty() bool {
	return len(e.Keywords) == 0 && len(e.Characters) == 0 && e.Director == ""
}

// New validates and creates a Movie. ID falls back to the TMDB id when empty.
func New(f Fields) (Movie, error) {
	id := strings.TrimSpace(f.ID)
	if id == "" && f.TMDBID > 0 {
		id = strconv.FormatInt(f.TMDBID, 10)
	}
	if id == "" {
		return Movie{}, fmt.Errorf("%w: id is required", domain.ErrInvalidMovie)
	}
	if len(id) > MaxIDLength || !idRegex.MatchString(id) {
		return Movie{}, fmt.Errorf("%w: id must match [a-zA-Z0-9_-]{1,%d}", domain.ErrInvalidMovie, MaxIDLength)
	}

	title := strings.TrimSpace(f.Title)
	if title == "" {
		return Movie{}, fmt.Errorf("%w: title is required", domain.ErrInvalidMovie)
	}
	if len(title) > MaxTitleLength {
		return Movie{}, fmt.Errorf("%w: title too long (max %d)", domain.ErrInvalidMovie, MaxTitleLength)
	}
	if len(f.Overview) > MaxOverviewLength {
		return Movie{}, fmt.Errorf("%w: overview too long (max %d)", domain.ErrInvalidMovie, MaxOverviewLength)
	}
	if len(f.Genres) > MaxGenres {
		return Movie{}, fmt.Errorf("%w: too many genres (max %d)", domain.ErrInvalidMovie, MaxGenres)
	}
	if len(f.Extra) > MaxExtraFields {
		return Movie{}, fmt.Errorf("%w: too many extra fields (max %d)", domain.ErrInvalidMovie, MaxExtraFields)
	}

	var genres []string
	for _, g := range f.Genres {
		if g = strings.TrimSpace(g); g != "" && !slices.Contains(genres, g) {
			genres = append(genres, g)
		}
	}

	return Movie{
		id:          id,
		tmdbID:      f.TMDBID,
		title:       title,
		overview:    strings.TrimSpace(f.Overview),
		genres:      genres,
		poster:      strings.TrimSpace(f.Poster),
		releaseDate: f.ReleaseDate.UTC(),
		extra:       maps.Clone(f.Extra),
	}, nil
}

// Reconstruct creates a Movie without validation (storage hydration).
func Reconstruct(f Fields, embedding []float32) Movie {
	return Movie{
		id: f.ID, tmdbID: f.TMDBID, title: f.Title, overview: f.Overview,
		genres: f.Genres, poster: f.Poster, releaseDate: f.ReleaseDate,
		extra: f.Extra, embedding: embedding,
	}
}

// WithEnrichment returns a copy whose searchable content includes e.
func (m Movie) WithEnrichment(e Enrichment) Movie {
	m.enrichment = Enrichment{
		Keywords:   slices.Clone(e.Keywords),
		Characters: slices.Clone(e.Characters),
		Director:   strings.TrimSpace(e.Director),
	}
	return m
}

// Enrichment returns the attached enrichment, empty unless WithEnrichment was called.
func (m *Movie) Enrichment() Enrichment { return m.enrichment }

// WithEmbedding returns a copy carrying the document embedding.
func (m Movie) WithEmbedding(v []float32) Movie {
	m.embedding = v
	return m
}

// ID returns the logical entity id.
func (m *Movie) ID() string { return m.id }

// TMDBID returns The Movie Database id (0 if unknown).
func (m *Movie) TMDBID() int64 { return m.tmdbID }

// Title returns the movie title.
func (m *Movie) Title() string { return m.title }

// Overview returns the plot overview.
func (m *Movie) Overview() string { return m.overview }

// Genres returns the genre names.
func (m *Movie) Genres() []string { return m.genres }

// Poster returns the poster URL or path.
func (m *Movie) Poster() string { return m.poster }

// ReleaseDate returns the release date (zero if unknown).
func (m *Movie) ReleaseDate() time.Time { return m.releaseDate }

// Extra returns the open extension attributes.
func (m *Movie) Extra() map[string]string { return m.extra }

// Embedding returns the document embedding, if loaded.
func (m *Movie) Embedding() []float32 { return m.embedding }

// Year returns the release year, or 0 when the date is unknown.
func (m *Movie) Year() int {
	if m.releaseDate.IsZero() {
		return 0
	}
	return m.releaseDate.Year()
}

// SearchableContent renders the text indexed for lexical search and embedded for vector search.
func (m *Movie) SearchableContent() string {
	parts := []string{"title: " + m.title}
	if y := m.Year(); y > 0 {
		parts = append(parts, "year: "+strconv.Itoa(y))
	}
	if len(m.genres) > 0 {
		parts = append(parts, "genres: "+strings.Join(m.genres, ", "))
	}
	if m.overview != "" {
		parts = append(parts, "overview: "+m.overview)
	}
	if len(m.enrichment.Keywords) > 0 {
		parts = append(parts, "keywords: "+strings.Join(m.enrichment.Keywords, ", "))
	}
	if len(m.enrichment.Characters) > 0 {
		parts = append(parts, "characters: "+strings.Join(m.enrichment.Characters, ", "))
	}
	if m.enrichment.Director != "" {
		parts = append(parts, "director: "+m.enrichment.Director)
	}
	return strings.Join(parts, "\n")
}

// Field returns the text of a boostable field: title, overview or genres.
func (m *Movie) Field(name string) (string, bool) {
	switch name {
	case "title":
		return m.title, true
	case "overview":
		return m.overview, true
	case "genres":
		return strings.Join(m.genres, " "), true
	}
	return "", false
}

// KeyPrefix returns the storage key prefix for movie documents under a
// deployment-wide prefix such as "cinefuse:".
func KeyPrefix(storagePrefix string) string { return storagePrefix + "movie:" }

// IndexName returns the search index covering movie documents.
func IndexName(storagePrefix string) string { return storagePrefix + "movies:idx" }

package chi

import (
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/result"
	movieuc "github.com/kailas-cloud/cinefuse/internal/usecase/movie"
)

// ErrorCode is the machine-readable error category in ErrorResponse.
type ErrorCode string

// Error codes.
const (
	CodeBadRequest           ErrorCode = "bad_request"
	CodeInvalidQuery         ErrorCode = "invalid_query"
	CodeInvalidMovie         ErrorCode = "invalid_movie"
	CodeNotFound             ErrorCode = "not_found"
	CodeUnauthorized         ErrorCode = "unauthorized"
	CodeRetrievalUnavailable ErrorCode = "retrieval_unavailable"
	CodeEmbeddingUnavailable ErrorCode = "embedding_unavailable"
	CodeInternalError        ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchBody is the POST /api/search payload.
type SearchBody struct {
	Query          string             `json:"q"`
	Limit          *int               `json:"limit,omitempty"`
	CandidateCap   *int               `json:"candidate_cap,omitempty"`
	Mode           *string            `json:"mode,omitempty"`
	Strategy       *string            `json:"strategy,omitempty"`
	KeywordWeight  *float64           `json:"keyword_weight,omitempty"`
	SemanticWeight *float64           `json:"semantic_weight,omitempty"`
	K              *float64           `json:"k,omitempty"`
	Alpha          *float64           `json:"alpha,omitempty"`
	MinScore       *float64           `json:"min_score,omitempty"`
	Genres         []string           `json:"genres,omitempty"`
	YearFrom       *int               `json:"year_from,omitempty"`
	YearTo         *int               `json:"year_to,omitempty"`
	Boosts         map[string]float64 `json:"boosts,omitempty"`
	Vector         []float32          `json:"vector,omitempty"`
}

// SearchResponse is the result of one search.
type SearchResponse struct {
	Query           string             `json:"query"`
	Mode            string             `json:"mode"`
	Strategy        string             `json:"strategy"`
	Fusion          map[string]float64 `json:"fusion"`
	Hits            int                `json:"hits"`
	Total           int                `json:"total"`
	Degraded        bool               `json:"degraded"`
	DegradedReasons []string           `json:"degraded_reasons,omitempty"`
	TookMs          int64              `json:"took_ms"`
	Results         []SearchHit        `json:"results"`
}

// SearchHit is one ranked movie.
type SearchHit struct {
	ID             string         `json:"id"`
	Score          float64        `json:"score"`
	Title          string         `json:"title,omitempty"`
	Overview       string         `json:"overview,omitempty"`
	Genres         []string       `json:"genres,omitempty"`
	Poster         string         `json:"poster,omitempty"`
	Year           int            `json:"year,omitempty"`
	ScoreBreakdown ScoreBreakdown `json:"score_breakdown"`
}

// ScoreBreakdown explains a hit's score. Absent signals are omitted.
type ScoreBreakdown struct {
	FusedRaw     float64     `json:"fused_raw"`
	LexicalScore *float64    `json:"lexical_score,omitempty"`
	LexicalRank  int         `json:"lexical_rank,omitempty"`
	VectorScore  *float64    `json:"vector_score,omitempty"`
	VectorRank   int         `json:"vector_rank,omitempty"`
	Boosts       []BoostJSON `json:"boosts,omitempty"`
}

// BoostJSON is a field boost that fired.
type BoostJSON struct {
	Field  string  `json:"field"`
	Factor float64 `json:"factor"`
}

// CompareResponse holds one ranking per requested strategy over the same candidates.
type CompareResponse struct {
	Query      string           `json:"query"`
	Strategies []SearchResponse `json:"strategies"`
}

// MovieJSON is the stored representation of a movie.
type MovieJSON struct {
	ID          string              `json:"id"`
	TMDBID      int64               `json:"tmdb_id,omitempty"`
	Title       string              `json:"title"`
	Overview    string              `json:"overview,omitempty"`
	Genres      []string            `json:"genres,omitempty"`
	Poster      string              `json:"poster,omitempty"`
	ReleaseDate movieuc.ReleaseDate `json:"release_date"`
	Extra       map[string]string   `json:"extra,omitempty"`
}

// UpsertResponse reports the per-movie outcome of POST /api/movies.
type UpsertResponse struct {
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []UpsertItem `json:"items"`
}

// UpsertItem is one movie's outcome.
type UpsertItem struct {
	ID     string     `json:"id"`
	Status string     `json:"status"`
	Error  *ErrorBody `json:"error,omitempty"`
}

// ErrorBody is an inline error in a multi-status response.
type ErrorBody struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HealthResponse is the body of the health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func searchResponseFrom(resp *result.Response) SearchResponse {
	out := SearchResponse{
		Query:    resp.Query,
		Mode:     string(resp.Mode),
		Strategy: string(resp.Fusion.Strategy()),
		Fusion:   resp.Fusion.Params(),
		Hits:     len(resp.Results),
		Total:    resp.Total,
		Degraded: resp.Degraded,
		TookMs:   resp.Duration.Milliseconds(),
		Results:  make([]SearchHit, len(resp.Results)),
	}
	for _, r := range resp.Reasons {
		out.DegradedReasons = append(out.DegradedReasons, string(r))
	}
	for i := range resp.Results {
		out.Results[i] = searchHitFrom(&resp.Results[i])
	}
	return out
}

func searchHitFrom(r *result.Scored) SearchHit {
	b := r.Breakdown()
	hit := SearchHit{
		ID:    r.ID(),
		Score: r.Score(),
		ScoreBreakdown: ScoreBreakdown{
			FusedRaw:     b.FusedRaw,
			LexicalScore: b.LexicalRaw,
			LexicalRank:  b.LexicalRank,
			VectorScore:  b.VectorRaw,
			VectorRank:   b.VectorRank,
		},
	}
	for _, boost := range r.Boosts() {
		hit.ScoreBreakdown.Boosts = append(hit.ScoreBreakdown.Boosts, BoostJSON{Field: boost.Field, Factor: boost.Factor})
	}
	if m := r.Movie(); m != nil {
		hit.Title = m.Title()
		hit.Overview = m.Overview()
		hit.Genres = m.Genres()
		hit.Poster = m.Poster()
		hit.Year = m.Year()
	}
	return hit
}

func movieJSONFrom(m *dommovie.Movie) MovieJSON {
	return MovieJSON{
		ID:          m.ID(),
		TMDBID:      m.TMDBID(),
		Title:       m.Title(),
		Overview:    m.Overview(),
		Genres:      m.Genres(),
		Poster:      m.Poster(),
		ReleaseDate: movieuc.ReleaseDate(m.ReleaseDate()),
		Extra:       m.Extra(),
	}
}

package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cinefuse/internal/domain"
	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/fusion"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/request"
	"github.com/kailas-cloud/cinefuse/internal/domain/search/result"
	healthuc "github.com/kailas-cloud/cinefuse/internal/usecase/health"
	movieuc "github.com/kailas-cloud/cinefuse/internal/usecase/movie"
)

// maxBodyBytes bounds request bodies (bulk movie upserts included).
const maxBodyBytes = 32 << 20

// Searcher runs ranked searches.
type Searcher interface {
	Search(ctx context.Context, req *request.Request) (*result.Response, error)
	Compare(ctx context.Context, req *request.Request, configs []fusion.Config) ([]result.Response, error)
}

// MovieService writes and reads catalog entries.
type MovieService interface {
	Upsert(ctx context.Context, movies []dommovie.Movie) []movieuc.ItemResult
	Get(ctx context.Context, id string) (dommovie.Movie, error)
	Delete(ctx context.Context, id string) error
}

// HealthChecker aggregates component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API.
type Server struct {
	search        Searcher
	movies        MovieService
	health        HealthChecker
	defaults      request.Defaults
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. defaults fill search parameters the
// caller leaves unset.
func NewServer(
	search Searcher,
	movies MovieService,
	health HealthChecker,
	defaults request.Defaults,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		search:   search,
		movies:   movies,
		health:   health,
		defaults: defaults,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidMovie, http.StatusBadRequest, CodeInvalidMovie),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrRetrievalUnavailable, http.StatusServiceUnavailable, CodeRetrievalUnavailable),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, CodeEmbeddingUnavailable),
	}
	return s
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.HealthCheck)
		r.Get("/search", s.SearchGet)
		r.Post("/search", s.SearchPost)
		r.Get("/compare", s.Compare)
		r.Post("/movies", s.UpsertMovies)
		r.Get("/movies/{id}", s.GetMovie)
		r.Delete("/movies/{id}", s.DeleteMovie)
	})
}

// SearchGet handles GET /api/search.
func (s *Server) SearchGet(w http.ResponseWriter, r *http.Request) {
	p, err := bindSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s.runSearch(w, r, &p)
}

// SearchPost handles POST /api/search.
func (s *Server) SearchPost(w http.ResponseWriter, r *http.Request) {
	var body SearchBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	p := searchParamsFromBody(&body)
	s.runSearch(w, r, &p)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, p *searchParams) {
	if strings.TrimSpace(p.query) == "" {
		writeMissingQuery(w)
		return
	}

	req, err := p.toRequest(s.defaults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp, err := s.search.Search(r.Context(), &req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponseFrom(resp))
}

// Compare handles GET /api/compare.
func (s *Server) Compare(w http.ResponseWriter, r *http.Request) {
	p, err := bindSearchQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(p.query) == "" {
		writeMissingQuery(w)
		return
	}

	configs, err := p.compareConfigs(s.defaults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	// Per-strategy fusion is supplied by configs; build the shared request without it.
	base := p
	base.strategies = nil
	base.keywordWeight, base.semanticWeight, base.k, base.alpha = nil, nil, nil, nil
	req, err := base.toRequest(s.defaults)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	responses, err := s.search.Compare(r.Context(), &req, configs)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	out := CompareResponse{Query: req.Text(), Strategies: make([]SearchResponse, len(responses))}
	for i := range responses {
		out.Strategies[i] = searchResponseFrom(&responses[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// UpsertMovies handles POST /api/movies with one movie or an array.
// Responds 200 when every movie was stored and 207 otherwise.
func (s *Server) UpsertMovies(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	inputs, err := movieuc.DecodeInputs(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidMovie, err.Error())
		return
	}

	resp := UpsertResponse{Items: make([]UpsertItem, len(inputs))}
	valid := make([]dommovie.Movie, 0, len(inputs))
	validIdx := make([]int, 0, len(inputs))
	for i := range inputs {
		m, err := dommovie.New(inputs[i].Fields())
		if err != nil {
			resp.Items[i] = s.failedItem(r, string(inputs[i].ID), err)
			continue
		}
		valid = append(valid, m)
		validIdx = append(validIdx, i)
	}

	for j, res := range s.movies.Upsert(r.Context(), valid) {
		i := validIdx[j]
		if res.Err != nil {
			resp.Items[i] = s.failedItem(r, res.ID, res.Err)
			continue
		}
		resp.Items[i] = UpsertItem{ID: res.ID, Status: "ok"}
	}

	for _, item := range resp.Items {
		if item.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}

	status := http.StatusOK
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, resp)
}

// GetMovie handles GET /api/movies/{id}.
func (s *Server) GetMovie(w http.ResponseWriter, r *http.Request) {
	m, err := s.movies.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movieJSONFrom(&m))
}

// DeleteMovie handles DELETE /api/movies/{id}.
func (s *Server) DeleteMovie(w http.ResponseWriter, r *http.Request) {
	if err := s.movies.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health and GET /api/health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v) //nolint:wrapcheck // surfaced verbatim in a 400
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

func writeMissingQuery(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, CodeInvalidQuery, `Query parameter "q" is required`)
}

// safeDomainMessage returns a client-safe message. Validation errors carry
// their detail; everything else is reduced to the sentinel text.
func safeDomainMessage(err error) string {
	for _, s := range []error{domain.ErrInvalidQuery, domain.ErrInvalidMovie} {
		if errors.Is(err, s) {
			return innermostDetail(err, s)
		}
	}
	for _, s := range []error{domain.ErrNotFound, domain.ErrRetrievalUnavailable, domain.ErrEmbeddingUnavailable} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// innermostDetail strips wrapping prefixes added above the sentinel, e.g.
// "build search request: invalid query: limit must be positive" becomes
// "invalid query: limit must be positive".
func innermostDetail(err, sentinel error) string {
	msg := err.Error()
	if i := strings.Index(msg, sentinel.Error()); i >= 0 {
		return msg[i:]
	}
	return sentinel.Error()
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := s.requestLogger(r)
	if errors.Is(err, context.Canceled) {
		log.Info("Request canceled by client", zap.Error(err))
		return
	}
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func (s *Server) failedItem(r *http.Request, id string, err error) UpsertItem {
	code := CodeInternalError
	switch {
	case errors.Is(err, domain.ErrInvalidMovie):
		code = CodeInvalidMovie
	case errors.Is(err, domain.ErrEmbeddingUnavailable):
		code = CodeEmbeddingUnavailable
	default:
		s.requestLogger(r).Error("movie upsert failed", zap.String("movie_id", id), zap.Error(err))
	}
	return UpsertItem{ID: id, Status: "error", Error: &ErrorBody{Code: code, Message: safeDomainMessage(err)}}
}

func (s *Server) requestLogger(r *http.Request) *zap.Logger {
	if id := chiMiddleware.GetReqID(r.Context()); id != "" {
		return s.logger.With(zap.String("request_id", id))
	}
	return s.logger
}

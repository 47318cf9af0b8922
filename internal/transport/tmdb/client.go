package tmdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	dommovie "github.com/kailas-cloud/cinefuse/internal/domain/movie"
	"github.com/kailas-cloud/cinefuse/internal/metrics"
)

// Defaults for the TMDB API client.
const (
	DefaultBaseURL           = "https://api.themoviedb.org/3"
	DefaultLanguage          = "en-US"
	DefaultRequestsPerSecond = 20
	DefaultTimeout           = 10 * time.Second

	maxKeywords = 15
	maxCast     = 8
)

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)\s*`)

// Config holds the TMDB client settings.
type Config struct {
	APIKey            string
	BaseURL           string
	Language          string
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// Client fetches keywords, cast and director of a movie from The Movie Database.
type Client struct {
	http     *http.Client
	baseURL  string
	apiKey   string
	language string
	limiter  *rate.Limiter
	logger   *zap.Logger
}

// NewClient creates a rate-limited TMDB client.
func NewClient(cfg *Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	language := cfg.Language
	if language == "" {
		language = DefaultLanguage
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		apiKey:   cfg.APIKey,
		language: language,
		limiter:  rate.NewLimiter(rate.Limit(rps), 1),
		logger:   logger,
	}
}

type movieDetails struct {
	Keywords struct {
		Keywords []struct {
			Name string `json:"name"`
		} `json:"keywords"`
	} `json:"keywords"`
	Credits struct {
		Cast []struct {
			Name      string `json:"name"`
			Character string `json:"character"`
		} `json:"cast"`
		Crew []struct {
			Name string `json:"name"`
			Job  string `json:"job"`
		} `json:"crew"`
	} `json:"credits"`
}

// Enrich returns the movie's enrichment. Any failure, including a missing
// API key, yields an empty enrichment.
func (c *Client) Enrich(ctx context.Context, tmdbID int64) dommovie.Enrichment {
	if c.apiKey == "" || tmdbID <= 0 {
		return dommovie.Enrichment{}
	}

	details, status, err := c.fetch(ctx, tmdbID)
	switch {
	case err != nil:
		metrics.EnrichmentRequestsTotal.WithLabelValues("error").Inc()
		c.logger.Debug("TMDB lookup failed", zap.Int64("tmdb_id", tmdbID), zap.Error(err))
		return dommovie.Enrichment{}
	case status != http.StatusOK:
		label := "error"
		if status == http.StatusNotFound {
			label = "not_found"
		}
		metrics.EnrichmentRequestsTotal.WithLabelValues(label).Inc()
		c.logger.Debug("TMDB lookup returned non-OK status",
			zap.Int64("tmdb_id", tmdbID),
			zap.Int("status", status),
		)
		return dommovie.Enrichment{}
	}

	metrics.EnrichmentRequestsTotal.WithLabelValues("ok").Inc()
	return details.enrichment()
}

func (c *Client) fetch(ctx context.Context, tmdbID int64) (movieDetails, int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return movieDetails{}, 0, fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("api_key", c.apiKey)
	q.Set("append_to_response", "keywords,credits")
	q.Set("language", c.language)
	u := c.baseURL + "/movie/" + strconv.FormatInt(tmdbID, 10) + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return movieDetails{}, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return movieDetails{}, 0, fmt.Errorf("request movie %d: %w", tmdbID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return movieDetails{}, resp.StatusCode, nil
	}

	var details movieDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return movieDetails{}, resp.StatusCode, fmt.Errorf("decode movie %d: %w", tmdbID, err)
	}
	return details, resp.StatusCode, nil
}

func (d *movieDetails) enrichment() dommovie.Enrichment {
	var e dommovie.Enrichment

	for _, kw := range d.Keywords.Keywords {
		if len(e.Keywords) == maxKeywords {
			break
		}
		if name := strings.TrimSpace(kw.Name); name != "" {
			e.Keywords = append(e.Keywords, name)
		}
	}

	seen := make(map[string]struct{})
	add := func(name string) {
		if _, dup := seen[name]; dup || name == "" {
			return
		}
		seen[name] = struct{}{}
		e.Characters = append(e.Characters, name)
	}
	for i, member := range d.Credits.Cast {
		if i == maxCast {
			break
		}
		add(strings.TrimSpace(member.Name))
		if character := characterName(member.Character); len(character) > 1 {
			add(character)
		}
	}

	for _, member := range d.Credits.Crew {
		if member.Job == "Director" {
			e.Director = strings.TrimSpace(member.Name)
			break
		}
	}
	return e
}

// characterName drops credit annotations such as "(voice)" or "(uncredited)".
func characterName(s string) string {
	return strings.TrimSpace(parenthetical.ReplaceAllString(s, ""))
}

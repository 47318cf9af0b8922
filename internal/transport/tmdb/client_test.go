package tmdb

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kailas-cloud/cinefuse/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterEmbeddingMetrics()
	os.Exit(m.Run())
}

const matrixDetails = `{
	"id": 603,
	"title": "The Matrix",
	"keywords": {"keywords": [
		{"id": 1, "name": "simulated reality"},
		{"id": 2, "name": "dystopia"},
		{"id": 3, "name": "  "},
		{"id": 4, "name": "hacker"}
	]},
	"credits": {
		"cast": [
			{"name": "Keanu Reeves", "character": "Thomas A. Anderson (Neo)"},
			{"name": "Laurence Fishburne", "character": "Morpheus"},
			{"name": "Hugo Weaving", "character": "Agent Smith (voice)"},
			{"name": "Gloria Foster", "character": "X"},
			{"name": "Keanu Reeves", "character": "Morpheus"}
		],
		"crew": [
			{"name": "Bill Pope", "job": "Director of Photography"},
			{"name": "Lana Wachowski", "job": "Director"},
			{"name": "Lilly Wachowski", "job": "Director"}
		]
	}
}`

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(&Config{APIKey: "secret", BaseURL: srv.URL + "/3/", RequestsPerSecond: 1000})
}

func TestEnrich_ExtractsMetadata(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/3/movie/603", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Equal(t, "keywords,credits", r.URL.Query().Get("append_to_response"))
		assert.Equal(t, DefaultLanguage, r.URL.Query().Get("language"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(matrixDetails))
	})

	got := c.Enrich(context.Background(), 603)

	assert.Equal(t, []string{"simulated reality", "dystopia", "hacker"}, got.Keywords)
	assert.Equal(t, []string{
		"Keanu Reeves", "Thomas A. Anderson",
		"Laurence Fishburne", "Morpheus",
		"Hugo Weaving", "Agent Smith",
		"Gloria Foster",
	}, got.Characters)
	assert.Equal(t, "Lana Wachowski", got.Director)
}

func TestEnrich_CapsKeywordsAndCast(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		body := `{"keywords":{"keywords":[`
		for i := range 20 {
			if i > 0 {
				body += ","
			}
			body += `{"name":"kw` + string(rune('a'+i)) + `"}`
		}
		body += `]},"credits":{"cast":[`
		for i := range 10 {
			if i > 0 {
				body += ","
			}
			body += `{"name":"actor` + string(rune('a'+i)) + `"}`
		}
		body += `]}}`
		_, _ = w.Write([]byte(body))
	})

	got := c.Enrich(context.Background(), 1)

	assert.Len(t, got.Keywords, maxKeywords)
	assert.Len(t, got.Characters, maxCast)
	assert.Equal(t, "actorh", got.Characters[maxCast-1])
	assert.Empty(t, got.Director)
}

func TestEnrich_FailuresYieldEmpty(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"status_code":34}`, http.StatusNotFound)
		}},
		{"unauthorized", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"status_code":7}`, http.StatusUnauthorized)
		}},
		{"malformed body", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"keywords":`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			assert.True(t, c.Enrich(context.Background(), 603).IsEmpty())
		})
	}
}

func TestEnrich_NoAPIKeySkipsRequest(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL})

	assert.True(t, c.Enrich(context.Background(), 603).IsEmpty())
	assert.True(t, c.Enrich(context.Background(), 0).IsEmpty())
	assert.Zero(t, calls.Load())
}

func TestEnrich_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(&Config{APIKey: "secret", BaseURL: srv.URL, Timeout: 20 * time.Millisecond})

	assert.True(t, c.Enrich(context.Background(), 603).IsEmpty())
}

func TestEnrich_RateLimited(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{}`))
	})
	c.limiter.SetLimit(1)
	c.limiter.SetBurst(1)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Enrich(ctx, 1)
	c.Enrich(ctx, 2)

	assert.Equal(t, int32(1), calls.Load(), "second lookup must wait for a token")
}

func TestCharacterName(t *testing.T) {
	tests := map[string]string{
		"Neo":                        "Neo",
		"Agent Smith (voice)":        "Agent Smith",
		" Mouse (uncredited) ":       "Mouse",
		"(voice)":                    "",
		"Cypher (as Joe Pantoliano)": "Cypher",
	}
	for in, want := range tests {
		require.Equal(t, want, characterName(in), in)
	}
}

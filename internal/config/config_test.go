package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func ptr(v float64) *float64 { return &v }

func TestValidate_Defaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_Database(t *testing.T) {
	tests := []struct {
		name    string
		db      DatabaseConfig
		wantErr string
	}{
		{"redis_ok", DatabaseConfig{Driver: "redis", Addrs: []string{"localhost:6379"}}, ""},
		{"redis_missing_addrs", DatabaseConfig{Driver: "redis"}, "database.addrs is required"},
		{"postgres_ok", DatabaseConfig{Driver: "postgres", DSN: "postgres://localhost/cinefuse"}, ""},
		{"postgres_missing_dsn", DatabaseConfig{Driver: "postgres", Addrs: []string{"x"}}, "database.dsn is required"},
		{"unknown_driver", DatabaseConfig{Driver: "valkey", Addrs: []string{"x"}}, "database.driver must be"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Database = tc.db

			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_Search(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SearchConfig)
		wantErr string
	}{
		{"unknown_strategy", func(s *SearchConfig) { s.Strategy = "borda" }, "search.strategy"},
		{"limit_above_max", func(s *SearchConfig) { s.DefaultLimit = 200 }, "search.default_limit"},
		{"weight_out_of_range", func(s *SearchConfig) { s.KeywordWeight = ptr(1.5) }, "search.keyword_weight"},
		{"negative_alpha", func(s *SearchConfig) { s.Alpha = ptr(-0.1) }, "search.alpha"},
		{"zero_k", func(s *SearchConfig) { s.RRFK = ptr(0) }, "search.rrf_k"},
		{"unknown_boost_field", func(s *SearchConfig) { s.Boosts = map[string]float64{"poster": 2} }, "unknown field"},
		{"zero_boost", func(s *SearchConfig) { s.Boosts = map[string]float64{"title": 0} }, "search.boosts.title"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg.Search)

			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want substring %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_EmbeddingProtocol(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Protocol = "grpc"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != DriverRedis {
		t.Errorf("expected Driver=redis, got %q", cfg.Database.Driver)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Storage.KeyPrefix != "cinefuse:" {
		t.Errorf("expected KeyPrefix='cinefuse:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Index.HNSWM != 16 || cfg.Index.HNSWEFConstruct != 200 || cfg.Index.HNSWEFRuntime != 10 {
		t.Errorf("unexpected HNSW defaults %+v", cfg.Index)
	}

	e := cfg.Embedding
	if e.Protocol != "http" || e.Host != "localhost" || e.Port != 11434 || e.Path != "/v1" {
		t.Errorf("unexpected embedding endpoint defaults %+v", e)
	}
	if e.Timeout() != 10*time.Second {
		t.Errorf("expected embedding timeout 10s, got %v", e.Timeout())
	}
	if e.Model != "nomic-embed-text" || e.Dimensions != 768 {
		t.Errorf("unexpected model defaults %q/%d", e.Model, e.Dimensions)
	}

	s := cfg.Search
	if s.Strategy != "rrf" || *s.RRFK != 60 || *s.Alpha != 0.5 {
		t.Errorf("unexpected fusion defaults %q k=%v alpha=%v", s.Strategy, *s.RRFK, *s.Alpha)
	}
	if s.CandidateCap != 100 || s.DefaultLimit != 20 || s.MaxLimit != 100 {
		t.Errorf("unexpected limit defaults %+v", s)
	}
	if s.EmbedTimeout() != 10*time.Second || s.RetrievalTimeout() != 5*time.Second {
		t.Errorf("unexpected timeouts %v / %v", s.EmbedTimeout(), s.RetrievalTimeout())
	}
	if cfg.Import.BatchSize != 50 || cfg.Import.Concurrency != 4 {
		t.Errorf("unexpected import defaults %+v", cfg.Import)
	}
	if cfg.TMDB.BaseURL != "https://api.themoviedb.org/3" || cfg.TMDB.Language != "en-US" {
		t.Errorf("unexpected tmdb endpoint defaults %+v", cfg.TMDB)
	}
	if cfg.TMDB.Timeout() != 10*time.Second || cfg.TMDB.RequestsPerSecond != 20 {
		t.Errorf("unexpected tmdb limits %v / %v", cfg.TMDB.Timeout(), cfg.TMDB.RequestsPerSecond)
	}
	if cfg.TMDB.Active() {
		t.Error("tmdb enrichment must be off by default")
	}
}

func TestTMDBConfig_Active(t *testing.T) {
	tests := []struct {
		cfg  TMDBConfig
		want bool
	}{
		{TMDBConfig{}, false},
		{TMDBConfig{Enabled: true}, false},
		{TMDBConfig{APIKey: "k"}, false},
		{TMDBConfig{Enabled: true, APIKey: "k"}, true},
	}
	for _, tt := range tests {
		if got := tt.cfg.Active(); got != tt.want {
			t.Errorf("%+v: Active() = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{Driver: DriverPostgres, ReadinessTimeout: 15},
		Index:     IndexConfig{HNSWM: 32, HNSWEFConstruct: 400},
		Storage:   StorageConfig{KeyPrefix: "custom:"},
		Embedding: EmbeddingConfig{Protocol: "https", Host: "api.openai.com", Model: "text-embedding-3-small"},
		Search:    SearchConfig{Strategy: "weighted", KeywordWeight: ptr(0), SemanticWeight: ptr(1)},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("driver overridden: %q", cfg.Database.Driver)
	}
	if cfg.Index.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.HNSWM)
	}
	if cfg.Storage.KeyPrefix != "custom:" {
		t.Errorf("expected KeyPrefix='custom:', got %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Embedding.Port != 0 {
		t.Errorf("https endpoint must not get the Ollama port, got %d", cfg.Embedding.Port)
	}
	if *cfg.Search.KeywordWeight != 0 || *cfg.Search.SemanticWeight != 1 {
		t.Errorf("explicit zero weight overridden: %v/%v", *cfg.Search.KeywordWeight, *cfg.Search.SemanticWeight)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CINEFUSE_TEST_HOST", "ollama")

	in := []byte("host: ${CINEFUSE_TEST_HOST}\nport: ${CINEFUSE_TEST_PORT:-11434}\nkey: ${CINEFUSE_TEST_UNSET}")
	got := string(expandEnvVars(in))

	want := "host: ollama\nport: 11434\nkey: "
	if got != want {
		t.Errorf("expandEnvVars:\ngot:  %q\nwant: %q", got, want)
	}
}

func TestLoad_FromConfigDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yamlBody := `
http:
  port: ${CINEFUSE_TEST_HTTP_PORT:-9090}
database:
  driver: postgres
  dsn: postgres://cinefuse@localhost/cinefuse
search:
  strategy: alpha
  alpha: 0.7
  boosts:
    title: 1.5
tmdb:
  enabled: true
  api_key: ${CINEFUSE_TEST_TMDB_KEY:-tmdb-key}
  requests_per_second: 5
`
	if err := os.WriteFile(filepath.Join(dir, "config", "unittest.yaml"), []byte(yamlBody), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, err := Load("unittest")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.HTTP.Port)
	}
	if cfg.Database.Driver != DriverPostgres || cfg.Database.DSN == "" {
		t.Errorf("unexpected database %+v", cfg.Database)
	}
	if cfg.Search.Strategy != "alpha" || *cfg.Search.Alpha != 0.7 {
		t.Errorf("unexpected search %+v", cfg.Search)
	}
	if cfg.Search.Boosts["title"] != 1.5 {
		t.Errorf("unexpected boosts %v", cfg.Search.Boosts)
	}
	if !cfg.TMDB.Active() || cfg.TMDB.APIKey != "tmdb-key" || cfg.TMDB.RequestsPerSecond != 5 {
		t.Errorf("unexpected tmdb %+v", cfg.TMDB)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "broken.yaml"), []byte("http:\n  port: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	if _, err := Load("broken"); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestGetEnv(t *testing.T) {
	t.Setenv("ENV", "")
	if got := GetEnv(); got != "local" {
		t.Errorf("GetEnv() = %q, want local", got)
	}
	t.Setenv("ENV", "prod")
	if got := GetEnv(); got != "prod" {
		t.Errorf("GetEnv() = %q, want prod", got)
	}
}

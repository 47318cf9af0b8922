package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the cinefuse configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Storage   StorageConfig   `yaml:"storage"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Import    ImportConfig    `yaml:"import"`
	TMDB      TMDBConfig      `yaml:"tmdb"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// Database drivers.
const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// DatabaseConfig holds database connection settings. Addrs and Password
// apply to redis, DSN to postgres.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, postgres (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	DSN              string   `yaml:"dsn"`
	MaxOpenConns     int      `yaml:"max_open_conns"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	HNSWEFRuntime   int `yaml:"hnsw_ef_runtime"` // Redis only
}

// EmbeddingConfig holds the OpenAI-compatible embedding provider settings.
type EmbeddingConfig struct {
	Provider            string `yaml:"provider"` // metrics label only
	Protocol            string `yaml:"protocol"`
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	Path                string `yaml:"path"`
	TimeoutMs           int    `yaml:"timeout_ms"`
	APIKey              string `yaml:"api_key"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	QueryInstruction    string `yaml:"query_instruction"`
	DocumentInstruction string `yaml:"document_instruction"`
	CacheSize           int    `yaml:"cache_size"`
}

// Timeout returns the HTTP client timeout.
func (e EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// SearchConfig holds deployment-wide search defaults. Pointer fields
// distinguish an explicit zero from "unset".
type SearchConfig struct {
	CandidateCap       int                `yaml:"candidate_cap"`
	DefaultLimit       int                `yaml:"default_limit"`
	MaxLimit           int                `yaml:"max_limit"`
	Strategy           string             `yaml:"strategy"` // weighted, rrf, alpha
	KeywordWeight      *float64           `yaml:"keyword_weight"`
	SemanticWeight     *float64           `yaml:"semantic_weight"`
	RRFK               *float64           `yaml:"rrf_k"`
	Alpha              *float64           `yaml:"alpha"`
	EmbedTimeoutMs     int                `yaml:"embed_timeout_ms"`
	RetrievalTimeoutMs int                `yaml:"retrieval_timeout_ms"`
	Boosts             map[string]float64 `yaml:"boosts"`
}

// EmbedTimeout returns the per-query embedding timeout.
func (s SearchConfig) EmbedTimeout() time.Duration {
	return time.Duration(s.EmbedTimeoutMs) * time.Millisecond
}

// RetrievalTimeout returns the per-source retrieval timeout.
func (s SearchConfig) RetrievalTimeout() time.Duration {
	return time.Duration(s.RetrievalTimeoutMs) * time.Millisecond
}

// ImportConfig holds bulk write settings.
type ImportConfig struct {
	BatchSize   int `yaml:"batch_size"`
	Concurrency int `yaml:"concurrency"`
}

// TMDBConfig holds the optional enrichment from The Movie Database.
// Enrichment is active only when enabled and an API key is set.
type TMDBConfig struct {
	Enabled           bool    `yaml:"enabled"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Language          string  `yaml:"language"`
	TimeoutMs         int     `yaml:"timeout_ms"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Timeout returns the request timeout as a duration.
func (t *TMDBConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Active reports whether movies should be enriched.
func (t *TMDBConfig) Active() bool { return t.Enabled && t.APIKey != "" }

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "cinefuse:"
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 16
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 200
	}
	if c.Index.HNSWEFRuntime <= 0 {
		c.Index.HNSWEFRuntime = 10
	}
	c.Embedding.applyDefaults()
	c.Search.applyDefaults()
	if c.Import.BatchSize <= 0 {
		c.Import.BatchSize = 50
	}
	if c.Import.Concurrency <= 0 {
		c.Import.Concurrency = 4
	}
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = "https://api.themoviedb.org/3"
	}
	if c.TMDB.Language == "" {
		c.TMDB.Language = "en-US"
	}
	if c.TMDB.TimeoutMs <= 0 {
		c.TMDB.TimeoutMs = 10000
	}
	if c.TMDB.RequestsPerSecond <= 0 {
		c.TMDB.RequestsPerSecond = 20
	}
}

// Defaults target a local Ollama serving nomic-embed-text.
func (e *EmbeddingConfig) applyDefaults() {
	if e.Provider == "" {
		e.Provider = "ollama"
	}
	if e.Protocol == "" {
		e.Protocol = "http"
	}
	if e.Host == "" {
		e.Host = "localhost"
	}
	if e.Port == 0 && e.Protocol == "http" {
		e.Port = 11434
	}
	if e.Path == "" {
		e.Path = "/v1"
	}
	if e.TimeoutMs <= 0 {
		e.TimeoutMs = 10000
	}
	if e.Model == "" {
		e.Model = "nomic-embed-text"
	}
	if e.Dimensions <= 0 {
		e.Dimensions = 768
	}
	if e.CacheSize <= 0 {
		e.CacheSize = 1000
	}
}

func (s *SearchConfig) applyDefaults() {
	if s.CandidateCap <= 0 {
		s.CandidateCap = 100
	}
	if s.DefaultLimit <= 0 {
		s.DefaultLimit = 20
	}
	if s.MaxLimit <= 0 {
		s.MaxLimit = 100
	}
	if s.Strategy == "" {
		s.Strategy = "rrf"
	}
	s.KeywordWeight = orDefault(s.KeywordWeight, 0.5)
	s.SemanticWeight = orDefault(s.SemanticWeight, 0.5)
	s.RRFK = orDefault(s.RRFK, 60)
	s.Alpha = orDefault(s.Alpha, 0.5)
	if s.EmbedTimeoutMs <= 0 {
		s.EmbedTimeoutMs = 10000
	}
	if s.RetrievalTimeoutMs <= 0 {
		s.RetrievalTimeoutMs = 5000
	}
}

func orDefault(p *float64, def float64) *float64 {
	if p != nil {
		return p
	}
	return &def
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Database.Driver {
	case DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", DriverRedis)
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", DriverPostgres)
		}
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q", DriverRedis, DriverPostgres, c.Database.Driver)
	}

	if err := c.Embedding.validate(); err != nil {
		return err
	}
	return c.Search.validate()
}

func (e *EmbeddingConfig) validate() error {
	switch e.Protocol {
	case "http", "https":
	default:
		return fmt.Errorf("embedding.protocol must be \"http\" or \"https\", got %q", e.Protocol)
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("embedding.port must be between 0 and 65535, got %d", e.Port)
	}
	return nil
}

func (s *SearchConfig) validate() error {
	switch s.Strategy {
	case "weighted", "rrf", "alpha":
	default:
		return fmt.Errorf("search.strategy must be weighted, rrf or alpha, got %q", s.Strategy)
	}
	if s.DefaultLimit > s.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)", s.DefaultLimit, s.MaxLimit)
	}
	for name, v := range map[string]float64{
		"keyword_weight":  *s.KeywordWeight,
		"semantic_weight": *s.SemanticWeight,
		"alpha":           *s.Alpha,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("search.%s must be between 0 and 1, got %v", name, v)
		}
	}
	if *s.RRFK <= 0 {
		return fmt.Errorf("search.rrf_k must be positive, got %v", *s.RRFK)
	}
	for field, factor := range s.Boosts {
		switch field {
		case "title", "overview", "genres":
		default:
			return fmt.Errorf("search.boosts: unknown field %q (allowed: genres, overview, title)", field)
		}
		if factor <= 0 {
			return fmt.Errorf("search.boosts.%s must be positive, got %v", field, factor)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}

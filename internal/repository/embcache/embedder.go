package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/cinefuse/internal/db"
	"github.com/kailas-cloud/cinefuse/internal/domain"
)

// DefaultMemorySize is the number of embeddings kept in process.
// At 768 dimensions that is about 3MB per thousand entries.
const DefaultMemorySize = 1000

// Cache tiers, used as the "tier" metric label.
const (
	tierMemory = "memory"
	tierStore  = "store"
)

// Store is the consumer interface for the persistent cache tier (ISP).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Config holds cache settings.
type Config struct {
	KeyPrefix  string // storage prefix, e.g. "cinefuse:"
	Model      string // part of the cache key so a model switch never serves stale vectors
	Dimensions int    // cached vectors of any other length are misses; <= 0 accepts any
	MemorySize int
}

// CachedEmbedder caches embeddings in an in-process LRU backed by a key-value store.
type CachedEmbedder struct {
	inner      domain.Embedder
	store      Store
	memory     *lru.Cache[string, []float32]
	keyPrefix  string
	model      string
	dimensions int
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// New creates a caching decorator.
// cacheTotal is a counter vec with labels "tier" and "result" ("hit"/"miss"), passed explicitly.
// A nil store leaves only the in-process tier.
func New(
	inner domain.Embedder,
	s Store,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedEmbedder {
	size := cfg.MemorySize
	if size <= 0 {
		size = DefaultMemorySize
	}
	memory, _ := lru.New[string, []float32](size) // only fails for size <= 0

	return &CachedEmbedder{
		inner:      inner,
		store:      s,
		memory:     memory,
		keyPrefix:  cfg.KeyPrefix + "emb_cache:",
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
// Cache miss: full EmbeddingResult from inner. The inner embedder is expected
// to validate its replies; only vectors of the configured length are cached.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey(text)

	if vec, ok := c.memory.Get(key); ok {
		c.incCache(tierMemory, "hit")
		return domain.EmbeddingResult{Embedding: slices.Clone(vec)}, nil
	}
	c.incCache(tierMemory, "miss")

	if c.store != nil {
		if vec, ok := c.getFromStore(ctx, key); ok {
			c.incCache(tierStore, "hit")
			c.memory.Add(key, vec)
			return domain.EmbeddingResult{Embedding: slices.Clone(vec)}, nil
		}
		c.incCache(tierStore, "miss")
	}

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	if !c.fits(result.Embedding) {
		c.logger.Warn("Not caching embedding of unexpected length",
			zap.Int("dimensions", len(result.Embedding)), zap.Int("expected", c.dimensions))
		return result, nil
	}

	vec := slices.Clone(result.Embedding)
	c.memory.Add(key, vec)
	if c.store != nil {
		c.putToStore(ctx, key, vec)
	}
	return result, nil
}

// HealthCheck proxies to the inner embedder when it supports health checks.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx) //nolint:wrapcheck // transparent decorator
	}
	return nil
}

func (c *CachedEmbedder) fits(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	return c.dimensions <= 0 || len(vec) == c.dimensions
}

func (c *CachedEmbedder) incCache(tier, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(tier, result).Inc()
	}
}

func (c *CachedEmbedder) cacheKey(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return c.keyPrefix + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) getFromStore(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !c.fits(vec) {
		c.logger.Warn("Ignoring cached embedding of unexpected length",
			zap.String("key", key), zap.Int("dimensions", len(vec)))
		return nil, false
	}

	return vec, true
}

func (c *CachedEmbedder) putToStore(ctx context.Context, key string, vec []float32) {
	if err := c.store.Set(ctx, key, vectorToCacheBytes(vec)); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}

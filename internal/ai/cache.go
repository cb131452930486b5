package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/contentstore/pkg/models"
)

// ErrCacheMiss is returned by a KV when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// KV is the subset of a key-value store the embedding cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisKV adapts a go-redis client to KV.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}
	return b, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// CachedEmbedder memoizes vectors by model and text. Cache failures are
// logged and fall through to the wrapped embedder.
type CachedEmbedder struct {
	inner Embedder
	kv    KV
	ttl   time.Duration
}

func NewCachedEmbedder(inner Embedder, kv KV, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{inner: inner, kv: kv, ttl: ttl}
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(text))
	return "emb:" + c.inner.Model() + ":" + hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float32, bool) {
	b, err := c.kv.Get(ctx, c.key(text))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Msg("embedding cache read failed")
		}
		return nil, false
	}
	var v []float32
	if err := json.Unmarshal(b, &v); err != nil || len(v) != c.inner.Dim() {
		return nil, false
	}
	return v, true
}

func (c *CachedEmbedder) store(ctx context.Context, text string, v []float32) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, c.key(text), b, c.ttl); err != nil {
		log.Warn().Err(err).Msg("embedding cache write failed")
	}
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	out, err := c.EmbedMany(ctx, []string{text})
	if err != nil {
		return Embedding{}, err
	}
	return out[0], nil
}

func (c *CachedEmbedder) EmbedMany(ctx context.Context, texts []string) ([]Embedding, error) {
	out := make([]Embedding, len(texts))
	var missIdx []int
	var missing []string
	for i, t := range texts {
		if v, ok := c.lookup(ctx, t); ok {
			out[i] = Embedding{Vector: v, Model: c.inner.Model()}
			continue
		}
		missIdx = append(missIdx, i)
		missing = append(missing, t)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.inner.EmbedMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missing) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", models.ErrEmbeddingUnavailable, len(fresh), len(missing))
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		c.store(ctx, missing[j], fresh[j].Vector)
	}
	return out, nil
}

func (c *CachedEmbedder) Dim() int      { return c.inner.Dim() }
func (c *CachedEmbedder) Model() string { return c.inner.Model() }

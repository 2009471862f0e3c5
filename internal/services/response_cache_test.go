package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisResponseCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisResponseCache(client, ttl), mr
}

func sampleAnswer() *rag.StructuredAnswer {
	return &rag.StructuredAnswer{
		Answer:     "Based on the available documents: employees get 25 days of leave.",
		Confidence: rag.ConfidenceHigh,
		Sources: []rag.AnswerSource{
			{DocumentTitle: "Leave Policy", Excerpt: "25 days", RelevanceScore: 0.9},
		},
		Reasoning: "Answer derived from 1 relevant document(s).",
		ModelUsed: "stub-llm-v1",
	}
}

func TestResponseCachePutGetRoundTrip(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	tenantID := uuid.New()

	_, ok := cache.Get(ctx, tenantID, "leave policy?", 5)
	assert.False(t, ok)

	cache.Put(ctx, tenantID, "leave policy?", 5, sampleAnswer())

	got, ok := cache.Get(ctx, tenantID, "leave policy?", 5)
	require.True(t, ok)
	assert.Equal(t, sampleAnswer(), got)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestResponseCacheTenantKeysAreSeparate(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	tenantA := uuid.New()
	tenantB := uuid.New()

	cache.Put(ctx, tenantA, "same question", 5, sampleAnswer())

	// 同样的问题在另一个租户下必须未命中
	_, ok := cache.Get(ctx, tenantB, "same question", 5)
	assert.False(t, ok)

	_, ok = cache.Get(ctx, tenantA, "same question", 5)
	assert.True(t, ok)
}

func TestResponseCacheTopKIsPartOfKey(t *testing.T) {
	cache, _ := newTestCache(t, time.Hour)
	ctx := context.Background()
	tenantID := uuid.New()

	cache.Put(ctx, tenantID, "question", 5, sampleAnswer())

	_, ok := cache.Get(ctx, tenantID, "question", 10)
	assert.False(t, ok)
}

func TestResponseCacheTTLExpiry(t *testing.T) {
	cache, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	tenantID := uuid.New()

	cache.Put(ctx, tenantID, "question", 5, sampleAnswer())
	_, ok := cache.Get(ctx, tenantID, "question", 5)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)

	_, ok = cache.Get(ctx, tenantID, "question", 5)
	assert.False(t, ok)
}

func TestResponseCacheCorruptedEntryIsMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, mr.Set(cacheKey(tenantID, "question", 5), "{not valid json"))

	_, ok := cache.Get(ctx, tenantID, "question", 5)
	assert.False(t, ok)
	assert.Equal(t, int64(1), cache.Stats().Errors)
}

func TestResponseCacheRedisDownDegradesToMiss(t *testing.T) {
	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	tenantID := uuid.New()

	cache.Put(ctx, tenantID, "question", 5, sampleAnswer())
	mr.Close()

	// Redis故障只降级为未命中，不panic不报错
	_, ok := cache.Get(ctx, tenantID, "question", 5)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, cache.Stats().Errors, int64(1))
}

func TestNoopResponseCache(t *testing.T) {
	cache := NoopResponseCache{}
	ctx := context.Background()
	tenantID := uuid.New()

	cache.Put(ctx, tenantID, "question", 5, sampleAnswer())
	_, ok := cache.Get(ctx, tenantID, "question", 5)
	assert.False(t, ok)
	assert.Equal(t, CacheStats{}, cache.Stats())
}

package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/logger"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ResponseCache 答案缓存抽象。key由(租户ID, 规范化问题, topK)构成，
// 租户ID是key的一部分而不是读取后的过滤条件，跨租户命中在结构上不可能。
type ResponseCache interface {
	Get(ctx context.Context, tenantID uuid.UUID, normalizedQuery string, topK int) (*rag.StructuredAnswer, bool)
	Put(ctx context.Context, tenantID uuid.UUID, normalizedQuery string, topK int, answer *rag.StructuredAnswer)
	Stats() CacheStats
}

// CacheStats 缓存命中率统计
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// RedisResponseCache 基于Redis的cache-aside实现。TTL由Redis在读取时
// 判定（过期key直接不可见）。Redis故障只降级为未命中，不影响请求。
type RedisResponseCache struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	stats CacheStats
}

// NewRedisResponseCache 创建Redis答案缓存
func NewRedisResponseCache(client *redis.Client, ttl time.Duration) *RedisResponseCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisResponseCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *RedisResponseCache) Get(ctx context.Context, tenantID uuid.UUID, normalizedQuery string, topK int) (*rag.StructuredAnswer, bool) {
	if c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, cacheKey(tenantID, normalizedQuery, topK)).Bytes()
	if err == redis.Nil {
		c.record(func(s *CacheStats) { s.Misses++ })
		return nil, false
	}
	if err != nil {
		// 缓存不可用：降级为未命中
		c.record(func(s *CacheStats) { s.Errors++ })
		logger.Warn("response cache get failed", zap.Error(err))
		return nil, false
	}

	var answer rag.StructuredAnswer
	if err := json.Unmarshal(data, &answer); err != nil {
		c.record(func(s *CacheStats) { s.Errors++ })
		logger.Warn("response cache entry corrupted", zap.Error(err))
		return nil, false
	}

	c.record(func(s *CacheStats) { s.Hits++ })
	return &answer, true
}

func (c *RedisResponseCache) Put(ctx context.Context, tenantID uuid.UUID, normalizedQuery string, topK int, answer *rag.StructuredAnswer) {
	if c.client == nil || answer == nil {
		return
	}

	data, err := json.Marshal(answer)
	if err != nil {
		logger.Warn("response cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, cacheKey(tenantID, normalizedQuery, topK), data, c.ttl).Err(); err != nil {
		c.record(func(s *CacheStats) { s.Errors++ })
		logger.Warn("response cache put failed", zap.Error(err))
	}
}

func (c *RedisResponseCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *RedisResponseCache) record(update func(*CacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}

// cacheKey 组合键：租户 + 问题哈希 + 检索参数
func cacheKey(tenantID uuid.UUID, normalizedQuery string, topK int) string {
	queryHash := sha256.Sum256([]byte(normalizedQuery))
	return fmt.Sprintf("rag:answer:%s:%s:k%d", tenantID, hex.EncodeToString(queryHash[:])[:16], topK)
}

// NoopResponseCache Redis未启用时的空实现，所有读取均为未命中
type NoopResponseCache struct{}

func (NoopResponseCache) Get(ctx context.Context, tenantID uuid.UUID, normalizedQuery string, topK int) (*rag.StructuredAnswer, bool) {
	return nil, false
}

func (NoopResponseCache) Put(ctx context.Context, tenantID uuid.UUID, normalizedQuery string, topK int, answer *rag.StructuredAnswer) {
}

func (NoopResponseCache) Stats() CacheStats {
	return CacheStats{}
}

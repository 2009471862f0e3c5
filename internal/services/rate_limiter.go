package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimiter 滑动窗口准入控制。Admit返回false表示该租户在当前
// 窗口内的配额已用尽，这是一个独立的业务结果，不是错误。
type RateLimiter interface {
	Admit(ctx context.Context, tenantID uuid.UUID) (bool, error)
}

// 滑动窗口脚本：清理过期时间戳、检查窗口内计数、在配额内时记录
// 本次请求。整段脚本在Redis中原子执行，同租户并发Admit不会在
// 只剩一个配额时同时放行。
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
local member = ARGV[4]
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < max then
  redis.call('ZADD', key, now, member)
  redis.call('PEXPIRE', key, window)
  return 1
end
return 0
`)

// RedisRateLimiter 基于Redis ZSET的分布式滑动窗口限流器
type RedisRateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRedisRateLimiter 创建Redis限流器
func NewRedisRateLimiter(client *redis.Client, maxRequests int, window time.Duration) *RedisRateLimiter {
	if maxRequests <= 0 {
		maxRequests = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RedisRateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
	}
}

func (l *RedisRateLimiter) Admit(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	if l.client == nil {
		return true, nil
	}

	key := "rag:ratelimit:" + tenantID.String()
	result, err := slidingWindowScript.Run(ctx, l.client,
		[]string{key},
		time.Now().UnixMilli(),
		l.window.Milliseconds(),
		l.maxRequests,
		uuid.NewString(),
	).Int()
	if err != nil {
		// Redis不可达时放行，限流是保护机制而非正确性要求
		logger.Warn("rate limiter unavailable, failing open",
			zap.String("tenant_id", tenantID.String()), zap.Error(err))
		return true, nil
	}
	return result == 1, nil
}

// MemoryRateLimiter 进程内滑动窗口限流器，每租户独立互斥锁，
// 检查与记录在同一临界区内完成。
type MemoryRateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	tenants map[uuid.UUID]*tenantWindow
}

type tenantWindow struct {
	mu     sync.Mutex
	stamps []time.Time
}

// NewMemoryRateLimiter 创建进程内限流器
func NewMemoryRateLimiter(maxRequests int, window time.Duration) *MemoryRateLimiter {
	if maxRequests <= 0 {
		maxRequests = 20
	}
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryRateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		tenants:     make(map[uuid.UUID]*tenantWindow),
	}
}

func (l *MemoryRateLimiter) Admit(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	win, ok := l.tenants[tenantID]
	if !ok {
		win = &tenantWindow{}
		l.tenants[tenantID] = win
	}
	l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	win.mu.Lock()
	defer win.mu.Unlock()

	kept := win.stamps[:0]
	for _, ts := range win.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	win.stamps = kept

	if len(win.stamps) >= l.maxRequests {
		return false, nil
	}
	win.stamps = append(win.stamps, now)
	return true, nil
}

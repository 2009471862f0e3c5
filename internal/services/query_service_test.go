package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/knowledgehub/backend-go/internal/models"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAudit 收集每次审计写入，便于断言终止状态
type recordingAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (r *recordingAudit) Record(ctx context.Context, entry AuditEntry) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
	return uuid.New(), nil
}

func (r *recordingAudit) last(t *testing.T) AuditEntry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.entries)
	return r.entries[len(r.entries)-1]
}

func (r *recordingAudit) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type fixedStore struct {
	matches  []rag.SearchMatch
	searches int32
}

func (s *fixedStore) UpsertChunk(ctx context.Context, chunk rag.VectorChunk) error { return nil }
func (s *fixedStore) DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	return nil
}
func (s *fixedStore) Search(ctx context.Context, req rag.VectorSearchRequest) ([]rag.SearchMatch, error) {
	atomic.AddInt32(&s.searches, 1)
	return s.matches, nil
}
func (s *fixedStore) Ready() bool { return true }

type failingStore struct{}

func (failingStore) UpsertChunk(ctx context.Context, chunk rag.VectorChunk) error { return nil }
func (failingStore) DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	return nil
}
func (failingStore) Search(ctx context.Context, req rag.VectorSearchRequest) ([]rag.SearchMatch, error) {
	return nil, errors.New("index unavailable")
}
func (failingStore) Ready() bool { return false }

// brokenLimiter 模拟限流器基础设施故障：既不放行也给不出判定
type brokenLimiter struct{}

func (brokenLimiter) Admit(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	return false, errors.New("redis connection refused")
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding backend down")
}
func (failingEmbedder) Dimensions() int { return 64 }
func (failingEmbedder) Ready() bool     { return false }

type failingSynthesizer struct{}

func (failingSynthesizer) Synthesize(ctx context.Context, tenantName, question string, matches []rag.SearchMatch) (*rag.StructuredAnswer, error) {
	return nil, errors.New("malformed model output")
}
func (failingSynthesizer) Model() string { return "stub-llm-v1" }

func activeTenant() *models.Tenant {
	return &models.Tenant{
		TenantID: uuid.New(),
		Name:     "acme",
		Slug:     "acme",
		IsActive: true,
	}
}

func policyMatches() []rag.SearchMatch {
	return []rag.SearchMatch{
		{
			ChunkID:       uuid.New(),
			DocumentID:    uuid.New(),
			DocumentTitle: "Leave Policy",
			ChunkIndex:    0,
			Content:       "Employees are entitled to 25 days of paid annual leave per year. Requests go through HR.",
			Score:         0.82,
		},
		{
			ChunkID:       uuid.New(),
			DocumentID:    uuid.New(),
			DocumentTitle: "Leave Policy",
			ChunkIndex:    1,
			Content:       "Unused leave days can be carried over to the next year up to a maximum of five days.",
			Score:         0.64,
		},
	}
}

type queryServiceFixture struct {
	service *QueryService
	audit   *recordingAudit
	store   *fixedStore
	cache   *RedisResponseCache
	limiter *MemoryRateLimiter
}

func newQueryFixture(t *testing.T, matches []rag.SearchMatch) *queryServiceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	audit := &recordingAudit{}
	store := &fixedStore{matches: matches}
	cache := NewRedisResponseCache(client, time.Hour)
	limiter := NewMemoryRateLimiter(100, time.Minute)

	service := NewQueryService(QueryServiceParams{
		Embedder:    rag.NewHashEmbedder(64),
		Store:       store,
		Synthesizer: rag.NewStubSynthesizer(0.3),
		Cache:       cache,
		Limiter:     limiter,
		Audit:       audit,
		DefaultTopK: 5,
		MaxTopK:     20,
	})
	return &queryServiceFixture{
		service: service,
		audit:   audit,
		store:   store,
		cache:   cache,
		limiter: limiter,
	}
}

func TestQueryCompletesWithSources(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	tenant := activeTenant()

	result, err := f.service.Query(context.Background(), tenant, "How many days of annual leave?", 5)
	require.NoError(t, err)

	assert.False(t, result.Cached)
	assert.NotEmpty(t, result.RequestID)
	assert.Contains(t, result.Answer, "25 days of paid annual leave")
	assert.Equal(t, rag.ConfidenceHigh, result.Confidence)
	assert.NotEmpty(t, result.Sources)

	entry := f.audit.last(t)
	assert.Equal(t, models.AuditStatusCompleted, entry.Status)
	assert.Equal(t, tenant.TenantID, entry.TenantID)
	assert.False(t, entry.Cached)
	assert.NotEmpty(t, entry.Chunks)
}

func TestQueryRepeatHitsCache(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	tenant := activeTenant()
	ctx := context.Background()

	first, err := f.service.Query(ctx, tenant, "How many days of annual leave?", 5)
	require.NoError(t, err)
	require.False(t, first.Cached)

	// 问题大小写与首尾空白不同，规范化后命中同一key
	second, err := f.service.Query(ctx, tenant, "  HOW MANY DAYS OF ANNUAL LEAVE?  ", 5)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)

	// 命中缓存时不再检索
	assert.Equal(t, int32(1), atomic.LoadInt32(&f.store.searches))
	assert.Equal(t, models.AuditStatusCached, f.audit.last(t).Status)
}

func TestQueryCacheIsTenantScoped(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	ctx := context.Background()

	_, err := f.service.Query(ctx, activeTenant(), "How many days of annual leave?", 5)
	require.NoError(t, err)

	// 另一个租户的相同问题必须走完整流水线
	other, err := f.service.Query(ctx, activeTenant(), "How many days of annual leave?", 5)
	require.NoError(t, err)
	assert.False(t, other.Cached)
	assert.Equal(t, int32(2), atomic.LoadInt32(&f.store.searches))
}

func TestQueryEmptyCorpusAnswersHonestly(t *testing.T) {
	f := newQueryFixture(t, nil)
	tenant := activeTenant()

	result, err := f.service.Query(context.Background(), tenant, "What is the expense policy?", 5)
	require.NoError(t, err)

	assert.Equal(t, rag.ConfidenceLow, result.Confidence)
	assert.Empty(t, result.Sources)
	assert.Contains(t, result.Answer, "don't have enough information")
	assert.Equal(t, models.AuditStatusCompleted, f.audit.last(t).Status)
}

func TestQueryRateLimited(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	f.limiter.maxRequests = 1
	tenant := activeTenant()
	ctx := context.Background()

	_, err := f.service.Query(ctx, tenant, "first question?", 5)
	require.NoError(t, err)

	_, err = f.service.Query(ctx, tenant, "second question?", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRateLimited))

	entry := f.audit.last(t)
	assert.Equal(t, models.AuditStatusRejected, entry.Status)
	assert.Equal(t, string(apperrors.ErrCodeRateLimited), entry.ErrorCode)
}

func TestQueryLimiterOutageFailsOpen(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	f.service.limiter = brokenLimiter{}
	tenant := activeTenant()

	// 限流器故障不等于限流拒绝，请求放行并正常完成
	result, err := f.service.Query(context.Background(), tenant, "How many days of annual leave?", 5)
	require.NoError(t, err)
	assert.False(t, result.Cached)

	entry := f.audit.last(t)
	assert.Equal(t, models.AuditStatusCompleted, entry.Status)
	assert.Empty(t, entry.ErrorCode)
}

func TestQueryInactiveTenantRejected(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	tenant := activeTenant()
	tenant.IsActive = false

	_, err := f.service.Query(context.Background(), tenant, "any question?", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTenantInactive))

	entry := f.audit.last(t)
	assert.Equal(t, models.AuditStatusRejected, entry.Status)
	assert.Equal(t, string(apperrors.ErrCodeTenantInactive), entry.ErrorCode)
	// 没有进入流水线
	assert.Equal(t, int32(0), atomic.LoadInt32(&f.store.searches))
}

func TestQueryEmbeddingFailure(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	f.service.embedder = failingEmbedder{}

	_, err := f.service.Query(context.Background(), activeTenant(), "question?", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmbeddingFailed))

	entry := f.audit.last(t)
	assert.Equal(t, models.AuditStatusFailed, entry.Status)
	assert.Equal(t, string(apperrors.ErrCodeEmbeddingFailed), entry.ErrorCode)
}

func TestQueryRetrievalFailure(t *testing.T) {
	f := newQueryFixture(t, nil)
	f.service.store = failingStore{}

	_, err := f.service.Query(context.Background(), activeTenant(), "question?", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRetrievalFailed))
	assert.Equal(t, models.AuditStatusFailed, f.audit.last(t).Status)
}

func TestQuerySynthesisFailureNotCached(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	f.service.synthesizer = failingSynthesizer{}
	tenant := activeTenant()
	ctx := context.Background()

	_, err := f.service.Query(ctx, tenant, "question?", 5)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeSynthesisFailed))
	assert.Equal(t, models.AuditStatusFailed, f.audit.last(t).Status)

	// 失败结果不能进入缓存
	_, ok := f.cache.Get(ctx, tenant.TenantID, "question?", 5)
	assert.False(t, ok)
}

func TestQueryCanceledContext(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.Query(ctx, activeTenant(), "question?", 5)
	require.Error(t, err)

	// 调用方放弃仍然留下审计记录，状态为canceled
	entry := f.audit.last(t)
	assert.Equal(t, models.AuditStatusCanceled, entry.Status)
}

func TestQueryValidation(t *testing.T) {
	f := newQueryFixture(t, policyMatches())

	_, err := f.service.Query(context.Background(), nil, "question?", 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	_, err = f.service.Query(context.Background(), activeTenant(), "   ", 5)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	// 校验失败不写审计
	assert.Equal(t, 0, f.audit.count())
}

func TestQueryAuditPerTerminalState(t *testing.T) {
	f := newQueryFixture(t, policyMatches())
	tenant := activeTenant()
	ctx := context.Background()

	_, err := f.service.Query(ctx, tenant, "How many days of annual leave?", 5)
	require.NoError(t, err)
	_, err = f.service.Query(ctx, tenant, "How many days of annual leave?", 5)
	require.NoError(t, err)

	// 两次查询各写一条审计：completed + cached
	require.Equal(t, 2, f.audit.count())
	assert.Equal(t, models.AuditStatusCompleted, f.audit.entries[0].Status)
	assert.Equal(t, models.AuditStatusCached, f.audit.entries[1].Status)
}

package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/knowledgehub/backend-go/internal/kafka"
	"github.com/knowledgehub/backend-go/internal/logger"
	"github.com/knowledgehub/backend-go/internal/models"
	"github.com/knowledgehub/backend-go/internal/rag"
	"go.uber.org/zap"
)

// QueryResult 对外返回的查询结果：结构化答案加上缓存标记与耗时
type QueryResult struct {
	rag.StructuredAnswer
	RequestID string `json:"request_id,omitempty"`
	Cached    bool   `json:"cached"`
	LatencyMs int    `json:"latency_ms"`
}

// QueryService 查询编排器。单次查询内各阶段严格串行：
// 准入 → 查缓存 → (命中即返回) → 向量化 → 检索 → 合成 → 写缓存 → 审计。
// 限流拒绝和各阶段失败都是终止状态，每个终止状态写且仅写一条审计。
// 租户ID从准入一路透传到合成，任何阶段都不会脱离租户上下文。
type QueryService struct {
	embedder    rag.Embedder
	store       rag.VectorStore
	synthesizer rag.Synthesizer
	cache       ResponseCache
	limiter     RateLimiter
	audit       AuditRecorder
	metrics     *MetricsService
	producer    *kafka.Producer
	logger      *zap.Logger

	defaultTopK int
	maxTopK     int
}

// QueryServiceParams 编排器依赖
type QueryServiceParams struct {
	Embedder    rag.Embedder
	Store       rag.VectorStore
	Synthesizer rag.Synthesizer
	Cache       ResponseCache
	Limiter     RateLimiter
	Audit       AuditRecorder
	Metrics     *MetricsService
	Producer    *kafka.Producer
	DefaultTopK int
	MaxTopK     int
}

// NewQueryService 创建查询编排器
func NewQueryService(p QueryServiceParams) *QueryService {
	if p.DefaultTopK <= 0 {
		p.DefaultTopK = 5
	}
	if p.MaxTopK <= 0 {
		p.MaxTopK = 20
	}
	cache := p.Cache
	if cache == nil {
		cache = NoopResponseCache{}
	}
	return &QueryService{
		embedder:    p.Embedder,
		store:       p.Store,
		synthesizer: p.Synthesizer,
		cache:       cache,
		limiter:     p.Limiter,
		audit:       p.Audit,
		metrics:     p.Metrics,
		producer:    p.Producer,
		logger:      logger.GetLogger(),
		defaultTopK: p.DefaultTopK,
		maxTopK:     p.MaxTopK,
	}
}

// Query 执行一次端到端查询
func (s *QueryService) Query(ctx context.Context, tenant *models.Tenant, question string, topK int) (*QueryResult, error) {
	start := time.Now()

	if tenant == nil {
		return nil, apperrors.NewValidationError("tenant is required")
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewValidationError("question cannot be empty")
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}
	if topK > s.maxTopK {
		topK = s.maxTopK
	}
	normalized := normalizeQuery(question)

	// 停用租户在准入前排除
	if !tenant.IsActive {
		s.writeAudit(ctx, AuditEntry{
			TenantID:  tenant.TenantID,
			Query:     question,
			Status:    models.AuditStatusRejected,
			ErrorCode: string(apperrors.ErrCodeTenantInactive),
			LatencyMs: elapsedMs(start),
			ModelUsed: s.synthesizer.Model(),
		})
		s.metrics.ObserveQuery(models.AuditStatusRejected, time.Since(start))
		return nil, apperrors.NewTenantInactiveError(tenant.TenantID.String())
	}

	// Admitted
	allowed, err := s.limiter.Admit(ctx, tenant.TenantID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, s.failQuery(ctx, tenant, question, start, nil,
				apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "query canceled").WithCause(err))
		}
		// 限流器基础设施故障时放行，拒绝只能来自明确的窗口判定
		s.logger.Warn("rate limiter unavailable, admitting request",
			zap.String("tenant_id", tenant.TenantID.String()),
			zap.Error(err))
		allowed = true
	}
	if !allowed {
		s.metrics.RateLimited()
		s.metrics.ObserveQuery(models.AuditStatusRejected, time.Since(start))
		s.writeAudit(ctx, AuditEntry{
			TenantID:  tenant.TenantID,
			Query:     question,
			Status:    models.AuditStatusRejected,
			ErrorCode: string(apperrors.ErrCodeRateLimited),
			LatencyMs: elapsedMs(start),
			ModelUsed: s.synthesizer.Model(),
		})
		return nil, apperrors.NewRateLimitedError(tenant.TenantID.String())
	}

	// CacheChecked
	if answer, ok := s.cache.Get(ctx, tenant.TenantID, normalized, topK); ok {
		s.metrics.CacheEvent("hit")
		result := &QueryResult{
			StructuredAnswer: *answer,
			Cached:           true,
			LatencyMs:        elapsedMs(start),
		}
		requestID := s.writeAudit(ctx, AuditEntry{
			TenantID:  tenant.TenantID,
			Query:     question,
			Answer:    answer,
			Status:    models.AuditStatusCached,
			LatencyMs: result.LatencyMs,
			Cached:    true,
			ModelUsed: answer.ModelUsed,
		})
		result.RequestID = requestID
		s.metrics.ObserveQuery(models.AuditStatusCached, time.Since(start))
		s.publishEvent(requestID, tenant.TenantID, models.AuditStatusCached, true, answer.ModelUsed, result.LatencyMs)
		return result, nil
	}
	s.metrics.CacheEvent("miss")

	// Embedding
	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, s.failQuery(ctx, tenant, question, start, nil, apperrors.NewEmbeddingFailedError(err))
	}

	// Retrieving
	matches, err := s.store.Search(ctx, rag.VectorSearchRequest{
		TenantID:       tenant.TenantID,
		QueryEmbedding: queryVector,
		TopK:           topK,
		CandidateLimit: topK * 20,
	})
	if err != nil {
		return nil, s.failQuery(ctx, tenant, question, start, nil, apperrors.NewRetrievalFailedError(err))
	}

	// Synthesizing
	answer, err := s.synthesizer.Synthesize(ctx, tenant.Name, question, matches)
	if err != nil {
		return nil, s.failQuery(ctx, tenant, question, start, matches, apperrors.NewSynthesisFailedError(err))
	}

	// Caching：仅在完整成功后写入；调用方中途放弃不会留下半成品缓存
	if ctx.Err() != nil {
		return nil, s.failQuery(ctx, tenant, question, start, matches,
			apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "query canceled").WithCause(ctx.Err()))
	}
	s.cache.Put(ctx, tenant.TenantID, normalized, topK, answer)

	result := &QueryResult{
		StructuredAnswer: *answer,
		Cached:           false,
		LatencyMs:        elapsedMs(start),
	}

	// Audited
	requestID := s.writeAudit(ctx, AuditEntry{
		TenantID:  tenant.TenantID,
		Query:     question,
		Answer:    answer,
		Chunks:    matches,
		Status:    models.AuditStatusCompleted,
		LatencyMs: result.LatencyMs,
		ModelUsed: answer.ModelUsed,
	})
	result.RequestID = requestID

	s.metrics.ObserveQuery(models.AuditStatusCompleted, time.Since(start))
	s.publishEvent(requestID, tenant.TenantID, models.AuditStatusCompleted, false, answer.ModelUsed, result.LatencyMs)
	return result, nil
}

// failQuery 统一处理失败终止状态：写审计、记指标、返回带类型的错误。
// 调用方放弃（ctx取消）审计为canceled而非failed。
func (s *QueryService) failQuery(ctx context.Context, tenant *models.Tenant, question string, start time.Time, chunks []rag.SearchMatch, appErr *apperrors.AppError) error {
	status := models.AuditStatusFailed
	if ctx.Err() != nil {
		status = models.AuditStatusCanceled
	}

	s.writeAudit(ctx, AuditEntry{
		TenantID:  tenant.TenantID,
		Query:     question,
		Chunks:    chunks,
		Status:    status,
		ErrorCode: string(appErr.Code),
		LatencyMs: elapsedMs(start),
		ModelUsed: s.synthesizer.Model(),
	})
	s.metrics.ObserveQuery(status, time.Since(start))

	s.logger.Warn("query terminated",
		zap.String("tenant_id", tenant.TenantID.String()),
		zap.String("status", status),
		zap.String("code", string(appErr.Code)),
		zap.Error(appErr))
	return appErr
}

// writeAudit 写审计记录。使用剥离取消信号的context，
// 调用方放弃请求不能抑制审计写入。
func (s *QueryService) writeAudit(ctx context.Context, entry AuditEntry) string {
	if s.audit == nil {
		return ""
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	requestID, err := s.audit.Record(auditCtx, entry)
	if err != nil {
		s.logger.Error("failed to write audit record",
			zap.String("tenant_id", entry.TenantID.String()),
			zap.String("status", entry.Status),
			zap.Error(err))
		return ""
	}
	return requestID.String()
}

func (s *QueryService) publishEvent(requestID string, tenantID uuid.UUID, status string, cached bool, modelUsed string, latencyMs int) {
	if s.producer == nil {
		return
	}
	event := &kafka.QueryEvent{
		RequestID: requestID,
		TenantID:  tenantID.String(),
		Status:    status,
		Cached:    cached,
		ModelUsed: modelUsed,
		LatencyMs: latencyMs,
		Timestamp: time.Now(),
	}
	if err := s.producer.SendQueryEvent(event); err != nil {
		s.logger.Warn("failed to publish query event", zap.Error(err))
	}
}

// normalizeQuery 缓存key使用的问题规范化
func normalizeQuery(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

func elapsedMs(start time.Time) int {
	return int(time.Since(start).Milliseconds())
}

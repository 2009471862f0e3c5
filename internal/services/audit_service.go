package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/models"
	"github.com/knowledgehub/backend-go/internal/rag"
	"gorm.io/gorm"
)

// AuditEntry 一次查询尝试的审计内容
type AuditEntry struct {
	TenantID  uuid.UUID
	Query     string
	Answer    *rag.StructuredAnswer
	Chunks    []rag.SearchMatch
	Status    string
	ErrorCode string
	LatencyMs int
	Cached    bool
	ModelUsed string
}

// AuditRecorder 审计写入抽象，便于在测试中替换
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) (uuid.UUID, error)
}

// AuditService 查询审计服务：每次查询尝试追加一条ai_requests记录，
// 包括被限流和失败的尝试。记录一经写入不再修改。
type AuditService struct {
	db *gorm.DB
}

// NewAuditService 创建审计服务
func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{db: db}
}

func (s *AuditService) Record(ctx context.Context, entry AuditEntry) (uuid.UUID, error) {
	record := models.AIRequest{
		TenantID:   entry.TenantID,
		Query:      entry.Query,
		Response:   marshalResponse(entry.Answer),
		ChunksUsed: marshalChunks(entry.Chunks),
		ModelUsed:  entry.ModelUsed,
		TokenUsage: marshalUsage(entry.Answer),
		LatencyMs:  entry.LatencyMs,
		Cached:     entry.Cached,
		Status:     entry.Status,
		ErrorCode:  entry.ErrorCode,
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return uuid.Nil, err
	}
	return record.RequestID, nil
}

func marshalResponse(answer *rag.StructuredAnswer) string {
	if answer == nil {
		return "{}"
	}
	payload := map[string]string{
		"answer":     answer.Answer,
		"confidence": answer.Confidence,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func marshalChunks(chunks []rag.SearchMatch) string {
	refs := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		refs = append(refs, map[string]interface{}{
			"chunk_id": c.ChunkID,
			"doc":      c.DocumentTitle,
			"score":    c.Score,
		})
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func marshalUsage(answer *rag.StructuredAnswer) string {
	if answer == nil {
		return "{}"
	}
	data, err := json.Marshal(answer.TokenUsage)
	if err != nil {
		return "{}"
	}
	return string(data)
}

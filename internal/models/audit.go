package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// 审计状态，每次查询尝试写且仅写一条记录
const (
	AuditStatusCompleted = "completed"
	AuditStatusCached    = "cached"
	AuditStatusRejected  = "rejected"
	AuditStatusFailed    = "failed"
	AuditStatusCanceled  = "canceled"
)

// AIRequest AI查询审计表（追加写，不可变）
type AIRequest struct {
	RequestID  uuid.UUID `gorm:"type:uuid;primaryKey;column:request_id" json:"request_id"`
	TenantID   uuid.UUID `gorm:"type:uuid;column:tenant_id;not null;index" json:"tenant_id"`
	Query      string    `gorm:"type:text;not null" json:"query"`
	Response   string    `gorm:"type:jsonb;default:'{}'" json:"response"`    // 结构化答案快照
	ChunksUsed string    `gorm:"column:chunks_used;type:jsonb;default:'[]'" json:"chunks_used"`
	ModelUsed  string    `gorm:"column:model_used;size:100" json:"model_used"`
	TokenUsage string    `gorm:"column:token_usage;type:jsonb;default:'{}'" json:"token_usage"`
	LatencyMs  int       `gorm:"column:latency_ms;default:0" json:"latency_ms"`
	Cached     bool      `gorm:"default:false" json:"cached"`
	Status     string    `gorm:"size:30;not null;index" json:"status"`
	ErrorCode  string    `gorm:"column:error_code;size:50" json:"error_code,omitempty"`
	CreateTime time.Time `gorm:"column:create_time;not null;index" json:"create_time"`
}

func (AIRequest) TableName() string {
	return "ai_requests"
}

func (r *AIRequest) BeforeCreate(tx *gorm.DB) error {
	if r.RequestID == uuid.Nil {
		r.RequestID = uuid.New()
	}
	if r.CreateTime.IsZero() {
		r.CreateTime = time.Now()
	}
	return nil
}

package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/knowledgehub/backend-go/internal/logger"
	"github.com/knowledgehub/backend-go/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TenantService 租户管理服务
type TenantService struct {
	db     *gorm.DB
	logger *zap.Logger
}

// TenantUsage 租户用量统计，按ai_requests聚合
type TenantUsage struct {
	TotalQueries   int64 `json:"total_queries"`
	CompletedCount int64 `json:"completed_count"`
	CachedCount    int64 `json:"cached_count"`
	RejectedCount  int64 `json:"rejected_count"`
	FailedCount    int64 `json:"failed_count"`
	AvgLatencyMs   int64 `json:"avg_latency_ms"`
}

// NewTenantService 创建租户服务
func NewTenantService(db *gorm.DB) *TenantService {
	return &TenantService{db: db, logger: logger.GetLogger()}
}

// Create 创建租户并签发API key。key只在创建响应中返回一次。
func (s *TenantService) Create(ctx context.Context, name, slug string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.ToLower(strings.TrimSpace(slug))
	if name == "" {
		return nil, apperrors.NewValidationError("tenant name cannot be empty")
	}
	if slug == "" {
		return nil, apperrors.NewValidationError("tenant slug cannot be empty")
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeInternalServer, "failed to generate api key").WithCause(err)
	}

	tenant := &models.Tenant{
		Name:     name,
		Slug:     slug,
		APIKey:   apiKey,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(tenant).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate") || strings.Contains(err.Error(), "unique") {
			return nil, apperrors.NewBusinessError(apperrors.ErrCodeConflict, fmt.Sprintf("tenant slug %q already exists", slug))
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to create tenant").WithCause(err)
	}

	s.logger.Info("tenant created",
		zap.String("tenant_id", tenant.TenantID.String()),
		zap.String("slug", tenant.Slug))
	return tenant, nil
}

// ResolveAPIKey 按API key查找租户，认证中间件使用。
// 找不到和key为空都返回Unauthorized，不区分两种情况。
func (s *TenantService) ResolveAPIKey(ctx context.Context, apiKey string) (*models.Tenant, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, apperrors.NewBusinessError(apperrors.ErrCodeUnauthorized, "missing api key")
	}

	var tenant models.Tenant
	err := s.db.WithContext(ctx).Where("api_key = ?", apiKey).First(&tenant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewBusinessError(apperrors.ErrCodeUnauthorized, "invalid api key")
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to resolve api key").WithCause(err)
	}
	return &tenant, nil
}

// GetByID 按ID读取租户
func (s *TenantService) GetByID(ctx context.Context, tenantID uuid.UUID) (*models.Tenant, error) {
	var tenant models.Tenant
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&tenant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("tenant")
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to load tenant").WithCause(err)
	}
	return &tenant, nil
}

// List 列出全部租户
func (s *TenantService) List(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	err := s.db.WithContext(ctx).Order("create_time ASC").Find(&tenants).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to list tenants").WithCause(err)
	}
	return tenants, nil
}

// SetActive 启用或停用租户。停用立即生效，后续查询在准入前被拒绝；
// 数据保留不删除。
func (s *TenantService) SetActive(ctx context.Context, tenantID uuid.UUID, active bool) (*models.Tenant, error) {
	tenant, err := s.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Model(tenant).
		Where("tenant_id = ?", tenantID).
		Updates(map[string]interface{}{
			"is_active":   active,
			"update_time": time.Now(),
		}).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to update tenant").WithCause(err)
	}
	tenant.IsActive = active
	return tenant, nil
}

// Usage 聚合租户的查询用量
func (s *TenantService) Usage(ctx context.Context, tenantID uuid.UUID) (*TenantUsage, error) {
	usage := &TenantUsage{}
	base := s.db.WithContext(ctx).Model(&models.AIRequest{}).Where("tenant_id = ?", tenantID)

	if err := base.Session(&gorm.Session{}).Count(&usage.TotalQueries).Error; err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to aggregate usage").WithCause(err)
	}

	counts := []struct {
		status string
		dest   *int64
	}{
		{models.AuditStatusCompleted, &usage.CompletedCount},
		{models.AuditStatusCached, &usage.CachedCount},
		{models.AuditStatusRejected, &usage.RejectedCount},
		{models.AuditStatusFailed, &usage.FailedCount},
	}
	for _, c := range counts {
		err := base.Session(&gorm.Session{}).Where("status = ?", c.status).Count(c.dest).Error
		if err != nil {
			return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to aggregate usage").WithCause(err)
		}
	}

	var avg *float64
	err := base.Session(&gorm.Session{}).Select("AVG(latency_ms)").Scan(&avg).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to aggregate usage").WithCause(err)
	}
	if avg != nil {
		usage.AvgLatencyMs = int64(*avg)
	}
	return usage, nil
}

// generateAPIKey 生成kh_前缀的随机API key
func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "kh_" + hex.EncodeToString(buf), nil
}

package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/knowledgehub/backend-go/internal/logger"
	"github.com/knowledgehub/backend-go/internal/models"
	"github.com/knowledgehub/backend-go/internal/rag"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DocumentService 文档入库服务：分块、向量化、落库、同步向量存储。
// 所有读写都以tenant_id为过滤条件，分块的冗余tenant_id在写入前
// 与父文档逐一核对。
type DocumentService struct {
	db       *gorm.DB
	chunker  *rag.Chunker
	embedder rag.Embedder
	store    rag.VectorStore
	logger   *zap.Logger
}

// IngestRequest 文档入库请求
type IngestRequest struct {
	Title    string
	Content  string
	Source   string
	DocType  string
	Metadata map[string]interface{}
}

// IngestResult 入库结果
type IngestResult struct {
	Document   *models.Document `json:"document"`
	ChunkCount int              `json:"chunk_count"`
}

// NewDocumentService 创建文档服务
func NewDocumentService(db *gorm.DB, chunker *rag.Chunker, embedder rag.Embedder, store rag.VectorStore) *DocumentService {
	return &DocumentService{
		db:       db,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		logger:   logger.GetLogger(),
	}
}

// Ingest 入库一篇文档：分块、逐块向量化、同事务写入文档与分块，
// 最后同步向量存储。任一环节失败整体回滚，不留半成品。
func (s *DocumentService) Ingest(ctx context.Context, tenant *models.Tenant, req IngestRequest) (*IngestResult, error) {
	if tenant == nil {
		return nil, apperrors.NewValidationError("tenant is required")
	}
	if !tenant.IsActive {
		return nil, apperrors.NewTenantInactiveError(tenant.TenantID.String())
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, apperrors.NewValidationError("document title cannot be empty")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, apperrors.NewValidationError("document content cannot be empty")
	}

	chunks := s.chunker.Split(req.Content)
	if len(chunks) == 0 {
		return nil, apperrors.NewValidationError("document content produced no chunks")
	}

	doc := &models.Document{
		TenantID: tenant.TenantID,
		Title:    title,
		Content:  req.Content,
		Source:   req.Source,
		DocType:  req.DocType,
		Metadata: marshalMetadata(req.Metadata),
	}

	records := make([]models.DocumentChunk, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for _, chunk := range chunks {
		embedding, err := s.embedder.Embed(ctx, chunk.Text)
		if err != nil {
			return nil, apperrors.NewEmbeddingFailedError(err)
		}
		data, err := json.Marshal(embedding)
		if err != nil {
			return nil, apperrors.NewEmbeddingFailedError(err)
		}
		records = append(records, models.DocumentChunk{
			TenantID:   tenant.TenantID,
			ChunkIndex: chunk.Index,
			Content:    chunk.Text,
			Embedding:  string(data),
			TokenCount: len(strings.Fields(chunk.Text)),
		})
		vectors = append(vectors, embedding)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		for i := range records {
			records[i].DocumentID = doc.DocumentID
			// 冗余tenant_id与父文档不一致即拒绝整个事务
			if records[i].TenantID != doc.TenantID {
				return apperrors.NewDataIntegrityError("chunk tenant does not match parent document")
			}
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		if apperrors.IsAppError(err) {
			return nil, err
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to persist document").WithCause(err)
	}

	for i, record := range records {
		upsertErr := s.store.UpsertChunk(ctx, rag.VectorChunk{
			ChunkID:       record.ChunkID,
			DocumentID:    doc.DocumentID,
			TenantID:      tenant.TenantID,
			DocumentTitle: doc.Title,
			ChunkIndex:    record.ChunkIndex,
			Text:          record.Content,
			Embedding:     vectors[i],
		})
		if upsertErr != nil {
			s.logger.Error("failed to sync chunk to vector store",
				zap.String("document_id", doc.DocumentID.String()),
				zap.Int("chunk_index", record.ChunkIndex),
				zap.Error(upsertErr))
			return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to sync vector store").WithCause(upsertErr)
		}
	}

	s.logger.Info("document ingested",
		zap.String("tenant_id", tenant.TenantID.String()),
		zap.String("document_id", doc.DocumentID.String()),
		zap.Int("chunks", len(records)))

	return &IngestResult{Document: doc, ChunkCount: len(records)}, nil
}

// Get 按ID读取文档，越租户访问返回NotFound而非Forbidden，
// 不向调用方泄露其他租户的资源存在性。
func (s *DocumentService) Get(ctx context.Context, tenantID, documentID uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		First(&doc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NewNotFoundError("document not found")
		}
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to load document").WithCause(err)
	}
	return &doc, nil
}

// List 分页列出租户的文档
func (s *DocumentService) List(ctx context.Context, tenantID uuid.UUID, page, pageSize int) ([]models.Document, int64, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.Document{}).Where("tenant_id = ?", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to count documents").WithCause(err)
	}

	var docs []models.Document
	err := query.Order("create_time DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&docs).Error
	if err != nil {
		return nil, 0, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to list documents").WithCause(err)
	}
	return docs, total, nil
}

// UpdateMetadata 更新文档元数据。标题、正文和分块入库后不可变，
// 内容变更走删除重建。
func (s *DocumentService) UpdateMetadata(ctx context.Context, tenantID, documentID uuid.UUID, metadata map[string]interface{}) (*models.Document, error) {
	doc, err := s.Get(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	doc.Metadata = marshalMetadata(metadata)
	err = s.db.WithContext(ctx).Model(doc).
		Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
		Update("metadata", doc.Metadata).Error
	if err != nil {
		return nil, apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to update metadata").WithCause(err)
	}
	return doc, nil
}

// Delete 删除文档及其分块，并清理向量存储
func (s *DocumentService) Delete(ctx context.Context, tenantID, documentID uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
			Delete(&models.Document{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("tenant_id = ? AND document_id = ?", tenantID, documentID).
			Delete(&models.DocumentChunk{}).Error
	})
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.NewNotFoundError("document not found")
		}
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to delete document").WithCause(err)
	}

	if err := s.store.DeleteDocument(ctx, tenantID, documentID); err != nil {
		s.logger.Error("failed to delete document vectors",
			zap.String("document_id", documentID.String()), zap.Error(err))
		return apperrors.NewSystemError(apperrors.ErrCodeDatabaseError, "failed to delete document vectors").WithCause(err)
	}
	return nil
}

func marshalMetadata(metadata map[string]interface{}) string {
	if len(metadata) == 0 {
		return "{}"
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(data)
}

package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DatabaseVectorStore 基于PostgreSQL的向量存储：候选行按tenant_id
// 预过滤后在进程内计算余弦相似度。分块向量与业务数据同库，
// 无需额外组件，适合中小规模租户语料。
type DatabaseVectorStore struct {
	db *gorm.DB
}

func NewDatabaseVectorStore(db *gorm.DB) *DatabaseVectorStore {
	return &DatabaseVectorStore{db: db}
}

func (s *DatabaseVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}

	embeddingJSON, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Table("document_chunks").
		Where("chunk_id = ? AND tenant_id = ?", chunk.ChunkID, chunk.TenantID).
		Update("embedding", string(embeddingJSON)).Error
}

func (s *DatabaseVectorStore) DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	return s.db.WithContext(ctx).Table("document_chunks").
		Where("document_id = ? AND tenant_id = ?", documentID, tenantID).
		Delete(nil).Error
}

func (s *DatabaseVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.TenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id is required")
	}
	if req.TopK == 0 {
		req.TopK = 5
	}
	if req.CandidateLimit == 0 {
		req.CandidateLimit = req.TopK * 20
	}

	// tenant_id过滤在SQL层完成，跨租户向量不进入候选集
	var rows []chunkEmbeddingRecord
	err := s.db.WithContext(ctx).
		Table("document_chunks").
		Select("document_chunks.chunk_id, document_chunks.document_id, document_chunks.chunk_index, document_chunks.content, document_chunks.embedding, documents.title").
		Joins("JOIN documents ON documents.document_id = document_chunks.document_id").
		Where("document_chunks.tenant_id = ?", req.TenantID).
		Where("document_chunks.embedding IS NOT NULL AND document_chunks.embedding <> ''").
		Limit(req.CandidateLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	queryNorm := vectorNorm(req.QueryEmbedding)
	if queryNorm == 0 {
		return nil, fmt.Errorf("query embedding norm is zero")
	}

	results := make([]SearchMatch, 0, len(rows))
	for _, row := range rows {
		var embedding []float32
		if err := json.Unmarshal([]byte(row.EmbeddingJSON), &embedding); err != nil {
			continue
		}
		results = append(results, SearchMatch{
			ChunkID:       row.ChunkID,
			DocumentID:    row.DocumentID,
			DocumentTitle: row.Title,
			ChunkIndex:    row.ChunkIndex,
			Content:       row.Content,
			Score:         cosineSimilarity(req.QueryEmbedding, embedding, queryNorm),
		})
	}

	sortMatchesByScore(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

func (s *DatabaseVectorStore) Ready() bool {
	return s.db != nil
}

type chunkEmbeddingRecord struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	ChunkIndex    int
	Content       string
	EmbeddingJSON string `gorm:"column:embedding"`
	Title         string
}

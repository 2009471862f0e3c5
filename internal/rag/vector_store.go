package rag

import (
	"context"
	"math"
	"sort"

	"github.com/google/uuid"
)

// VectorChunk 存储向量信息
type VectorChunk struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	TenantID      uuid.UUID
	DocumentTitle string
	ChunkIndex    int
	Text          string
	Embedding     []float32
}

// VectorSearchRequest 向量检索请求。TenantID是强制过滤条件：
// 候选集在任何相似度计算之前就被限定在该租户的分块内。
type VectorSearchRequest struct {
	TenantID       uuid.UUID
	QueryEmbedding []float32
	TopK           int
	CandidateLimit int
}

// SearchMatch 检索结果
type SearchMatch struct {
	ChunkID       uuid.UUID
	DocumentID    uuid.UUID
	DocumentTitle string
	ChunkIndex    int
	Content       string
	Score         float64
}

// VectorStore 向量存储抽象
type VectorStore interface {
	UpsertChunk(ctx context.Context, chunk VectorChunk) error
	DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error
	Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error)
	Ready() bool
}

// sortMatchesByScore 按相似度降序排序；同分按chunk_index升序再按
// chunk_id兜底，保证确定性向量化器下结果可复现。
func sortMatchesByScore(matches []SearchMatch) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score == matches[j].Score {
			if matches[i].ChunkIndex == matches[j].ChunkIndex {
				return matches[i].ChunkID.String() < matches[j].ChunkID.String()
			}
			return matches[i].ChunkIndex < matches[j].ChunkIndex
		}
		return matches[i].Score > matches[j].Score
	})
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32, normA float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) != len(b) {
		minLen := len(a)
		if len(b) < minLen {
			minLen = len(b)
		}
		a = a[:minLen]
		b = b[:minLen]
	}

	var dot float64
	var normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (normA * math.Sqrt(normB))
}

package rag

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryVectorStore 进程内向量存储，按租户分桶。用于开发环境和测试；
// 分桶本身就是租户过滤，跨租户向量在结构上不可能进入候选集。
type MemoryVectorStore struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID][]VectorChunk
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{
		tenants: make(map[uuid.UUID][]VectorChunk),
	}
}

func (s *MemoryVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.tenants[chunk.TenantID]
	for i := range bucket {
		if bucket[i].ChunkID == chunk.ChunkID {
			bucket[i] = chunk
			return nil
		}
	}
	s.tenants[chunk.TenantID] = append(bucket, chunk)
	return nil
}

func (s *MemoryVectorStore) DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.tenants[tenantID]
	kept := bucket[:0]
	for _, chunk := range bucket {
		if chunk.DocumentID != documentID {
			kept = append(kept, chunk)
		}
	}
	s.tenants[tenantID] = kept
	return nil
}

func (s *MemoryVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.TopK == 0 {
		req.TopK = 5
	}

	queryNorm := vectorNorm(req.QueryEmbedding)
	if queryNorm == 0 {
		return nil, nil
	}

	s.mu.RLock()
	bucket := s.tenants[req.TenantID]
	results := make([]SearchMatch, 0, len(bucket))
	for _, chunk := range bucket {
		results = append(results, SearchMatch{
			ChunkID:       chunk.ChunkID,
			DocumentID:    chunk.DocumentID,
			DocumentTitle: chunk.DocumentTitle,
			ChunkIndex:    chunk.ChunkIndex,
			Content:       chunk.Text,
			Score:         cosineSimilarity(req.QueryEmbedding, chunk.Embedding, queryNorm),
		})
	}
	s.mu.RUnlock()

	sortMatchesByScore(results)
	if len(results) > req.TopK {
		results = results[:req.TopK]
	}
	return results, nil
}

func (s *MemoryVectorStore) Ready() bool {
	return true
}

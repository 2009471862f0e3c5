package rag

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upsert(t *testing.T, store *MemoryVectorStore, tenantID uuid.UUID, title string, idx int, embedding []float32) VectorChunk {
	t.Helper()
	chunk := VectorChunk{
		ChunkID:       uuid.New(),
		DocumentID:    uuid.New(),
		TenantID:      tenantID,
		DocumentTitle: title,
		ChunkIndex:    idx,
		Text:          title + " content",
		Embedding:     embedding,
	}
	require.NoError(t, store.UpsertChunk(context.Background(), chunk))
	return chunk
}

func TestMemoryStoreTenantIsolation(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantA := uuid.New()
	tenantB := uuid.New()

	upsert(t, store, tenantA, "A doc", 0, []float32{1, 0, 0})
	chunkB := upsert(t, store, tenantB, "B doc", 0, []float32{1, 0, 0})

	// 两个租户的分块向量完全相同，但检索只返回本租户的数据
	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantB,
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           10,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, chunkB.ChunkID, matches[0].ChunkID)
	assert.Equal(t, "B doc", matches[0].DocumentTitle)
}

func TestMemoryStoreEmptyTenant(t *testing.T) {
	store := NewMemoryVectorStore()
	upsert(t, store, uuid.New(), "other", 0, []float32{1, 0, 0})

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       uuid.New(),
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           5,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestMemoryStoreOrderingByScore(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantID := uuid.New()

	low := upsert(t, store, tenantID, "low", 0, []float32{0, 1, 0})
	high := upsert(t, store, tenantID, "high", 1, []float32{1, 0, 0})
	mid := upsert(t, store, tenantID, "mid", 2, []float32{1, 1, 0})

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantID,
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           3,
	})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, high.ChunkID, matches[0].ChunkID)
	assert.Equal(t, mid.ChunkID, matches[1].ChunkID)
	assert.Equal(t, low.ChunkID, matches[2].ChunkID)
}

func TestMemoryStoreTieBreakByChunkIndex(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantID := uuid.New()

	// 相同向量相同分数，按chunk_index升序
	second := upsert(t, store, tenantID, "doc", 2, []float32{1, 0, 0})
	first := upsert(t, store, tenantID, "doc", 1, []float32{1, 0, 0})

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantID,
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           2,
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, first.ChunkID, matches[0].ChunkID)
	assert.Equal(t, second.ChunkID, matches[1].ChunkID)
}

func TestMemoryStoreTopKTruncation(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantID := uuid.New()
	for i := 0; i < 10; i++ {
		upsert(t, store, tenantID, "doc", i, []float32{1, float32(i) * 0.1, 0})
	}

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantID,
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           3,
	})
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantID := uuid.New()
	chunk := upsert(t, store, tenantID, "doc", 0, []float32{0, 1, 0})

	chunk.Embedding = []float32{1, 0, 0}
	chunk.Text = "updated content"
	require.NoError(t, store.UpsertChunk(context.Background(), chunk))

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantID,
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           5,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "updated content", matches[0].Content)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestMemoryStoreDeleteDocument(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantID := uuid.New()
	docID := uuid.New()

	for i := 0; i < 3; i++ {
		require.NoError(t, store.UpsertChunk(context.Background(), VectorChunk{
			ChunkID:    uuid.New(),
			DocumentID: docID,
			TenantID:   tenantID,
			ChunkIndex: i,
			Embedding:  []float32{1, 0, 0},
		}))
	}
	kept := upsert(t, store, tenantID, "other doc", 0, []float32{1, 0, 0})

	require.NoError(t, store.DeleteDocument(context.Background(), tenantID, docID))

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantID,
		QueryEmbedding: []float32{1, 0, 0},
		TopK:           10,
	})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, kept.ChunkID, matches[0].ChunkID)
}

func TestMemoryStoreZeroQueryVector(t *testing.T) {
	store := NewMemoryVectorStore()
	tenantID := uuid.New()
	upsert(t, store, tenantID, "doc", 0, []float32{1, 0, 0})

	matches, err := store.Search(context.Background(), VectorSearchRequest{
		TenantID:       tenantID,
		QueryEmbedding: []float32{0, 0, 0},
		TopK:           5,
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	UseTLS     bool
	Timeout    time.Duration
}

// milvusVectorStore 所有租户共用一个collection，tenant_id作为标量
// 字段参与过滤表达式。Milvus在ANN搜索前应用表达式过滤，
// 满足"先过滤后排序"的隔离要求。
type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量存储
func NewMilvusVectorStore(opts MilvusOptions) (VectorStore, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "tenant_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	store := &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
	}
	if err := store.ensureCollection(context.Background()); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "tenant-scoped document chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "36"},
			},
			{
				Name:       "tenant_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "36"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "36"},
			},
			{
				Name:       "document_title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1000"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorSize)},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	var index entity.Index
	index, err = entity.NewIndexHNSW(entity.COSINE, 8, 64)
	if err != nil {
		index, err = entity.NewIndexIvfFlat(entity.COSINE, 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}
	return nil
}

func (s *milvusVectorStore) UpsertChunk(ctx context.Context, chunk VectorChunk) error {
	if len(chunk.Embedding) == 0 {
		return fmt.Errorf("embedding is empty")
	}
	if len(chunk.Embedding) != s.vectorSize {
		return fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(chunk.Embedding), s.vectorSize)
	}

	columns := []entity.Column{
		entity.NewColumnVarChar("chunk_id", []string{chunk.ChunkID.String()}),
		entity.NewColumnVarChar("tenant_id", []string{chunk.TenantID.String()}),
		entity.NewColumnVarChar("document_id", []string{chunk.DocumentID.String()}),
		entity.NewColumnVarChar("document_title", []string{chunk.DocumentTitle}),
		entity.NewColumnInt64("chunk_index", []int64{int64(chunk.ChunkIndex)}),
		entity.NewColumnVarChar("content", []string{chunk.Text}),
		entity.NewColumnFloatVector("vector", s.vectorSize, [][]float32{chunk.Embedding}),
	}

	if _, err := s.milvusClient.Upsert(ctx, s.collection, "", columns...); err != nil {
		return fmt.Errorf("milvus upsert failed: %w", err)
	}
	return nil
}

func (s *milvusVectorStore) DeleteDocument(ctx context.Context, tenantID, documentID uuid.UUID) error {
	expr := fmt.Sprintf(`tenant_id == "%s" && document_id == "%s"`, tenantID, documentID)
	if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("milvus delete failed: %w", err)
	}
	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, req VectorSearchRequest) ([]SearchMatch, error) {
	if len(req.QueryEmbedding) == 0 {
		return nil, nil
	}
	if req.TenantID == uuid.Nil {
		return nil, fmt.Errorf("tenant id is required")
	}
	if req.TopK == 0 {
		req.TopK = 5
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	expr := fmt.Sprintf(`tenant_id == "%s"`, req.TenantID)

	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		nil,
		expr,
		[]string{"chunk_id", "document_id", "document_title", "chunk_index", "content"},
		[]entity.Vector{entity.FloatVector(req.QueryEmbedding)},
		"vector",
		entity.COSINE,
		req.TopK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("milvus search failed: %w", err)
	}
	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}

	result := searchResults[0]
	if result.Err != nil {
		return nil, fmt.Errorf("milvus search error: %w", result.Err)
	}
	if result.ResultCount == 0 {
		return []SearchMatch{}, nil
	}

	var chunkIDs, documentIDs, titles, contents []string
	var chunkIndexes []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "chunk_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				chunkIDs = col.Data()
			}
		case "document_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				documentIDs = col.Data()
			}
		case "document_title":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				titles = col.Data()
			}
		case "chunk_index":
			if col, ok := field.(*entity.ColumnInt64); ok {
				chunkIndexes = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		}
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := SearchMatch{}
		if i < len(chunkIDs) {
			match.ChunkID, _ = uuid.Parse(chunkIDs[i])
		}
		if i < len(documentIDs) {
			match.DocumentID, _ = uuid.Parse(documentIDs[i])
		}
		if i < len(titles) {
			match.DocumentTitle = titles[i]
		}
		if i < len(chunkIndexes) {
			match.ChunkIndex = int(chunkIndexes[i])
		}
		if i < len(contents) {
			match.Content = contents[i]
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		matches = append(matches, match)
	}

	sortMatchesByScore(matches)
	return matches, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/models"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockAuditService(t *testing.T) (*AuditService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return NewAuditService(db), mock
}

func TestAuditServiceRecordInsertsRow(t *testing.T) {
	service, mock := newMockAuditService(t)
	tenantID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "ai_requests"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	requestID, err := service.Record(context.Background(), AuditEntry{
		TenantID:  tenantID,
		Query:     "What is the leave policy?",
		Answer:    sampleAnswer(),
		Status:    models.AuditStatusCached,
		LatencyMs: 12,
		Cached:    true,
		ModelUsed: "stub-llm-v1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, requestID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarshalResponseSnapshot(t *testing.T) {
	answer := sampleAnswer()

	var snapshot map[string]string
	require.NoError(t, json.Unmarshal([]byte(marshalResponse(answer)), &snapshot))
	assert.Equal(t, answer.Answer, snapshot["answer"])
	assert.Equal(t, answer.Confidence, snapshot["confidence"])

	assert.Equal(t, "{}", marshalResponse(nil))
}

func TestMarshalChunksReferences(t *testing.T) {
	chunkID := uuid.New()
	chunks := []rag.SearchMatch{
		{ChunkID: chunkID, DocumentTitle: "Leave Policy", Score: 0.92},
	}

	var refs []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(marshalChunks(chunks)), &refs))
	require.Len(t, refs, 1)
	assert.Equal(t, chunkID.String(), refs[0]["chunk_id"])
	assert.Equal(t, "Leave Policy", refs[0]["doc"])
	assert.InDelta(t, 0.92, refs[0]["score"].(float64), 1e-9)

	assert.Equal(t, "[]", marshalChunks(nil))
}

func TestMarshalUsage(t *testing.T) {
	answer := &rag.StructuredAnswer{
		TokenUsage: rag.TokenUsage{InputTokens: 120, OutputTokens: 30, CostUSD: 0.000036},
	}

	var usage rag.TokenUsage
	require.NoError(t, json.Unmarshal([]byte(marshalUsage(answer)), &usage))
	assert.Equal(t, 120, usage.InputTokens)
	assert.Equal(t, 30, usage.OutputTokens)

	assert.Equal(t, "{}", marshalUsage(nil))
}

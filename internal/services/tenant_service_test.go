package services

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newMockTenantService(t *testing.T) (*TenantService, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)

	return NewTenantService(db), mock
}

func TestGenerateAPIKey(t *testing.T) {
	first, err := generateAPIKey()
	require.NoError(t, err)
	second, err := generateAPIKey()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first, "kh_"))
	assert.Len(t, first, 3+48)
	assert.NotEqual(t, first, second)
}

func TestTenantServiceCreateValidation(t *testing.T) {
	service, _ := newMockTenantService(t)
	ctx := context.Background()

	_, err := service.Create(ctx, "", "acme")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	_, err = service.Create(ctx, "Acme Corp", "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
}

func TestTenantServiceCreate(t *testing.T) {
	service, mock := newMockTenantService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "tenants"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tenant, err := service.Create(context.Background(), "Acme Corp", "ACME")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, tenant.TenantID)
	assert.Equal(t, "Acme Corp", tenant.Name)
	// slug统一小写
	assert.Equal(t, "acme", tenant.Slug)
	assert.True(t, strings.HasPrefix(tenant.APIKey, "kh_"))
	assert.True(t, tenant.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantServiceResolveAPIKey(t *testing.T) {
	service, mock := newMockTenantService(t)
	tenantID := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM "tenants" WHERE api_key = \$1`).
		WithArgs("kh_valid").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id", "name", "slug", "api_key", "is_active"}).
			AddRow(tenantID, "Acme Corp", "acme", "kh_valid", true))

	tenant, err := service.ResolveAPIKey(context.Background(), "kh_valid")
	require.NoError(t, err)
	assert.Equal(t, tenantID, tenant.TenantID)
	assert.True(t, tenant.IsActive)
}

func TestTenantServiceResolveAPIKeyUnknown(t *testing.T) {
	service, mock := newMockTenantService(t)

	mock.ExpectQuery(`SELECT .+ FROM "tenants" WHERE api_key = \$1`).
		WithArgs("kh_bogus").
		WillReturnRows(sqlmock.NewRows([]string{"tenant_id"}))

	_, err := service.ResolveAPIKey(context.Background(), "kh_bogus")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
}

func TestTenantServiceResolveAPIKeyEmpty(t *testing.T) {
	service, _ := newMockTenantService(t)

	_, err := service.ResolveAPIKey(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnauthorized))
}

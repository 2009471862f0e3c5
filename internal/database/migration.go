package database

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationManager 封装golang-migrate的版本化SQL迁移
type MigrationManager struct {
	migrator *migrate.Migrate
}

// NewMigrationManager 创建迁移管理器
func NewMigrationManager(db *sql.DB, migrationsPath string) (*MigrationManager, error) {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres",
		driver,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}

	return &MigrationManager{migrator: m}, nil
}

// Up 执行所有未应用的迁移
func (m *MigrationManager) Up() error {
	if err := m.migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Down 回滚一个版本
func (m *MigrationManager) Down() error {
	if err := m.migrator.Steps(-1); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Version 返回当前版本
func (m *MigrationManager) Version() (uint, bool, error) {
	version, dirty, err := m.migrator.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	return version, dirty, err
}

// Close 释放迁移器资源
func (m *MigrationManager) Close() error {
	sourceErr, dbErr := m.migrator.Close()
	if sourceErr != nil {
		return sourceErr
	}
	return dbErr
}

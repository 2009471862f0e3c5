package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Tenant 租户表：数据隔离边界
type Tenant struct {
	TenantID   uuid.UUID `gorm:"type:uuid;primaryKey;column:tenant_id" json:"tenant_id"`
	Name       string    `gorm:"size:200;not null" json:"name"`
	Slug       string    `gorm:"uniqueIndex;size:100;not null" json:"slug"`
	APIKey     string    `gorm:"uniqueIndex;column:api_key;size:100;not null" json:"-"`
	IsActive   bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreateTime time.Time `gorm:"column:create_time;not null" json:"create_time"`
	UpdateTime time.Time `gorm:"column:update_time" json:"update_time"`
}

func (Tenant) TableName() string {
	return "tenants"
}

func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.TenantID == uuid.Nil {
		t.TenantID = uuid.New()
	}
	if t.CreateTime.IsZero() {
		t.CreateTime = time.Now()
	}
	return nil
}

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document 文档表：租户私有的原始文本
type Document struct {
	DocumentID uuid.UUID `gorm:"type:uuid;primaryKey;column:document_id" json:"document_id"`
	TenantID   uuid.UUID `gorm:"type:uuid;column:tenant_id;not null;index" json:"tenant_id"`
	Title      string    `gorm:"size:500;not null" json:"title"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Source     string    `gorm:"size:500" json:"source"`
	DocType    string    `gorm:"column:doc_type;size:50;default:markdown" json:"doc_type"`
	Metadata   string    `gorm:"type:jsonb;default:'{}'" json:"metadata"` // JSON存储自由元数据，入库后唯一可变字段
	CreateTime time.Time `gorm:"column:create_time;not null" json:"create_time"`
	UpdateTime time.Time `gorm:"column:update_time" json:"update_time"`

	Tenant *Tenant `gorm:"foreignKey:TenantID" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.DocumentID == uuid.Nil {
		d.DocumentID = uuid.New()
	}
	if d.CreateTime.IsZero() {
		d.CreateTime = time.Now()
	}
	return nil
}

// DocumentChunk 文档分块表，tenant_id为冗余字段用于检索时高效过滤。
// 写入时必须与父文档的tenant_id一致，由DocumentService在入库前校验。
type DocumentChunk struct {
	ChunkID    uuid.UUID `gorm:"type:uuid;primaryKey;column:chunk_id" json:"chunk_id"`
	DocumentID uuid.UUID `gorm:"type:uuid;column:document_id;not null;index" json:"document_id"`
	TenantID   uuid.UUID `gorm:"type:uuid;column:tenant_id;not null;index" json:"tenant_id"`
	ChunkIndex int       `gorm:"column:chunk_index;not null" json:"chunk_index"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Embedding  string    `gorm:"type:text" json:"-"` // JSON编码的向量
	TokenCount int       `gorm:"column:token_count;default:0" json:"token_count"`
	CreateTime time.Time `gorm:"column:create_time;not null" json:"create_time"`

	Document *Document `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"-"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}

func (c *DocumentChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ChunkID == uuid.Nil {
		c.ChunkID = uuid.New()
	}
	if c.CreateTime.IsZero() {
		c.CreateTime = time.Now()
	}
	return nil
}

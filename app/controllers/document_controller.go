package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/services"
)

// DocumentController 文档控制器
type DocumentController struct {
	BaseController
	docService *services.DocumentService
}

// NewDocumentController 创建文档控制器
func NewDocumentController(docService *services.DocumentService) *DocumentController {
	return &DocumentController{docService: docService}
}

// IngestDocumentRequest 文档入库请求
type IngestDocumentRequest struct {
	Title    string                 `json:"title" validate:"required,min=1,max=500"`
	Content  string                 `json:"content" validate:"required,min=1"`
	Source   string                 `json:"source" validate:"omitempty,max=500"`
	DocType  string                 `json:"doc_type" validate:"omitempty,oneof=markdown text html"`
	Metadata map[string]interface{} `json:"metadata"`
}

// UpdateMetadataRequest 元数据更新请求
type UpdateMetadataRequest struct {
	Metadata map[string]interface{} `json:"metadata" validate:"required"`
}

// Create 入库文档
func (c *DocumentController) Create() {
	tenant, ok := c.authenticatedTenant()
	if !ok {
		return
	}

	var req IngestDocumentRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return
	}

	result, err := c.docService.Ingest(c.Ctx.Request.Context(), tenant, services.IngestRequest{
		Title:    req.Title,
		Content:  req.Content,
		Source:   req.Source,
		DocType:  req.DocType,
		Metadata: req.Metadata,
	})
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

// List 文档列表
func (c *DocumentController) List() {
	tenant, ok := c.authenticatedTenant()
	if !ok {
		return
	}

	page, _ := c.GetInt("page", 1)
	pageSize, _ := c.GetInt("page_size", 20)

	docs, total, err := c.docService.List(c.Ctx.Request.Context(), tenant.TenantID, page, pageSize)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{
		"documents": docs,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Get 文档详情
func (c *DocumentController) Get() {
	tenant, ok := c.authenticatedTenant()
	if !ok {
		return
	}

	docID, ok := c.parseDocumentID()
	if !ok {
		return
	}

	doc, err := c.docService.Get(c.Ctx.Request.Context(), tenant.TenantID, docID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(doc)
}

// UpdateMetadata 更新文档元数据
func (c *DocumentController) UpdateMetadata() {
	tenant, ok := c.authenticatedTenant()
	if !ok {
		return
	}

	docID, ok := c.parseDocumentID()
	if !ok {
		return
	}

	var req UpdateMetadataRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return
	}

	doc, err := c.docService.UpdateMetadata(c.Ctx.Request.Context(), tenant.TenantID, docID, req.Metadata)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(doc)
}

// Delete 删除文档
func (c *DocumentController) Delete() {
	tenant, ok := c.authenticatedTenant()
	if !ok {
		return
	}

	docID, ok := c.parseDocumentID()
	if !ok {
		return
	}

	if err := c.docService.Delete(c.Ctx.Request.Context(), tenant.TenantID, docID); err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"deleted": docID})
}

func (c *DocumentController) parseDocumentID() (uuid.UUID, bool) {
	docID, err := uuid.Parse(c.Ctx.Input.Param(":id"))
	if err != nil {
		c.JSONError(http.StatusBadRequest, "invalid document id")
		return uuid.Nil, false
	}
	return docID, true
}

package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/knowledgehub/backend-go/internal/services"
)

// TenantController 租户管理控制器。挂在/api/admin下，
// 部署时由网关限制访问来源。
type TenantController struct {
	BaseController
	tenantService *services.TenantService
}

// NewTenantController 创建租户控制器
func NewTenantController(tenantService *services.TenantService) *TenantController {
	return &TenantController{tenantService: tenantService}
}

// CreateTenantRequest 创建租户请求
type CreateTenantRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
	Slug string `json:"slug" validate:"required,min=1,max=100,lowercase"`
}

// Create 创建租户。API key仅在本次响应中返回。
func (c *TenantController) Create() {
	var req CreateTenantRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return
	}

	tenant, err := c.tenantService.Create(c.Ctx.Request.Context(), req.Name, req.Slug)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSON(http.StatusCreated, map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"tenant":  tenant,
			"api_key": tenant.APIKey,
		},
	})
}

// List 租户列表
func (c *TenantController) List() {
	tenants, err := c.tenantService.List(c.Ctx.Request.Context())
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(map[string]interface{}{"tenants": tenants})
}

// Get 租户详情
func (c *TenantController) Get() {
	tenantID, ok := c.parseTenantID()
	if !ok {
		return
	}

	tenant, err := c.tenantService.GetByID(c.Ctx.Request.Context(), tenantID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(tenant)
}

// Activate 启用租户
func (c *TenantController) Activate() {
	c.setActive(true)
}

// Deactivate 停用租户
func (c *TenantController) Deactivate() {
	c.setActive(false)
}

func (c *TenantController) setActive(active bool) {
	tenantID, ok := c.parseTenantID()
	if !ok {
		return
	}

	tenant, err := c.tenantService.SetActive(c.Ctx.Request.Context(), tenantID, active)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(tenant)
}

// Usage 租户用量统计
func (c *TenantController) Usage() {
	tenantID, ok := c.parseTenantID()
	if !ok {
		return
	}

	usage, err := c.tenantService.Usage(c.Ctx.Request.Context(), tenantID)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(usage)
}

func (c *TenantController) parseTenantID() (uuid.UUID, bool) {
	tenantID, err := uuid.Parse(c.Ctx.Input.Param(":id"))
	if err != nil {
		c.JSONError(http.StatusBadRequest, "invalid tenant id")
		return uuid.Nil, false
	}
	return tenantID, true
}

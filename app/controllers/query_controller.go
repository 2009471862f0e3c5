package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/knowledgehub/backend-go/internal/services"
)

// QueryController 查询控制器
type QueryController struct {
	BaseController
	queryService *services.QueryService
}

// NewQueryController 创建查询控制器
func NewQueryController(queryService *services.QueryService) *QueryController {
	return &QueryController{queryService: queryService}
}

// QueryRequest 查询请求
type QueryRequest struct {
	Question string `json:"question" validate:"required,min=1,max=4000"`
	TopK     int    `json:"top_k" validate:"omitempty,min=1,max=20"`
}

// Query 执行RAG查询
func (c *QueryController) Query() {
	tenant, ok := c.authenticatedTenant()
	if !ok {
		return
	}

	var req QueryRequest
	if err := json.Unmarshal(c.Ctx.Input.RequestBody, &req); err != nil {
		c.JSONError(http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSONError(http.StatusBadRequest, err.Error())
		return
	}

	result, err := c.queryService.Query(c.Ctx.Request.Context(), tenant, req.Question, req.TopK)
	if err != nil {
		c.JSONAppError(err)
		return
	}
	c.JSONSuccess(result)
}

package controllers

import (
	"net/http"

	"github.com/beego/beego/v2/server/web"
	"github.com/go-playground/validator/v10"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/knowledgehub/backend-go/internal/models"
)

// validate 请求DTO校验器，controller间共享
var validate = validator.New()

// BaseController provides helpers for consistent JSON responses.
type BaseController struct {
	web.Controller
}

// JSON writes a JSON response with the supplied HTTP status code.
func (c *BaseController) JSON(status int, payload interface{}) {
	c.Ctx.Output.SetStatus(status)
	c.Data["json"] = payload
	c.ServeJSON()
}

// JSONSuccess writes a standard success envelope.
func (c *BaseController) JSONSuccess(data interface{}) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// JSONError writes an error envelope with message.
func (c *BaseController) JSONError(status int, message string) {
	c.JSON(status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// JSONAppError 按AppError携带的HTTP状态码和错误码返回
func (c *BaseController) JSONAppError(err error) {
	appErr := apperrors.GetAppError(err)
	c.JSON(appErr.HTTPCode, map[string]interface{}{
		"success": false,
		"error":   appErr.Message,
		"code":    string(appErr.Code),
	})
}

// authenticatedTenant 获取认证中间件写入的租户。
// 中间件缺失或未通过认证时返回401。
func (c *BaseController) authenticatedTenant() (*models.Tenant, bool) {
	value := c.Ctx.Input.GetData("tenant")
	tenant, ok := value.(*models.Tenant)
	if !ok || tenant == nil {
		c.JSONError(http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return tenant, true
}

package middleware

import (
	"encoding/json"

	"github.com/beego/beego/v2/server/web/context"
	apperrors "github.com/knowledgehub/backend-go/internal/errors"
	"github.com/knowledgehub/backend-go/internal/services"
)

// APIKeyMiddleware 租户认证中间件：从X-API-Key解析租户并写入
// 请求上下文。所有/api下的业务路由都经过这里，controller拿到的
// 永远是已认证的租户。
func APIKeyMiddleware(tenantService *services.TenantService) func(ctx *context.Context) {
	return func(ctx *context.Context) {
		apiKey := ctx.Input.Header("X-API-Key")

		tenant, err := tenantService.ResolveAPIKey(ctx.Request.Context(), apiKey)
		if err != nil {
			appErr := apperrors.GetAppError(err)
			writeJSONError(ctx, appErr.HTTPCode, appErr.Message)
			return
		}

		ctx.Input.SetData("tenant", tenant)
	}
}

func writeJSONError(ctx *context.Context, status int, message string) {
	payload, _ := json.Marshal(map[string]interface{}{
		"success": false,
		"error":   message,
	})
	ctx.Output.Header("Content-Type", "application/json; charset=utf-8")
	ctx.Output.SetStatus(status)
	ctx.Output.Body(payload)
}

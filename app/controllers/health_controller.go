package controllers

import (
	"net/http"

	"github.com/knowledgehub/backend-go/internal/database"
	"github.com/knowledgehub/backend-go/internal/rag"
)

// RootController 根路径
type RootController struct {
	BaseController
}

// Index 服务信息
func (c *RootController) Index() {
	c.JSONSuccess(map[string]interface{}{
		"service": "knowledgehub-backend",
		"version": "1.0.0",
	})
}

// HealthController 健康检查控制器
type HealthController struct {
	BaseController
	store    rag.VectorStore
	embedder rag.Embedder
}

// NewHealthController 创建健康检查控制器
func NewHealthController(store rag.VectorStore, embedder rag.Embedder) *HealthController {
	return &HealthController{store: store, embedder: embedder}
}

// Health 汇总各组件健康状态。数据库不可用时返回503，
// Redis与向量存储降级不影响整体可用性判断。
func (c *HealthController) Health() {
	ctx := c.Ctx.Request.Context()
	components := map[string]string{}
	healthy := true

	components["database"] = "ok"
	if database.DB == nil {
		components["database"] = "down"
		healthy = false
	} else if sqlDB, err := database.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		components["database"] = "down"
		healthy = false
	}

	components["redis"] = "ok"
	if database.RedisClient == nil {
		components["redis"] = "disabled"
	} else if err := database.RedisClient.Ping(ctx).Err(); err != nil {
		components["redis"] = "degraded"
	}

	components["vector_store"] = "ok"
	if c.store == nil || !c.store.Ready() {
		components["vector_store"] = "degraded"
	}

	components["embedder"] = "ok"
	if c.embedder == nil || !c.embedder.Ready() {
		components["embedder"] = "degraded"
	}

	status := http.StatusOK
	state := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}
	c.JSON(status, map[string]interface{}{
		"status":     state,
		"components": components,
	})
}

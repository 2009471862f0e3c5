package router

import (
	"github.com/beego/beego/v2/server/web"
	"github.com/knowledgehub/backend-go/app/controllers"
	"github.com/knowledgehub/backend-go/app/middleware"
	"github.com/knowledgehub/backend-go/internal/config"
	"github.com/knowledgehub/backend-go/internal/di"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/knowledgehub/backend-go/internal/services"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Init registers all routes. Must be called after the DI container is built.
func Init() error {
	return di.Invoke(func(
		queryService *services.QueryService,
		docService *services.DocumentService,
		tenantService *services.TenantService,
		store rag.VectorStore,
		embedder rag.Embedder,
	) {
		web.Router("/", &controllers.RootController{}, "get:Index")
		web.Router("/health", controllers.NewHealthController(store, embedder), "get:Health")

		web.InsertFilter("/*", web.BeforeRouter, middleware.CORSMiddleware)

		// 业务路由统一走API key认证；admin路由由部署层另行收口
		web.InsertFilter("/api/query", web.BeforeRouter, middleware.APIKeyMiddleware(tenantService))
		web.InsertFilter("/api/documents", web.BeforeRouter, middleware.APIKeyMiddleware(tenantService))
		web.InsertFilter("/api/documents/*", web.BeforeRouter, middleware.APIKeyMiddleware(tenantService))

		queryController := controllers.NewQueryController(queryService)
		web.Router("/api/query", queryController, "post:Query")

		documentController := controllers.NewDocumentController(docService)
		web.Router("/api/documents", documentController, "get:List;post:Create")
		web.Router("/api/documents/:id", documentController, "get:Get;delete:Delete")
		web.Router("/api/documents/:id/metadata", documentController, "patch:UpdateMetadata")

		tenantController := controllers.NewTenantController(tenantService)
		web.Router("/api/admin/tenants", tenantController, "get:List;post:Create")
		web.Router("/api/admin/tenants/:id", tenantController, "get:Get")
		web.Router("/api/admin/tenants/:id/activate", tenantController, "post:Activate")
		web.Router("/api/admin/tenants/:id/deactivate", tenantController, "post:Deactivate")
		web.Router("/api/admin/tenants/:id/usage", tenantController, "get:Usage")

		if config.AppConfig != nil && config.AppConfig.Metrics.Enabled {
			web.Handler("/metrics", promhttp.Handler())
		}
	})
}

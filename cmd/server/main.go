package main

import (
	"log"
	"strconv"

	"github.com/beego/beego/v2/server/web"
	"github.com/knowledgehub/backend-go/app/bootstrap"
	"github.com/knowledgehub/backend-go/app/router"
	"github.com/knowledgehub/backend-go/internal/config"
	"github.com/knowledgehub/backend-go/internal/logger"
	"go.uber.org/zap"
)

func main() {
	app, err := bootstrap.Init()
	if err != nil {
		log.Fatalf("failed to bootstrap application: %v", err)
	}
	defer app.Shutdown()
	bootstrap.SetGlobalApp(app)

	if err := router.Init(); err != nil {
		log.Fatalf("failed to register routes: %v", err)
	}

	// 配置Beego全局设置
	web.BConfig.AppName = "KnowledgeHub Backend"
	web.BConfig.CopyRequestBody = true
	if port, err := strconv.Atoi(config.AppConfig.Server.Port); err == nil {
		web.BConfig.Listen.HTTPPort = port
	}

	logger.Info("🚀 Starting KnowledgeHub Backend", zap.Int("port", web.BConfig.Listen.HTTPPort))
	web.Run()
}

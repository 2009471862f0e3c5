package di

import (
	"fmt"
	"time"

	"github.com/knowledgehub/backend-go/internal/config"
	"github.com/knowledgehub/backend-go/internal/database"
	"github.com/knowledgehub/backend-go/internal/kafka"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/knowledgehub/backend-go/internal/services"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"gorm.io/gorm"
)

// RegisterProviders 注册所有依赖提供者
func RegisterProviders(container *dig.Container) error {
	// 注册配置
	if err := container.Provide(func() (*config.Config, error) {
		cfg := config.GetAppConfig()
		if cfg == nil {
			return nil, fmt.Errorf("config not loaded")
		}
		return cfg, nil
	}); err != nil {
		return err
	}

	// 注册数据库
	if err := container.Provide(func() (*gorm.DB, error) {
		if database.DB == nil {
			return nil, fmt.Errorf("database not initialized")
		}
		return database.DB, nil
	}); err != nil {
		return err
	}

	// 注册Redis客户端（可为nil，下游组件自行降级）
	if err := container.Provide(func() *redis.Client {
		return database.RedisClient
	}); err != nil {
		return err
	}

	// 注册分块器
	if err := container.Provide(func(cfg *config.Config) *rag.Chunker {
		return rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	}); err != nil {
		return err
	}

	// 注册向量化器：配置了OpenAI key时走API，否则用确定性哈希向量化
	if err := container.Provide(func(cfg *config.Config) (rag.Embedder, error) {
		if cfg.AI.OpenAIAPIKey != "" {
			return rag.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.EmbeddingModel, cfg.RAG.EmbeddingDim)
		}
		return rag.NewHashEmbedder(cfg.RAG.EmbeddingDim), nil
	}); err != nil {
		return err
	}

	// 注册向量存储
	if err := container.Provide(func(cfg *config.Config, db *gorm.DB) (rag.VectorStore, error) {
		switch cfg.RAG.VectorStore.Provider {
		case "milvus":
			m := cfg.RAG.VectorStore.Milvus
			return rag.NewMilvusVectorStore(rag.MilvusOptions{
				Address:    m.Address,
				Username:   m.Username,
				Password:   m.Password,
				Collection: m.Collection,
				Database:   m.Database,
				VectorSize: m.VectorSize,
				UseTLS:     m.TLS,
			})
		case "memory":
			return rag.NewMemoryVectorStore(), nil
		default:
			return rag.NewDatabaseVectorStore(db), nil
		}
	}); err != nil {
		return err
	}

	// 注册答案合成器
	if err := container.Provide(func(cfg *config.Config) (rag.Synthesizer, error) {
		if cfg.AI.OpenAIAPIKey != "" {
			return rag.NewOpenAISynthesizer(cfg.AI.OpenAIAPIKey, cfg.AI.ChatModel, cfg.AI.Temperature)
		}
		return rag.NewStubSynthesizer(cfg.RAG.RelevanceThreshold), nil
	}); err != nil {
		return err
	}

	// 注册响应缓存
	if err := container.Provide(func(cfg *config.Config, client *redis.Client) services.ResponseCache {
		if !cfg.Cache.Enabled || client == nil {
			return services.NoopResponseCache{}
		}
		return services.NewRedisResponseCache(client, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	}); err != nil {
		return err
	}

	// 注册限流器：有Redis用分布式滑动窗口，否则退化为进程内限流
	if err := container.Provide(func(cfg *config.Config, client *redis.Client) services.RateLimiter {
		window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
		if client != nil {
			return services.NewRedisRateLimiter(client, cfg.RateLimit.MaxRequests, window)
		}
		return services.NewMemoryRateLimiter(cfg.RateLimit.MaxRequests, window)
	}); err != nil {
		return err
	}

	// 注册审计
	if err := container.Provide(func(db *gorm.DB) services.AuditRecorder {
		return services.NewAuditService(db)
	}); err != nil {
		return err
	}

	// 注册指标
	if err := container.Provide(func(cfg *config.Config) *services.MetricsService {
		if !cfg.Metrics.Enabled {
			return nil
		}
		return services.NewMetricsService()
	}); err != nil {
		return err
	}

	// 注册Kafka生产者（未启用时为nil，编排器跳过事件发布）
	if err := container.Provide(func(cfg *config.Config) *kafka.Producer {
		if !cfg.Kafka.Enabled {
			return nil
		}
		return kafka.GetProducer()
	}); err != nil {
		return err
	}

	// 注册服务
	if err := container.Provide(services.NewTenantService); err != nil {
		return err
	}

	if err := container.Provide(services.NewDocumentService); err != nil {
		return err
	}

	if err := container.Provide(func(
		cfg *config.Config,
		embedder rag.Embedder,
		store rag.VectorStore,
		synthesizer rag.Synthesizer,
		cache services.ResponseCache,
		limiter services.RateLimiter,
		audit services.AuditRecorder,
		metrics *services.MetricsService,
		producer *kafka.Producer,
	) *services.QueryService {
		return services.NewQueryService(services.QueryServiceParams{
			Embedder:    embedder,
			Store:       store,
			Synthesizer: synthesizer,
			Cache:       cache,
			Limiter:     limiter,
			Audit:       audit,
			Metrics:     metrics,
			Producer:    producer,
			DefaultTopK: cfg.RAG.TopK,
			MaxTopK:     cfg.RAG.MaxTopK,
		})
	}); err != nil {
		return err
	}

	return nil
}

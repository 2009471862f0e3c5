package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/knowledgehub/backend-go/internal/config"
	"github.com/knowledgehub/backend-go/internal/database"
	"github.com/knowledgehub/backend-go/internal/logger"
	"github.com/knowledgehub/backend-go/internal/rag"
	"github.com/knowledgehub/backend-go/internal/services"
)

type seedDocument struct {
	title   string
	content string
}

var seedData = map[string][]seedDocument{
	"acme": {
		{
			title: "Leave Policy",
			content: "Employees at Acme Corp are entitled to 25 days of paid annual leave per year. " +
				"Leave requests must be submitted at least two weeks in advance through the HR portal.\n\n" +
				"Unused leave days can be carried over to the next year, up to a maximum of 5 days. " +
				"Carried-over days must be used before the end of March.\n\n" +
				"Sick leave is unlimited but requires a doctor's note after three consecutive days of absence.",
		},
		{
			title: "Remote Work Policy",
			content: "Acme Corp supports hybrid work. Employees may work remotely up to three days per week.\n\n" +
				"Remote workdays must be coordinated within each team so that every team has at least " +
				"two days of full on-site presence.",
		},
	},
	"beta": {
		{
			title: "Expense Policy",
			content: "Beta Industries reimburses reasonable business expenses. Receipts are required for " +
				"all expenses above 25 euros.\n\n" +
				"Travel must be booked through the company travel portal. Business class is only " +
				"permitted for flights longer than six hours.",
		},
	},
}

// 为演示和本地联调准备两个租户及示例文档。可重复执行：
// 已存在的租户跳过创建。
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	if err := logger.InitLogger(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if err := config.LoadConfig(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if _, err := database.InitDB(); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB()

	cfg := config.AppConfig
	ctx := context.Background()

	tenantService := services.NewTenantService(database.DB)
	chunker := rag.NewChunker(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
	embedder := rag.NewHashEmbedder(cfg.RAG.EmbeddingDim)
	store := rag.NewDatabaseVectorStore(database.DB)
	docService := services.NewDocumentService(database.DB, chunker, embedder, store)

	for slug, docs := range seedData {
		tenant, err := tenantService.Create(ctx, slug+" demo", slug)
		if err != nil {
			log.Printf("Tenant %q already exists or failed to create, skipping: %v", slug, err)
			continue
		}
		log.Printf("Created tenant %q (api key: %s)", slug, tenant.APIKey)

		for _, doc := range docs {
			result, err := docService.Ingest(ctx, tenant, services.IngestRequest{
				Title:   doc.title,
				Content: doc.content,
				Source:  "seed",
				DocType: "markdown",
			})
			if err != nil {
				log.Fatalf("Failed to seed document %q: %v", doc.title, err)
			}
			log.Printf("Seeded document %q with %d chunks", doc.title, result.ChunkCount)
		}
	}

	log.Println("Seed completed")
}

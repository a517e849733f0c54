package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/raptorgraph-backend/internal/chunker"
	"github.com/yungbote/raptorgraph-backend/internal/config"
	repos "github.com/yungbote/raptorgraph-backend/internal/data/repos/rag"
	"github.com/yungbote/raptorgraph-backend/internal/db"
	httpserver "github.com/yungbote/raptorgraph-backend/internal/http"
	httpH "github.com/yungbote/raptorgraph-backend/internal/http/handlers"
	"github.com/yungbote/raptorgraph-backend/internal/observability"
	"github.com/yungbote/raptorgraph-backend/internal/platform/logger"
	"github.com/yungbote/raptorgraph-backend/internal/platform/openai"
	"github.com/yungbote/raptorgraph-backend/internal/raptor"
	"github.com/yungbote/raptorgraph-backend/internal/services/embedder"
	"github.com/yungbote/raptorgraph-backend/internal/services/reranker"
	"github.com/yungbote/raptorgraph-backend/internal/services/summarizer"
)

func main() {
	_ = godotenv.Load()

	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Config
	cfg, err := config.Load()
	if err != nil {
		log.Error("Could not load config", "error", err)
		os.Exit(1)
	}

	// Tracing
	shutdownOTel := observability.InitOTel(context.Background(), log, observability.OtelConfig{
		ServiceName: "raptorgraph",
		Environment: cfg.App.Mode,
	})
	if shutdownOTel != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownOTel(ctx)
		}()
	}

	// Postgres
	postgresService, err := db.NewPostgresService(cfg.Database, log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Redis (optional query-embedding cache)
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	// Repos
	log.Info("Setting up Repos from main...")
	documentRepo := repos.NewDocumentRepo(thePG, log)
	chunkRepo := repos.NewChunkRepo(thePG, log)
	treeRepo := repos.NewTreeRepo(thePG, log)
	treeNodeRepo := repos.NewTreeNodeRepo(thePG, log)
	embeddingRepo := repos.NewEmbeddingRepo(thePG, log)

	// Model transports
	embeddingClient, err := openai.NewClient(log, openai.Options{
		BaseURL: cfg.Embedding.BaseURL,
		APIKey:  cfg.Embedding.APIKey,
		Timeout: cfg.Embedding.Timeout,
	})
	if err != nil {
		log.Error("Could not init embedding transport", "error", err)
		os.Exit(1)
	}
	summarizerClient, err := openai.NewClient(log, openai.Options{
		BaseURL: cfg.Summarizer.BaseURL,
		APIKey:  cfg.Summarizer.APIKey,
		Timeout: cfg.Summarizer.Timeout,
	})
	if err != nil {
		log.Error("Could not init summarizer transport", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up Services from main...")
	embedGateway := embedder.New(log, embeddingClient, cfg.Embedding, redisClient)
	// All three providers speak the OpenAI-compatible chat surface behind the
	// configured base URL.
	sumGateway := summarizer.New(log, summarizer.Clients{
		summarizer.ProviderOpenAI:    summarizerClient,
		summarizer.ProviderAnthropic: summarizerClient,
		summarizer.ProviderTogether:  summarizerClient,
	}, cfg.Summarizer)

	splitter, err := chunker.New(chunker.Config{
		ChunkSize:    cfg.Raptor.ChunkSize,
		ChunkOverlap: cfg.Raptor.ChunkOverlap,
	})
	if err != nil {
		log.Error("Could not init chunker", "error", err)
		os.Exit(1)
	}

	buildStore := raptor.NewBuildStore(thePG, log, treeRepo, treeNodeRepo, embeddingRepo)
	searchStore := raptor.NewSearchStore(thePG, log, treeNodeRepo, chunkRepo, embeddingRepo)
	builder := raptor.NewBuilder(log, buildStore, embedGateway, sumGateway)
	engine := raptor.NewEngine(log, searchStore, embedGateway, sumGateway, reranker.NewRegistry())
	ingestor := raptor.NewIngestor(log, thePG, splitter, embedGateway, documentRepo, chunkRepo, embeddingRepo)

	buildDefaults := raptor.BuildParams{
		MinK:           cfg.Raptor.MinK,
		MaxK:           cfg.Raptor.MaxK,
		MaxTokens:      cfg.Summarizer.MaxTokens,
		RPMLimit:       cfg.Raptor.RPMLimit,
		LLMConcurrency: cfg.Raptor.LLMConcurrency,
		MaxTreeLevels:  cfg.Raptor.MaxTreeLevels,
	}

	// Handlers
	routerCfg := httpserver.RouterConfig{
		ServiceName:      "raptorgraph",
		CORSOrigins:      cfg.App.CORSOrigins,
		RetrievalHandler: httpH.NewRetrievalHandler(engine),
		DocumentHandler:  httpH.NewDocumentHandler(ingestor),
		TreeHandler:      httpH.NewTreeHandler(builder, ingestor, documentRepo, buildDefaults),
		DatasetHandler:   httpH.NewDatasetHandler(documentRepo),
		HealthHandler:    httpH.NewHealthHandler(),
	}

	srv := httpserver.NewServer(routerCfg)
	addr := ":" + cfg.App.Port
	log.Info("Starting server", "addr", addr, "mode", cfg.App.Mode)
	if err := srv.Run(addr); err != nil {
		log.Error("Server exited", "error", err)
		os.Exit(1)
	}
}

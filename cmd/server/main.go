package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/kushscan/kushscan/config"
	httpDelivery "github.com/kushscan/kushscan/internal/delivery/http"
	"github.com/kushscan/kushscan/internal/infrastructure/cache"
	"github.com/kushscan/kushscan/internal/infrastructure/coafetch"
	"github.com/kushscan/kushscan/internal/infrastructure/gemini"
	"github.com/kushscan/kushscan/internal/infrastructure/quota"
	"github.com/kushscan/kushscan/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting KushScan Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)
	log.Printf("Models: tier1=%s tier2=%s", cfg.Gemini.Tier1Model, cfg.Gemini.Tier2Model)

	// Initialize infrastructure dependencies
	memoryCache := cache.NewMemoryCache()
	log.Printf("Shared cache TTL: %s", cfg.Cache.ServerTTL)

	quotaStore := quota.NewStore(map[string]int{
		quota.ScopeInsight: cfg.Quota.InsightDaily,
		quota.ScopeCOA:     cfg.Quota.COADaily,
	})
	log.Printf("Daily quotas: insight=%d coa=%d", cfg.Quota.InsightDaily, cfg.Quota.COADaily)

	geminiClient, err := gemini.NewClient(context.Background(), cfg.Gemini.APIKey, cfg.Gemini.Timeout)
	if err != nil {
		log.Fatalf("Failed to initialize generation backend: %v", err)
	}

	fetcher := coafetch.NewFetcher(cfg.COA.FetchTimeout, cfg.COA.MaxBodyBytes, cfg.COA.MaxTextChars)

	// Initialize usecase layer
	engine := usecase.NewTieredEngine(geminiClient, cfg.Gemini.Tier1Model, cfg.Gemini.Tier2Model)
	enricher := usecase.NewEnricher(geminiClient, cfg.Gemini.Tier1Model)

	insightService := usecase.NewInsightService(
		memoryCache,
		quotaStore,
		engine,
		enricher,
		usecase.InsightServiceConfig{
			CacheTTL: cfg.Cache.ServerTTL,
		},
	)
	coaService := usecase.NewCOAService(quotaStore, engine, fetcher)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(insightService, coaService)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}

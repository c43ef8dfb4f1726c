package app

import (
	"context"
	"fmt"
	"log"

	"fixit/internal/assemble"
	"fixit/internal/gateway/config"
	"fixit/internal/gateway/handler"
	"fixit/internal/gateway/repository/imagearchive"
	"fixit/internal/gateway/repository/report"
	"fixit/internal/gateway/server"
	"fixit/internal/llm"
	"fixit/internal/pipeline"
)

type App struct {
	server *server.Server
	client llm.Client
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Inference client. Without an API key the fake serves deterministic
	// payloads so the whole surface works offline.
	var base llm.Client
	if cfg.Gemini.APIKey != "" {
		base, err = llm.NewGeminiClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout)
		if err != nil {
			return nil, fmt.Errorf("init gemini client: %w", err)
		}
	} else {
		log.Println("GEMINI_API_KEY not set, using offline fake client")
		base = llm.NewFakeClient()
	}

	quota := llm.NewQuotaTracker(cfg.Limits.RPM, cfg.Limits.RPD)
	breaker := llm.NewCircuitBreaker(cfg.Breaker.Threshold, cfg.Breaker.Cooldown)
	cache := llm.NewResponseCache(cfg.Cache.Entries, cfg.Cache.TTL)

	policy := llm.PolicyWait
	if cfg.Limits.Policy == "reject" {
		policy = llm.PolicyReject
	}

	client := llm.Wrap(base,
		llm.Cached(cache),
		llm.RateLimit(cfg.Limits.RPM, policy, cfg.Limits.MaxWait),
		llm.Breaker(breaker),
		llm.Retry(2, 0),
		llm.QuotaGuard(quota),
		llm.WithLogging(nil),
	)

	orch := &pipeline.Orchestrator{
		Pre:      &pipeline.Preprocess{},
		Analyze:  &pipeline.AnalysisGate{LLM: client},
		Locate:   &pipeline.LocateGate{LLM: client},
		Ground:   &pipeline.GroundGate{LLM: client, Enabled: cfg.Pipeline.WebGrounding},
		Generate: &pipeline.GenerateGate{LLM: client},
		Assemble: &assemble.Assembler{},

		HighConfidence: cfg.Pipeline.HighConfidence,
		MinConfidence:  cfg.Pipeline.MinConfidence,
	}

	h := handler.New(orch, quota, breaker, cache)
	h.AdminKey = cfg.AdminKey
	h.Reports = newReportRepository(cfg)
	h.Archive = newImageArchive(cfg)

	mux := server.NewMux(h)
	srv := server.New(cfg.Port, mux)

	return &App{server: srv, client: client}, nil
}

func newReportRepository(cfg *config.Config) report.Repository {
	if cfg.Reports.DSN == "" {
		return report.NewMemoryStore()
	}
	store, err := report.NewPostgresStore(cfg.Reports.DSN)
	if err != nil {
		log.Printf("report postgres unavailable, falling back to memory: %v", err)
		return report.NewMemoryStore()
	}
	log.Println("report history backed by postgres")
	return store
}

func newImageArchive(cfg *config.Config) imagearchive.Store {
	if !cfg.Archive.Enabled {
		return nil
	}
	if cfg.Archive.Endpoint == "" {
		log.Println("image archive backed by memory")
		return imagearchive.NewMemoryStore()
	}
	store, err := imagearchive.NewS3Store(imagearchive.S3Config{
		Endpoint:  cfg.Archive.Endpoint,
		Region:    cfg.Archive.Region,
		AccessKey: cfg.Archive.AccessKey,
		SecretKey: cfg.Archive.SecretKey,
		Bucket:    cfg.Archive.Bucket,
		UseSSL:    cfg.Archive.UseSSL,
	})
	if err != nil {
		log.Printf("image archive s3 unavailable, falling back to memory: %v", err)
		return imagearchive.NewMemoryStore()
	}
	log.Println("image archive backed by s3")
	return store
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.client.Close(); err != nil {
		log.Printf("client close: %v", err)
	}
	return a.server.Shutdown(ctx)
}

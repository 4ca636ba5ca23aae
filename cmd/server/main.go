package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"debugiq.app/backend/common/id"
	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/common/logger"
	"debugiq.app/backend/common/otel"
	"debugiq.app/backend/core/config"
	"debugiq.app/backend/core/db"
	"debugiq.app/backend/internal/collab"
	"debugiq.app/backend/internal/http/middleware"
	httprouter "debugiq.app/backend/internal/http/router"
	"debugiq.app/backend/internal/notify"
	"debugiq.app/backend/internal/queue"
	"debugiq.app/backend/internal/service"
	"debugiq.app/backend/internal/store"
	"debugiq.app/backend/internal/workflow"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet, OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "debugiq server starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	issueStore, cleanup, err := buildStore(ctx, cfg)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize issue store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisOpts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected")
	}

	var notifier notify.Notifier
	if redisClient != nil {
		notifier = notify.NewRedis(redisClient)
	} else {
		notifier = notify.NewBroker()
	}

	registry := workflow.NewRegistry()
	runner := workflow.NewRunner(issueStore, notifier, buildCollaborators(ctx, cfg), registry, cfg.Workflow.StepTimeout)

	var workflowService service.WorkflowService
	if cfg.Workflow.Dispatch == config.DispatchQueue {
		producer := queue.NewRedisProducer(redisClient, cfg.Redis.Stream, nil)
		defer producer.Close()
		workflowService = service.NewQueueDispatch(issueStore, producer)
		slog.InfoContext(ctx, "workflow dispatch via queue", "stream", cfg.Redis.Stream)
	} else {
		workflowService = service.NewRunnerDispatch(runner)
	}

	services := service.NewServices(issueStore, buildLLM(ctx, cfg.TriageLLM, "triage"), workflowService)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, services, notifier)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	// Let in-flight workflow runs finish before the process exits.
	if err := registry.Shutdown(shutdownCtx); err != nil {
		slog.WarnContext(shutdownCtx, "workflow registry shutdown incomplete", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, services *service.Services, notifier notify.Notifier) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, notifier)

	return router
}

// buildStore selects Postgres when DATABASE_URL is set and falls back to
// the in-memory store for local development.
func buildStore(ctx context.Context, cfg config.Config) (store.IssueStore, func(), error) {
	if cfg.DB.DSN == "" {
		slog.InfoContext(ctx, "no database configured, using in-memory issue store")
		return store.NewMemory(), func() {}, nil
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	slog.InfoContext(ctx, "database connected")
	return store.NewPostgres(database.Pool()), database.Close, nil
}

// buildCollaborators wires the configured step implementations and falls
// back to mock/simulated ones so the server runs without credentials.
func buildCollaborators(ctx context.Context, cfg config.Config) workflow.Collaborators {
	collabs := workflow.Collaborators{
		Context:   collab.StaticContextProvider{},
		Diagnoser: collab.MockDiagnoser{},
		Suggester: collab.MockPatchSuggester{},
		Publisher: collab.MockPublisher{},
	}

	diagnosisLLM := buildLLM(ctx, cfg.DiagnosisLLM, "diagnosis")
	if diagnosisLLM != nil {
		collabs.Diagnoser = collab.NewLLMDiagnoser(diagnosisLLM, cfg.DiagnosisLLM.MaxTokens)
	}

	patchLLM := buildLLM(ctx, cfg.PatchLLM, "patch")
	if patchLLM != nil {
		collabs.Suggester = collab.NewLLMPatchSuggester(patchLLM, cfg.PatchLLM.MaxTokens)
	}

	// The validator battery is simulated either way; a patch model adds a
	// review assessment to the summary.
	collabs.Validator = collab.NewSimulatedValidator(patchLLM)

	if cfg.GitLab.Enabled() {
		provider, err := collab.NewGitLabContextProvider(cfg.GitLab.Token, cfg.GitLab.BaseURL, cfg.GitLab.TargetBranch)
		if err != nil {
			slog.WarnContext(ctx, "failed to build gitlab context provider, using static", "error", err)
		} else {
			collabs.Context = provider
		}

		publisher, err := collab.NewGitLabPublisher(cfg.GitLab.Token, cfg.GitLab.BaseURL, cfg.GitLab.TargetBranch, patchLLM)
		if err != nil {
			slog.WarnContext(ctx, "failed to build gitlab publisher, using mock", "error", err)
		} else {
			collabs.Publisher = publisher
		}
	}

	return collabs
}

func buildLLM(ctx context.Context, cfg config.LLMConfig, name string) llm.Client {
	llmCfg := llm.Config{
		Provider:  cfg.Provider,
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	}
	if !llmCfg.Enabled() {
		slog.InfoContext(ctx, "llm not configured", "role", name)
		return nil
	}

	client, err := llm.New(llmCfg)
	if err != nil {
		slog.WarnContext(ctx, "failed to build llm client", "role", name, "error", err)
		return nil
	}
	slog.InfoContext(ctx, "llm configured", "role", name, "provider", cfg.Provider, "model", cfg.Model)
	return client
}

const banner = `
██████╗ ███████╗██████╗ ██╗   ██╗ ██████╗ ██╗ ██████╗
██╔══██╗██╔════╝██╔══██╗██║   ██║██╔════╝ ██║██╔═══██╗
██║  ██║█████╗  ██████╔╝██║   ██║██║  ███╗██║██║   ██║
██║  ██║██╔══╝  ██╔══██╗██║   ██║██║   ██║██║██║▄▄ ██║
██████╔╝███████╗██████╔╝╚██████╔╝╚██████╔╝██║╚██████╔╝
╚═════╝ ╚══════╝╚═════╝  ╚═════╝  ╚═════╝ ╚═╝ ╚══▀▀═╝
`

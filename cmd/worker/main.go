package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"debugiq.app/backend/common/id"
	"debugiq.app/backend/common/llm"
	"debugiq.app/backend/common/logger"
	"debugiq.app/backend/common/otel"
	"debugiq.app/backend/core/config"
	"debugiq.app/backend/core/db"
	"debugiq.app/backend/internal/collab"
	"debugiq.app/backend/internal/notify"
	"debugiq.app/backend/internal/queue"
	"debugiq.app/backend/internal/store"
	"debugiq.app/backend/internal/worker"
	"debugiq.app/backend/internal/workflow"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "debugiq worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Redis.Group,
		"consumer_name", cfg.Redis.Consumer)

	// Different node id than the server so generated ids never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	if cfg.DB.DSN == "" {
		slog.ErrorContext(ctx, "DATABASE_URL is required for the worker, an in-memory store cannot be shared with the server")
		os.Exit(1)
	}
	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	if !cfg.Redis.Enabled() {
		slog.ErrorContext(ctx, "REDIS_URL is required for the worker")
		os.Exit(1)
	}
	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Redis.Stream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Redis.Stream,
		Group:        cfg.Redis.Group,
		Consumer:     cfg.Redis.Consumer,
		DLQStream:    cfg.Redis.DLQStream,
		BatchSize:    1, // one run at a time per consumer
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Workflow.MaxAttempts,
		RequeueDelay: time.Second,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	issueStore := store.NewPostgres(database.Pool())
	notifier := notify.NewRedis(redisClient)

	registry := workflow.NewRegistry()
	runner := workflow.NewRunner(issueStore, notifier, buildCollaborators(ctx, cfg), registry, cfg.Workflow.StepTimeout)

	w := worker.New(consumer, runner, worker.Config{
		MaxAttempts: cfg.Workflow.MaxAttempts,
	})

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:    cfg.Redis.Stream,
		Group:     cfg.Redis.Group,
		Consumer:  cfg.Redis.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	reclaimer.Stop()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "worker loop error", "error", err)
		}
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "worker shutdown complete")
}

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
DebugIQ worker
`

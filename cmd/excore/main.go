// excore runs the exploration core's HTTP surface and target-queue
// worker pool against a single Postgres database (spec.md §6).
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openclaim/excore/pkg/api"
	"github.com/openclaim/excore/pkg/browser"
	"github.com/openclaim/excore/pkg/collaborators"
	"github.com/openclaim/excore/pkg/config"
	"github.com/openclaim/excore/pkg/database"
	"github.com/openclaim/excore/pkg/executor"
	"github.com/openclaim/excore/pkg/graph"
	"github.com/openclaim/excore/pkg/pipeline"
	"github.com/openclaim/excore/pkg/queue"
	"github.com/openclaim/excore/pkg/ratelimit"
	"github.com/openclaim/excore/pkg/refutation"
	"github.com/openclaim/excore/pkg/state"
)

// shutdownGracePeriod bounds how long in-flight HTTP requests and queue
// jobs get to wind down once a shutdown signal arrives.
const shutdownGracePeriod = 30 * time.Second

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	gin.SetMode(getEnv("GIN_MODE", "release"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configDir)
	if err != nil {
		slog.Error("loading configuration", "error", err)
		os.Exit(1)
	}

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		slog.Error("connecting to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	tasks := database.NewTaskStore(pool)
	content := database.NewContentStore(pool)
	edges := database.NewEdgeStore(pool)
	jobs := database.NewJobStore(pool)

	evidenceGraph := graph.New(edges)
	collab, tabRegistry := buildCollaborators(*cfg, evidenceGraph)

	exec := executor.New(collab, content, cfg.Search, cfg.Search.WebCitationDetection)
	refuter := refutation.New(collab, content, exec, cfg.Search)
	pl := pipeline.New(exec, content, collab, cfg.Search, cfg.TaskLimits, refuter)

	states := state.NewCache()
	stateFactory := api.NewStateFactory(tasks, cfg.TaskLimits)

	workers := queue.New(jobs, states, stateFactory, pl, cfg.Concurrency.SearchQueue)
	workers.Start(ctx)

	server := api.NewServer(tasks, content, jobs, states, pl, workers, evidenceGraph, cfg.TaskLimits)
	router := gin.New()
	router.Use(gin.Recovery())
	server.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		slog.Info("http server listening", "port", cfg.HTTP.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown", "error", err)
	}
	workers.Stop()
	tabRegistry.CloseAll()
}

// buildCollaborators wires the HTTP-backed default collaborator
// implementations per cfg.Collaborators, layering the rate-limiting and
// browser-tab-pool decorators (spec.md §4.6) around the ones that make
// outbound network calls. A blank base URL leaves that collaborator nil;
// callers degrade gracefully rather than erroring (spec.md §7).
func buildCollaborators(cfg config.Config, evidenceGraph collaborators.EvidenceGraph) (collaborators.Collaborators, *browser.Registry) {
	engineLimiter := browser.NewEngineRateLimiter(cfg.Engines)
	academicLimiter := ratelimit.NewAcademicAPIRateLimiter(cfg.Academic, cfg.Concurrency.Backoff.AcademicAPI)
	tabRegistry := browser.NewRegistry(cfg)

	c := collaborators.Collaborators{
		Graph:         evidenceGraph,
		Notifications: collaborators.NoopNotificationChannel{},
	}

	if cfg.Collaborators.SERPBaseURL != "" {
		c.SERP = collaborators.NewRateLimitedSERP(collaborators.NewHTTPSERP(cfg.Collaborators.SERPBaseURL), engineLimiter)
	}
	if cfg.Collaborators.AcademicBaseURL != "" {
		c.Academic = collaborators.NewRateLimitedAcademic(collaborators.NewHTTPAcademic(cfg.Collaborators.AcademicBaseURL), academicLimiter)
	}
	if cfg.Collaborators.FetchBaseURL != "" {
		c.Fetch = collaborators.NewPooledFetch(collaborators.NewHTTPFetch(cfg.Collaborators.FetchBaseURL), tabRegistry)
	}
	if cfg.Collaborators.ExtractBaseURL != "" {
		c.Extract = collaborators.NewHTTPExtract(cfg.Collaborators.ExtractBaseURL)
	}
	if cfg.Collaborators.NLIBaseURL != "" {
		c.NLI = collaborators.NewHTTPNLI(cfg.Collaborators.NLIBaseURL)
	}
	if cfg.Collaborators.LLMClaimExtractorBaseURL != "" {
		c.LLMClaimExtractor = collaborators.NewHTTPLLMClaimExtractor(cfg.Collaborators.LLMClaimExtractorBaseURL)
	}
	if cfg.Collaborators.OAURLResolverBaseURL != "" {
		c.OAURLResolver = collaborators.NewHTTPOAURLResolver(cfg.Collaborators.OAURLResolverBaseURL)
	}
	if cfg.Collaborators.IDResolverBaseURL != "" {
		c.IDResolver = collaborators.NewHTTPIDResolver(cfg.Collaborators.IDResolverBaseURL)
	}

	return c, tabRegistry
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"fieldsprout/internal/backfill"
	"fieldsprout/internal/capture"
	"fieldsprout/internal/config"
	"fieldsprout/internal/connections"
	"fieldsprout/internal/db"
	"fieldsprout/internal/http/handlers"
	appmw "fieldsprout/internal/http/middleware"
	"fieldsprout/internal/logger"
	"fieldsprout/internal/schedule"
	"fieldsprout/internal/sources"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	sqlDB, err := db.Connect(cfg, log)
	if err != nil {
		log.Fatal("failed to connect database", "error", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatal("failed to ensure bootstrap admin", "error", err)
	}

	sealer, err := connections.NewSealer(cfg.TokenKey)
	if err != nil {
		log.Fatal("invalid APP_TOKEN_KEY", "error", err)
	}
	if !sealer.Enabled() {
		log.Warn("APP_TOKEN_KEY not set; source tokens are stored unsealed")
	}

	reg := prometheus.DefaultRegisterer
	backfillMetrics, err := backfill.RegisterMetrics(reg)
	if err != nil {
		log.Fatal("failed to register backfill metrics", "error", err)
	}
	if err := handlers.InitPrometheusMetrics(reg); err != nil {
		log.Fatal("failed to register capture metrics", "error", err)
	}
	requestMetrics, err := appmw.NewRequestMetrics(reg)
	if err != nil {
		log.Fatal("failed to register request metrics", "error", err)
	}

	store := db.NewStore(sqlDB)
	provider := connections.NewProvider(sqlDB, sealer)
	registry := sources.NewStandardRegistry(cfg, db.NewLeadStore(sqlDB))
	orch := backfill.New(store, registry, provider, backfill.Options{
		Parallelism:   cfg.BackfillParallelism,
		SourceTimeout: cfg.SourceTimeout,
		Logger:        log.With("component", "backfill"),
		Metrics:       backfillMetrics,
	})
	hook := capture.New(store, log.With("component", "capture"))

	nightly := &schedule.NightlyJob{
		Backfill: orch,
		Accounts: provider,
		Rollups:  store,
		Purge: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return db.PurgeBefore(ctx, sqlDB, cutoff)
		},
		RetentionDays: cfg.RetentionDays,
		Timeout:       6 * time.Hour,
		Log:           log.With("component", "nightly"),
	}
	scheduler := schedule.NewManager(cfg.NightlySchedule, nightly, log.With("component", "scheduler"))
	if err := scheduler.RegisterJobs(); err != nil {
		log.Fatal("failed to register scheduled jobs", "error", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	r := router.New()
	r.SaveMatchedRoutePath = true
	routes(r, cfg, sqlDB, store, orch, provider, hook)

	// Global middleware chain: request logger, then request metrics, then router
	handler := handlers.RequestLogger(log)(requestMetrics.Wrap(r.Handler))

	srv := &fasthttp.Server{
		Handler:     handler,
		Name:        "fieldsprout",
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		log.Info("fieldsprout listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(cfg.ListenAddr); err != nil {
			log.Fatal("server error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.ShutdownWithContext(ctx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	orch.Wait()
}

func routes(r *router.Router, cfg *config.Config, sqlDB *gorm.DB, store *db.Store, orch *backfill.Orchestrator, provider *connections.Provider, hook *capture.Hook) {
	admin := appmw.AdminAuth(sqlDB)
	bearer := appmw.BearerAuth(sqlDB)

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})
	r.GET("/metrics", handlers.MetricsHandler(prometheus.DefaultGatherer))

	r.POST("/v1/capture", bearer(handlers.CaptureHandler(hook)))

	r.GET("/v1/performance", admin(handlers.PerformanceQuery(store)))
	r.GET("/v1/performance/summary", admin(handlers.PerformanceSummary(store)))
	r.GET("/v1/performance/trend", admin(handlers.PerformanceTrend(store)))

	r.POST("/admin/backfill", admin(handlers.BackfillHandler(orch, cfg.DefaultBackfillMonths)))
	r.GET("/admin/check", admin(handlers.CheckHandler(orch)))
	r.POST("/admin/import/csv", admin(handlers.ImportCSVHandler(store)))
	r.POST("/admin/import/monthly", admin(handlers.ImportMonthlyHandler(store)))
	r.GET("/admin/import/template", admin(handlers.ImportTemplate()))

	r.POST("/admin/connections", admin(handlers.SaveConnection(provider, orch, cfg.DefaultBackfillMonths)))
	r.DELETE("/admin/connections/{source}", admin(handlers.RevokeConnection(provider)))

	r.GET("/admin/users", admin(handlers.ListUsers(sqlDB)))
	r.POST("/admin/users", admin(handlers.CreateUser(sqlDB)))
	r.POST("/admin/users/{id}/reset-password", admin(handlers.ResetPassword(sqlDB, cfg)))
	r.DELETE("/admin/users/{id}", admin(handlers.DeleteUser(sqlDB, cfg)))

	r.GET("/admin/apikeys", admin(handlers.ListAPIKeys(sqlDB)))
	r.POST("/admin/apikeys", admin(handlers.CreateAPIKey(sqlDB)))
	r.POST("/admin/apikeys/{id}/active", admin(handlers.SetActiveAPIKey(sqlDB)))
	r.DELETE("/admin/apikeys/{id}", admin(handlers.DeleteAPIKey(sqlDB)))
}

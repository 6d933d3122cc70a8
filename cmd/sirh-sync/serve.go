package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sirh-sync/api/swagger"
	"github.com/noah-isme/sirh-sync/internal/handler"
	"github.com/noah-isme/sirh-sync/internal/middleware"
	"github.com/noah-isme/sirh-sync/internal/scheduler"
	"github.com/noah-isme/sirh-sync/internal/service"
	"github.com/noah-isme/sirh-sync/pkg/cache"
	"github.com/noah-isme/sirh-sync/pkg/config"
	"github.com/noah-isme/sirh-sync/pkg/jobs"
	"github.com/noah-isme/sirh-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/sirh-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sirh-sync/pkg/middleware/requestid"
)

func newServeCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the manual sync workers and the periodic scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck
			if port > 0 {
				cfg.Port = port
			}

			a, err := newApp(cfg, log)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port (overrides PORT)")

	return cmd
}

func serve(ctx context.Context, a *app) error {
	cfg, log := a.cfg, a.logger

	queue := jobs.NewQueue("manual-sync", a.manual.HandleJob, jobs.QueueConfig{
		Workers:    cfg.Sync.ManualWorkers,
		MaxRetries: cfg.Sync.ManualRetries,
		RetryDelay: cfg.Sync.ManualRetryDelay,
		RetryIf:    service.RetryableJobError,
		Logger:     logger.Component(log, "jobs"),
	})
	a.manual.SetQueue(queue)
	queue.Start(ctx)
	defer queue.Stop()

	var trigger handler.RunTrigger
	if cfg.Sync.SchedulerEnabled {
		sched := scheduler.New(a.syncTask, cfg.Sync.Schedule, logger.Component(log, "scheduler"))
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
		trigger = sched
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(a, trigger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(a *app, trigger handler.RunTrigger) *gin.Engine {
	cfg, log := a.cfg, a.logger
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(log))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(a.metrics))

	metricsHandler := handler.NewMetricsHandler(a.metrics,
		handler.ReadinessCheck{Name: "database", Ping: a.db.PingContext},
		handler.ReadinessCheck{Name: "redis", Ping: cache.Healthcheck(a.redis)},
	)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.Register(r.Group(cfg.APIPrefix), handler.RouterDeps{
		Tokens: a.tokens,
		Audit:  a.audit,
		RateLimit: middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Sync.ManualRateLimit,
			Burst:             cfg.Sync.ManualRateBurst,
		},
		Logger:    logger.Component(log, "audit"),
		Sessions:  handler.NewSessionHandler(a.sessions),
		Instances: handler.NewInstanceHandler(a.instances, a.exporter),
		Sync:      handler.NewSyncHandler(a.manual, trigger),
	})

	return r
}

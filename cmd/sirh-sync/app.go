package main

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sirh-sync/internal/repository"
	"github.com/noah-isme/sirh-sync/internal/service"
	"github.com/noah-isme/sirh-sync/internal/sirh"
	"github.com/noah-isme/sirh-sync/pkg/cache"
	"github.com/noah-isme/sirh-sync/pkg/config"
	"github.com/noah-isme/sirh-sync/pkg/database"
	"github.com/noah-isme/sirh-sync/pkg/events"
	"github.com/noah-isme/sirh-sync/pkg/logger"
	"github.com/noah-isme/sirh-sync/pkg/mailer"
)

// app holds the shared dependency graph of every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sqlx.DB
	redis  *redis.Client
	events events.Publisher

	metrics   *service.MetricsService
	audit     *repository.AuditRepository
	tokens    *service.TokenService
	instances *service.InstanceService
	sessions  *service.SessionService
	manual    *service.ManualSyncService
	syncTask  *service.SyncTask
	exporter  *service.RosterExportService
}

func newApp(cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable, session cache disabled", zap.Error(err))
		redisClient = nil
	}

	publisher, err := events.NewPublisher(cfg.NATS, logger.Component(log, "events"))
	if err != nil {
		log.Warn("nats unavailable, sync events disabled", zap.Error(err))
		publisher = events.NopPublisher{}
	}

	a := &app{cfg: cfg, logger: log, db: db, redis: redisClient, events: publisher}
	a.wire()
	return a, nil
}

func (a *app) wire() {
	cfg, log := a.cfg, a.logger
	validate := validator.New()

	a.metrics = service.NewMetricsService()
	a.tokens = service.NewTokenService(cfg.JWT.Secret)

	users := repository.NewUserRepository(a.db)
	groups := repository.NewGroupRepository(a.db)
	roles := repository.NewCourseRoleRepository(a.db)
	enrolments := repository.NewEnrolmentRepository(a.db)
	instanceRepo := repository.NewInstanceRepository(a.db)
	a.audit = repository.NewAuditRepository(a.db)

	cacheRepo := repository.NewCacheRepository(a.redis, logger.Component(log, "cache"))
	cacheSvc := service.NewCacheService(cacheRepo, a.metrics, cfg.SIRH.SessionsCacheTTL, logger.Component(log, "cache"), a.redis != nil)

	registry := sirh.NewClient(cfg.SIRH,
		sirh.WithObserver(a.metrics),
		sirh.WithLogger(logger.Component(log, "sirh")),
	)

	capability := service.NewRoleCapability(roles)
	reconciler := service.NewReconciliationService(users, enrolments, groups, roles, logger.Component(log, "reconcile"))
	validation := service.NewValidationService(users, roles, validate, logger.Component(log, "validation"))
	notifications := service.NewNotificationService(
		mailer.New(cfg.SMTP, logger.Component(log, "mailer")),
		users,
		cfg.PlatformURL,
		logger.Component(log, "notifications"),
	)

	a.instances = service.NewInstanceService(instanceRepo, groups, users, enrolments, reconciler, capability, cacheSvc, validate, logger.Component(log, "instances"))
	a.sessions = service.NewSessionService(registry, instanceRepo, capability, cacheSvc, service.SessionConfig{
		DefaultRegistries: cfg.SIRH.DefaultRegistries,
		PageSize:          cfg.SIRH.PageSize,
		CacheTTL:          cfg.SIRH.SessionsCacheTTL,
	}, logger.Component(log, "sessions"))
	a.manual = service.NewManualSyncService(a.instances, instanceRepo, registry, validation, notifications, a.metrics, validate, logger.Component(log, "manual_sync"))
	a.syncTask = service.NewSyncTask(a.instances, registry, validation, notifications, a.events, a.metrics, logger.Component(log, "sync_task"))
	a.exporter = service.NewRosterExportService(a.instances, nil, nil, logger.Component(log, "export"))
}

func (a *app) close() {
	if a.events != nil {
		a.events.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

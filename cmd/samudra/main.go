package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/samudra-erp/samudra-erp/internal/app"
	"github.com/samudra-erp/samudra-erp/internal/audit"
	"github.com/samudra-erp/samudra-erp/internal/auth"
	"github.com/samudra-erp/samudra-erp/internal/branches"
	"github.com/samudra-erp/samudra-erp/internal/menus"
	"github.com/samudra-erp/samudra-erp/internal/observability"
	"github.com/samudra-erp/samudra-erp/internal/platform/cache"
	"github.com/samudra-erp/samudra-erp/internal/platform/db"
	"github.com/samudra-erp/samudra-erp/internal/rbac"
	"github.com/samudra-erp/samudra-erp/internal/roles"
	"github.com/samudra-erp/samudra-erp/internal/session"
	"github.com/samudra-erp/samudra-erp/internal/shared"
	"github.com/samudra-erp/samudra-erp/internal/users"
	"github.com/samudra-erp/samudra-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, cfg.PoolOptions())
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisOptions())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	rbacMiddleware := rbac.Middleware{
		Logger:           logger,
		Recorder:         metrics,
		LoginPath:        cfg.LoginPath,
		UnauthorizedPath: cfg.UnauthorizedPath,
	}

	jobClient, err := jobs.NewClient(cfg.RedisOptions().AsynqOpt())
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	usersRepo := users.NewRepository(dbpool)
	sessionManager := session.NewManager(redisClient, "samudra_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrf := session.NewCSRF(cfg.CSRFSecret)
	memo := session.NewMenuMemo(redisClient, cfg.MenuAccessTTL)
	provider := session.NewProvider(redisClient, usersRepo, memo, cfg.SnapshotTTL, logger)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.AccessTokenTTL)

	authHandler := auth.NewHandler(auth.HandlerConfig{
		Logger:         logger,
		Service:        auth.NewService(auth.NewRepository(dbpool)),
		SessionManager: sessionManager,
		CSRF:           csrf,
		Provider:       provider,
		Tokens:         tokens,
		LoginLimit:     cfg.LoginRateLimit,
	})

	auditLogger := shared.NewAuditLogger(dbpool)
	usersService := users.NewService(usersRepo, logger,
		users.WithSessionRefresher(jobClient),
		users.WithSnapshotInvalidator(provider),
		users.WithAudit(auditLogger),
	)
	rolesService := roles.NewService(roles.NewRepository(dbpool), jobClient, logger, roles.WithAudit(auditLogger))
	menusRepo := menus.NewCachedRepository(menus.NewRepository(dbpool), 512, time.Minute)
	menusService := menus.NewService(menusRepo, memo, metrics, logger)
	branchesService := branches.NewService(branches.NewRepository(dbpool), logger, branches.WithAudit(auditLogger))

	inspector := asynq.NewInspector(cfg.RedisOptions().AsynqOpt())
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger: logger,
		Middleware: app.MiddlewareConfig{
			Logger:         logger,
			Config:         cfg,
			SessionManager: sessionManager,
			CSRF:           csrf,
			Snapshots:      provider,
			Tokens:         tokens,
			Metrics:        metrics,
		},
		AuthHandler:     authHandler,
		AccessHandler:   rbac.NewHandler(logger, metrics, rbacMiddleware),
		UsersHandler:    users.NewHandler(logger, usersService, rbacMiddleware),
		RolesHandler:    roles.NewHandler(logger, rolesService, rbacMiddleware),
		MenusHandler:    menus.NewHandler(logger, menusService, rbacMiddleware),
		BranchesHandler: branches.NewHandler(logger, branchesService, rbacMiddleware),
		AuditHandler:    audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:      jobs.NewHandler(inspector, logger),
		Metrics:         metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// Package main запускает HTTP-сервер сервиса приёма заказов.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/orderdesk-system/internal/audit"
	"github.com/mmeshcher/orderdesk-system/internal/auth"
	"github.com/mmeshcher/orderdesk-system/internal/catalog"
	"github.com/mmeshcher/orderdesk-system/internal/config"
	"github.com/mmeshcher/orderdesk-system/internal/handler"
	"github.com/mmeshcher/orderdesk-system/internal/metrics"
	"github.com/mmeshcher/orderdesk-system/internal/middleware"
	"github.com/mmeshcher/orderdesk-system/internal/repository"
	"github.com/mmeshcher/orderdesk-system/internal/service"
	"github.com/mmeshcher/orderdesk-system/internal/validation"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger initialization error:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	var repo service.Repository
	var roles auth.RoleStore

	if cfg.DatabaseURI == "" {
		mem := repository.NewMemoryRepository()
		for _, uid := range cfg.AdminUIDs {
			mem.GrantAdmin(uid)
		}
		repo, roles = mem, mem
		sugar.Warn("no database configured, orders are kept in memory and will be lost on restart")
	} else {
		pg, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
		repo, roles = pg, pg
	}
	defer repo.Close()

	var catalogClient *catalog.Client
	if cfg.CatalogAddress != "" {
		catalogClient = catalog.NewClient(cfg.CatalogAddress)
	} else {
		sugar.Warn("no catalog configured, declared prices are accepted without verification")
	}

	auditRec := audit.NewZapRecorder(logger)
	m := metrics.New(prometheus.DefaultRegisterer)

	resolver := auth.NewResolver(cfg.AuthSecret, roles, !cfg.Production())
	validator := validation.NewValidator(catalogClient, auditRec, m, cfg.TrustOnCatalogOutage)

	var prober service.Prober
	if catalogClient != nil {
		prober = catalogClient
	}

	svc := service.NewService(repo, validator, resolver, prober, auditRec, m)
	defer svc.Close()

	identity := middleware.NewIdentityMiddleware(resolver, auditRec, logger)
	h := handler.NewHandler(svc, logger, identity, cfg.Production())

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: h.SetupRouter(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting orderdesk server",
			"addr", cfg.RunAddress,
			"environment", cfg.Environment,
			"persistent", repo.Persistent(),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if !cfg.Production() {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}

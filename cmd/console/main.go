package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/ownership-console/internal/audit"
	"github.com/xela07ax/ownership-console/internal/console/handler"
	"github.com/xela07ax/ownership-console/internal/console/server"
	"github.com/xela07ax/ownership-console/internal/console/service"
	"github.com/xela07ax/ownership-console/internal/domain"
	"github.com/xela07ax/ownership-console/internal/infra"
	infraauth "github.com/xela07ax/ownership-console/internal/infra/auth"
	"github.com/xela07ax/ownership-console/internal/notify"
	"github.com/xela07ax/ownership-console/internal/policy"
	"github.com/xela07ax/ownership-console/internal/repository/postgres"
	"github.com/xela07ax/ownership-console/internal/workflow"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	// 2. Ресурсы: Postgres и Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	repo, err := postgres.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("postgres init failed", zap.Error(err))
	}
	if err := repo.Ping(ctx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancel()
	defer repo.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 3. Auth (RS256)
	pubKey, err := infraauth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key load failed", zap.Error(err))
	}
	privKey, err := infraauth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key load failed", zap.Error(err))
	}
	validator := infraauth.NewBaseValidator(pubKey)

	// 4. Наблюдаемость: метрики и аудит
	reg := prometheus.NewRegistry()
	metrics := workflow.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics exporter started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics exporter failed", zap.Error(err))
		}
	}()

	trail := audit.NewTrail(repo, logger, cfg.Audit.BufferSize, cfg.Audit.BatchSize, cfg.Audit.FlushInterval)
	trail.Start()
	defer trail.Stop()

	// 5. Опциональный webhook терминальных переходов
	var notifier workflow.Notifier
	if cfg.Notifier.WebhookURL != "" {
		sender := notify.NewReliabilityWrapper(notify.NewWebhookSender(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout))
		notifier = notify.NewResolvedNotifier(sender, logger)
	}

	// 6. Политика ворот и ядро workflow
	gateTable, err := policy.NewTable(map[string][]domain.GateRequirement{
		domain.RequestTypeOwnershipTransfer: {
			{Gate: domain.GateSysAdmin, MinApprovals: cfg.Workflow.SysAdminMinApprovals},
			{Gate: domain.GateLineManager, MinApprovals: cfg.Workflow.LineManagerMinApprovals},
		},
	})
	if err != nil {
		logger.Fatal("gate policy invalid", zap.Error(err))
	}

	engine := workflow.NewEngine(workflow.Deps{
		Requests:  repo,
		Ledger:    repo,
		Directory: repo,
		Registry:  repo,
		Gates:     gateTable,
		Cache:     service.NewRedisInvalidator(rdb, logger),
		Notifier:  notifier,
		Metrics:   metrics,
		Logger:    logger,
	}, workflow.Config{
		ConflictAttempts: cfg.Workflow.ConflictAttempts,
		ConflictDelay:    cfg.Workflow.ConflictDelay,
	})

	// 7. Слои консоли (Dependency Injection)
	transferService := service.NewTransferService(engine, repo, repo, repo, rdb, trail, logger, cfg.Redis.CacheTTL)
	authService := service.NewAuthService(repo, validator, privKey, cfg.Auth.TokenTTL)
	auditService := service.NewAuditService(repo)
	dashService := service.NewDashboardService(repo, rdb, logger)

	srv := server.NewConsoleServer(
		cfg,
		logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewTransferHandler(transferService),
		handler.NewDashboardHandler(dashService),
		handler.NewAuditHandler(auditService),
	)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("ownership console started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("ownership console stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server shutdown failed", zap.Error(err))
	}
	logger.Info("ownership console exited properly")
}

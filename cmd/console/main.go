package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/console/handler"
	"github.com/xela07ax/slack-approval-bot/internal/console/server"
	"github.com/xela07ax/slack-approval-bot/internal/console/service"
	"github.com/xela07ax/slack-approval-bot/internal/infra"
	"github.com/xela07ax/slack-approval-bot/internal/infra/auth"
	"github.com/xela07ax/slack-approval-bot/internal/repository/postgres"
	redisrepo "github.com/xela07ax/slack-approval-bot/internal/repository/redis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	_ = godotenv.Load()

	// 1. Инициализация ресурсов
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateConsole(); err != nil {
		return err
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		return err
	}

	// Журнал решений пишется только в Postgres: без database.url эндпоинт аудита не поднимаем
	var (
		db   *sql.DB
		opts []server.Option
	)
	if cfg.Database.URL != "" {
		if db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return err
		}
		defer db.Close()
		auditSvc := service.NewAuditService(postgres.NewAuditRepo(db))
		opts = append(opts, server.WithAuditHandler(handler.NewAuditHandler(auditSvc, logger)))
	}

	var repo service.ApprovalRepository
	switch cfg.Store.Backend {
	case "postgres":
		repo = postgres.NewApprovalRepo(db)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		repo = redisrepo.NewApprovalRepo(rdb, cfg.Store.Retention)
	}

	// 2. Инициализация слоев (Dependency Injection)
	approvalHandler := handler.NewApprovalHandler(service.NewApprovalService(repo), logger)
	consoleSrv := server.NewConsoleServer(logger, auth.NewBaseValidator(pubKey), approvalHandler, opts...)

	// 3. Запуск сервера
	srv := &http.Server{
		Addr:         cfg.Console.Addr(),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Console.ReadTimeout,
		WriteTimeout: cfg.Console.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Console.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

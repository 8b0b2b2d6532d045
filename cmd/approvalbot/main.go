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
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/xela07ax/slack-approval-bot/internal/audit"
	"github.com/xela07ax/slack-approval-bot/internal/connectors"
	"github.com/xela07ax/slack-approval-bot/internal/engine"
	"github.com/xela07ax/slack-approval-bot/internal/infra"
	"github.com/xela07ax/slack-approval-bot/internal/policy"
	"github.com/xela07ax/slack-approval-bot/internal/repository/memory"
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

// storage — выбранное хранилище заявок и то, что нужно закрыть при остановке.
type storage struct {
	approvals engine.ApprovalStore
	auditSink audit.StorageInterface
	purger    engine.Purger
	rdb       redis.UniversalClient // только для backend=redis
	closers   []func() error
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context) error {
	// .env — только для локального запуска, в проде переменные приходят из окружения
	_ = godotenv.Load()

	// 1. Конфигурация: без секретов Slack не занимаем порт
	cfg, err := infra.LoadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		return err
	}
	defer logger.Sync()

	// 2. Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 3. Хранилище и аудит
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	trail := audit.NewTrail(store.auditSink, logger, audit.Options{
		BufferSize:    cfg.Audit.BufferSize,
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		BufferGauge:   metrics.AuditBufferFill,
	})
	trail.Start()
	defer trail.Stop()

	if store.purger != nil {
		go engine.RunRetention(ctx, store.purger, cfg.Store.Retention, time.Hour, logger)
	}

	// 4. Slack Web API: коннектор + rate limit/CB/retry
	api := slack.New(cfg.Slack.BotToken, slack.OptionDebug(cfg.Slack.Debug))
	messenger := engine.NewReliabilityWrapper(connectors.NewSlackConnector(api), cfg.Slack, metrics)

	// 5. Политика: статический список + живой blocklist из Redis
	var enforcerOpts []policy.EnforcerOption
	if store.rdb != nil {
		blocklist := policy.NewBlocklist(store.rdb, logger)
		if err := blocklist.Init(ctx); err != nil {
			logger.Warn("blocklist warm-up failed, relying on listener", zap.Error(err))
		}
		go blocklist.Listen(ctx)
		enforcerOpts = append(enforcerOpts, policy.WithBlockChecker(blocklist))
	}

	// 6. Обработчики и диспетчер
	workflow := engine.NewWorkflow(
		messenger,
		store.approvals,
		policy.NewReservedUsersEnforcer(cfg.Workflow.ReservedUsers, enforcerOpts...),
		trail,
		metrics,
		logger,
		engine.WithPendingTTL(cfg.Workflow.PendingTTL),
	)

	dcfg := engine.DispatcherConfig{
		SigningSecret:  cfg.Slack.SigningSecret,
		Command:        cfg.Slack.Command,
		HandlerTimeout: cfg.Workflow.HandlerTimeout,
		MetricsPath:    cfg.Metrics.Path,
	}
	if cfg.Metrics.Enabled {
		dcfg.Metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	dispatcher := engine.NewDispatcher(workflow, dcfg, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      dispatcher.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Запуск и Graceful Shutdown
	errCh := make(chan error, 1)
	go func() {
		logger.Info("approval bot started",
			zap.String("addr", srv.Addr),
			zap.String("command", cfg.Slack.Command),
			zap.String("store", cfg.Store.Backend))
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

	logger.Info("approval bot stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	// Ack уже отправлены: даём обработчикам дописать ответы в Slack
	dispatcher.Wait()
	logger.Info("approval bot exited properly")
	return nil
}

func openStorage(ctx context.Context, cfg *infra.Config, logger *zap.Logger) (*storage, error) {
	s := &storage{}

	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		if db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := postgres.Migrate(ctx, db); err != nil {
			s.Close()
			return nil, err
		}
		s.auditSink = postgres.NewAuditRepo(db)
	} else {
		s.auditSink = audit.NewLogSink(logger)
	}

	switch cfg.Store.Backend {
	case "postgres":
		repo := postgres.NewApprovalRepo(db)
		s.approvals = repo
		s.purger = repo
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis unreachable: %w", err)
		}
		s.approvals = redisrepo.NewApprovalRepo(rdb, cfg.Store.Retention)
		s.rdb = rdb
	default:
		logger.Warn("using in-memory approval store; pending requests are lost on restart")
		s.approvals = memory.NewApprovalRepo()
	}
	return s, nil
}

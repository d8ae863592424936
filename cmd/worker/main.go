package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	ledgerclose "github.com/odyssey-erp/odyssey-ledger/internal/close"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/events"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.MigrateUp(cfg.PGDSN); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	ledgerMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	var publisher events.Publisher = events.Nop{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.LedgerEventsTopic)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("event publisher close", slog.Any("error", err))
		}
	}()

	clock := app.BusinessClock(cfg.Location())
	audit := shared.NewAuditLogger(pool)

	catalogs := accounts.NewCachedLoader(accounts.NewRepository(pool))
	invalidator := cache.NewInvalidator(redisClient, cache.CatalogChannel)
	if err := invalidator.Listen(ctx, catalogs.Invalidate); err != nil {
		return err
	}

	posting := accounting.NewService(accounting.NewRepository(pool), catalogs, journals.NewBuilder(cfg.Roles()), audit, publisher, logger)
	posting.WithNow(clock)
	posting.WithMetrics(ledgerMetrics)

	engine := ledgerclose.NewEngine(ledgerclose.NewRepository(pool), publisher, ledgerMetrics, logger)
	engine.WithNow(clock)

	closeJob := jobs.NewPeriodCloseJob(engine, redisClient, logger, ledgerMetrics, cfg.CloseLockTTL)
	integrityJob := jobs.NewGLIntegrityJob(jobs.NewPgIntegrityRepository(pool), logger, ledgerMetrics)
	postJob := jobs.NewPostDocumentJob(posting, logger, ledgerMetrics)

	integrityTask, err := jobs.NewGLIntegrityTask("")
	if err != nil {
		return err
	}

	redisOpts := cfg.Queue()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConc,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPeriodClose, Handler: closeJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskPostDocument, Handler: postJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: integrityTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		return err
	}

	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	server := &http.Server{
		Addr: cfg.OpsAddr,
		Handler: app.NewRouter(app.RouterParams{
			Logger:  logger,
			Config:  cfg,
			Metrics: metrics,
			Checks: map[string]app.HealthCheck{
				"postgres": pool.Ping,
				"redis": func(ctx context.Context) error {
					return redisClient.Ping(ctx).Err()
				},
			},
			Jobs: jobs.NewHandler(inspector, logger),
		}),
		ReadTimeout:  cfg.OpsReadTimeout,
		WriteTimeout: cfg.OpsWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := worker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Info("ops server listening", slog.String("addr", cfg.OpsAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	ledgerclose "github.com/odyssey-erp/odyssey-ledger/internal/close"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/cache"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Closer runs the month-end close.
type Closer interface {
	Close(ctx context.Context, in ledgerclose.CloseInput) (ledgerclose.CloseResult, error)
}

// PeriodCloseJob serialises closes per company month with a Redis mutex
// and hands the work to the close engine.
type PeriodCloseJob struct {
	Engine  Closer
	Redis   redis.UniversalClient
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewPeriodCloseJob constructs the job handler.
func NewPeriodCloseJob(engine Closer, client redis.UniversalClient, logger *slog.Logger, metrics *jobmetrics.Metrics, lockTTL time.Duration) *PeriodCloseJob {
	return &PeriodCloseJob{Engine: engine, Redis: client, Logger: logger, Metrics: metrics, LockTTL: lockTTL}
}

// Handle executes one close task.
func (j *PeriodCloseJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Engine == nil || j.Redis == nil {
		return errors.New("period close: dependencies not configured")
	}
	var payload PeriodClosePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("period close: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	fp, err := periods.ParseFiscalPeriod(payload.Period)
	if err != nil {
		return fmt.Errorf("period close: %v: %w", err, asynq.SkipRetry)
	}

	tracker := j.metrics().Track(TaskPeriodClose)
	logger := j.log().With(slog.String("company", payload.Company), slog.String("period", fp.String()))

	mutex := cache.NewMutex(j.Redis, internalShared.PeriodCloseLockKey(payload.Company, fp.String()), j.LockTTL)
	if err := mutex.Acquire(ctx); err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			logger.Info("period close already running")
		}
		return tracker.End(err)
	}
	defer func() {
		if err := mutex.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Warn("release close lock", slog.Any("error", err))
		}
	}()

	result, err := j.Engine.Close(ctx, ledgerclose.CloseInput{Company: payload.Company, Period: fp, ActorID: payload.ActorID})
	if err != nil {
		tracker.End(err)
		if shared.IsPermanent(err) {
			logger.Warn("period close rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		logger.Error("period close failed", slog.Any("error", err))
		return err
	}
	logger.Info("period close completed",
		slog.String("nibit_ending", result.Nibit.Ending.StringFixed(4)),
		slog.Int("balances", result.Balances),
		slog.Int("locked_records", result.LockedSales+result.LockedPurchases))
	return tracker.End(nil)
}

func (j *PeriodCloseJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PeriodCloseJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPeriodClose))
	}
	return slog.Default().With(slog.String("job", TaskPeriodClose))
}

// Package close finalises an accounting month: it chains net income, queues
// unpriced deliveries for true-up and snapshots closing balances.
package close

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/events"
)

// Metrics receives close outcomes.
type Metrics interface {
	ObserveClose(company, outcome string)
	AddLockedRecords(kind string, n int)
}

// Engine runs the month-end close.
type Engine struct {
	repo      Repository
	publisher events.Publisher
	metrics   Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine wires the close engine. publisher and metrics may be nil.
func NewEngine(repo Repository, publisher events.Publisher, metrics Metrics, logger *slog.Logger) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{repo: repo, publisher: publisher, metrics: metrics, logger: logger, now: time.Now}
}

// WithNow overrides the clock used for closed-at and created-at stamps.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Close finalises one locked month. Everything happens in a single
// transaction; a failure at any step leaves the month untouched.
func (e *Engine) Close(ctx context.Context, in CloseInput) (CloseResult, error) {
	if err := in.Validate(); err != nil {
		return CloseResult{}, err
	}
	var result CloseResult
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		at := e.now()
		result = CloseResult{Company: in.Company, Period: in.Period, ClosedAt: at}

		period, err := tx.LockPeriod(ctx, in.Company, in.Period)
		if err != nil {
			return err
		}
		switch period.Status {
		case periods.PeriodStatusClosed:
			return fmt.Errorf("%w: %s %s", shared.ErrPeriodAlreadyClosed, in.Company, in.Period)
		case periods.PeriodStatusLocked:
		default:
			return fmt.Errorf("%w: %s %s is %s", shared.ErrPeriodNotLocked, in.Company, in.Period, period.Status)
		}

		deliveries, err := tx.Deliveries(ctx, in.Company, in.Period)
		if err != nil {
			return err
		}
		if blocking := BlockingDeliveries(deliveries); len(blocking) > 0 {
			return &shared.PreconditionError{Err: shared.ErrUnliftedDeliveriesExist, Blocking: blocking}
		}

		titles, err := tx.AccountTitles(ctx, in.Company)
		if err != nil {
			return err
		}
		catalog, err := accounts.NewCatalog(titles)
		if err != nil {
			return err
		}
		entries, err := tx.MonthEntries(ctx, in.Company, in.Period)
		if err != nil {
			return err
		}

		if err := e.closeNibit(ctx, tx, catalog, entries, in, at, &result); err != nil {
			return err
		}

		sales, purchases := LockedRecordsFor(in.Company, in.Period, deliveries, at)
		if result.LockedSales, err = tx.QueueLockedRecords(ctx, sales); err != nil {
			return err
		}
		if result.LockedPurchases, err = tx.QueueLockedRecords(ctx, purchases); err != nil {
			return err
		}

		if err := e.snapshot(ctx, tx, catalog, entries, in, at, &result); err != nil {
			return err
		}

		return tx.MarkClosed(ctx, period, in.ActorID, at)
	})
	if err != nil {
		e.observe(in.Company, outcomeFor(err))
		return CloseResult{}, err
	}

	e.logger.Info("accounting period closed",
		slog.String("company", in.Company),
		slog.String("period", in.Period.String()),
		slog.String("net_income", result.Nibit.NetIncome.StringFixed(4)),
		slog.String("nibit_ending", result.Nibit.Ending.StringFixed(4)),
		slog.Int("balances", result.Balances),
		slog.Int("sub_balances", result.SubBalances),
		slog.Int("locked_sales", result.LockedSales),
		slog.Int("locked_purchases", result.LockedPurchases),
	)
	e.observe(in.Company, "closed")
	if e.metrics != nil {
		e.metrics.AddLockedRecords(string(DeliverySales), result.LockedSales)
		e.metrics.AddLockedRecords(string(DeliveryPurchase), result.LockedPurchases)
	}
	e.publish(ctx, result)
	return result, nil
}

func (e *Engine) closeNibit(ctx context.Context, tx TxRepository, catalog *accounts.Catalog, entries []shared.LedgerEntry, in CloseInput, at time.Time, result *CloseResult) error {
	existing, err := tx.GetNibit(ctx, in.Company, in.Period)
	switch {
	case err == nil:
		result.Nibit = existing
		return nil
	case !errors.Is(err, errNotFound):
		return err
	}

	if err := CheckMonthBalanced(in.Period, entries); err != nil {
		return err
	}
	beginning, err := e.nibitBeginning(ctx, tx, in)
	if err != nil {
		return err
	}
	netIncome, adjustment, lines, err := ComputeNibit(catalog, entries)
	if err != nil {
		return err
	}
	nibit := ChainNibit(in.Company, in.Period, beginning, netIncome, adjustment, at)
	if err := tx.InsertNibit(ctx, nibit); err != nil {
		return err
	}
	result.Nibit, result.NibitLines, result.NibitCreated = nibit, lines, true
	return nil
}

func (e *Engine) nibitBeginning(ctx context.Context, tx TxRepository, in CloseInput) (decimal.Decimal, error) {
	prev, err := tx.GetNibit(ctx, in.Company, in.Period.Previous())
	if err == nil {
		return prev.Ending, nil
	}
	if !errors.Is(err, errNotFound) {
		return decimal.Zero, err
	}
	earlier, err := tx.HasNibitBefore(ctx, in.Company, in.Period)
	if err != nil {
		return decimal.Zero, err
	}
	if earlier {
		return decimal.Zero, fmt.Errorf("%w: %s has no NIBIT for %s", shared.ErrNibitChainGap, in.Company, in.Period.Previous())
	}
	return decimal.Zero, nil
}

func (e *Engine) snapshot(ctx context.Context, tx TxRepository, catalog *accounts.Catalog, entries []shared.LedgerEntry, in CloseInput, at time.Time, result *CloseResult) error {
	exists, err := tx.HasSnapshots(ctx, in.Company, in.Period)
	if err != nil || exists {
		return err
	}
	prev := in.Period.Previous()
	prior, err := tx.PeriodBalances(ctx, in.Company, prev)
	if err != nil {
		return err
	}
	priorSub, err := tx.SubAccountBalances(ctx, in.Company, prev)
	if err != nil {
		return err
	}
	balances := BuildBalances(catalog, in.Company, in.Period, prior, entries, at)
	subBalances, err := BuildSubBalances(catalog, in.Company, in.Period, priorSub, entries, at)
	if err != nil {
		return err
	}
	if err := tx.InsertBalances(ctx, balances); err != nil {
		return err
	}
	if err := tx.InsertSubBalances(ctx, subBalances); err != nil {
		return err
	}
	result.Balances, result.SubBalances, result.SnapshotsCreated = len(balances), len(subBalances), true
	return nil
}

func outcomeFor(err error) string {
	switch {
	case shared.IsRetryable(err):
		return "conflict"
	case errors.Is(err, shared.ErrPeriodAlreadyClosed):
		return "already_closed"
	case errors.Is(err, shared.ErrPeriodNotLocked), errors.Is(err, shared.ErrUnliftedDeliveriesExist), errors.Is(err, shared.ErrNibitChainGap):
		return "precondition"
	case errors.Is(err, shared.ErrMonthUnbalanced):
		return "unbalanced"
	default:
		return "error"
	}
}

func (e *Engine) observe(company, outcome string) {
	if e.metrics != nil {
		e.metrics.ObserveClose(company, outcome)
	}
}

func (e *Engine) publish(ctx context.Context, result CloseResult) {
	evt, err := events.New(events.TypePeriodClosed, result.Company, result.Period.String(), e.now(), map[string]any{
		"period":           result.Period.String(),
		"net_income":       result.Nibit.NetIncome.StringFixed(4),
		"adjustment":       result.Nibit.Adjustment.StringFixed(4),
		"nibit_ending":     result.Nibit.Ending.StringFixed(4),
		"locked_sales":     result.LockedSales,
		"locked_purchases": result.LockedPurchases,
		"closed_at":        result.ClosedAt,
	})
	if err == nil {
		err = e.publisher.Publish(ctx, evt)
	}
	if err != nil {
		e.logger.Warn("period close event not published",
			slog.String("company", result.Company),
			slog.String("period", result.Period.String()),
			slog.Any("error", err))
	}
}

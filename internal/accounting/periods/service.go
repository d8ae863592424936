package periods

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records administrative actions.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Service gates postings by period status and performs lock administration.
type Service struct {
	repo   Repository
	audit  AuditPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the period gate.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// IsPeriodLocked reports whether the month no longer accepts postings.
func (s *Service) IsPeriodLocked(ctx context.Context, fp FiscalPeriod, company string) (bool, error) {
	if strings.TrimSpace(company) == "" {
		return false, shared.InvalidArgument("company required")
	}
	return s.repo.IsPeriodLocked(ctx, company, fp)
}

// Lock moves an open month to LOCKED.
func (s *Service) Lock(ctx context.Context, company string, fp FiscalPeriod, actor int64) (Period, error) {
	return s.transition(ctx, company, fp, PeriodStatusLocked, actor)
}

// Unlock returns a locked month to OPEN. Closed months stay closed.
func (s *Service) Unlock(ctx context.Context, company string, fp FiscalPeriod, actor int64) (Period, error) {
	return s.transition(ctx, company, fp, PeriodStatusOpen, actor)
}

func (s *Service) transition(ctx context.Context, company string, fp FiscalPeriod, target PeriodStatus, actor int64) (Period, error) {
	if strings.TrimSpace(company) == "" {
		return Period{}, shared.InvalidArgument("company required")
	}
	var out Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetForUpdate(ctx, company, fp)
		if err != nil {
			return err
		}
		if err := ValidateTransition(p.Status, target); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, p, target, actor, s.now()); err != nil {
			return err
		}
		p.Status = target
		out = p
		return nil
	})
	if err != nil {
		return Period{}, err
	}
	s.logger.Info("period status changed", slog.String("company", company), slog.String("period", fp.String()), slog.String("status", string(target)))
	if s.audit != nil {
		_ = s.audit.Record(ctx, internalShared.AuditLog{
			ActorID:  actor,
			Action:   "period." + strings.ToLower(string(target)),
			Entity:   "accounting_period",
			EntityID: fmt.Sprintf("%s:%s", company, fp),
			At:       s.now(),
		})
	}
	return out, nil
}

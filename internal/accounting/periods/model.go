package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusLocked PeriodStatus = "LOCKED"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Period is the lock state of one company month. A month with no stored row is open.
type Period struct {
	ID       int64
	Company  string
	Fiscal   FiscalPeriod
	Status   PeriodStatus
	LockedAt *time.Time
	LockedBy *int64
	ClosedAt *time.Time
	ClosedBy *int64
}

// AcceptsPostings reports whether ledger lines may be dated in the period.
func (p Period) AcceptsPostings() bool {
	return p.Status == "" || p.Status == PeriodStatusOpen
}

var transitions = map[PeriodStatus][]PeriodStatus{
	PeriodStatusOpen:   {PeriodStatusLocked},
	PeriodStatusLocked: {PeriodStatusOpen, PeriodStatusClosed},
}

// ValidateTransition checks a status change against the period lifecycle.
func ValidateTransition(current, target PeriodStatus) error {
	if current == "" {
		current = PeriodStatusOpen
	}
	for _, allowed := range transitions[current] {
		if allowed == target {
			return nil
		}
	}
	return fmt.Errorf("%w: period %s -> %s", shared.ErrInvalidTransition, current, target)
}

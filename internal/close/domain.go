package close

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CloseInput names the company month to close.
type CloseInput struct {
	Company string
	Period  periods.FiscalPeriod
	ActorID int64
}

// Validate ensures the input is complete.
func (in CloseInput) Validate() error {
	if strings.TrimSpace(in.Company) == "" {
		return shared.InvalidArgument("close: company required")
	}
	if _, err := periods.NewFiscalPeriod(in.Period.Year, in.Period.Month); err != nil {
		return err
	}
	return nil
}

// MonthlyNibit is the chained net income roll-up of one month.
type MonthlyNibit struct {
	Company    string
	Period     periods.FiscalPeriod
	Beginning  decimal.Decimal
	NetIncome  decimal.Decimal
	Adjustment decimal.Decimal
	Ending     decimal.Decimal
	CreatedAt  time.Time
}

// NibitLine is the contribution of one top-level income statement account.
type NibitLine struct {
	RootID     int64
	RootNumber string
	RootName   string
	Amount     decimal.Decimal
}

// PeriodBalance is the closed balance of one account for one month.
type PeriodBalance struct {
	Company   string
	Period    periods.FiscalPeriod
	AccountID int64
	Beginning decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Ending    decimal.Decimal
	Closed    bool
	ClosedAt  time.Time
}

// SubAccountKey identifies one sub-ledger balance row within a month.
type SubAccountKey struct {
	AccountID int64
	Type      shared.SubAccountType
	ID        string
}

// SubAccountPeriodBalance is PeriodBalance keyed additionally by sub-account.
type SubAccountPeriodBalance struct {
	PeriodBalance
	SubType shared.SubAccountType
	SubID   string
	SubName string
}

// Key returns the identity of the row within its month.
func (b SubAccountPeriodBalance) Key() SubAccountKey {
	return SubAccountKey{AccountID: b.AccountID, Type: b.SubType, ID: b.SubID}
}

// DeliveryKind separates sales deliveries from purchase receipts.
type DeliveryKind string

const (
	DeliverySales    DeliveryKind = "SALES"
	DeliveryPurchase DeliveryKind = "PURCHASE"
)

// Delivery is the close view of a delivery record.
type Delivery struct {
	ID             uuid.UUID
	Company        string
	Number         string
	Kind           DeliveryKind
	Date           time.Time
	OrderReference string
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	ReceivingRef   string
	Voided         bool
	Cancelled      bool
}

// Unlifted reports a live delivery that never got its receiving confirmation.
func (d Delivery) Unlifted() bool {
	return !d.Voided && !d.Cancelled && strings.TrimSpace(d.ReceivingRef) == ""
}

// UnresolvedPrice reports a delivered quantity whose order price is still a placeholder.
func (d Delivery) UnresolvedPrice() bool {
	return !d.Voided && !d.Cancelled && d.Quantity.IsPositive() && d.UnitPrice.IsZero()
}

// LockedRecord queues a delivery for a price true-up after the close.
type LockedRecord struct {
	Kind       DeliveryKind
	Company    string
	DeliveryID uuid.UUID
	Reference  string
	Period     periods.FiscalPeriod
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	QueuedAt   time.Time
}

// CloseResult summarises a committed close.
type CloseResult struct {
	Company          string
	Period           periods.FiscalPeriod
	Nibit            MonthlyNibit
	NibitLines       []NibitLine
	NibitCreated     bool
	Balances         int
	SubBalances      int
	SnapshotsCreated bool
	LockedSales      int
	LockedPurchases  int
	ClosedAt         time.Time
}

var errNotFound = errors.New("close: not found")

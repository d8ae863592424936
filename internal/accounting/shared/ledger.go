package shared

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Module tags the business area a ledger line originates from.
type Module string

const (
	ModuleSales        Module = "Sales"
	ModuleCollection   Module = "Collection"
	ModuleDisbursement Module = "Disbursement"
	ModulePurchases    Module = "Purchases"
	ModuleInventory    Module = "Inventory"
	ModuleAdjustment   Module = "Adjustment"
	ModuleGeneral      Module = "General Journal"
	// ModulePriorPeriod lines feed the NIBIT prior-period adjustment instead of net income.
	ModulePriorPeriod Module = "Prior Period"
)

// SubAccountType enumerates sub-ledger dimensions.
type SubAccountType string

const (
	SubAccountCustomer SubAccountType = "CUSTOMER"
	SubAccountSupplier SubAccountType = "SUPPLIER"
	SubAccountEmployee SubAccountType = "EMPLOYEE"
	SubAccountBank     SubAccountType = "BANK"
	SubAccountCompany  SubAccountType = "COMPANY"
)

// SubAccount tags a control-account line for drill-down reporting.
type SubAccount struct {
	Type SubAccountType `validate:"required"`
	ID   string         `validate:"required"`
	Name string
}

// IsZero reports whether no sub-account is attached.
func (s *SubAccount) IsZero() bool {
	return s == nil || s.ID == ""
}

// LedgerEntry is one immutable general ledger line.
type LedgerEntry struct {
	ID            int64
	BatchID       uuid.UUID
	ReversalOf    *uuid.UUID
	Date          time.Time
	Reference     string
	Description   string
	AccountID     int64
	AccountNumber string
	AccountName   string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	CompanyCode   string
	CreatedBy     int64
	CreatedAt     time.Time
	SubAccount    *SubAccount
	Module        Module
	Posted        bool
}

// Totals sums debits and credits of a batch.
func Totals(entries []LedgerEntry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		debit = debit.Add(e.Debit)
		credit = credit.Add(e.Credit)
	}
	return debit, credit
}

// CheckBalanced returns an *UnbalancedError unless Σdebit equals Σcredit exactly.
func CheckBalanced(reference string, entries []LedgerEntry) error {
	debit, credit := Totals(entries)
	if !debit.Equal(credit) {
		return &UnbalancedError{Reference: reference, Debit: debit, Credit: credit}
	}
	return nil
}

// BookType names a statutory subsidiary book.
type BookType string

const (
	BookSales       BookType = "SALES_BOOK"
	BookCashReceipt BookType = "CASH_RECEIPT_BOOK"
	BookJournal     BookType = "JOURNAL_BOOK"
)

// BookForModule picks the subsidiary book a module's lines are projected into.
func BookForModule(m Module) BookType {
	switch m {
	case ModuleSales:
		return BookSales
	case ModuleCollection:
		return BookCashReceipt
	default:
		return BookJournal
	}
}

// SubsidiaryBookRow is the human-readable projection of one ledger line.
type SubsidiaryBookRow struct {
	Book          BookType
	BatchID       uuid.UUID
	Date          time.Time
	Reference     string
	CompanyCode   string
	AccountNumber string
	AccountName   string
	Particulars   string
	Debit         decimal.Decimal
	Credit        decimal.Decimal
	CreatedAt     time.Time
}

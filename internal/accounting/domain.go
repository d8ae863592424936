package accounting

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DocumentStatus enumerates the lifecycle of a source document.
type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "PENDING"
	DocumentPosted    DocumentStatus = "POSTED"
	DocumentCancelled DocumentStatus = "CANCELLED"
	DocumentVoided    DocumentStatus = "VOIDED"
)

var documentTransitions = map[DocumentStatus][]DocumentStatus{
	DocumentPending: {DocumentPosted, DocumentCancelled},
	DocumentPosted:  {DocumentVoided},
}

// ValidateDocumentTransition checks a status change against the document lifecycle.
func ValidateDocumentTransition(current, target DocumentStatus) error {
	for _, allowed := range documentTransitions[current] {
		if allowed == target {
			return nil
		}
	}
	return fmt.Errorf("%w: document %s -> %s", shared.ErrInvalidTransition, current, target)
}

// Document is the posting view of a business document.
type Document struct {
	ID      uuid.UUID
	Company string
	Type    sequence.DocumentType
	Variant sequence.Variant
	Number  string
	Status  DocumentStatus
	Date    time.Time
}

// PaymentStatus summarises an invoice's outstanding balance.
type PaymentStatus string

const (
	PaymentUnpaid        PaymentStatus = "UNPAID"
	PaymentPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentPaid          PaymentStatus = "PAID"
	PaymentOverpaid      PaymentStatus = "OVERPAID"
)

// PaymentStatusFor derives the status from the invoice total and what remains.
func PaymentStatusFor(total, outstanding decimal.Decimal) PaymentStatus {
	switch {
	case outstanding.IsNegative():
		return PaymentOverpaid
	case outstanding.IsZero():
		return PaymentPaid
	case outstanding.GreaterThanOrEqual(total):
		return PaymentUnpaid
	default:
		return PaymentPartiallyPaid
	}
}

// Invoice is a receivable that collections are applied against.
type Invoice struct {
	ID          uuid.UUID
	Company     string
	Number      string
	CustomerID  string
	Total       decimal.Decimal
	Outstanding decimal.Decimal
	Status      PaymentStatus
}

// Application requests that part of a collection settle an invoice.
type Application struct {
	InvoiceID uuid.UUID
	Amount    decimal.Decimal
}

// AppliedInvoice is a persisted application.
type AppliedInvoice struct {
	ID         int64
	BatchID    uuid.UUID
	InvoiceID  uuid.UUID
	Reference  string
	Amount     decimal.Decimal
	AppliedAt  time.Time
	ReversedAt *time.Time
}

// PostingRequest posts one pending document.
//
// Event supplies the amounts and tax flags; its company, reference and
// (when empty) date are taken from the stored document.
type PostingRequest struct {
	DocumentID   uuid.UUID
	Event        journals.Event
	Applications []Application
	ActorID      int64
}

// PostingResult describes a committed batch.
type PostingResult struct {
	Document Document
	BatchID  uuid.UUID
	Entries  []shared.LedgerEntry
	Books    []shared.SubsidiaryBookRow
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	Company   string
	Reference string
	Reason    string
	Date      time.Time
	ActorID   int64
}

// ReverseResult describes the offsetting batch.
type ReverseResult struct {
	Document Document
	BatchID  uuid.UUID
	Entries  []shared.LedgerEntry
	Restored []AppliedInvoice
}

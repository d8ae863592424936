package journals

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/tax"
)

// Kind enumerates the business events the builder understands.
type Kind string

const (
	KindDocumentedSale       Kind = "DOCUMENTED_SALE"
	KindServiceSale          Kind = "SERVICE_SALE"
	KindCollection           Kind = "COLLECTION"
	KindPurchaseReceipt      Kind = "PURCHASE_RECEIPT"
	KindDelivery             Kind = "DELIVERY"
	KindInTransitAccrual     Kind = "IN_TRANSIT_ACCRUAL"
	KindInTransitReversal    Kind = "IN_TRANSIT_REVERSAL"
	KindPriceAdjustment      Kind = "PRICE_ADJUSTMENT"
	KindCommissionAdjustment Kind = "COMMISSION_ADJUSTMENT"
	KindFreightAdjustment    Kind = "FREIGHT_ADJUSTMENT"
	KindManual               Kind = "MANUAL"
)

// Event carries the document fields a line plan reads.
//
// Amount is the gross amount for sales and purchases, the cash received for
// collections and the accrued amount for in-transit events. Adjustments use
// OldAmount and NewAmount instead.
type Event struct {
	Kind        Kind      `validate:"required"`
	Company     string    `validate:"required"`
	Reference   string    `validate:"required"`
	Date        time.Time `validate:"required"`
	Description string
	ActorID     int64

	Counterparty *shared.SubAccount
	Bank         *shared.SubAccount

	VatType  tax.VatType
	Amount   decimal.Decimal  `validate:"gte=0"`
	TaxBase  *decimal.Decimal `validate:"omitempty,gte=0"`
	EwtRate  decimal.Decimal  `validate:"gte=0"`
	WvatRate decimal.Decimal  `validate:"gte=0"`
	COD      bool
	// WithholdingBooked marks a collection against an invoice that already
	// recorded its withholding receivables.
	WithholdingBooked bool

	Quantity decimal.Decimal `validate:"gte=0"`
	UnitCost decimal.Decimal `validate:"gte=0"`

	OldAmount decimal.Decimal `validate:"gte=0"`
	NewAmount decimal.Decimal `validate:"gte=0"`

	// AccrualDate dates the accrual an in-transit reversal offsets.
	AccrualDate time.Time

	Module shared.Module
	Lines  []ManualLine `validate:"dive"`
}

// ManualLine is one explicit line of a journal voucher.
type ManualLine struct {
	AccountNumber string          `validate:"required"`
	Debit         decimal.Decimal `validate:"gte=0"`
	Credit        decimal.Decimal `validate:"gte=0"`
	Description   string
	SubAccount    *shared.SubAccount
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Validate checks structural requirements of the event.
func (e Event) Validate() error {
	if err := validate.Struct(e); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return shared.InvalidArgument("event %s: %s", e.Reference, strings.Join(msgs, "; "))
		}
		return shared.InvalidArgument("event %s: %v", e.Reference, err)
	}
	if e.VatType != "" && !e.VatType.Valid() {
		return shared.InvalidArgument("event %s: unknown vat type %q", e.Reference, e.VatType)
	}
	for i, l := range e.Lines {
		if l.Debit.IsPositive() && l.Credit.IsPositive() {
			return shared.InvalidArgument("event %s: line %d cannot be both debit and credit", e.Reference, i)
		}
	}
	return nil
}

// DefaultDate is the booking date of an event that carries none: the first
// day of the month after AccrualDate for in-transit reversals, fallback for
// everything else.
func (e Event) DefaultDate(fallback time.Time) time.Time {
	if e.Kind == KindInTransitReversal && !e.AccrualDate.IsZero() {
		return firstOfNextMonth(e.AccrualDate)
	}
	return fallback
}

func firstOfNextMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m+1, 1, 0, 0, 0, 0, t.Location())
}

// Package tax converts gross amounts into VAT and withholding components.
//
// All results are rounded to Precision fractional digits so that the same
// inputs always decompose to the same ledger amounts.
package tax

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Precision is the number of fractional digits kept by every computation.
const Precision int32 = 4

var (
	// VatRate is the statutory VAT rate.
	VatRate    = decimal.RequireFromString("0.12")
	vatDivisor = decimal.RequireFromString("1.12")
)

// VatType classifies a document's VAT treatment.
type VatType string

const (
	Vatable   VatType = "VATABLE"
	Exempt    VatType = "EXEMPT"
	ZeroRated VatType = "ZERO_RATED"
)

// Valid reports whether t is a known VAT type.
func (t VatType) Valid() bool {
	switch t {
	case Vatable, Exempt, ZeroRated:
		return true
	}
	return false
}

// Round applies the shared rounding policy.
func Round(v decimal.Decimal) decimal.Decimal {
	return v.Round(Precision)
}

// NetOfVat strips VAT from a VAT-inclusive gross amount.
func NetOfVat(gross decimal.Decimal) decimal.Decimal {
	return Round(gross.DivRound(vatDivisor, Precision+4))
}

// VatAmount computes VAT on a net amount.
func VatAmount(net decimal.Decimal) decimal.Decimal {
	return Round(net.Mul(VatRate))
}

// EwtAmount computes a withholding amount for a counterparty rate.
func EwtAmount(base, rate decimal.Decimal) (decimal.Decimal, error) {
	if rate.IsNegative() {
		return decimal.Zero, shared.InvalidArgument("withholding rate %s is negative", rate)
	}
	return Round(base.Mul(rate)), nil
}

// NetOfEwt subtracts the total withheld from a gross amount.
func NetOfEwt(gross, totalWithholding decimal.Decimal) decimal.Decimal {
	return Round(gross.Sub(totalWithholding))
}

// Breakdown is a gross amount split into its net and VAT parts.
type Breakdown struct {
	Gross decimal.Decimal
	Net   decimal.Decimal
	Vat   decimal.Decimal
}

// Split decomposes gross so that Net+Vat equals Gross exactly.
func Split(gross decimal.Decimal, vatType VatType) Breakdown {
	gross = Round(gross)
	if vatType != Vatable {
		return Breakdown{Gross: gross, Net: gross, Vat: decimal.Zero}
	}
	net := NetOfVat(gross)
	return Breakdown{Gross: gross, Net: net, Vat: gross.Sub(net)}
}

// Withholding computes EWT and WVAT on the same base.
func Withholding(base, ewtRate, wvatRate decimal.Decimal) (ewt, wvat decimal.Decimal, err error) {
	if ewt, err = EwtAmount(base, ewtRate); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if wvat, err = EwtAmount(base, wvatRate); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return ewt, wvat, nil
}

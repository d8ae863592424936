package periods

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// FiscalPeriod identifies one calendar month of a company's books.
type FiscalPeriod struct {
	Year  int
	Month time.Month
}

// NewFiscalPeriod validates year and month.
func NewFiscalPeriod(year int, month time.Month) (FiscalPeriod, error) {
	if year < 1900 || year > 9999 {
		return FiscalPeriod{}, shared.InvalidArgument("fiscal year %d out of range", year)
	}
	if month < time.January || month > time.December {
		return FiscalPeriod{}, shared.InvalidArgument("fiscal month %d out of range", month)
	}
	return FiscalPeriod{Year: year, Month: month}, nil
}

// ParseFiscalPeriod parses the "2006-01" form.
func ParseFiscalPeriod(s string) (FiscalPeriod, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return FiscalPeriod{}, shared.InvalidArgument("fiscal period %q: expected YYYY-MM", s)
	}
	return NewFiscalPeriod(t.Year(), t.Month())
}

// Of returns the period containing t, read in t's location.
func Of(t time.Time) FiscalPeriod {
	return FiscalPeriod{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the period in loc.
func (p FiscalPeriod) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
}

// End returns the first instant of the following period; the range is half open.
func (p FiscalPeriod) End(loc *time.Location) time.Time {
	return p.Next().Start(loc)
}

// Next returns the following month.
func (p FiscalPeriod) Next() FiscalPeriod {
	if p.Month == time.December {
		return FiscalPeriod{Year: p.Year + 1, Month: time.January}
	}
	return FiscalPeriod{Year: p.Year, Month: p.Month + 1}
}

// Previous returns the preceding month.
func (p FiscalPeriod) Previous() FiscalPeriod {
	if p.Month == time.January {
		return FiscalPeriod{Year: p.Year - 1, Month: time.December}
	}
	return FiscalPeriod{Year: p.Year, Month: p.Month - 1}
}

// Before reports whether p precedes other.
func (p FiscalPeriod) Before(other FiscalPeriod) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Contains reports whether the calendar date of t falls in p.
func (p FiscalPeriod) Contains(t time.Time) bool {
	return t.Year() == p.Year && t.Month() == p.Month
}

func (p FiscalPeriod) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

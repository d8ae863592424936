// Package sequence issues per-company document numbers.
//
// Numbers are assigned at read time, so every call must run inside the
// transaction that persists the numbered document. Store implementations
// serialise a series for the rest of that transaction in LockSeries.
package sequence

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// Store is the transactional view of issued numbers.
type Store interface {
	LockSeries(ctx context.Context, company string, docType DocumentType, variant Variant) error
	// LastNumber returns the greatest issued number by CompareNumbers ordering.
	LastNumber(ctx context.Context, company string, docType DocumentType, variant Variant) (string, bool, error)
	ReserveNumber(ctx context.Context, r Reservation) error
}

// Reservation records a number issued to a source document.
type Reservation struct {
	Company  string
	DocType  DocumentType
	Variant  Variant
	Number   string
	SourceID uuid.UUID
}

// Generator computes the next number of a series.
type Generator struct {
	registry *Registry
}

// NewGenerator constructs a Generator; nil registry selects DefaultRegistry.
func NewGenerator(registry *Registry) *Generator {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &Generator{registry: registry}
}

// NextNumber returns the number following the last issued one, or the seed.
func (g *Generator) NextNumber(ctx context.Context, store Store, company string, docType DocumentType, variant Variant) (string, error) {
	if strings.TrimSpace(company) == "" {
		return "", shared.InvalidArgument("company required")
	}
	format, err := g.registry.Lookup(docType, variant)
	if err != nil {
		return "", err
	}
	if err := store.LockSeries(ctx, company, docType, variant); err != nil {
		return "", err
	}
	last, ok, err := store.LastNumber(ctx, company, docType, variant)
	if err != nil {
		return "", err
	}
	if !ok {
		return format.Seed(), nil
	}
	return format.Next(last)
}

// Issue computes the next number and reserves it for sourceID.
func (g *Generator) Issue(ctx context.Context, store Store, company string, docType DocumentType, variant Variant, sourceID uuid.UUID) (string, error) {
	number, err := g.NextNumber(ctx, store, company, docType, variant)
	if err != nil {
		return "", err
	}
	err = store.ReserveNumber(ctx, Reservation{
		Company:  company,
		DocType:  docType,
		Variant:  variant,
		Number:   number,
		SourceID: sourceID,
	})
	if err != nil {
		return "", err
	}
	return number, nil
}

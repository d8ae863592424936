package sequence

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DocumentType enumerates numbered business documents.
type DocumentType string

const (
	CollectionReceipt DocumentType = "CollectionReceipt"
	SalesInvoice      DocumentType = "SalesInvoice"
	ServiceInvoice    DocumentType = "ServiceInvoice"
	DeliveryReceipt   DocumentType = "DeliveryReceipt"
	PurchaseReceipt   DocumentType = "PurchaseReceipt"
	JournalVoucher    DocumentType = "JournalVoucher"
)

// Variant selects one of the parallel number series of a document type.
type Variant string

const (
	Documented   Variant = "Documented"
	Undocumented Variant = "Undocumented"
)

// Format describes how numbers of a series are rendered.
type Format struct {
	Prefix string
	Digits int
}

// Seed is the first number issued in the series.
func (f Format) Seed() string {
	return f.render(1)
}

// Width is the total length of a rendered number.
func (f Format) Width() int {
	return len(f.Prefix) + f.Digits
}

func (f Format) render(n uint64) string {
	return f.Prefix + fmt.Sprintf("%0*d", f.Digits, n)
}

// Next increments last, keeping its prefix and digit width.
func (f Format) Next(last string) (string, error) {
	if !strings.HasPrefix(last, f.Prefix) {
		return "", shared.InvalidArgument("number %q does not carry prefix %q", last, f.Prefix)
	}
	body := last[len(f.Prefix):]
	if body == "" {
		return "", shared.InvalidArgument("number %q has no numeric body", last)
	}
	for _, r := range body {
		if r < '0' || r > '9' {
			return "", shared.InvalidArgument("number %q has a non-numeric body", last)
		}
	}
	n, err := strconv.ParseUint(body, 10, 64)
	if err != nil {
		return "", shared.InvalidArgument("number %q: %v", last, err)
	}
	next := strconv.FormatUint(n+1, 10)
	if len(next) > len(body) {
		return "", fmt.Errorf("%w: %s after %s", shared.ErrSequenceExhausted, f.Prefix, last)
	}
	return f.Prefix + strings.Repeat("0", len(body)-len(next)) + next, nil
}

type seriesKey struct {
	docType DocumentType
	variant Variant
}

// Registry maps (document type, variant) to number formats.
type Registry struct {
	formats map[seriesKey]Format
}

// NewRegistry builds a registry from explicit formats.
func NewRegistry() *Registry {
	return &Registry{formats: make(map[seriesKey]Format)}
}

// Register adds or replaces a series format.
func (r *Registry) Register(docType DocumentType, variant Variant, f Format) {
	r.formats[seriesKey{docType: docType, variant: variant}] = f
}

// Lookup returns the format of a series.
func (r *Registry) Lookup(docType DocumentType, variant Variant) (Format, error) {
	f, ok := r.formats[seriesKey{docType: docType, variant: variant}]
	if !ok {
		return Format{}, fmt.Errorf("%w: %s/%s", shared.ErrInvalidDocumentVariant, docType, variant)
	}
	return f, nil
}

// DefaultRegistry returns the series used across the group's companies:
// two-letter prefix with ten digits for documented series and a U-suffixed
// prefix with nine digits for undocumented ones.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for docType, prefix := range map[DocumentType]string{
		CollectionReceipt: "CR",
		SalesInvoice:      "SI",
		ServiceInvoice:    "SV",
		DeliveryReceipt:   "DR",
		PurchaseReceipt:   "RR",
		JournalVoucher:    "JV",
	} {
		r.Register(docType, Documented, Format{Prefix: prefix, Digits: 10})
		r.Register(docType, Undocumented, Format{Prefix: prefix + "U", Digits: 9})
	}
	return r
}

// CompareNumbers orders document numbers by length first, then lexicographically.
func CompareNumbers(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
)

// SequencePreviewer reports the next number of a series without reserving it.
type SequencePreviewer interface {
	Preview(ctx context.Context, company string, docType sequence.DocumentType, variant sequence.Variant) (string, error)
}

// PreviewFunc adapts a function to SequencePreviewer.
type PreviewFunc func(ctx context.Context, company string, docType sequence.DocumentType, variant sequence.Variant) (string, error)

// Preview calls f.
func (f PreviewFunc) Preview(ctx context.Context, company string, docType sequence.DocumentType, variant sequence.Variant) (string, error) {
	return f(ctx, company, docType, variant)
}

// SequenceOptions defines flags for sequence next.
type SequenceOptions struct {
	Company string
	DocType string
	Variant string
	Stdout  io.Writer
	Stderr  io.Writer
}

// SequenceNextCommand prints the number the next posting of a series would get.
func SequenceNextCommand(ctx context.Context, previewer SequencePreviewer, opts SequenceOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if opts.Variant == "" {
		opts.Variant = string(sequence.Documented)
	}
	number, err := previewer.Preview(ctx, opts.Company, sequence.DocumentType(opts.DocType), sequence.Variant(opts.Variant))
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "sequence next: %v\n", err)
		return exitCode(err)
	}
	_, _ = fmt.Fprintln(opts.Stdout, number)
	return 0
}

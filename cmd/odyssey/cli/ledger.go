package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// Poster books and reverses documents.
type Poster interface {
	Post(ctx context.Context, req accounting.PostingRequest) (accounting.PostingResult, error)
	Reverse(ctx context.Context, in accounting.ReverseInput) (accounting.ReverseResult, error)
}

// LedgerCLI posts documents from the command line.
type LedgerCLI struct {
	poster Poster
	queue  JobQueue
}

// NewLedgerCLI constructs the helper. queue may be nil when --async is unused.
func NewLedgerCLI(poster Poster, queue JobQueue) *LedgerCLI {
	return &LedgerCLI{poster: poster, queue: queue}
}

// PostOptions defines flags for ledger post. Input holds a JSON posting
// request in the same shape as the post_document task payload.
type PostOptions struct {
	Input  io.Reader
	Async  bool
	Stdout io.Writer
	Stderr io.Writer
}

// PostCommand posts one document.
func (c *LedgerCLI) PostCommand(ctx context.Context, opts PostOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	if opts.Input == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger post: --file is required")
		return exitUsage
	}
	var payload jobs.PostDocumentPayload
	if err := json.NewDecoder(opts.Input).Decode(&payload); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger post: decode request: %v\n", err)
		return exitUsage
	}

	if opts.Async {
		if c.queue == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "ledger post: job queue not configured")
			return exitError
		}
		info, err := c.queue.EnqueuePostDocument(ctx, payload)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger post: %v\n", err)
			return exitCode(err)
		}
		_, _ = fmt.Fprintf(opts.Stdout, "posting of %s queued as %s\n", payload.DocumentID, info.ID)
		return 0
	}

	result, err := c.poster.Post(ctx, accounting.PostingRequest{
		DocumentID:   payload.DocumentID,
		Event:        payload.Event,
		Applications: payload.Applications,
		ActorID:      payload.ActorID,
	})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger post: %v\n", err)
		return exitCode(err)
	}
	renderEntries(opts.Stdout, result.Document.Number, result.Entries)
	return 0
}

// ReverseOptions defines flags for ledger reverse.
type ReverseOptions struct {
	Company   string
	Reference string
	Reason    string
	Date      string
	ActorID   int64
	Stdout    io.Writer
	Stderr    io.Writer
}

// ReverseCommand posts the offsetting batch of a document.
func (c *LedgerCLI) ReverseCommand(ctx context.Context, opts ReverseOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	in := accounting.ReverseInput{
		Company:   strings.TrimSpace(opts.Company),
		Reference: strings.TrimSpace(opts.Reference),
		Reason:    opts.Reason,
		ActorID:   opts.ActorID,
	}
	if in.Company == "" || in.Reference == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger reverse: --company and --reference are required")
		return exitUsage
	}
	if opts.Date != "" {
		date, err := time.Parse("2006-01-02", opts.Date)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger reverse: invalid date %q (expected YYYY-MM-DD)\n", opts.Date)
			return exitUsage
		}
		in.Date = date
	}
	result, err := c.poster.Reverse(ctx, in)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger reverse: %v\n", err)
		return exitCode(err)
	}
	renderEntries(opts.Stdout, result.Document.Number, result.Entries)
	if n := len(result.Restored); n > 0 {
		printer().Fprintf(opts.Stdout, "%d invoice applications restored\n", n)
	}
	return 0
}

func renderEntries(w io.Writer, reference string, entries []shared.LedgerEntry) {
	p := printer()
	p.Fprintf(w, "%s: %d lines\n", reference, len(entries))
	for _, e := range entries {
		p.Fprintf(w, "  %-8s %18s %18s  %s\n", e.AccountNumber, money(p, e.Debit), money(p, e.Credit), e.Description)
	}
}

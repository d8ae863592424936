package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	ledgerclose "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// PeriodAdmin toggles period locks.
type PeriodAdmin interface {
	Lock(ctx context.Context, company string, fp periods.FiscalPeriod, actor int64) (periods.Period, error)
	Unlock(ctx context.Context, company string, fp periods.FiscalPeriod, actor int64) (periods.Period, error)
}

// Closer runs a month-end close.
type Closer interface {
	Close(ctx context.Context, in ledgerclose.CloseInput) (ledgerclose.CloseResult, error)
}

// PeriodCLI exposes period administration.
type PeriodCLI struct {
	admin  PeriodAdmin
	closer Closer
	queue  JobQueue
}

// NewPeriodCLI constructs the helper. queue may be nil when --async is unused.
func NewPeriodCLI(admin PeriodAdmin, closer Closer, queue JobQueue) *PeriodCLI {
	return &PeriodCLI{admin: admin, closer: closer, queue: queue}
}

// PeriodOptions defines flags shared by the period commands.
type PeriodOptions struct {
	Company    string
	Period     string
	ActorID    int64
	Async      bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o PeriodOptions) parse(command string) (string, periods.FiscalPeriod, error) {
	company := strings.TrimSpace(o.Company)
	if company == "" {
		return "", periods.FiscalPeriod{}, shared.InvalidArgument("%s: --company is required", command)
	}
	fp, err := periods.ParseFiscalPeriod(strings.TrimSpace(o.Period))
	if err != nil {
		return "", periods.FiscalPeriod{}, fmt.Errorf("%s: %w", command, err)
	}
	return company, fp, nil
}

// LockCommand moves an open month to LOCKED.
func (c *PeriodCLI) LockCommand(ctx context.Context, opts PeriodOptions) int {
	return c.toggle(ctx, "period lock", opts, c.admin.Lock)
}

// UnlockCommand returns a locked month to OPEN.
func (c *PeriodCLI) UnlockCommand(ctx context.Context, opts PeriodOptions) int {
	return c.toggle(ctx, "period unlock", opts, c.admin.Unlock)
}

func (c *PeriodCLI) toggle(ctx context.Context, command string, opts PeriodOptions,
	fn func(context.Context, string, periods.FiscalPeriod, int64) (periods.Period, error)) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	company, fp, err := opts.parse(command)
	if err != nil {
		_, _ = fmt.Fprintln(opts.Stderr, err)
		return exitUsage
	}
	p, err := fn(ctx, company, fp, opts.ActorID)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "%s: %v\n", command, err)
		return exitCode(err)
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%s %s is %s\n", p.Company, p.Fiscal, p.Status)
	return 0
}

// CloseSummary is the JSON rendering of a completed close.
type CloseSummary struct {
	Company         string          `json:"company"`
	Period          string          `json:"period"`
	Beginning       string          `json:"nibit_beginning"`
	NetIncome       string          `json:"net_income"`
	Adjustment      string          `json:"adjustment"`
	Ending          string          `json:"nibit_ending"`
	NibitCreated    bool            `json:"nibit_created"`
	Lines           []CloseNibitRow `json:"nibit_lines,omitempty"`
	Balances        int             `json:"balances"`
	SubBalances     int             `json:"sub_account_balances"`
	LockedSales     int             `json:"locked_sales"`
	LockedPurchases int             `json:"locked_purchases"`
	ClosedAt        string          `json:"closed_at"`
}

// CloseNibitRow is one income-statement root in the summary.
type CloseNibitRow struct {
	Number string `json:"number"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

// CloseCommand closes a locked month, or queues the close with --async.
func (c *PeriodCLI) CloseCommand(ctx context.Context, opts PeriodOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	company, fp, err := opts.parse("period close")
	if err != nil {
		_, _ = fmt.Fprintln(opts.Stderr, err)
		return exitUsage
	}

	if opts.Async {
		if c.queue == nil {
			_, _ = fmt.Fprintln(opts.Stderr, "period close: job queue not configured")
			return exitError
		}
		info, err := c.queue.EnqueuePeriodClose(ctx, jobs.PeriodClosePayload{Company: company, Period: fp.String(), ActorID: opts.ActorID})
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "period close: %v\n", err)
			return exitCode(err)
		}
		_, _ = fmt.Fprintf(opts.Stdout, "close of %s %s queued as %s\n", company, fp, info.ID)
		return 0
	}

	result, err := c.closer.Close(ctx, ledgerclose.CloseInput{Company: company, Period: fp, ActorID: opts.ActorID})
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "period close: %v\n", err)
		var pre *shared.PreconditionError
		if errors.As(err, &pre) {
			for _, ref := range pre.Blocking {
				_, _ = fmt.Fprintf(opts.Stderr, "  blocking: %s\n", ref)
			}
		}
		return exitCode(err)
	}

	summary := summarise(result)
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "period close: encode json: %v\n", err)
			return exitError
		}
		return 0
	}
	renderClose(opts.Stdout, result)
	return 0
}

func summarise(r ledgerclose.CloseResult) CloseSummary {
	s := CloseSummary{
		Company:         r.Company,
		Period:          r.Period.String(),
		Beginning:       r.Nibit.Beginning.StringFixed(4),
		NetIncome:       r.Nibit.NetIncome.StringFixed(4),
		Adjustment:      r.Nibit.Adjustment.StringFixed(4),
		Ending:          r.Nibit.Ending.StringFixed(4),
		NibitCreated:    r.NibitCreated,
		Balances:        r.Balances,
		SubBalances:     r.SubBalances,
		LockedSales:     r.LockedSales,
		LockedPurchases: r.LockedPurchases,
		ClosedAt:        r.ClosedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for _, l := range r.NibitLines {
		s.Lines = append(s.Lines, CloseNibitRow{Number: l.RootNumber, Name: l.RootName, Amount: l.Amount.StringFixed(4)})
	}
	return s
}

func renderClose(w io.Writer, r ledgerclose.CloseResult) {
	p := printer()
	p.Fprintf(w, "Closed %s %s at %s\n", r.Company, r.Period, r.ClosedAt.Format("2006-01-02 15:04"))
	if r.NibitCreated {
		for _, l := range r.NibitLines {
			p.Fprintf(w, "  %-6s %-32s %18s\n", l.RootNumber, l.RootName, money(p, l.Amount))
		}
	} else {
		p.Fprintf(w, "  NIBIT already recorded\n")
	}
	p.Fprintf(w, "  %-39s %18s\n", "Beginning NIBIT", money(p, r.Nibit.Beginning))
	p.Fprintf(w, "  %-39s %18s\n", "Net income", money(p, r.Nibit.NetIncome))
	p.Fprintf(w, "  %-39s %18s\n", "Prior period adjustment", money(p, r.Nibit.Adjustment))
	p.Fprintf(w, "  %-39s %18s\n", "Ending NIBIT", money(p, r.Nibit.Ending))
	if r.SnapshotsCreated {
		p.Fprintf(w, "  %d account and %d sub-account balances snapshotted\n", r.Balances, r.SubBalances)
	} else {
		p.Fprintf(w, "  balance snapshots already recorded\n")
	}
	p.Fprintf(w, "  %d sales and %d purchase deliveries locked for repricing\n", r.LockedSales, r.LockedPurchases)
}

// money groups thousands for display; stored amounts keep four decimals.
func money(p *message.Printer, v decimal.Decimal) string {
	return p.Sprintf("%.2f", v.Round(2).InexactFloat64())
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
)

// TrialBalanceSource builds the trial balance of a closed month.
type TrialBalanceSource interface {
	TrialBalance(ctx context.Context, company string, fp periods.FiscalPeriod) (reports.TrialBalance, error)
}

// TrialBalanceCommand prints the snapshot written by the month-end close.
func TrialBalanceCommand(ctx context.Context, src TrialBalanceSource, opts PeriodOptions) int {
	opts.Stdout, opts.Stderr = writers(opts.Stdout, opts.Stderr)
	company, fp, err := opts.parse("ledger trial-balance")
	if err != nil {
		_, _ = fmt.Fprintln(opts.Stderr, err)
		return exitUsage
	}
	tb, err := src.TrialBalance(ctx, company, fp)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger trial-balance: %v\n", err)
		return exitCode(err)
	}
	if len(tb.Groups) == 0 {
		_, _ = fmt.Fprintf(opts.Stderr, "ledger trial-balance: %s %s has no closing snapshot\n", company, fp)
		return exitPrecondition
	}
	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(tb); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "ledger trial-balance: encode json: %v\n", err)
			return exitError
		}
		return 0
	}

	p := printer()
	p.Fprintf(opts.Stdout, "Trial balance %s %s\n", tb.Company, tb.Period)
	for _, g := range tb.Groups {
		p.Fprintf(opts.Stdout, "%-6s %s\n", g.RootNumber, g.RootName)
		for _, a := range g.Accounts {
			p.Fprintf(opts.Stdout, "  %-6s %-40s %16s %16s %16s %16s\n", a.Number, a.Name,
				money(p, a.Beginning), money(p, a.Debit), money(p, a.Credit), money(p, a.Ending))
		}
	}
	p.Fprintf(opts.Stdout, "%-49s %16s %16s %16s\n", "Total", "", money(p, tb.TotalDebit), money(p, tb.TotalCredit))
	if !tb.Balanced() {
		_, _ = fmt.Fprintln(opts.Stderr, "ledger trial-balance: debits and credits differ")
		return exitPrecondition
	}
	return 0
}

// Package reports renders ledger snapshots for operators.
package reports

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// AccountBalance is one account's closed month figures.
type AccountBalance struct {
	AccountID int64
	Beginning decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Ending    decimal.Decimal
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Number    string
	Name      string
	Normal    accounts.NormalBalance
	Beginning decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Ending    decimal.Decimal
}

// TrialBalanceGroup aggregates the accounts under one root.
type TrialBalanceGroup struct {
	RootNumber string
	RootName   string
	Accounts   []TrialBalanceAccount
	Debit      decimal.Decimal
	Credit     decimal.Decimal
}

// TrialBalance lists a closed month grouped by root account.
type TrialBalance struct {
	Company     string
	Period      periods.FiscalPeriod
	Groups      []TrialBalanceGroup
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// Balanced reports whether the month's debits equal its credits.
func (tb TrialBalance) Balanced() bool {
	return tb.TotalDebit.Equal(tb.TotalCredit)
}

// BuildTrialBalance groups balances by the root of each account. Accounts
// without movement or balance are left out.
func BuildTrialBalance(catalog *accounts.Catalog, company string, fp periods.FiscalPeriod, balances []AccountBalance) (TrialBalance, error) {
	tb := TrialBalance{Company: company, Period: fp, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	groups := make(map[int64]*TrialBalanceGroup)
	for _, b := range balances {
		if b.Beginning.IsZero() && b.Debit.IsZero() && b.Credit.IsZero() && b.Ending.IsZero() {
			continue
		}
		acct, ok := catalog.ByID(b.AccountID)
		if !ok {
			return TrialBalance{}, fmt.Errorf("reports: account %d not in chart of %s", b.AccountID, company)
		}
		root, err := catalog.Root(b.AccountID)
		if err != nil {
			return TrialBalance{}, err
		}
		grp, ok := groups[root.ID]
		if !ok {
			grp = &TrialBalanceGroup{RootNumber: root.Number, RootName: root.Name, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[root.ID] = grp
		}
		grp.Accounts = append(grp.Accounts, TrialBalanceAccount{
			Number:    acct.Number,
			Name:      acct.Name,
			Normal:    acct.NormalBalance,
			Beginning: b.Beginning,
			Debit:     b.Debit,
			Credit:    b.Credit,
			Ending:    b.Ending,
		})
		grp.Debit = grp.Debit.Add(b.Debit)
		grp.Credit = grp.Credit.Add(b.Credit)
		tb.TotalDebit = tb.TotalDebit.Add(b.Debit)
		tb.TotalCredit = tb.TotalCredit.Add(b.Credit)
	}
	for _, grp := range groups {
		sort.Slice(grp.Accounts, func(i, j int) bool { return grp.Accounts[i].Number < grp.Accounts[j].Number })
		tb.Groups = append(tb.Groups, *grp)
	}
	sort.Slice(tb.Groups, func(i, j int) bool { return tb.Groups[i].RootNumber < tb.Groups[j].RootNumber })
	return tb, nil
}

// LoadBalances reads the snapshot written when the month was closed.
func LoadBalances(ctx context.Context, q db.Querier, company string, fp periods.FiscalPeriod) ([]AccountBalance, error) {
	rows, err := q.Query(ctx, `SELECT account_id, beginning, debit, credit, ending FROM period_balances
WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3 ORDER BY account_id`, company, fp.Year, int(fp.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountBalance
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Beginning, &b.Debit, &b.Credit, &b.Ending); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

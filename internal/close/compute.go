package close

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// CheckMonthBalanced verifies that all lines of the month net to zero.
func CheckMonthBalanced(fp periods.FiscalPeriod, entries []shared.LedgerEntry) error {
	debit, credit := shared.Totals(entries)
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: %s debit %s credit %s", shared.ErrMonthUnbalanced, fp, debit.StringFixed(4), credit.StringFixed(4))
	}
	return nil
}

func addsToIncome(c accounts.Class) bool {
	return c == accounts.ClassRevenue || c == accounts.ClassOtherIncome
}

// ComputeNibit derives net income and the prior-period adjustment of a month.
// Income statement lines are grouped by their root account and measured on the
// root's normal side; revenue and other-income roots add, the rest subtract.
// Lines tagged with the prior-period module feed the adjustment instead.
func ComputeNibit(catalog *accounts.Catalog, entries []shared.LedgerEntry) (netIncome, adjustment decimal.Decimal, lines []NibitLine, err error) {
	netIncome, adjustment = decimal.Zero, decimal.Zero
	byRoot := make(map[int64]*NibitLine)
	for _, e := range entries {
		acct, ok := catalog.ByID(e.AccountID)
		if !ok {
			return decimal.Zero, decimal.Zero, nil, &shared.AccountNotFoundError{Role: "ledger", Number: e.AccountNumber}
		}
		if !acct.IsProfitAndLoss() {
			continue
		}
		root, err := catalog.Root(acct.ID)
		if err != nil {
			return decimal.Zero, decimal.Zero, nil, err
		}
		amount := accounts.Movement(root.NormalBalance, e.Debit, e.Credit)
		if !addsToIncome(root.Class) {
			amount = amount.Neg()
		}
		if e.Module == shared.ModulePriorPeriod {
			adjustment = adjustment.Add(amount)
			continue
		}
		netIncome = netIncome.Add(amount)
		line, ok := byRoot[root.ID]
		if !ok {
			line = &NibitLine{RootID: root.ID, RootNumber: root.Number, RootName: root.Name, Amount: decimal.Zero}
			byRoot[root.ID] = line
		}
		line.Amount = line.Amount.Add(amount)
	}
	lines = make([]NibitLine, 0, len(byRoot))
	for _, l := range byRoot {
		lines = append(lines, *l)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].RootNumber < lines[j].RootNumber })
	return netIncome, adjustment, lines, nil
}

// ChainNibit builds the month row on top of the previous month's ending.
func ChainNibit(company string, fp periods.FiscalPeriod, beginning, netIncome, adjustment decimal.Decimal, at time.Time) MonthlyNibit {
	return MonthlyNibit{
		Company:    company,
		Period:     fp,
		Beginning:  beginning,
		NetIncome:  netIncome,
		Adjustment: adjustment,
		Ending:     beginning.Add(netIncome).Add(adjustment),
		CreatedAt:  at,
	}
}

type movement struct {
	debit  decimal.Decimal
	credit decimal.Decimal
	name   string
}

func (m *movement) add(e shared.LedgerEntry) {
	m.debit = m.debit.Add(e.Debit)
	m.credit = m.credit.Add(e.Credit)
}

func newMovement() *movement {
	return &movement{debit: decimal.Zero, credit: decimal.Zero}
}

// BuildBalances rolls every account of the catalog forward from prior endings.
func BuildBalances(catalog *accounts.Catalog, company string, fp periods.FiscalPeriod, prior map[int64]decimal.Decimal, entries []shared.LedgerEntry, closedAt time.Time) []PeriodBalance {
	moves := make(map[int64]*movement)
	for _, e := range entries {
		m, ok := moves[e.AccountID]
		if !ok {
			m = newMovement()
			moves[e.AccountID] = m
		}
		m.add(e)
	}
	all := catalog.All()
	out := make([]PeriodBalance, 0, len(all))
	for _, acct := range all {
		beginning, ok := prior[acct.ID]
		if !ok {
			beginning = decimal.Zero
		}
		m, ok := moves[acct.ID]
		if !ok {
			m = newMovement()
		}
		out = append(out, PeriodBalance{
			Company:   company,
			Period:    fp,
			AccountID: acct.ID,
			Beginning: beginning,
			Debit:     m.debit,
			Credit:    m.credit,
			Ending:    accounts.RollForward(acct.NormalBalance, beginning, m.debit, m.credit),
			Closed:    true,
			ClosedAt:  closedAt,
		})
	}
	return out
}

// BuildSubBalances rolls forward every sub-account combination that either
// moved this month or carried a balance out of last month.
func BuildSubBalances(catalog *accounts.Catalog, company string, fp periods.FiscalPeriod, prior []SubAccountPeriodBalance, entries []shared.LedgerEntry, closedAt time.Time) ([]SubAccountPeriodBalance, error) {
	beginnings := make(map[SubAccountKey]SubAccountPeriodBalance, len(prior))
	for _, p := range prior {
		beginnings[p.Key()] = p
	}
	moves := make(map[SubAccountKey]*movement)
	for _, e := range entries {
		if e.SubAccount.IsZero() {
			continue
		}
		key := SubAccountKey{AccountID: e.AccountID, Type: e.SubAccount.Type, ID: e.SubAccount.ID}
		m, ok := moves[key]
		if !ok {
			m = newMovement()
			moves[key] = m
		}
		m.add(e)
		if e.SubAccount.Name != "" {
			m.name = e.SubAccount.Name
		}
	}

	keys := make([]SubAccountKey, 0, len(moves)+len(beginnings))
	for k := range moves {
		keys = append(keys, k)
	}
	for k := range beginnings {
		if _, ok := moves[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AccountID != keys[j].AccountID {
			return keys[i].AccountID < keys[j].AccountID
		}
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})

	out := make([]SubAccountPeriodBalance, 0, len(keys))
	for _, k := range keys {
		acct, ok := catalog.ByID(k.AccountID)
		if !ok {
			return nil, fmt.Errorf("%w: id %d", shared.ErrAccountNotFound, k.AccountID)
		}
		beginning, name := decimal.Zero, ""
		if p, ok := beginnings[k]; ok {
			beginning, name = p.Ending, p.SubName
		}
		m, ok := moves[k]
		if !ok {
			m = newMovement()
		}
		if m.name != "" {
			name = m.name
		}
		out = append(out, SubAccountPeriodBalance{
			PeriodBalance: PeriodBalance{
				Company:   company,
				Period:    fp,
				AccountID: k.AccountID,
				Beginning: beginning,
				Debit:     m.debit,
				Credit:    m.credit,
				Ending:    accounts.RollForward(acct.NormalBalance, beginning, m.debit, m.credit),
				Closed:    true,
				ClosedAt:  closedAt,
			},
			SubType: k.Type,
			SubID:   k.ID,
			SubName: name,
		})
	}
	return out, nil
}

// LockedRecordsFor selects deliveries with unresolved prices and shapes them for the queue.
func LockedRecordsFor(company string, fp periods.FiscalPeriod, deliveries []Delivery, at time.Time) (sales, purchases []LockedRecord) {
	for _, d := range deliveries {
		if !d.UnresolvedPrice() {
			continue
		}
		rec := LockedRecord{
			Kind:       d.Kind,
			Company:    company,
			DeliveryID: d.ID,
			Reference:  d.Number,
			Period:     fp,
			Quantity:   d.Quantity,
			Price:      d.UnitPrice,
			QueuedAt:   at,
		}
		if d.Kind == DeliveryPurchase {
			purchases = append(purchases, rec)
		} else {
			sales = append(sales, rec)
		}
	}
	return sales, purchases
}

// BlockingDeliveries names the unlifted deliveries of the month.
func BlockingDeliveries(deliveries []Delivery) []string {
	var refs []string
	for _, d := range deliveries {
		if d.Unlifted() {
			refs = append(refs, d.Number)
		}
	}
	sort.Strings(refs)
	return refs
}

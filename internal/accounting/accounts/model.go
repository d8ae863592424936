package accounts

import "github.com/shopspring/decimal"

// NormalBalance is the side on which an account increases.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// StatementType places an account on the balance sheet or income statement.
type StatementType string

const (
	BalanceSheet    StatementType = "BALANCE_SHEET"
	IncomeStatement StatementType = "INCOME_STATEMENT"
)

// Class enumerates CoA categories.
type Class string

const (
	ClassAsset        Class = "ASSET"
	ClassLiability    Class = "LIABILITY"
	ClassEquity       Class = "EQUITY"
	ClassRevenue      Class = "REVENUE"
	ClassOtherIncome  Class = "OTHER_INCOME"
	ClassCostOfSales  Class = "COST_OF_SALES"
	ClassExpense      Class = "EXPENSE"
	ClassOtherExpense Class = "OTHER_EXPENSE"
)

// AccountTitle models a chart of accounts node.
type AccountTitle struct {
	ID            int64
	CompanyCode   string
	Number        string
	Name          string
	NormalBalance NormalBalance
	StatementType StatementType
	Class         Class
	ParentID      *int64
}

// IsProfitAndLoss reports whether the account feeds net income.
func (a AccountTitle) IsProfitAndLoss() bool {
	return a.StatementType == IncomeStatement
}

// Movement returns the period movement measured on side.
func Movement(side NormalBalance, debit, credit decimal.Decimal) decimal.Decimal {
	if side == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// RollForward computes an ending balance from a beginning balance and period totals.
func RollForward(side NormalBalance, beginning, debit, credit decimal.Decimal) decimal.Decimal {
	return beginning.Add(Movement(side, debit, credit))
}

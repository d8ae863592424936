package accounts

type chartRow struct {
	number string
	name   string
	class  Class
	parent string
}

var standardChart = []chartRow{
	{"1000", "Assets", ClassAsset, ""},
	{"1010", "Cash in Bank", ClassAsset, "1000"},
	{"1100", "Accounts Receivable - Trade", ClassAsset, "1000"},
	{"1101", "AR Trade - Creditable Withholding Tax", ClassAsset, "1100"},
	{"1102", "AR Trade - Creditable Withholding VAT", ClassAsset, "1100"},
	{"1200", "Inventory", ClassAsset, "1000"},
	{"1210", "Inventory in Transit", ClassAsset, "1200"},
	{"1300", "Creditable Withholding Tax", ClassAsset, "1000"},
	{"1301", "Creditable Withholding VAT", ClassAsset, "1000"},
	{"1310", "Input VAT", ClassAsset, "1000"},
	{"2000", "Liabilities", ClassLiability, ""},
	{"2010", "Accounts Payable - Trade", ClassLiability, "2000"},
	{"2100", "Output VAT", ClassLiability, "2000"},
	{"2200", "Commission Payable", ClassLiability, "2000"},
	{"2210", "Freight Payable", ClassLiability, "2000"},
	{"3000", "Equity", ClassEquity, ""},
	{"3100", "Retained Earnings", ClassEquity, "3000"},
	{"4000", "Revenue", ClassRevenue, ""},
	{"4010", "Sales - Fuel", ClassRevenue, "4000"},
	{"4100", "Service Revenue", ClassRevenue, "4000"},
	{"4500", "Other Income", ClassOtherIncome, ""},
	{"4510", "Interest Income", ClassOtherIncome, "4500"},
	{"5000", "Cost of Sales", ClassCostOfSales, ""},
	{"5010", "Cost of Goods Sold", ClassCostOfSales, "5000"},
	{"6000", "Operating Expenses", ClassExpense, ""},
	{"6100", "Commission Expense", ClassExpense, "6000"},
	{"6200", "Freight Expense", ClassExpense, "6000"},
	{"7000", "Other Expenses", ClassOtherExpense, ""},
	{"7010", "Bank Charges", ClassOtherExpense, "7000"},
}

// NormalBalanceFor returns the conventional normal side of a class.
func NormalBalanceFor(c Class) NormalBalance {
	switch c {
	case ClassLiability, ClassEquity, ClassRevenue, ClassOtherIncome:
		return NormalCredit
	}
	return NormalDebit
}

// StatementTypeFor places a class on its financial statement.
func StatementTypeFor(c Class) StatementType {
	switch c {
	case ClassAsset, ClassLiability, ClassEquity:
		return BalanceSheet
	}
	return IncomeStatement
}

// StandardChart returns the default chart of accounts for company, with ids
// assigned sequentially from 1. Every number in DefaultRoleMap is present.
func StandardChart(company string) []AccountTitle {
	ids := make(map[string]int64, len(standardChart))
	out := make([]AccountTitle, 0, len(standardChart))
	for i, row := range standardChart {
		id := int64(i + 1)
		ids[row.number] = id
		title := AccountTitle{
			ID:            id,
			CompanyCode:   company,
			Number:        row.number,
			Name:          row.name,
			NormalBalance: NormalBalanceFor(row.class),
			StatementType: StatementTypeFor(row.class),
			Class:         row.class,
		}
		if row.parent != "" {
			parent := ids[row.parent]
			title.ParentID = &parent
		}
		out = append(out, title)
	}
	return out
}

package accounting

import (
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// ProjectBooks renders one subsidiary book row per ledger line.
func ProjectBooks(entries []shared.LedgerEntry) []shared.SubsidiaryBookRow {
	rows := make([]shared.SubsidiaryBookRow, 0, len(entries))
	for _, e := range entries {
		particulars := e.Description
		if !e.SubAccount.IsZero() && e.SubAccount.Name != "" {
			particulars = e.SubAccount.Name + " - " + e.Description
		}
		rows = append(rows, shared.SubsidiaryBookRow{
			Book:          shared.BookForModule(e.Module),
			BatchID:       e.BatchID,
			Date:          e.Date,
			Reference:     e.Reference,
			CompanyCode:   e.CompanyCode,
			AccountNumber: e.AccountNumber,
			AccountName:   e.AccountName,
			Particulars:   particulars,
			Debit:         e.Debit,
			Credit:        e.Credit,
			CreatedAt:     e.CreatedAt,
		})
	}
	return rows
}

package accounts

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository reads the chart of accounts.
type Repository interface {
	GetAccountTitles(ctx context.Context, company string) ([]AccountTitle, error)
}

type repository struct {
	q db.Querier
}

// NewRepository reads through q, which may be a pool or a transaction.
func NewRepository(q db.Querier) Repository {
	return &repository{q: q}
}

func (r *repository) GetAccountTitles(ctx context.Context, company string) ([]AccountTitle, error) {
	return LoadAccountTitles(ctx, r.q, company)
}

// LoadAccountTitles returns the full chart of company ordered by number.
func LoadAccountTitles(ctx context.Context, q db.Querier, company string) ([]AccountTitle, error) {
	rows, err := q.Query(ctx, `SELECT id, company_code, number, name, normal_balance, statement_type, class, parent_id
FROM accounts WHERE company_code = $1 ORDER BY number`, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var titles []AccountTitle
	for rows.Next() {
		var a AccountTitle
		if err := rows.Scan(&a.ID, &a.CompanyCode, &a.Number, &a.Name, &a.NormalBalance, &a.StatementType, &a.Class, &a.ParentID); err != nil {
			return nil, err
		}
		titles = append(titles, a)
	}
	return titles, rows.Err()
}

// SeedChart inserts titles that are missing from the company chart and
// returns how many were added. Parents are matched by number, so titles
// must list a parent before its children.
func SeedChart(ctx context.Context, q db.Querier, titles []AccountTitle) (int, error) {
	numbers := make(map[int64]string, len(titles))
	for _, t := range titles {
		numbers[t.ID] = t.Number
	}
	inserted := 0
	for _, t := range titles {
		var parent *string
		if t.ParentID != nil {
			n, ok := numbers[*t.ParentID]
			if !ok {
				return inserted, fmt.Errorf("accounts: %s references unknown parent %d", t.Number, *t.ParentID)
			}
			parent = &n
		}
		tag, err := q.Exec(ctx, `INSERT INTO accounts (company_code, number, name, normal_balance, statement_type, class, parent_id)
VALUES ($1, $2, $3, $4, $5, $6, (SELECT id FROM accounts WHERE company_code = $1 AND number = $7))
ON CONFLICT (company_code, number) DO NOTHING`,
			t.CompanyCode, t.Number, t.Name, string(t.NormalBalance), string(t.StatementType), string(t.Class), parent)
		if err != nil {
			return inserted, fmt.Errorf("accounts: seed %s: %w", t.Number, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

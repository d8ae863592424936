package close

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository runs close work inside one transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional view used by Engine.Close.
type TxRepository interface {
	LockPeriod(ctx context.Context, company string, fp periods.FiscalPeriod) (periods.Period, error)
	MarkClosed(ctx context.Context, p periods.Period, actor int64, at time.Time) error
	AccountTitles(ctx context.Context, company string) ([]accounts.AccountTitle, error)
	MonthEntries(ctx context.Context, company string, fp periods.FiscalPeriod) ([]shared.LedgerEntry, error)
	Deliveries(ctx context.Context, company string, fp periods.FiscalPeriod) ([]Delivery, error)
	GetNibit(ctx context.Context, company string, fp periods.FiscalPeriod) (MonthlyNibit, error)
	HasNibitBefore(ctx context.Context, company string, fp periods.FiscalPeriod) (bool, error)
	InsertNibit(ctx context.Context, n MonthlyNibit) error
	QueueLockedRecords(ctx context.Context, records []LockedRecord) (int, error)
	HasSnapshots(ctx context.Context, company string, fp periods.FiscalPeriod) (bool, error)
	PeriodBalances(ctx context.Context, company string, fp periods.FiscalPeriod) (map[int64]decimal.Decimal, error)
	SubAccountBalances(ctx context.Context, company string, fp periods.FiscalPeriod) ([]SubAccountPeriodBalance, error)
	InsertBalances(ctx context.Context, rows []PeriodBalance) error
	InsertSubBalances(ctx context.Context, rows []SubAccountPeriodBalance) error
}

// PgRepository implements Repository over pgx with serializable isolation.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LockPeriod(ctx context.Context, company string, fp periods.FiscalPeriod) (periods.Period, error) {
	if err := periods.Ensure(ctx, r.tx, company, fp); err != nil {
		return periods.Period{}, err
	}
	return periods.Load(ctx, r.tx, company, fp, periods.UpdateLock)
}

func (r *txRepository) MarkClosed(ctx context.Context, p periods.Period, actor int64, at time.Time) error {
	return periods.SetStatus(ctx, r.tx, p, periods.PeriodStatusClosed, actor, at)
}

func (r *txRepository) AccountTitles(ctx context.Context, company string) ([]accounts.AccountTitle, error) {
	return accounts.LoadAccountTitles(ctx, r.tx, company)
}

func (r *txRepository) MonthEntries(ctx context.Context, company string, fp periods.FiscalPeriod) ([]shared.LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, batch_id, reversal_of, entry_date, reference, description, account_id, account_number, account_name,
debit, credit, company_code, created_by, created_at, sub_account_type, sub_account_id, sub_account_name, module, posted
FROM ledger_entries WHERE company_code = $1 AND posted AND entry_date >= $2 AND entry_date < $3 ORDER BY id`,
		company, fp.Start(time.UTC), fp.End(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.LedgerEntry
	for rows.Next() {
		e, err := accounting.ScanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepository) Deliveries(ctx context.Context, company string, fp periods.FiscalPeriod) ([]Delivery, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, company_code, number, kind, delivery_date, order_reference, quantity, unit_price,
COALESCE(receiving_ref, ''), voided, cancelled
FROM deliveries WHERE company_code = $1 AND delivery_date >= $2 AND delivery_date < $3 ORDER BY number`,
		company, fp.Start(time.UTC), fp.End(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		var (
			d    Delivery
			kind string
		)
		if err := rows.Scan(&d.ID, &d.Company, &d.Number, &kind, &d.Date, &d.OrderReference, &d.Quantity, &d.UnitPrice,
			&d.ReceivingRef, &d.Voided, &d.Cancelled); err != nil {
			return nil, err
		}
		d.Kind = DeliveryKind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *txRepository) GetNibit(ctx context.Context, company string, fp periods.FiscalPeriod) (MonthlyNibit, error) {
	n := MonthlyNibit{Company: company, Period: fp}
	err := r.tx.QueryRow(ctx, `SELECT beginning, net_income, adjustment, ending, created_at
FROM monthly_nibit WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`, company, fp.Year, int(fp.Month)).
		Scan(&n.Beginning, &n.NetIncome, &n.Adjustment, &n.Ending, &n.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return MonthlyNibit{}, errNotFound
	}
	return n, err
}

func (r *txRepository) HasNibitBefore(ctx context.Context, company string, fp periods.FiscalPeriod) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM monthly_nibit WHERE company_code = $1
AND (fiscal_year < $2 OR (fiscal_year = $2 AND fiscal_month < $3)))`, company, fp.Year, int(fp.Month)).Scan(&exists)
	return exists, err
}

func (r *txRepository) InsertNibit(ctx context.Context, n MonthlyNibit) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO monthly_nibit (company_code, fiscal_year, fiscal_month, beginning, net_income, adjustment, ending, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, n.Company, n.Period.Year, int(n.Period.Month), n.Beginning, n.NetIncome, n.Adjustment, n.Ending, n.CreatedAt)
	return db.ClassifyError(err)
}

func lockedTable(kind DeliveryKind) string {
	if kind == DeliveryPurchase {
		return "locked_purchase_records"
	}
	return "locked_sales_records"
}

func (r *txRepository) QueueLockedRecords(ctx context.Context, records []LockedRecord) (int, error) {
	inserted := 0
	for _, rec := range records {
		tag, err := r.tx.Exec(ctx, `INSERT INTO `+lockedTable(rec.Kind)+` (company_code, delivery_id, reference, fiscal_year, fiscal_month, quantity, price, queued_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (delivery_id) DO NOTHING`,
			rec.Company, rec.DeliveryID, rec.Reference, rec.Period.Year, int(rec.Period.Month), rec.Quantity, rec.Price, rec.QueuedAt)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (r *txRepository) HasSnapshots(ctx context.Context, company string, fp periods.FiscalPeriod) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM period_balances WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3)`,
		company, fp.Year, int(fp.Month)).Scan(&exists)
	return exists, err
}

func (r *txRepository) PeriodBalances(ctx context.Context, company string, fp periods.FiscalPeriod) (map[int64]decimal.Decimal, error) {
	rows, err := r.tx.Query(ctx, `SELECT account_id, ending FROM period_balances WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`,
		company, fp.Year, int(fp.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]decimal.Decimal)
	for rows.Next() {
		var (
			id     int64
			ending decimal.Decimal
		)
		if err := rows.Scan(&id, &ending); err != nil {
			return nil, err
		}
		out[id] = ending
	}
	return out, rows.Err()
}

func (r *txRepository) SubAccountBalances(ctx context.Context, company string, fp periods.FiscalPeriod) ([]SubAccountPeriodBalance, error) {
	rows, err := r.tx.Query(ctx, `SELECT account_id, sub_account_type, sub_account_id, sub_account_name, beginning, debit, credit, ending, closed, closed_at
FROM sub_account_period_balances WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`, company, fp.Year, int(fp.Month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SubAccountPeriodBalance
	for rows.Next() {
		var (
			b       SubAccountPeriodBalance
			subType string
		)
		if err := rows.Scan(&b.AccountID, &subType, &b.SubID, &b.SubName, &b.Beginning, &b.Debit, &b.Credit, &b.Ending, &b.Closed, &b.ClosedAt); err != nil {
			return nil, err
		}
		b.Company, b.Period, b.SubType = company, fp, shared.SubAccountType(subType)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertBalances(ctx context.Context, rows []PeriodBalance) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(`INSERT INTO period_balances (company_code, fiscal_year, fiscal_month, account_id, beginning, debit, credit, ending, closed, closed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, b.Company, b.Period.Year, int(b.Period.Month), b.AccountID, b.Beginning, b.Debit, b.Credit, b.Ending, b.Closed, b.ClosedAt)
	}
	return db.ClassifyError(r.tx.SendBatch(ctx, batch).Close())
}

func (r *txRepository) InsertSubBalances(ctx context.Context, rows []SubAccountPeriodBalance) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range rows {
		batch.Queue(`INSERT INTO sub_account_period_balances (company_code, fiscal_year, fiscal_month, account_id, sub_account_type, sub_account_id, sub_account_name,
beginning, debit, credit, ending, closed, closed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`, b.Company, b.Period.Year, int(b.Period.Month), b.AccountID, string(b.SubType), b.SubID, b.SubName,
			b.Beginning, b.Debit, b.Credit, b.Ending, b.Closed, b.ClosedAt)
	}
	return db.ClassifyError(r.tx.SendBatch(ctx, batch).Close())
}

package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// RowLock selects the row lock taken when reading a period.
type RowLock string

const (
	NoLock    RowLock = ""
	ShareLock RowLock = " FOR SHARE"
	// UpdateLock blocks postings into the period until the transaction ends.
	UpdateLock RowLock = " FOR UPDATE"
)

const selectPeriod = `SELECT id, company_code, fiscal_year, fiscal_month, status, locked_at, locked_by, closed_at, closed_by
FROM accounting_periods WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`

// Load reads the period row. A missing row yields an OPEN period with ID 0.
func Load(ctx context.Context, q db.Querier, company string, fp FiscalPeriod, lock RowLock) (Period, error) {
	var (
		p     Period
		month int
	)
	err := q.QueryRow(ctx, selectPeriod+string(lock), company, fp.Year, int(fp.Month)).
		Scan(&p.ID, &p.Company, &p.Fiscal.Year, &month, &p.Status, &p.LockedAt, &p.LockedBy, &p.ClosedAt, &p.ClosedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{Company: company, Fiscal: fp, Status: PeriodStatusOpen}, nil
		}
		return Period{}, err
	}
	p.Fiscal.Month = time.Month(month)
	return p, nil
}

// Ensure creates the period row in OPEN state when it does not exist yet.
func Ensure(ctx context.Context, q db.Querier, company string, fp FiscalPeriod) error {
	_, err := q.Exec(ctx, `INSERT INTO accounting_periods (company_code, fiscal_year, fiscal_month)
VALUES ($1, $2, $3) ON CONFLICT (company_code, fiscal_year, fiscal_month) DO NOTHING`, company, fp.Year, int(fp.Month))
	return err
}

// SetStatus writes the status and the matching audit columns.
func SetStatus(ctx context.Context, q db.Querier, p Period, target PeriodStatus, actor int64, at time.Time) error {
	var err error
	switch target {
	case PeriodStatusLocked:
		_, err = q.Exec(ctx, `UPDATE accounting_periods SET status = $4, locked_at = $5, locked_by = $6, updated_at = $5
WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`, p.Company, p.Fiscal.Year, int(p.Fiscal.Month), target, at, actor)
	case PeriodStatusClosed:
		_, err = q.Exec(ctx, `UPDATE accounting_periods SET status = $4, closed_at = $5, closed_by = $6, updated_at = $5
WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`, p.Company, p.Fiscal.Year, int(p.Fiscal.Month), target, at, actor)
	default:
		_, err = q.Exec(ctx, `UPDATE accounting_periods SET status = $4, locked_at = NULL, locked_by = NULL, updated_at = $5
WHERE company_code = $1 AND fiscal_year = $2 AND fiscal_month = $3`, p.Company, p.Fiscal.Year, int(p.Fiscal.Month), target, at)
	}
	return err
}

// Repository is the transactional store behind Service.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	IsPeriodLocked(ctx context.Context, company string, fp FiscalPeriod) (bool, error)
}

// TxRepository exposes period operations inside one transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, company string, fp FiscalPeriod) (Period, error)
	SetStatus(ctx context.Context, p Period, target PeriodStatus, actor int64, at time.Time) error
}

// PgRepository implements Repository over pgx.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

func (r *PgRepository) IsPeriodLocked(ctx context.Context, company string, fp FiscalPeriod) (bool, error) {
	p, err := Load(ctx, r.pool, company, fp, NoLock)
	if err != nil {
		return false, err
	}
	return !p.AcceptsPostings(), nil
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) GetForUpdate(ctx context.Context, company string, fp FiscalPeriod) (Period, error) {
	if err := Ensure(ctx, r.tx, company, fp); err != nil {
		return Period{}, err
	}
	return Load(ctx, r.tx, company, fp, UpdateLock)
}

func (r *txRepository) SetStatus(ctx context.Context, p Period, target PeriodStatus, actor int64, at time.Time) error {
	return SetStatus(ctx, r.tx, p, target, actor, at)
}

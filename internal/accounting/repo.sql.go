package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository persists postings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn within a read-committed transaction. Each statement
// reads the latest committed rows, so a series read after its advisory lock
// sees the number issued by the previous holder.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

const selectDocument = `SELECT id, company_code, doc_type, variant, COALESCE(number, ''), status, doc_date FROM documents`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Company, &d.Type, &d.Variant, &d.Number, &d.Status, &d.Date)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, shared.ErrDocumentNotFound
	}
	return d, err
}

func (r *txRepository) GetDocumentForUpdate(ctx context.Context, id uuid.UUID) (Document, error) {
	return scanDocument(r.tx.QueryRow(ctx, selectDocument+` WHERE id = $1 FOR UPDATE`, id))
}

func (r *txRepository) GetDocumentByNumberForUpdate(ctx context.Context, company, number string) (Document, error) {
	doc, err := scanDocument(r.tx.QueryRow(ctx, selectDocument+` WHERE company_code = $1 AND number = $2 FOR UPDATE`, company, number))
	if errors.Is(err, shared.ErrDocumentNotFound) {
		return Document{}, fmt.Errorf("%w: %s %s", err, company, number)
	}
	return doc, err
}

func (r *txRepository) UpdateDocument(ctx context.Context, doc Document, at time.Time) error {
	var err error
	switch doc.Status {
	case DocumentPosted:
		_, err = r.tx.Exec(ctx, `UPDATE documents SET number = $2, status = $3, posted_at = $4, updated_at = $4 WHERE id = $1`, doc.ID, doc.Number, doc.Status, at)
	case DocumentVoided:
		_, err = r.tx.Exec(ctx, `UPDATE documents SET status = $2, voided_at = $3, updated_at = $3 WHERE id = $1`, doc.ID, doc.Status, at)
	default:
		_, err = r.tx.Exec(ctx, `UPDATE documents SET status = $2, updated_at = $3 WHERE id = $1`, doc.ID, doc.Status, at)
	}
	return err
}

// GetPeriodForShare creates the period row when missing so the share lock
// always holds a row that Lock and Close must wait for.
func (r *txRepository) GetPeriodForShare(ctx context.Context, company string, fp periods.FiscalPeriod) (periods.Period, error) {
	if err := periods.Ensure(ctx, r.tx, company, fp); err != nil {
		return periods.Period{}, err
	}
	return periods.Load(ctx, r.tx, company, fp, periods.ShareLock)
}

func (r *txRepository) Sequences() sequence.Store {
	return sequence.NewPgStore(r.tx)
}

func subAccountColumns(s *shared.SubAccount) (typ, id, name any) {
	if s.IsZero() {
		return nil, nil, nil
	}
	return string(s.Type), s.ID, s.Name
}

func (r *txRepository) InsertLedgerEntries(ctx context.Context, entries []shared.LedgerEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		subType, subID, subName := subAccountColumns(e.SubAccount)
		batch.Queue(`INSERT INTO ledger_entries (batch_id, reversal_of, entry_date, reference, description, account_id, account_number, account_name,
debit, credit, company_code, created_by, created_at, sub_account_type, sub_account_id, sub_account_name, module, posted)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			e.BatchID, e.ReversalOf, e.Date, e.Reference, e.Description, e.AccountID, e.AccountNumber, e.AccountName,
			e.Debit, e.Credit, e.CompanyCode, e.CreatedBy, e.CreatedAt, subType, subID, subName, string(e.Module), e.Posted)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) InsertBookRows(ctx context.Context, rows []shared.SubsidiaryBookRow) error {
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO subsidiary_book_rows (book, batch_id, entry_date, reference, company_code, account_number, account_name, particulars, debit, credit, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			string(row.Book), row.BatchID, row.Date, row.Reference, row.CompanyCode, row.AccountNumber, row.AccountName, row.Particulars, row.Debit, row.Credit, row.CreatedAt)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) ListEntriesByReference(ctx context.Context, company, reference string) ([]shared.LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, batch_id, reversal_of, entry_date, reference, description, account_id, account_number, account_name,
debit, credit, company_code, created_by, created_at, sub_account_type, sub_account_id, sub_account_name, module, posted
FROM ledger_entries WHERE company_code = $1 AND reference = $2 ORDER BY id`, company, reference)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []shared.LedgerEntry
	for rows.Next() {
		e, err := ScanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ScanLedgerEntry reads the ledger_entries column list used across the module.
func ScanLedgerEntry(row pgx.Row) (shared.LedgerEntry, error) {
	var (
		e                       shared.LedgerEntry
		subType, subID, subName *string
		module                  string
	)
	err := row.Scan(&e.ID, &e.BatchID, &e.ReversalOf, &e.Date, &e.Reference, &e.Description, &e.AccountID, &e.AccountNumber, &e.AccountName,
		&e.Debit, &e.Credit, &e.CompanyCode, &e.CreatedBy, &e.CreatedAt, &subType, &subID, &subName, &module, &e.Posted)
	if err != nil {
		return shared.LedgerEntry{}, err
	}
	e.Module = shared.Module(module)
	if subType != nil && subID != nil {
		e.SubAccount = &shared.SubAccount{Type: shared.SubAccountType(*subType), ID: *subID}
		if subName != nil {
			e.SubAccount.Name = *subName
		}
	}
	return e, nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error) {
	var inv Invoice
	err := r.tx.QueryRow(ctx, `SELECT id, company_code, number, customer_id, total, outstanding, payment_status
FROM invoices WHERE id = $1 FOR UPDATE`, id).
		Scan(&inv.ID, &inv.Company, &inv.Number, &inv.CustomerID, &inv.Total, &inv.Outstanding, &inv.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, fmt.Errorf("%w: invoice %s", shared.ErrDocumentNotFound, id)
	}
	return inv, err
}

func (r *txRepository) UpdateInvoiceBalance(ctx context.Context, inv Invoice) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoices SET outstanding = $2, payment_status = $3, updated_at = NOW() WHERE id = $1`, inv.ID, inv.Outstanding, inv.Status)
	return err
}

func (r *txRepository) InsertApplication(ctx context.Context, app AppliedInvoice) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO invoice_applications (batch_id, invoice_id, reference, amount, applied_at) VALUES ($1,$2,$3,$4,$5)`,
		app.BatchID, app.InvoiceID, app.Reference, app.Amount, app.AppliedAt)
	return err
}

func (r *txRepository) ListOpenApplications(ctx context.Context, batchID uuid.UUID) ([]AppliedInvoice, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, batch_id, invoice_id, reference, amount, applied_at, reversed_at
FROM invoice_applications WHERE batch_id = $1 AND reversed_at IS NULL ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AppliedInvoice
	for rows.Next() {
		var a AppliedInvoice
		if err := rows.Scan(&a.ID, &a.BatchID, &a.InvoiceID, &a.Reference, &a.Amount, &a.AppliedAt, &a.ReversedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *txRepository) MarkApplicationsReversed(ctx context.Context, batchID uuid.UUID, at time.Time) error {
	_, err := r.tx.Exec(ctx, `UPDATE invoice_applications SET reversed_at = $2 WHERE batch_id = $1 AND reversed_at IS NULL`, batchID, at)
	return err
}

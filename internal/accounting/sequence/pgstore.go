package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// PgStore implements Store on a pgx transaction.
type PgStore struct {
	q db.Querier
}

// NewPgStore binds the store to tx. The advisory lock is released when tx ends.
func NewPgStore(tx pgx.Tx) *PgStore {
	return &PgStore{q: tx}
}

func (s *PgStore) LockSeries(ctx context.Context, company string, docType DocumentType, variant Variant) error {
	key := internalShared.SequenceLockKey(company, string(docType), string(variant))
	_, err := s.q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (s *PgStore) LastNumber(ctx context.Context, company string, docType DocumentType, variant Variant) (string, bool, error) {
	var number string
	err := s.q.QueryRow(ctx, `SELECT number FROM document_numbers
WHERE company_code = $1 AND doc_type = $2 AND variant = $3
ORDER BY LENGTH(number) DESC, number DESC LIMIT 1`, company, string(docType), string(variant)).Scan(&number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return number, true, nil
}

func (s *PgStore) ReserveNumber(ctx context.Context, r Reservation) error {
	_, err := s.q.Exec(ctx, `INSERT INTO document_numbers (company_code, doc_type, variant, number, source_id)
VALUES ($1, $2, $3, $4, $5)`, r.Company, string(r.DocType), string(r.Variant), r.Number, r.SourceID)
	return db.ClassifyError(err)
}

// Preview returns the number the next Issue of a series would assign. The
// transaction is rolled back, so nothing is reserved.
func Preview(ctx context.Context, pool *pgxpool.Pool, gen *Generator, company string, docType DocumentType, variant Variant) (string, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadOnly})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	return gen.NextNumber(ctx, NewPgStore(tx), company, docType, variant)
}

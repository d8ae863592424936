package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// MonthTotal is the sum of one company month's ledger lines.
type MonthTotal struct {
	Company string
	Period  periods.FiscalPeriod
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// Balanced reports whether debits equal credits.
func (m MonthTotal) Balanced() bool {
	return m.Debit.Equal(m.Credit)
}

// IntegrityRepository yields month totals.
type IntegrityRepository interface {
	MonthTotals(ctx context.Context, company string) ([]MonthTotal, error)
}

// PgIntegrityRepository aggregates ledger_entries with pgx.
type PgIntegrityRepository struct {
	pool *pgxpool.Pool
}

// NewPgIntegrityRepository constructs the repository.
func NewPgIntegrityRepository(pool *pgxpool.Pool) *PgIntegrityRepository {
	return &PgIntegrityRepository{pool: pool}
}

// MonthTotals sums posted lines per company and month; empty company means all.
func (r *PgIntegrityRepository) MonthTotals(ctx context.Context, company string) ([]MonthTotal, error) {
	rows, err := r.pool.Query(ctx, `SELECT company_code, EXTRACT(YEAR FROM entry_date)::int, EXTRACT(MONTH FROM entry_date)::int,
SUM(debit), SUM(credit)
FROM ledger_entries
WHERE posted AND ($1 = '' OR company_code = $1)
GROUP BY 1, 2, 3 ORDER BY 1, 2, 3`, company)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthTotal
	for rows.Next() {
		var (
			m     MonthTotal
			month int
		)
		if err := rows.Scan(&m.Company, &m.Period.Year, &month, &m.Debit, &m.Credit); err != nil {
			return nil, err
		}
		m.Period.Month = time.Month(month)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ErrLedgerImbalanced is returned when at least one month fails the check.
var ErrLedgerImbalanced = errors.New("gl integrity: ledger months do not balance")

// GLIntegrityJob checks Σdebit = Σcredit for every stored month.
type GLIntegrityJob struct {
	Repo    IntegrityRepository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGLIntegrityJob constructs the job handler.
func NewGLIntegrityJob(repo IntegrityRepository, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{Repo: repo, Logger: logger, Metrics: metrics}
}

// Handle processes TaskGLIntegrity tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, task *asynq.Task) error {
	var payload GLIntegrityPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("gl integrity: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	_, err := j.Run(ctx, payload.Company)
	return err
}

// Run performs the check and returns the offending months.
func (j *GLIntegrityJob) Run(ctx context.Context, company string) ([]MonthTotal, error) {
	if j == nil || j.Repo == nil {
		return nil, errors.New("gl integrity: repository not configured")
	}
	tracker := j.metrics().Track(TaskGLIntegrity)
	totals, err := j.Repo.MonthTotals(ctx, company)
	if err != nil {
		return nil, tracker.End(err)
	}

	perCompany := make(map[string]int)
	var bad []MonthTotal
	for _, m := range totals {
		if _, ok := perCompany[m.Company]; !ok {
			perCompany[m.Company] = 0
		}
		if !m.Balanced() {
			perCompany[m.Company]++
			bad = append(bad, m)
		}
	}
	for c, n := range perCompany {
		j.metrics().SetImbalancedMonths(c, n)
	}

	logger := j.log()
	if len(bad) == 0 {
		logger.Info("GL integrity check passed", slog.Int("months", len(totals)), slog.Int("companies", len(perCompany)))
		return nil, tracker.End(nil)
	}
	labels := make([]string, 0, len(bad))
	for _, m := range bad {
		labels = append(labels, fmt.Sprintf("%s/%s", m.Company, m.Period))
		logger.Error("ledger month imbalanced",
			slog.String("company", m.Company),
			slog.String("period", m.Period.String()),
			slog.String("debit", m.Debit.StringFixed(4)),
			slog.String("credit", m.Credit.StringFixed(4)))
	}
	sort.Strings(labels)
	err = fmt.Errorf("%w: %s: %w", ErrLedgerImbalanced, strings.Join(labels, ", "), asynq.SkipRetry)
	return bad, tracker.End(err)
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

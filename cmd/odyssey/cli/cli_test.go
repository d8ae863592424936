package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/sequence"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	ledgerclose "github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func march() periods.FiscalPeriod {
	return periods.FiscalPeriod{Year: 2024, Month: time.March}
}

type stubQueue struct {
	closes []jobs.PeriodClosePayload
	checks []string
	posts  []jobs.PostDocumentPayload
}

func (q *stubQueue) EnqueuePeriodClose(ctx context.Context, payload jobs.PeriodClosePayload) (*asynq.TaskInfo, error) {
	q.closes = append(q.closes, payload)
	return &asynq.TaskInfo{ID: "close:" + payload.Company + ":" + payload.Period, Type: jobs.TaskPeriodClose, Queue: jobs.QueueCritical}, nil
}

func (q *stubQueue) EnqueueGLIntegrity(ctx context.Context, company string) (*asynq.TaskInfo, error) {
	q.checks = append(q.checks, company)
	return &asynq.TaskInfo{ID: "t-1", Type: jobs.TaskGLIntegrity, Queue: jobs.QueueDefault}, nil
}

func (q *stubQueue) EnqueuePostDocument(ctx context.Context, payload jobs.PostDocumentPayload) (*asynq.TaskInfo, error) {
	q.posts = append(q.posts, payload)
	return &asynq.TaskInfo{ID: "post:" + payload.DocumentID.String(), Type: jobs.TaskPostDocument, Queue: jobs.QueueDefault}, nil
}

type stubAdmin struct {
	status periods.PeriodStatus
	err    error
}

func (a *stubAdmin) Lock(ctx context.Context, company string, fp periods.FiscalPeriod, actor int64) (periods.Period, error) {
	if a.err != nil {
		return periods.Period{}, a.err
	}
	a.status = periods.PeriodStatusLocked
	return periods.Period{Company: company, Fiscal: fp, Status: a.status}, nil
}

func (a *stubAdmin) Unlock(ctx context.Context, company string, fp periods.FiscalPeriod, actor int64) (periods.Period, error) {
	if a.err != nil {
		return periods.Period{}, a.err
	}
	a.status = periods.PeriodStatusOpen
	return periods.Period{Company: company, Fiscal: fp, Status: a.status}, nil
}

type stubCloser struct {
	in     ledgerclose.CloseInput
	result ledgerclose.CloseResult
	err    error
}

func (c *stubCloser) Close(ctx context.Context, in ledgerclose.CloseInput) (ledgerclose.CloseResult, error) {
	c.in = in
	return c.result, c.err
}

func closedMarch() ledgerclose.CloseResult {
	return ledgerclose.CloseResult{
		Company: "ACME",
		Period:  march(),
		Nibit: ledgerclose.MonthlyNibit{
			Beginning:  d("10000"),
			NetIncome:  d("200"),
			Adjustment: d("50"),
			Ending:     d("10250"),
		},
		NibitLines: []ledgerclose.NibitLine{
			{RootNumber: "4000", RootName: "Revenue", Amount: d("1000")},
			{RootNumber: "5000", RootName: "Cost of sales", Amount: d("600")},
			{RootNumber: "6000", RootName: "Operating expenses", Amount: d("200")},
		},
		NibitCreated:     true,
		Balances:         42,
		SubBalances:      2,
		SnapshotsCreated: true,
		LockedSales:      1,
		LockedPurchases:  1,
		ClosedAt:         time.Date(2024, time.April, 2, 9, 30, 0, 0, time.UTC),
	}
}

func TestPeriodLockPrintsStatus(t *testing.T) {
	admin := &stubAdmin{}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewPeriodCLI(admin, nil, nil).LockCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", ActorID: 7, Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code, stderr.String())
	assert.Equal(t, "ACME 2024-03 is LOCKED\n", stdout.String())
}

func TestPeriodCommandsValidateFlags(t *testing.T) {
	c := NewPeriodCLI(&stubAdmin{}, &stubCloser{}, nil)
	stderr := new(bytes.Buffer)
	code := c.UnlockCommand(context.Background(), PeriodOptions{Period: "2024-03", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "--company")

	stderr.Reset()
	code = c.CloseCommand(context.Background(), PeriodOptions{Company: "ACME", Period: "March", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "YYYY-MM")
}

func TestPeriodUnlockOfClosedMonthIsPrecondition(t *testing.T) {
	admin := &stubAdmin{err: fmt.Errorf("%w: CLOSED to OPEN", shared.ErrInvalidTransition)}
	stderr := new(bytes.Buffer)
	code := NewPeriodCLI(admin, nil, nil).UnlockCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", Stdout: new(bytes.Buffer), Stderr: stderr,
	})
	assert.Equal(t, exitPrecondition, code)
	assert.Contains(t, stderr.String(), "period unlock")
}

func TestPeriodCloseRendersSummary(t *testing.T) {
	closer := &stubCloser{result: closedMarch()}
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewPeriodCLI(nil, closer, nil).CloseCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", ActorID: 7, Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code, stderr.String())
	assert.Equal(t, ledgerclose.CloseInput{Company: "ACME", Period: march(), ActorID: 7}, closer.in)

	out := stdout.String()
	assert.Contains(t, out, "Closed ACME 2024-03 at 2024-04-02 09:30")
	assert.Contains(t, out, "10,250.00")
	assert.Contains(t, out, "Operating expenses")
	assert.Contains(t, out, "42 account and 2 sub-account balances snapshotted")
	assert.Contains(t, out, "1 sales and 1 purchase deliveries locked")
}

func TestPeriodCloseJSON(t *testing.T) {
	stdout := new(bytes.Buffer)
	code := NewPeriodCLI(nil, &stubCloser{result: closedMarch()}, nil).CloseCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)

	var summary CloseSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, "2024-03", summary.Period)
	assert.Equal(t, "10250.0000", summary.Ending)
	assert.Equal(t, "50.0000", summary.Adjustment)
	require.Len(t, summary.Lines, 3)
	assert.Equal(t, "4000", summary.Lines[0].Number)
}

func TestPeriodCloseListsBlockingDeliveries(t *testing.T) {
	closer := &stubCloser{err: &shared.PreconditionError{Err: shared.ErrUnliftedDeliveriesExist, Blocking: []string{"DR0000000003", "DR0000000009"}}}
	stderr := new(bytes.Buffer)
	code := NewPeriodCLI(nil, closer, nil).CloseCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", Stdout: new(bytes.Buffer), Stderr: stderr,
	})
	assert.Equal(t, exitPrecondition, code)
	assert.Contains(t, stderr.String(), "blocking: DR0000000003")
	assert.Contains(t, stderr.String(), "blocking: DR0000000009")
}

func TestPeriodCloseConflictExitCode(t *testing.T) {
	closer := &stubCloser{err: shared.ErrConflict}
	code := NewPeriodCLI(nil, closer, nil).CloseCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer),
	})
	assert.Equal(t, exitConflict, code)
}

func TestPeriodCloseAsyncEnqueues(t *testing.T) {
	queue := &stubQueue{}
	closer := &stubCloser{}
	stdout := new(bytes.Buffer)
	code := NewPeriodCLI(nil, closer, queue).CloseCommand(context.Background(), PeriodOptions{
		Company: "ACME", Period: "2024-03", ActorID: 7, Async: true, Stdout: stdout, Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Len(t, queue.closes, 1)
	assert.Equal(t, jobs.PeriodClosePayload{Company: "ACME", Period: "2024-03", ActorID: 7}, queue.closes[0])
	assert.Empty(t, closer.in.Company)
	assert.Contains(t, stdout.String(), "close:ACME:2024-03")
}

func TestSequenceNextDefaultsToDocumented(t *testing.T) {
	var got sequence.Variant
	preview := PreviewFunc(func(ctx context.Context, company string, docType sequence.DocumentType, variant sequence.Variant) (string, error) {
		got = variant
		return "SI0000000042", nil
	})
	stdout := new(bytes.Buffer)
	code := SequenceNextCommand(context.Background(), preview, SequenceOptions{Company: "ACME", DocType: "SalesInvoice", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	assert.Equal(t, sequence.Documented, got)
	assert.Equal(t, "SI0000000042\n", stdout.String())
}

func TestSequenceNextUnknownSeries(t *testing.T) {
	preview := PreviewFunc(func(ctx context.Context, company string, docType sequence.DocumentType, variant sequence.Variant) (string, error) {
		return sequence.NewGenerator(nil).NextNumber(ctx, nil, company, docType, variant)
	})
	stderr := new(bytes.Buffer)
	code := SequenceNextCommand(context.Background(), preview, SequenceOptions{Company: "ACME", DocType: "Memo", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr.String(), "sequence next")
}

type stubPoster struct {
	post    accounting.PostingRequest
	reverse accounting.ReverseInput
	err     error
}

func (p *stubPoster) Post(ctx context.Context, req accounting.PostingRequest) (accounting.PostingResult, error) {
	p.post = req
	if p.err != nil {
		return accounting.PostingResult{}, p.err
	}
	return accounting.PostingResult{
		Document: accounting.Document{ID: req.DocumentID, Number: "CR0000000001"},
		Entries: []shared.LedgerEntry{
			{AccountNumber: "1010", Debit: d("1000"), Credit: decimal.Zero, Description: "Collection"},
			{AccountNumber: "1100", Debit: decimal.Zero, Credit: d("1000"), Description: "Collection"},
		},
	}, nil
}

func (p *stubPoster) Reverse(ctx context.Context, in accounting.ReverseInput) (accounting.ReverseResult, error) {
	p.reverse = in
	if p.err != nil {
		return accounting.ReverseResult{}, p.err
	}
	return accounting.ReverseResult{
		Document: accounting.Document{Number: in.Reference},
		Restored: []accounting.AppliedInvoice{{}},
	}, nil
}

func postingRequest(t *testing.T, id uuid.UUID) string {
	t.Helper()
	raw, err := json.Marshal(jobs.PostDocumentPayload{
		DocumentID: id,
		Event: journals.Event{
			Kind:      journals.KindCollection,
			Company:   "ACME",
			Reference: "OR-1",
			Date:      time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
			Amount:    d("1000"),
		},
		ActorID: 7,
	})
	require.NoError(t, err)
	return string(raw)
}

func TestLedgerPostReadsRequest(t *testing.T) {
	poster := &stubPoster{}
	id := uuid.New()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := NewLedgerCLI(poster, nil).PostCommand(context.Background(), PostOptions{
		Input: strings.NewReader(postingRequest(t, id)), Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code, stderr.String())
	assert.Equal(t, id, poster.post.DocumentID)
	assert.True(t, poster.post.Event.Amount.Equal(d("1000")))
	assert.Contains(t, stdout.String(), "CR0000000001: 2 lines")
	assert.Contains(t, stdout.String(), "1,000.00")
}

func TestLedgerPostAsync(t *testing.T) {
	queue := &stubQueue{}
	poster := &stubPoster{}
	id := uuid.New()
	code := NewLedgerCLI(poster, queue).PostCommand(context.Background(), PostOptions{
		Input: strings.NewReader(postingRequest(t, id)), Async: true, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	require.Len(t, queue.posts, 1)
	assert.Equal(t, id, queue.posts[0].DocumentID)
	assert.Equal(t, uuid.Nil, poster.post.DocumentID)
}

func TestLedgerPostErrors(t *testing.T) {
	c := NewLedgerCLI(&stubPoster{err: fmt.Errorf("%w: ACME 2024-03", shared.ErrPeriodLocked)}, nil)
	code := c.PostCommand(context.Background(), PostOptions{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, exitUsage, code)

	code = c.PostCommand(context.Background(), PostOptions{Input: strings.NewReader("{"), Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, exitUsage, code)

	code = c.PostCommand(context.Background(), PostOptions{Input: strings.NewReader(postingRequest(t, uuid.New())), Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, exitPrecondition, code)
}

func TestLedgerReverse(t *testing.T) {
	poster := &stubPoster{}
	stdout := new(bytes.Buffer)
	code := NewLedgerCLI(poster, nil).ReverseCommand(context.Background(), ReverseOptions{
		Company: "ACME", Reference: "CR0000000001", Reason: "bounced cheque", Date: "2024-03-20", ActorID: 7,
		Stdout: stdout, Stderr: new(bytes.Buffer),
	})
	require.Zero(t, code)
	assert.Equal(t, "CR0000000001", poster.reverse.Reference)
	assert.Equal(t, time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC), poster.reverse.Date)
	assert.Contains(t, stdout.String(), "1 invoice applications restored")

	code = NewLedgerCLI(poster, nil).ReverseCommand(context.Background(), ReverseOptions{
		Company: "ACME", Reference: "CR0000000001", Date: "20/03/2024", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer),
	})
	assert.Equal(t, exitUsage, code)
}

type stubSeeder struct {
	titles   []accounts.AccountTitle
	inserted int
}

func (s *stubSeeder) SeedChart(ctx context.Context, titles []accounts.AccountTitle) (int, error) {
	s.titles = titles
	return s.inserted, nil
}

type stubBumper struct {
	companies []string
}

func (b *stubBumper) Bump(ctx context.Context, company string) error {
	b.companies = append(b.companies, company)
	return nil
}

func TestAccountsSeedBumpsCatalog(t *testing.T) {
	seeder := &stubSeeder{inserted: 5}
	bumper := &stubBumper{}
	stdout := new(bytes.Buffer)
	code := SeedCommand(context.Background(), seeder, bumper, SeedOptions{Company: "ACME", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	assert.Len(t, seeder.titles, len(accounts.StandardChart("ACME")))
	assert.Equal(t, []string{"ACME"}, bumper.companies)
	assert.Contains(t, stdout.String(), "ACME: 5 of")
}

func TestAccountsSeedNoChanges(t *testing.T) {
	bumper := &stubBumper{}
	code := SeedCommand(context.Background(), &stubSeeder{}, bumper, SeedOptions{Company: "ACME", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	assert.Empty(t, bumper.companies)

	code = SeedCommand(context.Background(), &stubSeeder{}, nil, SeedOptions{Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, exitUsage, code)
}

type stubMigrator struct {
	ups, downs int
	version    uint
	err        error
}

func (m *stubMigrator) Up() error {
	m.ups++
	m.version = 1
	return m.err
}

func (m *stubMigrator) Down(steps int) error {
	m.downs += steps
	m.version = 0
	return m.err
}

func (m *stubMigrator) Version() (uint, bool, error) { return m.version, false, nil }

func TestMigrateCommand(t *testing.T) {
	m := &stubMigrator{}
	stdout := new(bytes.Buffer)
	require.Zero(t, MigrateCommand(m, MigrateOptions{Action: "up", Stdout: stdout, Stderr: new(bytes.Buffer)}))
	assert.Equal(t, 1, m.ups)
	assert.Equal(t, "schema version 1 (clean)\n", stdout.String())

	assert.Equal(t, exitUsage, MigrateCommand(m, MigrateOptions{Action: "down", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))
	require.Zero(t, MigrateCommand(m, MigrateOptions{Action: "down", Steps: 1, Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))
	assert.Equal(t, 1, m.downs)

	assert.Equal(t, exitUsage, MigrateCommand(m, MigrateOptions{Action: "sideways", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))

	m.err = errors.New("dirty database")
	assert.Equal(t, exitError, MigrateCommand(m, MigrateOptions{Action: "up", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)}))
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestJobsTrigger(t *testing.T) {
	queue := &stubQueue{}
	c := NewJobsCLI(queue, nil)
	stdout := new(bytes.Buffer)
	code := c.TriggerCommand(context.Background(), TriggerOptions{Job: "close", Company: "ACME", Period: "2024-03", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.Len(t, queue.closes, 1)
	assert.Contains(t, stdout.String(), "enqueued ledger:period_close on critical")

	code = c.TriggerCommand(context.Background(), TriggerOptions{Job: "gl-integrity", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	assert.Equal(t, []string{""}, queue.checks)

	stderr := new(bytes.Buffer)
	code = c.TriggerCommand(context.Background(), TriggerOptions{Job: "reindex", Stdout: new(bytes.Buffer), Stderr: stderr})
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr.String(), "unsupported job reindex")
}

func TestJobsStatsJSON(t *testing.T) {
	c := NewJobsCLI(nil, stubInspector{infos: map[string]*asynq.QueueInfo{
		jobs.QueueCritical: {Queue: jobs.QueueCritical, Pending: 2, Retry: 1},
	}})
	stdout := new(bytes.Buffer)
	require.Zero(t, c.StatsCommand(context.Background(), StatsOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)}))

	var stats []QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Len(t, stats, 2)
	assert.Equal(t, QueueStats{Queue: jobs.QueueCritical, Pending: 2, Retry: 1}, stats[0])
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault}, stats[1])
}

type stubBalances struct {
	tb reports.TrialBalance
}

func (s stubBalances) TrialBalance(ctx context.Context, company string, fp periods.FiscalPeriod) (reports.TrialBalance, error) {
	return s.tb, nil
}

func TestTrialBalanceCommand(t *testing.T) {
	tb := reports.TrialBalance{
		Company: "ACME",
		Period:  march(),
		Groups: []reports.TrialBalanceGroup{{
			RootNumber: "1000",
			RootName:   "Assets",
			Accounts: []reports.TrialBalanceAccount{
				{Number: "1100", Name: "Accounts Receivable - Trade", Beginning: d("500"), Debit: d("1120"), Credit: decimal.Zero, Ending: d("1620")},
			},
		}},
		TotalDebit:  d("1120"),
		TotalCredit: d("1120"),
	}
	stdout := new(bytes.Buffer)
	code := TrialBalanceCommand(context.Background(), stubBalances{tb: tb}, PeriodOptions{Company: "ACME", Period: "2024-03", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	assert.Contains(t, stdout.String(), "Trial balance ACME 2024-03")
	assert.Contains(t, stdout.String(), "1,620.00")

	code = TrialBalanceCommand(context.Background(), stubBalances{}, PeriodOptions{Company: "ACME", Period: "2024-03", Stdout: new(bytes.Buffer), Stderr: new(bytes.Buffer)})
	assert.Equal(t, exitPrecondition, code)
}

package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	ledgerclose "github.com/odyssey-erp/odyssey-ledger/internal/close"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

type fakeCloser struct {
	calls []ledgerclose.CloseInput
	err   error
	check func()
}

func (f *fakeCloser) Close(ctx context.Context, in ledgerclose.CloseInput) (ledgerclose.CloseResult, error) {
	f.calls = append(f.calls, in)
	if f.check != nil {
		f.check()
	}
	if f.err != nil {
		return ledgerclose.CloseResult{}, f.err
	}
	return ledgerclose.CloseResult{Company: in.Company, Period: in.Period}, nil
}

func closeTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewPeriodCloseTask(PeriodClosePayload{Company: "ACME", Period: "2024-03", ActorID: 9})
	require.NoError(t, err)
	return task
}

func newCloseJob(t *testing.T, engine Closer) (*PeriodCloseJob, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPeriodCloseJob(engine, client, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()), time.Minute), mr
}

func TestPeriodCloseJobRunsUnderLock(t *testing.T) {
	engine := &fakeCloser{}
	job, mr := newCloseJob(t, engine)
	lockKey := internalShared.PeriodCloseLockKey("ACME", "2024-03")
	engine.check = func() {
		assert.True(t, mr.Exists(lockKey), "lock must be held while closing")
	}

	require.NoError(t, job.Handle(context.Background(), closeTask(t)))
	require.Len(t, engine.calls, 1)
	assert.Equal(t, periods.FiscalPeriod{Year: 2024, Month: time.March}, engine.calls[0].Period)
	assert.Equal(t, int64(9), engine.calls[0].ActorID)
	assert.False(t, mr.Exists(lockKey))
}

func TestPeriodCloseJobBacksOffWhenLocked(t *testing.T) {
	engine := &fakeCloser{}
	job, mr := newCloseJob(t, engine)
	require.NoError(t, mr.Set(internalShared.PeriodCloseLockKey("ACME", "2024-03"), "other"))

	err := job.Handle(context.Background(), closeTask(t))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Empty(t, engine.calls)
}

func TestPeriodCloseJobSkipsRetryOnPermanentErrors(t *testing.T) {
	engine := &fakeCloser{err: &shared.PreconditionError{Err: shared.ErrUnliftedDeliveriesExist, Blocking: []string{"DR0000000003"}}}
	job, mr := newCloseJob(t, engine)

	err := job.Handle(context.Background(), closeTask(t))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.ErrorIs(t, err, shared.ErrUnliftedDeliveriesExist)
	assert.False(t, mr.Exists(internalShared.PeriodCloseLockKey("ACME", "2024-03")))
}

func TestPeriodCloseJobRetriesConflicts(t *testing.T) {
	engine := &fakeCloser{err: shared.ErrConflict}
	job, _ := newCloseJob(t, engine)

	err := job.Handle(context.Background(), closeTask(t))
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestPeriodCloseJobRejectsBadPayload(t *testing.T) {
	job, _ := newCloseJob(t, &fakeCloser{})
	err := job.Handle(context.Background(), asynq.NewTask(TaskPeriodClose, []byte(`{"company":"ACME","period":"March"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	_, err = NewPeriodCloseTask(PeriodClosePayload{Company: "ACME", Period: "2024-13"})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

type fakeIntegrityRepo struct {
	totals  []MonthTotal
	company string
}

func (f *fakeIntegrityRepo) MonthTotals(ctx context.Context, company string) ([]MonthTotal, error) {
	f.company = company
	return f.totals, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestGLIntegrityFlagsImbalancedMonths(t *testing.T) {
	repo := &fakeIntegrityRepo{totals: []MonthTotal{
		{Company: "ACME", Period: periods.FiscalPeriod{Year: 2024, Month: time.February}, Debit: d("100"), Credit: d("100")},
		{Company: "ACME", Period: periods.FiscalPeriod{Year: 2024, Month: time.March}, Debit: d("100"), Credit: d("99.99")},
		{Company: "BLUEWAVE", Period: periods.FiscalPeriod{Year: 2024, Month: time.March}, Debit: d("5"), Credit: d("5")},
	}}
	job := NewGLIntegrityJob(repo, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	bad, err := job.Run(context.Background(), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedgerImbalanced)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Contains(t, err.Error(), "ACME/2024-03")
	require.Len(t, bad, 1)
	assert.Equal(t, time.March, bad[0].Period.Month)
}

func TestGLIntegrityHandlePassesCompany(t *testing.T) {
	repo := &fakeIntegrityRepo{totals: []MonthTotal{
		{Company: "ACME", Period: periods.FiscalPeriod{Year: 2024, Month: time.March}, Debit: d("10"), Credit: d("10")},
	}}
	job := NewGLIntegrityJob(repo, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewGLIntegrityTask(" ACME ")
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, "ACME", repo.company)
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

func TestClientEnqueuesLedgerTasks(t *testing.T) {
	rec := &recordingEnqueuer{}
	client := &Client{client: rec}

	_, err := client.EnqueuePeriodClose(context.Background(), PeriodClosePayload{Company: "ACME", Period: "2024-03"})
	require.NoError(t, err)
	_, err = client.EnqueueGLIntegrity(context.Background(), "")
	require.NoError(t, err)

	require.Len(t, rec.tasks, 2)
	assert.Equal(t, TaskPeriodClose, rec.tasks[0].Type())
	var payload PeriodClosePayload
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &payload))
	assert.Equal(t, "2024-03", payload.Period)
	require.Len(t, rec.opts[0], 1)
	assert.Equal(t, "close:ACME:2024-03", rec.opts[0][0].Value())
	assert.Equal(t, TaskGLIntegrity, rec.tasks[1].Type())
}

type fakeInspector map[string]int

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	pending, ok := f[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return &asynq.QueueInfo{Queue: queue, Pending: pending}, nil
}

func TestHandlerHealthReportsQueues(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(fakeInspector{QueueCritical: 2}, nil).MountRoutes(r)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queues":[{"queue":"critical","pending":2},{"queue":"default","pending":0}]}`, rr.Body.String())
}

type fakePoster struct {
	req accounting.PostingRequest
	err error
}

func (f *fakePoster) Post(ctx context.Context, req accounting.PostingRequest) (accounting.PostingResult, error) {
	f.req = req
	if f.err != nil {
		return accounting.PostingResult{}, f.err
	}
	return accounting.PostingResult{Document: accounting.Document{ID: req.DocumentID, Number: "CR0000000001"}}, nil
}

func postTask(t *testing.T, id uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := NewPostDocumentTask(PostDocumentPayload{
		DocumentID: id,
		Event: journals.Event{
			Kind:   journals.KindCollection,
			Amount: d("1000"),
			Date:   time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		},
		Applications: []accounting.Application{{InvoiceID: uuid.New(), Amount: d("1000")}},
		ActorID:      3,
	})
	require.NoError(t, err)
	return task
}

func TestPostDocumentJobDecodesRequest(t *testing.T) {
	poster := &fakePoster{}
	job := NewPostDocumentJob(poster, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	id := uuid.New()

	require.NoError(t, job.Handle(context.Background(), postTask(t, id)))
	assert.Equal(t, id, poster.req.DocumentID)
	assert.Equal(t, journals.KindCollection, poster.req.Event.Kind)
	assert.True(t, poster.req.Event.Amount.Equal(d("1000")))
	require.Len(t, poster.req.Applications, 1)
	assert.Equal(t, int64(3), poster.req.ActorID)
}

func TestPostDocumentJobClassifiesErrors(t *testing.T) {
	poster := &fakePoster{err: fmt.Errorf("%w: ACME 2024-03", shared.ErrPeriodLocked)}
	job := NewPostDocumentJob(poster, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	err := job.Handle(context.Background(), postTask(t, uuid.New()))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	poster.err = shared.ErrConflict
	err = job.Handle(context.Background(), postTask(t, uuid.New()))
	assert.ErrorIs(t, err, shared.ErrConflict)
	assert.False(t, errors.Is(err, asynq.SkipRetry))

	_, err = NewPostDocumentTask(PostDocumentPayload{})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

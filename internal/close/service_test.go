package close

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/events"
)

const company = "ACME"

var (
	february = periods.FiscalPeriod{Year: 2024, Month: time.February}
	march    = periods.FiscalPeriod{Year: 2024, Month: time.March}
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type periodKey struct {
	company string
	fp      periods.FiscalPeriod
}

type memoryState struct {
	periods     map[periodKey]periods.Period
	entries     []shared.LedgerEntry
	deliveries  []Delivery
	nibit       map[periodKey]MonthlyNibit
	locked      map[uuid.UUID]LockedRecord
	balances    map[periodKey][]PeriodBalance
	subBalances map[periodKey][]SubAccountPeriodBalance
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		periods:     make(map[periodKey]periods.Period, len(s.periods)),
		entries:     append([]shared.LedgerEntry(nil), s.entries...),
		deliveries:  append([]Delivery(nil), s.deliveries...),
		nibit:       make(map[periodKey]MonthlyNibit, len(s.nibit)),
		locked:      make(map[uuid.UUID]LockedRecord, len(s.locked)),
		balances:    make(map[periodKey][]PeriodBalance, len(s.balances)),
		subBalances: make(map[periodKey][]SubAccountPeriodBalance, len(s.subBalances)),
	}
	for k, v := range s.periods {
		c.periods[k] = v
	}
	for k, v := range s.nibit {
		c.nibit[k] = v
	}
	for k, v := range s.locked {
		c.locked[k] = v
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.subBalances {
		c.subBalances[k] = v
	}
	return c
}

type memoryRepo struct {
	state   *memoryState
	catalog []accounts.AccountTitle
	commits int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		state: &memoryState{
			periods:     make(map[periodKey]periods.Period),
			nibit:       make(map[periodKey]MonthlyNibit),
			locked:      make(map[uuid.UUID]LockedRecord),
			balances:    make(map[periodKey][]PeriodBalance),
			subBalances: make(map[periodKey][]SubAccountPeriodBalance),
		},
		catalog: accounts.StandardChart(company),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	staged := m.state.clone()
	if err := fn(ctx, &memoryTx{repo: m, state: staged}); err != nil {
		return err
	}
	m.state = staged
	m.commits++
	return nil
}

func (m *memoryRepo) setStatus(fp periods.FiscalPeriod, status periods.PeriodStatus) {
	m.state.periods[periodKey{company, fp}] = periods.Period{ID: 1, Company: company, Fiscal: fp, Status: status}
}

type memoryTx struct {
	repo  *memoryRepo
	state *memoryState
}

func (tx *memoryTx) LockPeriod(ctx context.Context, c string, fp periods.FiscalPeriod) (periods.Period, error) {
	p, ok := tx.state.periods[periodKey{c, fp}]
	if !ok {
		return periods.Period{Company: c, Fiscal: fp, Status: periods.PeriodStatusOpen}, nil
	}
	return p, nil
}

func (tx *memoryTx) MarkClosed(ctx context.Context, p periods.Period, actor int64, at time.Time) error {
	p.Status = periods.PeriodStatusClosed
	p.ClosedAt, p.ClosedBy = &at, &actor
	tx.state.periods[periodKey{p.Company, p.Fiscal}] = p
	return nil
}

func (tx *memoryTx) AccountTitles(ctx context.Context, c string) ([]accounts.AccountTitle, error) {
	return tx.repo.catalog, nil
}

func (tx *memoryTx) MonthEntries(ctx context.Context, c string, fp periods.FiscalPeriod) ([]shared.LedgerEntry, error) {
	var out []shared.LedgerEntry
	for _, e := range tx.state.entries {
		if e.CompanyCode == c && fp.Contains(e.Date) && e.Posted {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tx *memoryTx) Deliveries(ctx context.Context, c string, fp periods.FiscalPeriod) ([]Delivery, error) {
	var out []Delivery
	for _, dl := range tx.state.deliveries {
		if dl.Company == c && fp.Contains(dl.Date) {
			out = append(out, dl)
		}
	}
	return out, nil
}

func (tx *memoryTx) GetNibit(ctx context.Context, c string, fp periods.FiscalPeriod) (MonthlyNibit, error) {
	n, ok := tx.state.nibit[periodKey{c, fp}]
	if !ok {
		return MonthlyNibit{}, errNotFound
	}
	return n, nil
}

func (tx *memoryTx) HasNibitBefore(ctx context.Context, c string, fp periods.FiscalPeriod) (bool, error) {
	for k := range tx.state.nibit {
		if k.company == c && k.fp.Before(fp) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) InsertNibit(ctx context.Context, n MonthlyNibit) error {
	key := periodKey{n.Company, n.Period}
	if _, ok := tx.state.nibit[key]; ok {
		return shared.ErrConflict
	}
	tx.state.nibit[key] = n
	return nil
}

func (tx *memoryTx) QueueLockedRecords(ctx context.Context, records []LockedRecord) (int, error) {
	inserted := 0
	for _, r := range records {
		if _, ok := tx.state.locked[r.DeliveryID]; ok {
			continue
		}
		tx.state.locked[r.DeliveryID] = r
		inserted++
	}
	return inserted, nil
}

func (tx *memoryTx) HasSnapshots(ctx context.Context, c string, fp periods.FiscalPeriod) (bool, error) {
	return len(tx.state.balances[periodKey{c, fp}]) > 0, nil
}

func (tx *memoryTx) PeriodBalances(ctx context.Context, c string, fp periods.FiscalPeriod) (map[int64]decimal.Decimal, error) {
	out := make(map[int64]decimal.Decimal)
	for _, b := range tx.state.balances[periodKey{c, fp}] {
		out[b.AccountID] = b.Ending
	}
	return out, nil
}

func (tx *memoryTx) SubAccountBalances(ctx context.Context, c string, fp periods.FiscalPeriod) ([]SubAccountPeriodBalance, error) {
	return tx.state.subBalances[periodKey{c, fp}], nil
}

func (tx *memoryTx) InsertBalances(ctx context.Context, rows []PeriodBalance) error {
	for _, r := range rows {
		key := periodKey{r.Company, r.Period}
		tx.state.balances[key] = append(tx.state.balances[key], r)
	}
	return nil
}

func (tx *memoryTx) InsertSubBalances(ctx context.Context, rows []SubAccountPeriodBalance) error {
	for _, r := range rows {
		key := periodKey{r.Company, r.Period}
		tx.state.subBalances[key] = append(tx.state.subBalances[key], r)
	}
	return nil
}

type recordingMetrics struct {
	outcomes []string
	locked   map[string]int
}

func (m *recordingMetrics) ObserveClose(company, outcome string) {
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) AddLockedRecords(kind string, n int) {
	if m.locked == nil {
		m.locked = make(map[string]int)
	}
	m.locked[kind] += n
}

type ledger struct {
	catalog *accounts.Catalog
	entries []shared.LedgerEntry
}

func newLedger(t *testing.T, repo *memoryRepo) *ledger {
	catalog, err := accounts.NewCatalog(repo.catalog)
	require.NoError(t, err)
	return &ledger{catalog: catalog}
}

func (l *ledger) line(t *testing.T, date time.Time, number, debit, credit string, module shared.Module, sub *shared.SubAccount) {
	acct, ok := l.catalog.ByNumber(number)
	require.True(t, ok, number)
	l.entries = append(l.entries, shared.LedgerEntry{
		ID:            int64(len(l.entries) + 1),
		BatchID:       uuid.New(),
		Date:          date,
		Reference:     "REF",
		AccountID:     acct.ID,
		AccountNumber: acct.Number,
		AccountName:   acct.Name,
		Debit:         d(debit),
		Credit:        d(credit),
		CompanyCode:   company,
		Module:        module,
		Posted:        true,
		SubAccount:    sub,
	})
}

func accountID(t *testing.T, l *ledger, number string) int64 {
	acct, ok := l.catalog.ByNumber(number)
	require.True(t, ok, number)
	return acct.ID
}

// marchActivity books a 1120 VAT-inclusive sale, its 600 cost, 200 of
// freight and a 50 prior-period freight correction.
func marchActivity(t *testing.T, l *ledger) {
	day := time.Date(2024, time.March, 12, 0, 0, 0, 0, time.UTC)
	customer := &shared.SubAccount{Type: shared.SubAccountCustomer, ID: "C-1", Name: "Northwind"}
	l.line(t, day, "1100", "1120", "0", shared.ModuleSales, customer)
	l.line(t, day, "4010", "0", "1000", shared.ModuleSales, nil)
	l.line(t, day, "2100", "0", "120", shared.ModuleSales, nil)
	l.line(t, day, "5010", "600", "0", shared.ModuleInventory, nil)
	l.line(t, day, "1200", "0", "600", shared.ModuleInventory, nil)
	l.line(t, day, "6200", "200", "0", shared.ModuleDisbursement, nil)
	l.line(t, day, "1010", "0", "200", shared.ModuleDisbursement, nil)
	l.line(t, day, "3100", "50", "0", shared.ModulePriorPeriod, nil)
	l.line(t, day, "6200", "0", "50", shared.ModulePriorPeriod, nil)
}

func newEngine(repo *memoryRepo, at time.Time) (*Engine, *events.Recorder, *recordingMetrics) {
	rec := &events.Recorder{}
	metrics := &recordingMetrics{}
	engine := NewEngine(repo, rec, metrics, nil)
	engine.WithNow(func() time.Time { return at })
	return engine, rec, metrics
}

func TestCloseChainsNibitFromPriorMonth(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)
	repo.state.nibit[periodKey{company, february}] = MonthlyNibit{Company: company, Period: february, Ending: d("10000")}

	at := time.Date(2024, time.April, 2, 9, 0, 0, 0, time.UTC)
	engine, rec, metrics := newEngine(repo, at)

	result, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march, ActorID: 7})
	require.NoError(t, err)

	assert.True(t, result.NibitCreated)
	assert.True(t, result.Nibit.Beginning.Equal(d("10000")))
	assert.True(t, result.Nibit.NetIncome.Equal(d("200")), "net income %s", result.Nibit.NetIncome)
	assert.True(t, result.Nibit.Adjustment.Equal(d("50")), "adjustment %s", result.Nibit.Adjustment)
	assert.True(t, result.Nibit.Ending.Equal(d("10250")))
	require.Len(t, result.NibitLines, 3)
	assert.Equal(t, "4000", result.NibitLines[0].RootNumber)
	assert.True(t, result.NibitLines[2].Amount.Equal(d("-200")))

	stored := repo.state.nibit[periodKey{company, march}]
	assert.True(t, stored.Ending.Equal(d("10250")))
	assert.Equal(t, at, stored.CreatedAt)

	p := repo.state.periods[periodKey{company, march}]
	assert.Equal(t, periods.PeriodStatusClosed, p.Status)
	require.NotNil(t, p.ClosedAt)
	assert.Equal(t, at, *p.ClosedAt)

	require.Len(t, rec.Events, 1)
	assert.Equal(t, events.TypePeriodClosed, rec.Events[0].Type)
	assert.Equal(t, "2024-03", rec.Events[0].Key)
	assert.Equal(t, []string{"closed"}, metrics.outcomes)
}

func TestCloseFirstNibitStartsFromZero(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)

	engine, _, _ := newEngine(repo, time.Now())
	result, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	require.NoError(t, err)
	assert.True(t, result.Nibit.Beginning.IsZero())
	assert.True(t, result.Nibit.Ending.Equal(d("250")))
}

func TestCloseRejectsNibitChainGap(t *testing.T) {
	repo := newMemoryRepo()
	repo.setStatus(march, periods.PeriodStatusLocked)
	january := periods.FiscalPeriod{Year: 2024, Month: time.January}
	repo.state.nibit[periodKey{company, january}] = MonthlyNibit{Company: company, Period: january, Ending: d("900")}

	engine, _, metrics := newEngine(repo, time.Now())
	_, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	assert.ErrorIs(t, err, shared.ErrNibitChainGap)
	assert.Equal(t, periods.PeriodStatusLocked, repo.state.periods[periodKey{company, march}].Status)
	assert.Equal(t, []string{"precondition"}, metrics.outcomes)
}

func TestCloseBlockedByUnliftedDeliveries(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)
	day := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	repo.state.deliveries = []Delivery{
		{ID: uuid.New(), Company: company, Number: "DR0000000003", Kind: DeliverySales, Date: day, Quantity: d("10"), UnitPrice: d("55")},
		{ID: uuid.New(), Company: company, Number: "DR0000000004", Kind: DeliverySales, Date: day, Quantity: d("10"), Voided: true},
		{ID: uuid.New(), Company: company, Number: "DR0000000005", Kind: DeliverySales, Date: day, Quantity: d("10"), ReceivingRef: "RCV-1"},
	}

	engine, rec, _ := newEngine(repo, time.Now())
	_, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrUnliftedDeliveriesExist)
	var pre *shared.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Equal(t, []string{"DR0000000003"}, pre.Blocking)

	assert.Empty(t, repo.state.nibit)
	assert.Empty(t, repo.state.balances)
	assert.Empty(t, repo.state.locked)
	assert.Equal(t, periods.PeriodStatusLocked, repo.state.periods[periodKey{company, march}].Status)
	assert.Zero(t, repo.commits)
	assert.Empty(t, rec.Events)
}

func TestCloseRequiresLockedPeriod(t *testing.T) {
	repo := newMemoryRepo()
	engine, _, _ := newEngine(repo, time.Now())
	_, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	assert.ErrorIs(t, err, shared.ErrPeriodNotLocked)
}

func TestCloseIsRejectedWhenAlreadyClosed(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)

	engine, _, metrics := newEngine(repo, time.Now())
	_, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	require.NoError(t, err)
	before := repo.state

	_, err = engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	assert.ErrorIs(t, err, shared.ErrPeriodAlreadyClosed)
	assert.Same(t, before, repo.state)
	assert.Equal(t, []string{"closed", "already_closed"}, metrics.outcomes)
}

func TestCloseRejectsUnbalancedMonth(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	l.line(t, time.Date(2024, time.March, 30, 0, 0, 0, 0, time.UTC), "7010", "15", "0", shared.ModuleGeneral, nil)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)

	engine, _, _ := newEngine(repo, time.Now())
	_, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	assert.ErrorIs(t, err, shared.ErrMonthUnbalanced)
	assert.Empty(t, repo.state.nibit)
	assert.Empty(t, repo.state.balances)
}

func TestCloseSnapshotsEveryAccountAndSubAccount(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)

	arID := accountID(t, l, "1100")
	cashID := accountID(t, l, "1010")
	repo.state.balances[periodKey{company, february}] = []PeriodBalance{
		{Company: company, Period: february, AccountID: arID, Ending: d("500")},
		{Company: company, Period: february, AccountID: cashID, Ending: d("1000")},
	}
	repo.state.subBalances[periodKey{company, february}] = []SubAccountPeriodBalance{
		{PeriodBalance: PeriodBalance{AccountID: arID, Ending: d("300")}, SubType: shared.SubAccountCustomer, SubID: "C-2", SubName: "Contoso"},
		{PeriodBalance: PeriodBalance{AccountID: arID, Ending: d("200")}, SubType: shared.SubAccountCustomer, SubID: "C-1", SubName: "Northwind"},
	}

	engine, _, _ := newEngine(repo, time.Now())
	result, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	require.NoError(t, err)
	assert.True(t, result.SnapshotsCreated)
	assert.Equal(t, len(repo.catalog), result.Balances)

	byID := make(map[int64]PeriodBalance)
	for _, b := range repo.state.balances[periodKey{company, march}] {
		byID[b.AccountID] = b
	}
	require.Len(t, byID, len(repo.catalog))
	assert.True(t, byID[arID].Beginning.Equal(d("500")))
	assert.True(t, byID[arID].Ending.Equal(d("1620")))
	assert.True(t, byID[cashID].Ending.Equal(d("800")))
	sales := byID[accountID(t, l, "4010")]
	assert.True(t, sales.Credit.Equal(d("1000")))
	assert.True(t, sales.Ending.Equal(d("1000")))
	interest := byID[accountID(t, l, "4510")]
	assert.True(t, interest.Ending.IsZero())
	assert.True(t, interest.Closed)

	subs := repo.state.subBalances[periodKey{company, march}]
	require.Len(t, subs, 2)
	assert.Equal(t, "C-1", subs[0].SubID)
	assert.True(t, subs[0].Beginning.Equal(d("200")))
	assert.True(t, subs[0].Ending.Equal(d("1320")))
	assert.Equal(t, "C-2", subs[1].SubID)
	assert.True(t, subs[1].Debit.IsZero())
	assert.True(t, subs[1].Ending.Equal(d("300")))
	assert.Equal(t, "Contoso", subs[1].SubName)
}

func TestCloseSkipsExistingNibitAndSnapshots(t *testing.T) {
	repo := newMemoryRepo()
	l := newLedger(t, repo)
	marchActivity(t, l)
	repo.state.entries = l.entries
	repo.setStatus(march, periods.PeriodStatusLocked)
	repo.state.nibit[periodKey{company, march}] = MonthlyNibit{Company: company, Period: march, Ending: d("42")}
	repo.state.balances[periodKey{company, march}] = []PeriodBalance{{Company: company, Period: march, AccountID: 1, Ending: d("1")}}

	engine, _, _ := newEngine(repo, time.Now())
	result, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	require.NoError(t, err)
	assert.False(t, result.NibitCreated)
	assert.False(t, result.SnapshotsCreated)
	assert.True(t, result.Nibit.Ending.Equal(d("42")))
	assert.Len(t, repo.state.balances[periodKey{company, march}], 1)
}

func TestCloseQueuesUnpricedDeliveries(t *testing.T) {
	repo := newMemoryRepo()
	repo.setStatus(march, periods.PeriodStatusLocked)
	day := time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC)
	queuedSale := uuid.New()
	repo.state.deliveries = []Delivery{
		{ID: uuid.New(), Company: company, Number: "DR0000000010", Kind: DeliverySales, Date: day, Quantity: d("5"), UnitPrice: d("60"), ReceivingRef: "R1"},
		{ID: uuid.New(), Company: company, Number: "DR0000000011", Kind: DeliverySales, Date: day, Quantity: d("8"), ReceivingRef: "R2"},
		{ID: queuedSale, Company: company, Number: "DR0000000012", Kind: DeliverySales, Date: day, Quantity: d("3"), ReceivingRef: "R3"},
		{ID: uuid.New(), Company: company, Number: "RR0000000002", Kind: DeliveryPurchase, Date: day, Quantity: d("9"), ReceivingRef: "R4"},
		{ID: uuid.New(), Company: company, Number: "DR0000000013", Kind: DeliverySales, Date: day, Quantity: d("0"), ReceivingRef: "R5"},
	}
	repo.state.locked[queuedSale] = LockedRecord{Kind: DeliverySales, Company: company, DeliveryID: queuedSale}

	engine, _, metrics := newEngine(repo, time.Now())
	result, err := engine.Close(context.Background(), CloseInput{Company: company, Period: march})
	require.NoError(t, err)
	assert.Equal(t, 1, result.LockedSales)
	assert.Equal(t, 1, result.LockedPurchases)
	assert.Len(t, repo.state.locked, 3)
	assert.Equal(t, 1, metrics.locked[string(DeliveryPurchase)])
}

func TestCloseValidatesInput(t *testing.T) {
	engine, _, _ := newEngine(newMemoryRepo(), time.Now())
	_, err := engine.Close(context.Background(), CloseInput{Company: " ", Period: march})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
	_, err = engine.Close(context.Background(), CloseInput{Company: company, Period: periods.FiscalPeriod{Year: 2024, Month: 13}})
	assert.ErrorIs(t, err, shared.ErrInvalidArgument)
}

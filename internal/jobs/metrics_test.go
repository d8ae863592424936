package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("ledger:period_close").End(nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, m.Track("ledger:period_close").End(boom))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:period_close", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ledger:period_close", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("ledger:period_close")))
}

func TestLedgerCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObservePosting("ACME", "posted")
	m.ObservePosting("ACME", "posted")
	m.ObserveClose("ACME", "closed")
	m.AddLockedRecords("SALES", 3)
	m.AddLockedRecords("SALES", 0)
	m.SetImbalancedMonths("ACME", 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.postings.WithLabelValues("ACME", "posted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closes.WithLabelValues("ACME", "closed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.lockedRecords.WithLabelValues("SALES")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.imbalances.WithLabelValues("ACME")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObservePosting("ACME", "posted")
	m.ObserveClose("ACME", "closed")
	m.AddLockedRecords("SALES", 1)
	m.SetImbalancedMonths("ACME", 1)
	assert.NoError(t, m.Track("noop").End(nil))
}

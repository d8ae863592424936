package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs and ledger activity.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	postings      *prometheus.CounterVec
	closes        *prometheus.CounterVec
	lockedRecords *prometheus.CounterVec
	imbalances    *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// ObservePosting counts a committed posting or reversal.
func (m *Metrics) ObservePosting(company, kind string) {
	if m == nil {
		return
	}
	m.postings.WithLabelValues(company, kind).Inc()
}

// ObserveClose counts a close attempt by outcome.
func (m *Metrics) ObserveClose(company, outcome string) {
	if m == nil {
		return
	}
	m.closes.WithLabelValues(company, outcome).Inc()
}

// AddLockedRecords counts deliveries queued for price true-up.
func (m *Metrics) AddLockedRecords(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.lockedRecords.WithLabelValues(kind).Add(float64(n))
}

// SetImbalancedMonths reports how many months of a company fail the
// debit/credit check as of the last integrity run.
func (m *Metrics) SetImbalancedMonths(company string, n int) {
	if m == nil {
		return
	}
	m.imbalances.WithLabelValues(company).Set(float64(n))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	postings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_postings_total",
		Help: "Committed ledger batches by company and kind.",
	}, []string{"company", "kind"})
	closes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_period_closes_total",
		Help: "Period close attempts by company and outcome.",
	}, []string{"company", "outcome"})
	lockedRecords := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_ledger_locked_records_total",
		Help: "Deliveries queued for price true-up at close.",
	}, []string{"kind"})
	imbalances := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_ledger_imbalanced_months",
		Help: "Months whose ledger lines do not net to zero, per company.",
	}, []string{"company"})
	registerer.MustRegister(runs, failures, duration, postings, closes, lockedRecords, imbalances)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		postings:      postings,
		closes:        closes,
		lockedRecords: lockedRecords,
		imbalances:    imbalances,
	}
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// POSMetrics records till activity. A nil *POSMetrics is a valid no-op.
type POSMetrics struct {
	invoicesIssued  prometheus.Counter
	sequencerErrors *prometheus.CounterVec
	commits         *prometheus.CounterVec
	commitDuration  prometheus.Histogram
	salesCents      prometheus.Counter
	cacheLookups    *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the till metrics on the provided registerer.
func New(reg prometheus.Registerer) *POSMetrics {
	if reg == nil {
		return &POSMetrics{}
	}
	m := &POSMetrics{
		invoicesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_invoice_numbers_issued_total",
			Help: "Invoice numbers handed out by the sequencer.",
		}),
		sequencerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sequencer_errors_total",
			Help: "Sequencer storage failures by step.",
		}, []string{"step"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_sale_commits_total",
			Help: "Sale commit attempts by outcome.",
		}, []string{"outcome"}),
		commitDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pos_sale_commit_duration_seconds",
			Help:    "Duration of the sale commit protocol.",
			Buckets: prometheus.DefBuckets,
		}),
		salesCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pos_sales_amount_cents_total",
			Help: "Committed sales amount in cents.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_report_cache_lookups_total",
			Help: "Report cache lookups by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pos_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pos_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	reg.MustRegister(
		m.invoicesIssued,
		m.sequencerErrors,
		m.commits,
		m.commitDuration,
		m.salesCents,
		m.cacheLookups,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *POSMetrics) IncInvoiceIssued() {
	if m == nil || m.invoicesIssued == nil {
		return
	}
	m.invoicesIssued.Inc()
}

// IncSequencerError counts a failed sequencer step ("prune" or "increment").
func (m *POSMetrics) IncSequencerError(step string) {
	if m == nil || m.sequencerErrors == nil {
		return
	}
	m.sequencerErrors.WithLabelValues(normalizeLabel(step)).Inc()
}

func (m *POSMetrics) ObserveCommit(outcome string, duration time.Duration) {
	if m == nil || m.commits == nil {
		return
	}
	m.commits.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.commitDuration.Observe(duration.Seconds())
}

func (m *POSMetrics) AddSales(cents int64) {
	if m == nil || m.salesCents == nil || cents <= 0 {
		return
	}
	m.salesCents.Add(float64(cents))
}

func (m *POSMetrics) IncCacheLookup(hit bool) {
	if m == nil || m.cacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *POSMetrics) ObserveHTTP(route string, method string, status int, duration time.Duration) {
	if m == nil || m.httpRequests == nil {
		return
	}
	route = normalizeLabel(route)
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

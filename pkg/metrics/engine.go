package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marketplace"

// Engine records order lifecycle and money movement metrics. A nil *Engine is
// a valid no-op recorder.
type Engine struct {
	transitions     *prometheus.CounterVec
	payouts         *prometheus.CounterVec
	payoutCents     *prometheus.CounterVec
	cashCollections *prometheus.CounterVec
	settlements     prometheus.Counter
	aggregation     *prometheus.HistogramVec
	requests        *prometheus.CounterVec
	requestLatency  *prometheus.HistogramVec
	jobRuns         *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	outboxPublishes *prometheus.CounterVec
	outboxPending   prometheus.Gauge
}

// NewEngine registers the engine collectors on the provided registerer.
func NewEngine(reg prometheus.Registerer) *Engine {
	if reg == nil {
		return nil
	}
	e := &Engine{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions by edge and outcome.",
		}, []string{"from", "to", "result"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_total",
			Help:      "Payout lifecycle events by status.",
		}, []string{"status"}),
		payoutCents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_amount_cents_total",
			Help:      "Payout amounts in minor units by status.",
		}, []string{"status"}),
		cashCollections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cash_collections_total",
			Help:      "Cash collection attempts by result.",
		}, []string{"result"}),
		settlements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_created_total",
			Help:      "Settlements created.",
		}),
		aggregation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of settlement and balance aggregations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "API requests by route pattern and status.",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "API request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "maintenance_job_runs_total",
			Help:      "Maintenance job runs by job and result.",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "maintenance_job_duration_seconds",
			Help:      "Maintenance job duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
		outboxPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_publish_total",
			Help:      "Outbox relay publish attempts by result.",
		}, []string{"result"}),
		outboxPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending_events",
			Help:      "Outbox rows still waiting to be published.",
		}),
	}
	reg.MustRegister(
		e.transitions, e.payouts, e.payoutCents, e.cashCollections, e.settlements,
		e.aggregation, e.requests, e.requestLatency, e.jobRuns, e.jobDuration,
		e.outboxPublishes, e.outboxPending,
	)
	return e
}

// ObserveTransition counts a transition attempt; result is "ok" or an error code.
func (e *Engine) ObserveTransition(from, to, result string) {
	if e == nil {
		return
	}
	e.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(result)).Inc()
}

// ObservePayout counts a payout event and its amount.
func (e *Engine) ObservePayout(status string, amountCents int64) {
	if e == nil {
		return
	}
	status = normalizeLabel(status)
	e.payouts.WithLabelValues(status).Inc()
	if amountCents > 0 {
		e.payoutCents.WithLabelValues(status).Add(float64(amountCents))
	}
}

func (e *Engine) ObserveCashCollection(result string) {
	if e == nil {
		return
	}
	e.cashCollections.WithLabelValues(normalizeLabel(result)).Inc()
}

func (e *Engine) IncSettlementCreated() {
	if e == nil {
		return
	}
	e.settlements.Inc()
}

// ObserveAggregation records how long an aggregation of the given kind took.
func (e *Engine) ObserveAggregation(kind string, duration time.Duration) {
	if e == nil {
		return
	}
	e.aggregation.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

// ObserveRequest records one served request. route is the router pattern, not
// the raw path, to keep label cardinality bounded.
func (e *Engine) ObserveRequest(method, route string, status int, duration time.Duration) {
	if e == nil {
		return
	}
	route = normalizeLabel(route)
	e.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	e.requestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveJob records one maintenance job run.
func (e *Engine) ObserveJob(job string, duration time.Duration, err error) {
	if e == nil {
		return
	}
	job = normalizeLabel(job)
	result := "success"
	if err != nil {
		result = "failure"
	}
	e.jobRuns.WithLabelValues(job, result).Inc()
	e.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveOutboxPublish counts one relay attempt. result is "published",
// "retry" or "dead_letter".
func (e *Engine) ObserveOutboxPublish(result string) {
	if e == nil {
		return
	}
	e.outboxPublishes.WithLabelValues(normalizeLabel(result)).Inc()
}

func (e *Engine) SetOutboxPending(n int64) {
	if e == nil {
		return
	}
	e.outboxPending.Set(float64(n))
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

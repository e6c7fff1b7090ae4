package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "settlement"

// Collector owns a private registry so tests can build as many as they like.
// All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	drafts         prometheus.Counter
	commits        *prometheus.CounterVec
	commitRetries  prometheus.Counter
	reversals      *prometheus.CounterVec
	allocated      *prometheus.CounterVec
	carriedDebt    prometheus.Counter
	obligations    *prometheus.CounterVec
	jobRuns        *prometheus.CounterVec
	configWarnings prometheus.Counter
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		drafts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlements",
			Name:      "drafts_total",
			Help:      "Settlement drafts built.",
		}),
		commits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlements",
			Name:      "commits_total",
			Help:      "Settlement commit attempts by outcome.",
		}, []string{"outcome"}),
		commitRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlements",
			Name:      "commit_retries_total",
			Help:      "Settle retries caused by stale obligation versions.",
		}),
		reversals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlements",
			Name:      "reversals_total",
			Help:      "Settlement reversals by outcome.",
		}, []string{"outcome"}),
		allocated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "allocated_amount_total",
			Help:      "Obligation amount recovered by committed settlements, by category.",
		}, []string{"category"}),
		carriedDebt: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "carried_debt_amount_total",
			Help:      "Shortfall carried forward by committed settlements.",
		}),
		obligations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "obligation_events_total",
			Help:      "Obligation lifecycle events.",
		}, []string{"event"}),
		jobRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Background job runs by type and status.",
		}, []string{"type", "status"}),
		configWarnings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driverpay",
			Name:      "configuration_warnings_total",
			Help:      "Jobs priced at zero because the payee has no usable pay rate.",
		}),
	}
}

func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) Record(method string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func (c *Collector) DraftBuilt(warnings int) {
	if c == nil {
		return
	}
	c.drafts.Inc()
	if warnings > 0 {
		c.configWarnings.Add(float64(warnings))
	}
}

func (c *Collector) CommitOutcome(outcome string) {
	if c == nil {
		return
	}
	c.commits.WithLabelValues(outcome).Inc()
}

func (c *Collector) CommitRetry() {
	if c == nil {
		return
	}
	c.commitRetries.Inc()
}

func (c *Collector) Committed(byCategory map[string]decimal.Decimal, carried decimal.Decimal) {
	if c == nil {
		return
	}
	c.commits.WithLabelValues("committed").Inc()
	for category, amount := range byCategory {
		c.allocated.WithLabelValues(category).Add(amount.InexactFloat64())
	}
	if carried.IsPositive() {
		c.carriedDebt.Add(carried.InexactFloat64())
	}
}

func (c *Collector) ReversalOutcome(outcome string) {
	if c == nil {
		return
	}
	c.reversals.WithLabelValues(outcome).Inc()
}

func (c *Collector) ObligationEvent(event string) {
	if c == nil {
		return
	}
	c.obligations.WithLabelValues(event).Inc()
}

func (c *Collector) JobRun(jobType, status string) {
	if c == nil {
		return
	}
	c.jobRuns.WithLabelValues(jobType, status).Inc()
}

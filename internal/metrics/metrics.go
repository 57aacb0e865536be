// Package metrics exposes execution outcomes as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/lzrecv/internal/engine"
)

const namespace = "lzrecv"

// Collector records engine receipts. It implements engine.Observer.
type Collector struct {
	registry *prometheus.Registry

	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	deposited  prometheus.Counter
	deposits   prometheus.Counter
	acks       prometheus.Counter
	calls      prometheus.Counter
}

// New creates a Collector with its own registry, including the process
// and Go runtime collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "executions_total",
				Help:      "Messages executed, by kind, status and error code.",
			},
			[]string{"kind", "status", "code"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "execution_duration_seconds",
				Help:      "Duration of message executions.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
			},
			[]string{"status"},
		),
		deposited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deposited_amount_total",
			Help:      "Sum of deposited amounts in base units.",
		}),
		deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "deposits_total",
			Help:      "Deposit events emitted.",
		}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "endpoint",
			Name:      "acks_sent_total",
			Help:      "Acknowledgement messages composed.",
		}),
		calls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lending",
			Name:      "external_calls_total",
			Help:      "Deposit calls issued into the lending program.",
		}),
	}
	c.registry.MustRegister(
		c.executions,
		c.duration,
		c.deposited,
		c.deposits,
		c.acks,
		c.calls,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return c
}

// ObserveExecution implements engine.Observer.
func (c *Collector) ObserveExecution(r engine.Receipt, elapsed time.Duration) {
	kind := r.Kind
	if kind == "" {
		kind = "unknown"
	}
	c.executions.WithLabelValues(kind, string(r.Status), string(r.Code)).Inc()
	c.duration.WithLabelValues(string(r.Status)).Observe(elapsed.Seconds())

	if r.Status != engine.StatusComplete {
		return
	}
	if r.Event != nil {
		c.deposits.Inc()
		c.deposited.Add(float64(r.Event.Amount))
	}
	if r.Ack != nil {
		c.acks.Inc()
	}
	if r.Call != nil {
		c.calls.Inc()
	}
}

// Registry returns the registry the collectors are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the registered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Package metrics exposes the exchange feed as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	exchange "github.com/0x5487/stock-exchange"
)

const namespace = "exchange"

// Metrics counts feed activity. It implements exchange.PublishLog and owns its
// registry, so several instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	logs         *prometheus.CounterVec
	fills        *prometheus.CounterVec
	filledShares *prometheus.CounterVec
	rejects      *prometheus.CounterVec
	shocks       *prometheus.CounterVec
	price        *prometheus.GaugeVec
	availability *prometheus.GaugeVec
	lastSeqID    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "logs_total",
			Help:      "Exchange logs published, by type",
		}, []string{"type"}),
		fills: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "fills_total",
			Help:      "Executed orders",
		}, []string{"symbol", "side", "kind"}),
		filledShares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "filled_shares_total",
			Help:      "Shares moved by executed orders",
		}, []string{"symbol", "side"}),
		rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "rejects_total",
			Help:      "Rejected orders, by reason",
		}, []string{"reason"}),
		shocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "shocks_total",
			Help:      "Macro events applied, by label",
		}, []string{"label"}),
		price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "price",
			Help:      "Current price per instrument",
		}, []string{"symbol"}),
		availability: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "availability",
			Help:      "Shares currently available per instrument",
		}, []string{"symbol"}),
		lastSeqID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "last_seq_id",
			Help:      "Sequence ID of the last published log",
		}),
	}

	m.registry.MustRegister(
		m.logs, m.fills, m.filledShares, m.rejects, m.shocks, m.price, m.availability, m.lastSeqID,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Publish implements exchange.PublishLog.
func (m *Metrics) Publish(logs ...*exchange.ExchangeLog) {
	for _, log := range logs {
		m.logs.WithLabelValues(string(log.Type)).Inc()
		m.lastSeqID.Set(float64(log.SequenceID))

		switch log.Type {
		case exchange.LogTypeQuote:
			m.price.WithLabelValues(log.Symbol).Set(log.Price.InexactFloat64())
			m.availability.WithLabelValues(log.Symbol).Set(float64(log.Availability))
		case exchange.LogTypeFill:
			m.fills.WithLabelValues(log.Symbol, log.Side.String(), string(log.OrderKind)).Inc()
			m.filledShares.WithLabelValues(log.Symbol, log.Side.String()).Add(float64(log.Quantity))
		case exchange.LogTypeReject:
			m.rejects.WithLabelValues(string(log.RejectReason)).Inc()
		case exchange.LogTypeShock:
			m.shocks.WithLabelValues(log.EventLabel).Inc()
		}
	}
}

// WatchPending exports fn as a gauge sampled at scrape time.
func (m *Metrics) WatchPending(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

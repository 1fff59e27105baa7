// internal/utils/metrics/collector.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricType представляет тип метрики
type MetricType string

const (
	TradesCounterType       MetricType = "trades_total"
	WarningsCounterType     MetricType = "warnings_total"
	IngestRunsCounterType   MetricType = "ingest_runs_total"
	IngestDurationType      MetricType = "ingest_duration"
	RealizedGaugeType       MetricType = "realized_usd"
	HTTPRequestDurationType MetricType = "http_request_duration"
	ReplaysCounterType      MetricType = "replays_total"
	EventFailuresType       MetricType = "event_publish_failures_total"
)

// Collector управляет набором метрик на собственном реестре
type Collector struct {
	metrics  sync.Map
	registry *prometheus.Registry
}

// NewCollector создает коллектор и регистрирует метрики
func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}
	c.initializeMetrics()
	return c
}

// Registry returns the registry to expose over HTTP.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) initializeMetrics() {
	metricsMap := map[MetricType]prometheus.Collector{
		TradesCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "solana_pnl",
				Name:      "trades_total",
				Help:      "Trades seen by ingestion, by outcome",
			},
			[]string{"wallet", "outcome"},
		),
		WarningsCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "solana_pnl",
				Name:      "warnings_total",
				Help:      "Ingestion warnings by kind",
			},
			[]string{"wallet", "kind"},
		),
		IngestRunsCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "solana_pnl",
				Name:      "ingest_runs_total",
				Help:      "Ingestion runs by status",
			},
			[]string{"wallet", "status"},
		),
		IngestDurationType: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "solana_pnl",
				Name:      "ingest_duration_seconds",
				Help:      "Ingestion run duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"wallet"},
		),
		RealizedGaugeType: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "solana_pnl",
				Name:      "realized_usd",
				Help:      "Realized PnL in USD after the last commit",
			},
			[]string{"wallet"},
		),
		ReplaysCounterType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "solana_pnl",
				Name:      "replays_total",
				Help:      "Runs that replayed the wallet history because of a late trade",
			},
			[]string{"wallet"},
		),
		EventFailuresType: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "solana_pnl",
				Name:      "event_publish_failures_total",
				Help:      "Committed-run events that could not be handed to the bus",
			},
			[]string{"event_type"},
		),
		HTTPRequestDurationType: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "solana_pnl",
				Name:      "http_request_duration_seconds",
				Help:      "Latency of market data requests",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
			},
			[]string{"provider", "status"},
		),
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		c.registry.MustRegister(metric)
	}
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}

func (c *Collector) counter(t MetricType) *prometheus.CounterVec {
	if c == nil {
		return nil
	}
	v, ok := c.metrics.Load(t)
	if !ok {
		return nil
	}
	cv, _ := v.(*prometheus.CounterVec)
	return cv
}

func (c *Collector) histogram(t MetricType) *prometheus.HistogramVec {
	if c == nil {
		return nil
	}
	v, ok := c.metrics.Load(t)
	if !ok {
		return nil
	}
	hv, _ := v.(*prometheus.HistogramVec)
	return hv
}

func (c *Collector) gauge(t MetricType) *prometheus.GaugeVec {
	if c == nil {
		return nil
	}
	v, ok := c.metrics.Load(t)
	if !ok {
		return nil
	}
	gv, _ := v.(*prometheus.GaugeVec)
	return gv
}

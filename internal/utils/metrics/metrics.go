// internal/utils/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IngestOutcome is what happened to the trades of one run.
type IngestOutcome struct {
	Applied    int
	Duplicates int
	Skipped    int
	Warnings   map[string]int
	Realized   float64
	// Committed is false for runs that had nothing new to apply.
	Committed bool
	Replayed  bool
}

// RecordIngest записывает метрики успешного прогона, в том числе пустого. Безопасно для nil
func (c *Collector) RecordIngest(wallet string, out IngestOutcome, duration time.Duration) {
	if c == nil {
		return
	}
	if cv := c.counter(TradesCounterType); cv != nil {
		cv.WithLabelValues(wallet, "applied").Add(float64(out.Applied))
		cv.WithLabelValues(wallet, "duplicate").Add(float64(out.Duplicates))
		cv.WithLabelValues(wallet, "skipped").Add(float64(out.Skipped))
	}
	if cv := c.counter(WarningsCounterType); cv != nil {
		for kind, n := range out.Warnings {
			cv.WithLabelValues(wallet, kind).Add(float64(n))
		}
	}
	status := "noop"
	if out.Committed {
		status = "committed"
	}
	if cv := c.counter(IngestRunsCounterType); cv != nil {
		cv.WithLabelValues(wallet, status).Inc()
	}
	if out.Replayed {
		if cv := c.counter(ReplaysCounterType); cv != nil {
			cv.WithLabelValues(wallet).Inc()
		}
	}
	if hv := c.histogram(IngestDurationType); hv != nil {
		hv.WithLabelValues(wallet).Observe(duration.Seconds())
	}
	if gv := c.gauge(RealizedGaugeType); gv != nil {
		gv.WithLabelValues(wallet).Set(out.Realized)
	}
}

// RecordIngestFailure считает прогоны, завершившиеся ошибкой хранилища
func (c *Collector) RecordIngestFailure(wallet string, duration time.Duration) {
	if c == nil {
		return
	}
	if cv := c.counter(IngestRunsCounterType); cv != nil {
		cv.WithLabelValues(wallet, "failed").Inc()
	}
	if hv := c.histogram(IngestDurationType); hv != nil {
		hv.WithLabelValues(wallet).Observe(duration.Seconds())
	}
}

// RecordEventFailure считает события, которые не удалось передать в шину
func (c *Collector) RecordEventFailure(eventType string) {
	if c == nil {
		return
	}
	if cv := c.counter(EventFailuresType); cv != nil {
		cv.WithLabelValues(eventType).Inc()
	}
}

// RecordHTTPRequest записывает задержку запроса к внешнему API
func (c *Collector) RecordHTTPRequest(provider string, statusCode int, duration time.Duration) {
	if c == nil {
		return
	}
	if hv := c.histogram(HTTPRequestDurationType); hv != nil {
		hv.WithLabelValues(provider, strconv.Itoa(statusCode)).Observe(duration.Seconds())
	}
}

// Handler exposes the collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

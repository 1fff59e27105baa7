package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordIngest(t *testing.T) {
	c := NewCollector()

	c.RecordIngest("w1", IngestOutcome{
		Applied:    3,
		Duplicates: 2,
		Skipped:    1,
		Warnings:   map[string]int{"malformed": 1},
		Realized:   22,
		Committed:  true,
		Replayed:   true,
	}, 5*time.Millisecond)
	c.RecordIngestFailure("w1", time.Millisecond)

	assert.Equal(t, 3.0, testutil.ToFloat64(c.counter(TradesCounterType).WithLabelValues("w1", "applied")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.counter(TradesCounterType).WithLabelValues("w1", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counter(WarningsCounterType).WithLabelValues("w1", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counter(IngestRunsCounterType).WithLabelValues("w1", "failed")))
	assert.Equal(t, 22.0, testutil.ToFloat64(c.gauge(RealizedGaugeType).WithLabelValues("w1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counter(ReplaysCounterType).WithLabelValues("w1")))
}

func TestRecordIngest_NoopRunStillCounts(t *testing.T) {
	c := NewCollector()

	c.RecordIngest("w1", IngestOutcome{
		Duplicates: 4,
		Skipped:    1,
		Warnings:   map[string]int{"malformed": 1},
	}, time.Millisecond)

	assert.Equal(t, 4.0, testutil.ToFloat64(c.counter(TradesCounterType).WithLabelValues("w1", "duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counter(WarningsCounterType).WithLabelValues("w1", "malformed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.counter(IngestRunsCounterType).WithLabelValues("w1", "noop")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.counter(IngestRunsCounterType).WithLabelValues("w1", "committed")))
}

func TestRecordEventFailure(t *testing.T) {
	c := NewCollector()
	c.RecordEventFailure("sale.realized")
	c.RecordEventFailure("sale.realized")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.counter(EventFailuresType).WithLabelValues("sale.realized")))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *Collector
	c.RecordIngest("w", IngestOutcome{Applied: 1}, time.Second)
	c.RecordIngestFailure("w", time.Second)
	c.RecordHTTPRequest("dexscreener", 200, time.Second)
	c.RecordEventFailure("sale.realized")
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RecordHTTPRequest("solanatracker", 200, 10*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "solana_pnl_http_request_duration_seconds"))
}

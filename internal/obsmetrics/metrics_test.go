package obsmetrics

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// New registers every metric against the global Prometheus registry, so this
// must be the only test in the package that calls it.
func TestNew_RegistersEveryMetricAndHandlerServesScrape(t *testing.T) {
	r := New()
	require.NotNil(t, r)
	assert.NotNil(t, r.IngestReconnects)
	assert.NotNil(t, r.IngestState)
	assert.NotNil(t, r.CandleFinalized)
	assert.NotNil(t, r.SignalLatency)
	assert.NotNil(t, r.DecisionLatency)
	assert.NotNil(t, r.FanoutQueueDepth)
	assert.NotNil(t, r.CacheHits)
	assert.NotNil(t, r.CacheMisses)

	r.IngestReconnects.WithLabelValues("NIFTY").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "indexpulse_ingest_reconnects_total")
}

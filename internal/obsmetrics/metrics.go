// Package obsmetrics is the Prometheus metrics surface, grounded on the
// teacher's internal/interfaces/http/metrics.go MetricsRegistry pattern
// (named vectors registered once at startup and a promhttp.Handler()-backed
// /metrics route), adapted from pipeline-step/regime
// metrics to ingest/candle/signal/fan-out metrics for this domain.
package obsmetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this service exports.
type Registry struct {
	IngestReconnects   *prometheus.CounterVec
	IngestState        *prometheus.GaugeVec
	CandleFinalized    *prometheus.CounterVec
	SignalLatency      *prometheus.HistogramVec
	DecisionLatency    *prometheus.HistogramVec
	FanoutQueueDepth   prometheus.Gauge
	CacheHits          *prometheus.CounterVec
	CacheMisses        *prometheus.CounterVec
}

// New creates and registers every metric. Call once at startup.
func New() *Registry {
	r := &Registry{
		IngestReconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexpulse_ingest_reconnects_total",
				Help: "Total number of Ingest Supervisor reconnect attempts by symbol",
			},
			[]string{"symbol"},
		),
		IngestState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "indexpulse_ingest_state",
				Help: "Current Ingest Supervisor state as a numeric code",
			},
			[]string{"state"},
		),
		CandleFinalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexpulse_candles_finalized_total",
				Help: "Total number of finalized candles by symbol and timeframe",
			},
			[]string{"symbol", "timeframe"},
		),
		SignalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexpulse_signal_eval_seconds",
				Help:    "Duration of a full 14-signal evaluation",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"symbol"},
		),
		DecisionLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexpulse_decision_eval_seconds",
				Help:    "Duration of a decision evaluation",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"symbol"},
		),
		FanoutQueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "indexpulse_fanout_queue_depth",
				Help: "Aggregate depth across all connected client send queues",
			},
		),
		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexpulse_cache_hits_total",
				Help: "Total cache hits by key kind",
			},
			[]string{"kind"},
		),
		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexpulse_cache_misses_total",
				Help: "Total cache misses by key kind",
			},
			[]string{"kind"},
		),
	}

	prometheus.MustRegister(
		r.IngestReconnects, r.IngestState, r.CandleFinalized,
		r.SignalLatency, r.DecisionLatency, r.FanoutQueueDepth,
		r.CacheHits, r.CacheMisses,
	)
	return r
}

// Handler exposes the Prometheus scrape endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}

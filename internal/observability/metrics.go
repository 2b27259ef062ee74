// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Indexer metrics
	EventsProcessed   *prometheus.CounterVec
	EventsSkipped     *prometheus.CounterVec
	TokensRegistered  prometheus.Counter
	SignaturesPolled  prometheus.Counter
	IndexerCycleError prometheus.Counter

	// Trade metrics
	TradesApplied  *prometheus.CounterVec
	TradesReplayed prometheus.Counter
	TradeVolume    prometheus.Counter

	// Candle metrics
	CandlesUpserted   prometheus.Counter
	CandlesBackfilled prometheus.Counter
	CandlesArchived   prometheus.Counter

	// Graduation metrics
	GraduationsStarted   prometheus.Counter
	GraduationsCompleted prometheus.Counter
	GraduationFailures   *prometheus.CounterVec
	LPTokensBurned       prometheus.Counter

	// Latency metrics
	RPCCallLatency   *prometheus.HistogramVec
	WSMessageLatency prometheus.Histogram
	ApplyLatency     prometheus.Histogram

	// Health metrics
	LastEventTimestamp prometheus.Gauge
	HighestSlotSeen    prometheus.Gauge
	ActiveTokens       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "curve_engine"
	}

	return &Metrics{
		// Indexer metrics
		EventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_processed_total",
			Help:      "Total number of chain events processed by kind",
		}, []string{"kind"}),
		EventsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "events_skipped_total",
			Help:      "Total number of chain events skipped by reason",
		}, []string{"reason"}),
		TokensRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "tokens_registered_total",
			Help:      "Total number of tokens registered from creation events",
		}),
		SignaturesPolled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "signatures_polled_total",
			Help:      "Total number of signatures fetched by the polling loop",
		}),
		IndexerCycleError: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "indexer",
			Name:      "cycle_errors_total",
			Help:      "Total number of failed poll cycles",
		}),

		// Trade metrics
		TradesApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "applied_total",
			Help:      "Total number of trades applied by direction",
		}, []string{"direction"}),
		TradesReplayed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "replayed_total",
			Help:      "Total number of duplicate trade signatures replayed",
		}),
		TradeVolume: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "volume_lamports_total",
			Help:      "Cumulative traded volume in lamports",
		}),

		// Candle metrics
		CandlesUpserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "upserted_total",
			Help:      "Total number of live candle upserts",
		}),
		CandlesBackfilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "backfilled_total",
			Help:      "Total number of candle buckets backfilled from trade history",
		}),
		CandlesArchived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "candles",
			Name:      "archived_total",
			Help:      "Total number of closed candles shipped to the archive",
		}),

		// Graduation metrics
		GraduationsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "started_total",
			Help:      "Total number of graduation runs started",
		}),
		GraduationsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "completed_total",
			Help:      "Total number of tokens fully graduated",
		}),
		GraduationFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "failures_total",
			Help:      "Total number of graduation failures by stage",
		}, []string{"stage"}),
		LPTokensBurned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "graduation",
			Name:      "lp_burns_total",
			Help:      "Total number of successful LP burns",
		}),

		// Latency metrics
		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		WSMessageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_message_latency_seconds",
			Help:      "WebSocket message processing latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		ApplyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "apply_latency_seconds",
			Help:      "Trade application latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		// Health metrics
		LastEventTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last processed chain event",
		}),
		HighestSlotSeen: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		ActiveTokens: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "active_tokens",
			Help:      "Number of tokens with a live curve state",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordEventProcessed increments the processed counter for a kind.
func RecordEventProcessed(kind string) {
	DefaultMetrics.EventsProcessed.WithLabelValues(kind).Inc()
}

// RecordEventSkipped increments the skipped counter for a reason.
func RecordEventSkipped(reason string) {
	DefaultMetrics.EventsSkipped.WithLabelValues(reason).Inc()
}

// RecordTokenRegistered increments the tokens registered counter.
func RecordTokenRegistered() {
	DefaultMetrics.TokensRegistered.Inc()
}

// RecordTradeApplied records an applied trade and its volume.
func RecordTradeApplied(direction string, solLamports float64) {
	DefaultMetrics.TradesApplied.WithLabelValues(direction).Inc()
	DefaultMetrics.TradeVolume.Add(solLamports)
}

// RecordTradeReplayed increments the replayed trades counter.
func RecordTradeReplayed() {
	DefaultMetrics.TradesReplayed.Inc()
}

// RecordGraduationFailure records a graduation failure for a stage.
func RecordGraduationFailure(stage string) {
	DefaultMetrics.GraduationFailures.WithLabelValues(stage).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// UpdateHighestSlot updates the highest slot seen gauge.
func UpdateHighestSlot(slot int64) {
	DefaultMetrics.HighestSlotSeen.Set(float64(slot))
}

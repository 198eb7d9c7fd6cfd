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
	// Settlement metrics
	SettlementsTotal   *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	ReceiptsPublished  prometheus.Counter
	ReceiptErrors      prometheus.Counter

	// Reward metrics
	RewardPayouts   *prometheus.CounterVec
	RewardDisbursed *prometheus.CounterVec

	// Listing lifecycle metrics
	ListingOperations *prometheus.CounterVec

	// Solana metrics
	RPCCallLatency    *prometheus.HistogramVec
	MetadataCacheHits *prometheus.CounterVec

	// Feed metrics
	FeedSubscribers prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulSettlement prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered with reg.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "reward_center"
	}
	factory := promauto.With(reg)

	return &Metrics{
		SettlementsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "settlements_total",
			Help:      "Total number of settlement attempts by outcome",
		}, []string{"outcome"}),
		SettlementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "duration_seconds",
			Help:      "Settlement duration in seconds, including the ledger commit",
			Buckets:   prometheus.DefBuckets,
		}),
		ReceiptsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "receipts_published_total",
			Help:      "Total number of receipts delivered to the receipt feed",
		}),
		ReceiptErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "receipt_errors_total",
			Help:      "Total number of receipts that failed to persist after a committed settlement",
		}),

		RewardPayouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "payouts_total",
			Help:      "Total number of reward payouts by side and status",
		}, []string{"side", "status"}),
		RewardDisbursed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rewards",
			Name:      "disbursed_tokens_total",
			Help:      "Total reward tokens disbursed by side",
		}, []string{"side"}),

		ListingOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "listings",
			Name:      "operations_total",
			Help:      "Total number of listing lifecycle operations by kind and status",
		}, []string{"operation", "status"}),

		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		MetadataCacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "metadata_cache_lookups_total",
			Help:      "Metadata cache lookups by result",
		}, []string{"result"}),

		FeedSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "receipt_feed_subscribers",
			Help:      "Current number of websocket receipt feed subscribers",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		DBConnections: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of database connections by state",
		}, []string{"database", "state"}),

		LastSuccessfulSettlement: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_settlement_timestamp",
			Help:      "Unix timestamp of last committed settlement",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", prometheus.DefaultRegisterer)

// RecordSettlement records one settlement attempt.
func RecordSettlement(outcome string, seconds float64) {
	DefaultMetrics.SettlementsTotal.WithLabelValues(outcome).Inc()
	DefaultMetrics.SettlementDuration.Observe(seconds)
}

// RecordSettlementCommitted updates the last successful settlement gauge.
func RecordSettlementCommitted(unixSeconds int64) {
	DefaultMetrics.LastSuccessfulSettlement.Set(float64(unixSeconds))
}

// RecordReceiptPublished increments the receipts published counter.
func RecordReceiptPublished() {
	DefaultMetrics.ReceiptsPublished.Inc()
}

// RecordReceiptError increments the receipt persistence error counter.
func RecordReceiptError() {
	DefaultMetrics.ReceiptErrors.Inc()
}

// RecordRewardPayout records a payout decision. status is "paid" or "skipped".
func RecordRewardPayout(side, status string, amount uint64) {
	DefaultMetrics.RewardPayouts.WithLabelValues(side, status).Inc()
	if status == "paid" {
		DefaultMetrics.RewardDisbursed.WithLabelValues(side).Add(float64(amount))
	}
}

// RecordListingOperation records a listing lifecycle operation.
func RecordListingOperation(operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.ListingOperations.WithLabelValues(operation, status).Inc()
}

// RecordRPCLatency records RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordMetadataCache records a metadata cache lookup. result is "hit" or "miss".
func RecordMetadataCache(result string) {
	DefaultMetrics.MetadataCacheHits.WithLabelValues(result).Inc()
}

// UpdateFeedSubscribers sets the receipt feed subscriber gauge.
func UpdateFeedSubscribers(n int) {
	DefaultMetrics.FeedSubscribers.Set(float64(n))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// UpdateDBConnections sets the connection gauges for a database.
func UpdateDBConnections(database string, acquired, idle int) {
	DefaultMetrics.DBConnections.WithLabelValues(database, "acquired").Set(float64(acquired))
	DefaultMetrics.DBConnections.WithLabelValues(database, "idle").Set(float64(idle))
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Engine API metrics
	EngineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotusgift_engine_requests_total",
			Help: "Total number of trading engine API calls",
		},
		[]string{"operation", "result"},
	)

	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotusgift_engine_request_duration_seconds",
			Help:    "Trading engine API call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	StatusPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotusgift_status_polls_total",
			Help: "Total number of order status polls by observed status",
		},
		[]string{"status"},
	)

	// Chain metrics
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotusgift_transactions_sent_total",
			Help: "Total number of transactions broadcast",
		},
		[]string{"kind", "chain_id", "result"},
	)

	ChainDials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotusgift_chain_dials_total",
			Help: "Total number of RPC connections opened",
		},
		[]string{"chain_id", "result"},
	)

	// Trade metrics
	Trades = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotusgift_trades_total",
			Help: "Total number of trade attempts by outcome",
		},
		[]string{"mode", "outcome"},
	)

	TradeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotusgift_trade_duration_seconds",
			Help:    "End-to-end trade duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"mode"},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotusgift_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lotusgift_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	webhookEventCounter    *prometheus.CounterVec
	payoutRequestCounter   *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	ledgerImbalanceCounter *prometheus.CounterVec
	anomalyCounter         *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		webhookEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook reconciliation outcomes",
		}, []string{"provider", "outcome"})

		payoutRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_requests_total",
			Help: "Payout orchestrator decisions",
		}, []string{"result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of times the creator balance equation diverged",
		}, []string{"currency"})

		anomalyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconciliation_anomalies_total",
			Help: "Anomalies quarantined for operator review",
		}, []string{"kind"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			webhookEventCounter,
			payoutRequestCounter,
			idempotencyCounter,
			ledgerImbalanceCounter,
			anomalyCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementWebhookEvent(provider, outcome string) {
	if webhookEventCounter == nil {
		return
	}
	webhookEventCounter.WithLabelValues(provider, outcome).Inc()
}

func IncrementPayoutRequest(result string) {
	if payoutRequestCounter == nil {
		return
	}
	payoutRequestCounter.WithLabelValues(result).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementLedgerImbalance(currency string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(currency).Inc()
}

func IncrementAnomaly(kind string) {
	if anomalyCounter == nil {
		return
	}
	anomalyCounter.WithLabelValues(kind).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

type Outcome string

const (
	Success                  Outcome       = "success"
	Error                    Outcome       = "error"
	MetricRequestTimeout     time.Duration = 5 * time.Second
	MetricRequestIdleTimeout time.Duration = 10 * time.Second
)

func (O Outcome) String() string {
	return string(O)
}

func outcome(failure bool) Outcome {
	if failure {
		return Error
	}
	return Success
}

var defaultHistogramBucketsSeconds = []float64{0.1, 0.5, 1, 2.5, 5, 10, 30}

// Collectors are created eagerly so that recording before Init (tests, CLI
// sub-commands) is a no-op instead of a nil dereference. Init only exposes
// them.
var (
	once          sync.Once
	metricsRouter *chi.Mux

	settlementClientLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settlement_client_latency_seconds",
			Help:    "Histogram of settlement client durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"wallet", "method", "status"},
	)

	queueSendErrorCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "queue_send_error_count",
			Help: "The total number of errors when sending messages to the queue",
		},
	)

	jobDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduled_job_duration_seconds",
			Help:    "Histogram of scheduled job run durations in seconds.",
			Buckets: defaultHistogramBucketsSeconds,
		},
		[]string{"job", "status"},
	)

	jobLastSuccessGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduled_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run of each scheduled job",
		},
		[]string{"job"},
	)

	dbLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "db_latency_seconds",
			Help: "DB latency in seconds splitted by method and execution status",
		},
		[]string{"method", "status"},
	)

	lockContentionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lock_contention_retries_total",
			Help: "Number of retries spent waiting for a lock",
		},
		[]string{"lock"},
	)

	jobLockSkipCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_lock_skipped_total",
			Help: "Scheduled job runs skipped because another instance held the lock",
		},
		[]string{"job"},
	)

	stakeOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stake_operations_total",
			Help: "Stake, unstake, claim and compound operations split by outcome",
		},
		[]string{"operation", "status"},
	)

	settledAmountCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "settled_amount_total",
			Help: "Token amount (smallest unit) moved by operation",
		},
		[]string{"operation"},
	)

	distributionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "treasury_distributions_total",
			Help: "Treasury distribution cycles by final status",
		},
		[]string{"status"},
	)

	vaultDiscrepancyPercentGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vault_discrepancy_percent",
			Help: "Last vault discrepancy (on-chain minus ledger) in percent of the ledger",
		},
	)

	vaultReconciliationStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vault_reconciliation_status",
			Help: "1 for the status of the last vault reconciliation, 0 for the others",
		},
		[]string{"status"},
	)

	activeStakeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_stake_total",
			Help: "Sum of ACTIVE principals in whole tokens",
		},
	)

	activeStakersGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_stakers_count",
			Help: "Users with at least one ACTIVE position",
		},
	)
)

// Init initializes the metrics package.
func Init(metricsPort int) {
	once.Do(func() {
		initMetricsRouter(metricsPort)
		registerMetrics()
	})
}

// initMetricsRouter initializes the metrics router.
func initMetricsRouter(metricsPort int) {
	metricsRouter = chi.NewRouter()
	metricsRouter.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})
	// Create a custom server with timeout settings
	metricsAddr := fmt.Sprintf(":%d", metricsPort)
	server := &http.Server{
		Addr:         metricsAddr,
		Handler:      metricsRouter,
		ReadTimeout:  MetricRequestTimeout,
		WriteTimeout: MetricRequestTimeout,
		IdleTimeout:  MetricRequestIdleTimeout,
	}

	// Start the server in a separate goroutine
	go func() {
		log.Printf("Starting metrics server on %s", metricsAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msgf("Error starting metrics server on %s", metricsAddr)
		}
	}()
}

// registerMetrics registers the Prometheus metrics.
func registerMetrics() {
	prometheus.MustRegister(
		settlementClientLatency,
		queueSendErrorCounter,
		jobDurationHistogram,
		jobLastSuccessGauge,
		dbLatency,
		lockContentionCounter,
		jobLockSkipCounter,
		stakeOperationCounter,
		settledAmountCounter,
		distributionCounter,
		vaultDiscrepancyPercentGauge,
		vaultReconciliationStatus,
		activeStakeGauge,
		activeStakersGauge,
	)
}

func RecordSettlementClientLatency(d time.Duration, wallet, method string, failure bool) {
	settlementClientLatency.WithLabelValues(wallet, method, outcome(failure).String()).Observe(d.Seconds())
}

func RecordDbLatency(d time.Duration, method string, failure bool) {
	dbLatency.WithLabelValues(method, outcome(failure).String()).Observe(d.Seconds())
}

func RecordLockContention(lock string, retries int) {
	lockContentionCounter.WithLabelValues(lock).Add(float64(retries))
}

func RecordJobLockSkipped(job string) {
	jobLockSkipCounter.WithLabelValues(job).Inc()
}

// RecordStakeOperation counts an operation outcome and, on success, the
// amount it settled.
func RecordStakeOperation(operation string, amount float64, failure bool) {
	stakeOperationCounter.WithLabelValues(operation, outcome(failure).String()).Inc()
	if !failure && amount > 0 {
		settledAmountCounter.WithLabelValues(operation).Add(amount)
	}
}

func RecordDistribution(status string) {
	distributionCounter.WithLabelValues(status).Inc()
}

func RecordVaultReconciliation(status string, discrepancyPercent float64, allStatuses []string) {
	vaultDiscrepancyPercentGauge.Set(discrepancyPercent)
	for _, s := range allStatuses {
		value := 0.0
		if s == status {
			value = 1
		}
		vaultReconciliationStatus.WithLabelValues(s).Set(value)
	}
}

func RecordActiveStake(totalTokens float64, stakers uint64) {
	activeStakeGauge.Set(totalTokens)
	activeStakersGauge.Set(float64(stakers))
}

func RecordQueueSendError() {
	queueSendErrorCounter.Inc()
}

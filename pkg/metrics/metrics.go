package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Kafka       KafkaMetrics
	Outbox      OutboxMetrics
	Reservation ReservationMetrics
	Saga        SagaMetrics
	Breaker     BreakerMetrics
	API         APIMetrics
	Repo        RepoMetrics
	Go          GoMetrics
}

type KafkaMetrics struct {
	// Producer
	ProducerAttemptLatencySeconds *prometheus.HistogramVec
	ProducerOperationsTotal       *prometheus.CounterVec
	ProducerSuccessAttempts       *prometheus.HistogramVec

	// Consumer
	ConsumerMessagesTotal   *prometheus.CounterVec
	ConsumerProcessDuration *prometheus.HistogramVec
	ConsumerRebalancesTotal *prometheus.CounterVec
	ConsumerInFlight        *prometheus.GaugeVec
	ConsumerDuplicatesTotal *prometheus.CounterVec
}

type OutboxMetrics struct {
	RelayedTotal *prometheus.CounterVec // sent|failed|gave_up
	BatchSize    prometheus.Histogram
	PendingAge   prometheus.Histogram
}

type ReservationMetrics struct {
	TransitionsTotal *prometheus.CounterVec // confirmed|released|expired
	ReapedTotal      prometheus.Counter
	ActiveGauge      prometheus.Gauge
}

type SagaMetrics struct {
	StepsTotal         *prometheus.CounterVec // step, result
	CompensationsTotal *prometheus.CounterVec // reason
	StalledTotal       prometheus.Counter
}

type BreakerMetrics struct {
	State            *prometheus.GaugeVec   // 0 closed, 1 half-open, 2 open
	TransitionsTotal *prometheus.CounterVec // name, from, to
	RejectedTotal    *prometheus.CounterVec // name
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type RepoMetrics struct {
	RequestsTotal   *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
	InFlight        *prometheus.GaugeVec
}

type GoMetrics struct {
	InternalGoroutines *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Kafka: KafkaMetrics{
			ProducerAttemptLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "producer_attempt_latency_seconds",
				Help:      "Latency per single produce attempt.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic", "result"}), // ok|error

			ProducerOperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "producer_operations_total",
				Help:      "Total produce operations (one call) by result.",
			}, []string{"topic", "result"}), // success|failed|permanent|canceled

			ProducerSuccessAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "producer_success_attempts",
				Help:      "Attempt number on which produce operation succeeded.",
				Buckets:   []float64{1, 2, 3, 4, 5},
			}, []string{"topic"}),

			ConsumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "consumer_messages_total",
				Help:      "Total consumed Kafka messages by topic.",
			}, []string{"topic"}),

			ConsumerProcessDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "consumer_process_duration_seconds",
				Help:      "Kafka message processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic"}),

			ConsumerRebalancesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "consumer_rebalances_total",
				Help:      "Consumer rebalance lifecycle events.",
			}, []string{"event"}),

			ConsumerInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "consumer_inflight_messages",
				Help:      "Messages currently being processed.",
			}, []string{"topic"}),

			ConsumerDuplicatesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "kafka",
				Name:      "consumer_duplicates_total",
				Help:      "Redelivered messages skipped by event_id dedup.",
			}, []string{"topic"}),
		},

		Outbox: OutboxMetrics{
			RelayedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "outbox",
				Name:      "relayed_total",
				Help:      "Outbox records by relay outcome.",
			}, []string{"result"}), // sent|failed|gave_up

			BatchSize: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "outbox",
				Name:      "batch_size",
				Help:      "Records reserved per relay cycle.",
				Buckets:   []float64{0, 1, 5, 10, 25, 50, 100},
			}),

			PendingAge: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "outbox",
				Name:      "pending_age_seconds",
				Help:      "Age of a record at the moment it is relayed.",
				Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 300},
			}),
		},

		Reservation: ReservationMetrics{
			TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "reservation",
				Name:      "transitions_total",
				Help:      "Reservation status transitions out of ACTIVE.",
			}, []string{"to"}), // confirmed|released|expired

			ReapedTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "reservation",
				Name:      "reaped_total",
				Help:      "Reservations expired by the reaper.",
			}),

			ActiveGauge: f.NewGauge(prometheus.GaugeOpts{
				Namespace: "fulfillment",
				Subsystem: "reservation",
				Name:      "active",
				Help:      "Currently active reservations (updated by the reaper pass).",
			}),
		},

		Saga: SagaMetrics{
			StepsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "saga",
				Name:      "steps_total",
				Help:      "Saga handler executions by step and result.",
			}, []string{"step", "result"}),

			CompensationsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "saga",
				Name:      "compensations_total",
				Help:      "Compensations by reason.",
			}, []string{"reason"}),

			StalledTotal: f.NewCounter(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "saga",
				Name:      "stalled_total",
				Help:      "Sagas compensated by the supervisor for lack of progress.",
			}),
		},

		Breaker: BreakerMetrics{
			State: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fulfillment",
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit state: 0 closed, 1 half-open, 2 open.",
			}, []string{"name"}),

			TransitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "breaker",
				Name:      "transitions_total",
				Help:      "Circuit state transitions.",
			}, []string{"name", "from", "to"}),

			RejectedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "breaker",
				Name:      "rejected_total",
				Help:      "Calls rejected while the circuit was open.",
			}, []string{"name"}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
		},
		Repo: RepoMetrics{
			RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: "fulfillment",
				Subsystem: "db",
				Name:      "requests_total",
				Help:      "Total DB requests by operation, name, result and error kind.",
			}, []string{"op", "name", "result", "error_kind"}),

			DurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "fulfillment",
				Subsystem: "db",
				Name:      "request_duration_seconds",
				Help:      "DB request duration in seconds.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"op", "name", "result"}),

			InFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fulfillment",
				Subsystem: "db",
				Name:      "inflight",
				Help:      "Number of in-flight DB requests.",
			}, []string{"op", "name"}),
		},
		Go: GoMetrics{
			InternalGoroutines: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "fulfillment",
				Subsystem: "go",
				Name:      "internal_goroutines",
				Help:      "Number of running internal goroutines by name.",
			}, []string{"name"}),
		},
	}
}

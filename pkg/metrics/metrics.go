package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric exported on /api/metrics
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Custom histogram buckets for API response times ranging from milliseconds to 30+ seconds
	CustomAPIBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55}

	// HTTP Metrics
	HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	HTTPRequestTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_server_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"http_request_method", "http_route", "http_response_status_code"},
	)

	ActiveRequests = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_server_active_requests",
			Help: "Number of active HTTP requests",
		},
		[]string{"http_request_method", "http_route"},
	)

	// Database Client Metrics (Postgres)
	DBOperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_client_operation_duration_seconds",
			Help:    "Database client operation duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"operation", "status"},
	)

	DBOperationTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_client_operation_total",
			Help: "Total number of database client operations",
		},
		[]string{"operation", "status"},
	)

	// Cache Metrics
	CacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_name"},
	)

	CacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_name"},
	)

	CacheSize = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Number of entries in cache",
		},
		[]string{"cache_name"},
	)

	// Outbound webhook triggers
	TriggerCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_client_request_duration_seconds",
			Help:    "Outbound trigger call duration in seconds",
			Buckets: CustomAPIBuckets,
		},
		[]string{"trigger", "status"},
	)

	TriggerCallTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_client_request_total",
			Help: "Total number of outbound trigger calls",
		},
		[]string{"trigger", "status"},
	)

	// Business Metrics
	RequestsCreated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_requests_created_total",
			Help: "Total consultation request creation attempts",
		},
		[]string{"status"},
	)

	OfferTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_offer_transitions_total",
			Help: "Offer lifecycle operations by outcome",
		},
		[]string{"operation", "status"},
	)

	RequestTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_request_transitions_total",
			Help: "Request lifecycle operations by outcome",
		},
		[]string{"operation", "status"},
	)

	BookingsCommitted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_bookings_committed_total",
			Help: "Booking commit attempts by resolved action and outcome",
		},
		[]string{"action", "status"},
	)

	BookingJoinRetries = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "consultations_booking_join_retries_total",
			Help: "Bookings retried as join after losing the race for an available slot",
		},
	)

	BookingTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_booking_transitions_total",
			Help: "Booking lifecycle operations by outcome",
		},
		[]string{"operation", "status"},
	)

	InvariantViolations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consultations_invariant_violations_total",
			Help: "Transactions aborted because they would break an aggregate invariant",
		},
		[]string{"aggregate"},
	)

	RequestsByStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consultations_requests",
			Help: "Number of consultation requests by status",
		},
		[]string{"status"},
	)

	SlotsByStatus = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consultations_slots",
			Help: "Number of weekly slots by booking status",
		},
		[]string{"status"},
	)

	// Infrastructure Metrics
	GoRoutines = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_goroutines",
			Help: "Number of goroutines",
		},
	)

	HeapAlloc = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_runtime_go_mem_heap_alloc_bytes",
			Help: "Heap allocated bytes",
		},
	)

	serviceInfo = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "service_info",
			Help: "Static information about the running service",
		},
		[]string{"service_name"},
	)
)

// Init registers runtime collectors and the service info series.
// Call it once at startup before serving /api/metrics.
func Init(serviceName string) {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	serviceInfo.WithLabelValues(serviceName).Set(1)
}

// RecordInfrastructureMetrics collects infrastructure metrics periodically
func RecordInfrastructureMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		for range ticker.C {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			GoRoutines.Set(float64(runtime.NumGoroutine()))
			HeapAlloc.Set(float64(m.HeapAlloc))
		}
	}()
}

// MeasureDuration measures the duration of an operation
func MeasureDuration(start time.Time) float64 {
	return time.Since(start).Seconds()
}

// Outcome maps an error to the status label used across counters
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

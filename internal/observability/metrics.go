package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for GraphQL operations.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	requestsTotal       *prometheus.CounterVec
	errorsTotal         *prometheus.CounterVec
	activeRequests      prometheus.Gauge
	queryDepth          prometheus.Histogram
	queryComplexity     prometheus.Histogram
	schemaCacheHits     prometheus.Counter
	schemaCacheMisses   prometheus.Counter
	schemaReflections   *prometheus.CounterVec
	batchLookupHits     prometheus.Counter
	batchLookupMisses   prometheus.Counter
	activeSubscriptions prometheus.Gauge
	subscriptionEvents  *prometheus.CounterVec
}

// NewMetrics builds a registry with process and Go collectors plus the
// application instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "graphql_request_duration_seconds",
			Help:    "Duration of GraphQL requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation_type"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphql_requests_total",
			Help: "Total number of GraphQL requests.",
		}, []string{"operation_type", "has_errors"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graphql_errors_total",
			Help: "Total number of GraphQL errors.",
		}, []string{"operation_type"}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "graphql_requests_active",
			Help: "Number of in-flight GraphQL requests.",
		}),
		queryDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphql_query_depth",
			Help:    "Measured depth of GraphQL queries.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15, 20},
		}),
		queryComplexity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "graphql_query_complexity",
			Help:    "Measured complexity of GraphQL queries.",
			Buckets: []float64{1, 10, 50, 100, 250, 500, 1000, 2000},
		}),
		schemaCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_cache_hits_total",
			Help: "Number of schema model cache hits.",
		}),
		schemaCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "schema_cache_misses_total",
			Help: "Number of schema model cache misses.",
		}),
		schemaReflections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "schema_reflections_total",
			Help: "Number of database schema reflections.",
		}, []string{"outcome"}),
		batchLookupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batch_lookup_hits_total",
			Help: "Relationship lookups served from the per-request batch cache.",
		}),
		batchLookupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "batch_lookup_misses_total",
			Help: "Relationship lookups that missed the per-request batch cache.",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "subscriptions_active",
			Help: "Number of active GraphQL subscriptions.",
		}),
		subscriptionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "subscription_events_total",
			Help: "Events delivered to subscribers.",
		}, []string{"operation"}),
	}

	registry.MustRegister(
		m.requestDuration,
		m.requestsTotal,
		m.errorsTotal,
		m.activeRequests,
		m.queryDepth,
		m.queryComplexity,
		m.schemaCacheHits,
		m.schemaCacheMisses,
		m.schemaReflections,
		m.batchLookupHits,
		m.batchLookupMisses,
		m.activeSubscriptions,
		m.subscriptionEvents,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest records a GraphQL request with its duration and outcome.
func (m *Metrics) RecordRequest(duration time.Duration, hasErrors bool, operationType string) {
	errLabel := "false"
	if hasErrors {
		errLabel = "true"
		m.errorsTotal.WithLabelValues(operationType).Inc()
	}
	m.requestDuration.WithLabelValues(operationType).Observe(duration.Seconds())
	m.requestsTotal.WithLabelValues(operationType, errLabel).Inc()
}

// RecordQueryBudget records the measured depth and complexity of a query.
func (m *Metrics) RecordQueryBudget(depth, complexity int) {
	m.queryDepth.Observe(float64(depth))
	m.queryComplexity.Observe(float64(complexity))
}

func (m *Metrics) IncActiveRequests() { m.activeRequests.Inc() }
func (m *Metrics) DecActiveRequests() { m.activeRequests.Dec() }

func (m *Metrics) RecordSchemaCacheHit()  { m.schemaCacheHits.Inc() }
func (m *Metrics) RecordSchemaCacheMiss() { m.schemaCacheMisses.Inc() }

// RecordSchemaReflection records a schema reflection attempt.
func (m *Metrics) RecordSchemaReflection(err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.schemaReflections.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordBatchLookupHit()  { m.batchLookupHits.Inc() }
func (m *Metrics) RecordBatchLookupMiss() { m.batchLookupMisses.Inc() }

func (m *Metrics) IncActiveSubscriptions() { m.activeSubscriptions.Inc() }
func (m *Metrics) DecActiveSubscriptions() { m.activeSubscriptions.Dec() }

// RecordSubscriptionEvent counts one delivered change event.
func (m *Metrics) RecordSubscriptionEvent(operation string) {
	m.subscriptionEvents.WithLabelValues(operation).Inc()
}

type metricsContextKey struct{}

// ContextWithMetrics stores the metrics in the provided context.
func ContextWithMetrics(ctx context.Context, metrics *Metrics) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, metricsContextKey{}, metrics)
}

// MetricsFromContext retrieves the metrics from the context, or nil.
func MetricsFromContext(ctx context.Context) *Metrics {
	if ctx == nil {
		return nil
	}
	metrics, _ := ctx.Value(metricsContextKey{}).(*Metrics)
	return metrics
}

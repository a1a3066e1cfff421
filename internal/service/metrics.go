package service

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	metricsNamespace = "vcscatalog"
	tracerName       = "github.com/marvil07/versioncontrol/internal/service"
)

type catalogMetrics struct {
	operationsInserted  *prometheus.CounterVec
	operationsDeleted   *prometheus.CounterVec
	consistencyWarnings *prometheus.CounterVec
	constraintRejected  *prometheus.CounterVec
	queryDuration       *prometheus.HistogramVec
}

var (
	defaultMetricsOnce sync.Once
	defaultMetricsInst *catalogMetrics
)

func getDefaultMetrics() *catalogMetrics {
	defaultMetricsOnce.Do(func() {
		defaultMetricsInst = newCatalogMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetricsInst
}

func newCatalogMetrics(reg prometheus.Registerer) *catalogMetrics {
	m := &catalogMetrics{
		operationsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "operations",
			Name:      "inserted_total",
			Help:      "Operations recorded in the catalog.",
		}, []string{"vcs", "kind"}),
		operationsDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "operations",
			Name:      "deleted_total",
			Help:      "Operations removed from the catalog.",
		}, []string{"vcs", "kind"}),
		consistencyWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "items",
			Name:      "consistency_warnings_total",
			Help:      "Item anomalies corrected before storage.",
		}, []string{"reason"}),
		constraintRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "constraint_rejections_total",
			Help:      "Constraint sets resolved to an empty result.",
		}, []string{"key", "reason"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "query",
			Name:      "duration_seconds",
			Help:      "Catalog read latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
	}
	if reg != nil {
		reg.MustRegister(m.operationsInserted, m.operationsDeleted, m.consistencyWarnings, m.constraintRejected, m.queryDuration)
	}
	return m
}

func (m *catalogMetrics) observeQuery(kind string, start time.Time) {
	m.queryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

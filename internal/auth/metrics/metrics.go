// Package metrics counts authentication outcomes and HTTP requests with an
// OpenTelemetry meter. A manual reader lets the /metrics endpoint take
// point-in-time snapshots without an external collector.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/aussiebroadwan/gatekeeper"

	AuthOperations = "auth.operations"
	HTTPRequests   = "http.server.requests"
)

// Metrics owns the meter provider. Safe for concurrent use.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	reader   *sdkmetric.ManualReader

	auth     metric.Int64Counter
	requests metric.Int64Counter
}

// New builds a meter provider tagged with the service name and version.
func New(service, version string) (*Metrics, error) {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(service),
		semconv.ServiceVersionKey.String(version),
	)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	meter := provider.Meter(meterName)

	auth, err := meter.Int64Counter(AuthOperations,
		metric.WithDescription("Token lifecycle operations by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s counter: %w", AuthOperations, err)
	}

	requests, err := meter.Int64Counter(HTTPRequests,
		metric.WithDescription("HTTP requests served by method and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s counter: %w", HTTPRequests, err)
	}

	return &Metrics{
		provider: provider,
		reader:   reader,
		auth:     auth,
		requests: requests,
	}, nil
}

// RecordAuth counts one lifecycle operation.
func (m *Metrics) RecordAuth(ctx context.Context, op, outcome string) {
	m.auth.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

// RecordRequest counts one served HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method string, status int) {
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("status", strconv.Itoa(status)),
	))
}

// Middleware counts every request passing through it.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.RecordRequest(r.Context(), r.Method, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wrote {
		r.status = code
		r.wrote = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wrote = true
	return r.ResponseWriter.Write(b)
}

// Snapshot collects every integer sum into a flat map keyed by
// name{attr=value,...}, attributes in key order.
func (m *Metrics) Snapshot(ctx context.Context) (map[string]int64, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	out := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				out[seriesKey(md.Name, dp.Attributes)] += dp.Value
			}
		}
	}
	return out, nil
}

func seriesKey(name string, attrs attribute.Set) string {
	if attrs.Len() == 0 {
		return name
	}

	pairs := make([]string, 0, attrs.Len())
	iter := attrs.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		pairs = append(pairs, string(kv.Key)+"="+kv.Value.Emit())
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// Shutdown flushes and stops the provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

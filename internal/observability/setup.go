package observability

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	promreg "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/ncecere/seat_billing/internal/config"
)

const namespace = "seat_billing"

type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *metric.MeterProvider
	promHandler    http.Handler
	shutdownFuncs  []func(context.Context) error

	httpRequestCounter *promreg.CounterVec
	httpRequestLatency *promreg.HistogramVec
	reportsCounter     *promreg.CounterVec
	reportCost         promreg.Histogram
	reportUsers        promreg.Histogram
}

func Setup(ctx context.Context, cfg config.ObservabilityConfig) (*Provider, error) {
	if !cfg.EnableOTLP && !cfg.EnableMetrics {
		return nil, nil
	}

	provider := &Provider{}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("seat-billing"),
		),
	)
	if err != nil {
		return nil, err
	}

	if cfg.EnableOTLP {
		endpoint, insecure := otlpEndpoint(cfg.OTLPEndpoint)
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(tp)
		provider.tracerProvider = tp
		provider.shutdownFuncs = append(provider.shutdownFuncs, tp.Shutdown)
	}

	if cfg.EnableMetrics {
		registry := promreg.NewRegistry()
		promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
		if err != nil {
			return nil, err
		}
		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		provider.meterProvider = mp
		provider.promHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
		provider.shutdownFuncs = append(provider.shutdownFuncs, mp.Shutdown)

		httpLabels := []string{"method", "route", "status"}
		provider.httpRequestCounter = promreg.NewCounterVec(promreg.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, httpLabels)
		provider.httpRequestLatency = promreg.NewHistogramVec(promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5},
		}, httpLabels)
		provider.reportsCounter = promreg.NewCounterVec(promreg.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Subscription billing reports by outcome.",
		}, []string{"outcome"})
		provider.reportCost = promreg.NewHistogram(promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "report_total_cost_pln",
			Help:      "Total monthly cost of generated reports.",
			Buckets:   promreg.ExponentialBuckets(50, 2, 10),
		})
		provider.reportUsers = promreg.NewHistogram(promreg.HistogramOpts{
			Namespace: namespace,
			Name:      "report_users",
			Help:      "Billed users per generated report.",
			Buckets:   []float64{0, 1, 3, 9, 19, 50, 100, 500},
		})
		for _, c := range []promreg.Collector{
			provider.httpRequestCounter,
			provider.httpRequestLatency,
			provider.reportsCounter,
			provider.reportCost,
			provider.reportUsers,
		} {
			if err := registry.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return provider, nil
}

func otlpEndpoint(raw string) (string, bool) {
	endpoint := strings.TrimSpace(raw)
	switch {
	case endpoint == "":
		return "localhost:4317", true
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), false
	default:
		return strings.TrimPrefix(endpoint, "http://"), true
	}
}

func (p *Provider) PrometheusHandler() http.Handler {
	if p == nil || p.promHandler == nil {
		return nil
	}
	return p.promHandler
}

func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	for _, fn := range p.shutdownFuncs {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Provider) TracerProvider() *sdktrace.TracerProvider {
	if p == nil {
		return nil
	}
	return p.tracerProvider
}

func (p *Provider) RecordHTTPRequest(_ context.Context, method, route string, status int, duration time.Duration) {
	if p == nil || p.httpRequestCounter == nil {
		return
	}
	statusLabel := strconv.Itoa(status)
	p.httpRequestCounter.WithLabelValues(method, route, statusLabel).Inc()
	p.httpRequestLatency.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

// RecordReport counts a report attempt. Users and cost are observed only for
// successful reports.
func (p *Provider) RecordReport(outcome string, totalUsers int, totalCost float64) {
	if p == nil || p.reportsCounter == nil {
		return
	}
	p.reportsCounter.WithLabelValues(outcome).Inc()
	if outcome != "success" {
		return
	}
	p.reportUsers.Observe(float64(totalUsers))
	p.reportCost.Observe(totalCost)
}

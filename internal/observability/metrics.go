package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sandeepkv93/shooter-auth/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/exemplar"
)

const meterName = "shooter-auth"

type AppMetrics struct {
	authReqDuration          metric.Float64Histogram
	authLoginCounter         metric.Int64Counter
	authFlowCounter          metric.Int64Counter
	verificationCodeCounter  metric.Int64Counter
	verificationCodeSwept    metric.Int64Counter
	sessionTokenValidation   metric.Int64Counter
	abuseGuardCounter        metric.Int64Counter
	abuseGuardCooldown       metric.Float64Histogram
	healthCheckResultCounter metric.Int64Counter
	healthCheckDuration      metric.Float64Histogram
	toolCommandRuns          metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
		sdkmetric.WithExemplarFilter(exemplar.TraceBasedFilter),
		sdkmetric.WithView(sdkmetric.NewView(
			sdkmetric.Instrument{Name: "auth.request.duration"},
			sdkmetric.Stream{
				Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
					Boundaries: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
				},
			},
		)),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	counters := []struct {
		name string
		dest *metric.Int64Counter
	}{
		{"auth.login.attempts", &m.authLoginCounter},
		{"auth.flow.events", &m.authFlowCounter},
		{"auth.verification_code.events", &m.verificationCodeCounter},
		{"auth.verification_code.swept", &m.verificationCodeSwept},
		{"auth.session_token.validation.events", &m.sessionTokenValidation},
		{"auth.abuse_guard.events", &m.abuseGuardCounter},
		{"health.check.results", &m.healthCheckResultCounter},
		{"tool.command.runs", &m.toolCommandRuns},
	}
	for _, c := range counters {
		if *c.dest, err = meter.Int64Counter(c.name); err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
	}

	if m.authReqDuration, err = meter.Float64Histogram("auth.request.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of auth endpoint requests in seconds"),
	); err != nil {
		return nil, err
	}
	if m.abuseGuardCooldown, err = meter.Float64Histogram("auth.abuse_guard.cooldown",
		metric.WithUnit("s"),
		metric.WithDescription("Cooldown duration returned by auth abuse guard"),
	); err != nil {
		return nil, err
	}
	if m.healthCheckDuration, err = meter.Float64Histogram("health.check.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of health dependency checks in seconds"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

func loadMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordAuthRequestDuration(ctx context.Context, endpoint, status string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.authReqDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	))
}

func RecordAuthLogin(ctx context.Context, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.authLoginCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordAuthFlowEvent counts registration and password reset outcomes.
func RecordAuthFlowEvent(ctx context.Context, flow, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.authFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", outcome),
	))
}

// RecordVerificationCodeEvent counts code store activity. action is one of
// generate, verify, notify.
func RecordVerificationCodeEvent(ctx context.Context, store, action, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.verificationCodeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordVerificationCodesSwept(ctx context.Context, count int) {
	m := loadMetrics()
	if m == nil || count <= 0 {
		return
	}
	m.verificationCodeSwept.Add(ctx, int64(count))
}

func RecordSessionTokenValidation(ctx context.Context, outcome, source string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.sessionTokenValidation.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	))
}

func RecordAuthAbuseGuardEvent(ctx context.Context, scope, action, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.abuseGuardCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthAbuseCooldown(ctx context.Context, scope, action string, cooldown time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.abuseGuardCooldown.Record(ctx, cooldown.Seconds(), metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("action", action),
	))
}

func RecordHealthCheckResult(ctx context.Context, check, outcome string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.healthCheckResultCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("check", check),
		attribute.String("outcome", outcome),
	))
}

func RecordHealthCheckDuration(ctx context.Context, check string, duration time.Duration) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.healthCheckDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("check", check),
	))
}

func RecordToolCommandRun(ctx context.Context, tool, command, status string) {
	m := loadMetrics()
	if m == nil {
		return
	}
	m.toolCommandRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("command", command),
		attribute.String("status", status),
	))
}

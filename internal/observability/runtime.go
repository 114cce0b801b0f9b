package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/shooter-auth/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Runtime owns the OTel providers so shutdown can flush them in one place.
type Runtime struct {
	LoggerProvider *sdklog.LoggerProvider
	MeterProvider  *sdkmetric.MeterProvider
	TracerProvider *sdktrace.TracerProvider
}

// InitRuntime brings providers up as logs, metrics, then traces. A failure
// tears down whatever already started.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	var err error
	if rt.LoggerProvider, err = InitLogs(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if rt.MeterProvider, err = InitMetrics(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	if rt.TracerProvider, err = InitTracing(ctx, cfg, logger); err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	return rt, nil
}

type shutdowner interface {
	Shutdown(context.Context) error
}

// Shutdown flushes traces first so spans from the final requests are not
// lost behind slower log and metric exports.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	providers := []struct {
		name string
		p    shutdowner
	}{
		{"tracer", nilIfTracer(r.TracerProvider)},
		{"meter", nilIfMeter(r.MeterProvider)},
		{"logger", nilIfLogger(r.LoggerProvider)},
	}
	var errs []error
	for _, pr := range providers {
		if pr.p == nil {
			continue
		}
		if err := pr.p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s provider: %w", pr.name, err))
		}
	}
	return errors.Join(errs...)
}

// The helpers below keep typed nil pointers out of the interface slice.

func nilIfTracer(p *sdktrace.TracerProvider) shutdowner {
	if p == nil {
		return nil
	}
	return p
}

func nilIfMeter(p *sdkmetric.MeterProvider) shutdowner {
	if p == nil {
		return nil
	}
	return p
}

func nilIfLogger(p *sdklog.LoggerProvider) shutdowner {
	if p == nil {
		return nil
	}
	return p
}

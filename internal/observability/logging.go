package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sandeepkv93/shooter-auth/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	otlploggrpc "go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/trace"
)

const redacted = "[REDACTED]"

// sensitiveLogKeys never reach a sink in clear text. Verification codes are
// absent on purpose: the dev notifier's whole job is to print them.
var sensitiveLogKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"authorization": {},
	"secret":        {},
}

// authLogHandler is the root handler of the process logger. It fans a record
// out to every sink, stamps the active span, and masks credential attributes.
type authLogHandler struct {
	sinks []slog.Handler
}

func newAuthLogHandler(sinks ...slog.Handler) *authLogHandler {
	return &authLogHandler{sinks: sinks}
}

func (h *authLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, sink := range h.sinks {
		if sink.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *authLogHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a))
		return true
	})
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	for _, sink := range h.sinks {
		if !sink.Enabled(ctx, r.Level) {
			continue
		}
		if err := sink.Handle(ctx, out.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h *authLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redactAttr(a)
	}
	return h.each(func(s slog.Handler) slog.Handler { return s.WithAttrs(clean) })
}

func (h *authLogHandler) WithGroup(name string) slog.Handler {
	return h.each(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h *authLogHandler) each(fn func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(h.sinks))
	for i, sink := range h.sinks {
		next[i] = fn(sink)
	}
	return &authLogHandler{sinks: next}
}

func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = redactAttr(g)
		}
		return slog.Group(a.Key, clean...)
	}
	if _, ok := sensitiveLogKeys[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	return a
}

func jsonSink(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// NewBootstrapLogger is used until the OTel log provider exists.
func NewBootstrapLogger(cfg *config.Config) *slog.Logger {
	return slog.New(newAuthLogHandler(jsonSink(os.Stdout, parseLogLevel(cfg.OTELLogLevel))))
}

// InitLogger builds the process logger and installs it as slog's default, so
// package-level slog calls (audit records, request logs) share its sinks.
func InitLogger(cfg *config.Config, lp *sdklog.LoggerProvider) *slog.Logger {
	sinks := []slog.Handler{jsonSink(os.Stdout, parseLogLevel(cfg.OTELLogLevel))}
	if cfg.OTELLogsEnabled && lp != nil {
		sinks = append(sinks, otelslog.NewHandler(cfg.OTELServiceName, otelslog.WithLoggerProvider(lp)))
	}
	l := slog.New(newAuthLogHandler(sinks...))
	slog.SetDefault(l)
	return l
}

func InitLogs(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdklog.LoggerProvider, error) {
	if !cfg.OTELLogsEnabled {
		logger.Info("otel logs disabled")
		return nil, nil
	}

	exporter, err := otlploggrpc.New(ctx, otlpLogOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create otlp log exporter: %w", err)
	}
	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create logs resource: %w", err)
	}

	logger.Info("otel logs initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	), nil
}

func otlpLogOptions(cfg *config.Config) []otlploggrpc.Option {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return opts
}

func parseLogLevel(v string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Package observability wires structured logging for the process: slog to
// stderr as the primary sink, with optional export of log records through
// the OpenTelemetry pipeline for fleets that collect them centrally.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const serviceName = "storedsafe-tokenhandler"

// exporterEnvVar selects the optional OTel log exporter:
// "otlp-grpc", "otlp-http", or "stdout". Unset disables export.
const exporterEnvVar = "OTEL_LOGS_EXPORTER"

// loggerProvider is set when an exporter is configured, for flushing on exit.
var loggerProvider *sdklog.LoggerProvider

// Instrument installs the process-wide default logger. The primary handler
// writes text or JSON to stderr (stdout is reserved for token and lookup
// output); when exporterEnvVar is set, records are additionally bridged into
// an OTel log pipeline filtered to the same minimum severity.
func Instrument(level, format string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	case "text", "":
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	default:
		return fmt.Errorf("unsupported log format: %q", format)
	}

	if name := os.Getenv(exporterEnvVar); name != "" {
		otelHandler, err := newOTelHandler(name, lvl)
		if err != nil {
			return err
		}
		handler = newMultiHandler(handler, otelHandler)
	}

	slog.SetDefault(slog.New(newTraceContextHandler(handler)))
	return nil
}

// Shutdown flushes any buffered exported log records. Safe to call when no
// exporter was configured.
func Shutdown(ctx context.Context) error {
	if loggerProvider == nil {
		return nil
	}
	return loggerProvider.Shutdown(ctx)
}

// newOTelHandler builds the bridge handler for the named exporter.
func newOTelHandler(name string, lvl slog.Level) (slog.Handler, error) {
	ctx := context.Background()

	var (
		exporter sdklog.Exporter
		err      error
	)
	switch name {
	case "otlp-grpc":
		exporter, err = otlploggrpc.New(ctx)
	case "otlp-http":
		exporter, err = otlploghttp.New(ctx)
	case "stdout":
		exporter, err = stdoutlog.New(stdoutlog.WithWriter(os.Stderr))
	default:
		return nil, fmt.Errorf("unsupported log exporter: %q", name)
	}
	if err != nil {
		return nil, fmt.Errorf("creating %s log exporter: %w", name, err)
	}

	processor := minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), minSeverity(lvl))
	loggerProvider = sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	return otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(loggerProvider)), nil
}

// ParseLevel maps the config level names to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level: %q", level)
	}
}

func minSeverity(lvl slog.Level) minsev.Severity {
	switch {
	case lvl <= slog.LevelDebug:
		return minsev.SeverityDebug
	case lvl <= slog.LevelInfo:
		return minsev.SeverityInfo
	case lvl <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}

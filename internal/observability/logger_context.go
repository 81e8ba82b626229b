// Package observability carries request- and job-scoped logging context
// across layer boundaries so adapters can correlate their logs with the
// originating HTTP request or queue delivery.
package observability

import (
	"context"
	"log/slog"
)

// loggerContextKey is the private context key used to store a *slog.Logger.
type loggerContextKey struct{}

// requestIDContextKey is the private context key used to store the
// originating HTTP request_id.
type requestIDContextKey struct{}

// ContextWithLogger attaches a non-nil logger to the context.
func ContextWithLogger(ctx context.Context, lg *slog.Logger) context.Context {
	if ctx == nil || lg == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerContextKey{}, lg)
}

// LoggerFromContext returns the logger stored in the context or the default
// slog logger when none is present.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if v := ctx.Value(loggerContextKey{}); v != nil {
		if lg, ok := v.(*slog.Logger); ok && lg != nil {
			return lg
		}
	}
	return slog.Default()
}

// ContextWithJob attaches a logger pre-populated with the job correlation
// fields, so every log line emitted while processing one delivery carries
// the scan, package, and vulnerability identifiers.
func ContextWithJob(ctx context.Context, scanID, packageName, vulnerabilityID string) context.Context {
	lg := LoggerFromContext(ctx).With(
		slog.String("scan_id", scanID),
		slog.String("package", packageName),
		slog.String("vulnerability_id", vulnerabilityID),
	)
	return ContextWithLogger(ctx, lg)
}

// ContextWithRequestID stores a non-empty request_id in the context so that
// deeper layers can correlate their logs with the originating HTTP request.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext retrieves the request_id from the context, or an
// empty string when none is present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(requestIDContextKey{}); v != nil {
		if rid, ok := v.(string); ok {
			return rid
		}
	}
	return ""
}

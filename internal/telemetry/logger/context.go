package logger

import "context"

// contextKey is a type for context keys to avoid collisions.
type contextKey string

const (
	loggerKey    contextKey = "vendcore.logger"
	requestIDKey contextKey = "vendcore.request_id"
	machineIDKey contextKey = "vendcore.machine_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context, falling back to the
// default logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// WithMachineID tags the context with the originating vending machine.
func WithMachineID(ctx context.Context, machineID string) context.Context {
	return context.WithValue(ctx, machineIDKey, machineID)
}

// MachineIDFromContext extracts the machine ID from context.
func MachineIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(machineIDKey).(string); ok {
		return id
	}
	return ""
}

// L returns the context logger enriched with request and machine IDs
// when present.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		l = l.With("request_id", reqID)
	}
	if machineID := MachineIDFromContext(ctx); machineID != "" {
		l = l.With("machine_id", machineID)
	}
	return l
}

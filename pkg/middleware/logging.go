// Package middleware provides structured logging for spreadcache's service
// endpoints.
//
// This file implements request-scoped structured logging with:
//   - Correlation ID propagation via context
//   - JSON structured log lines
//   - Level selection based on operation outcome
//
// Design Notes:
//   - Uses the standard log package for compatibility
//   - Correlation IDs enable tracing a single ingest/query call across
//     the service, loader, and horizon packages
//   - Encore API endpoints are plain functions, not http.Handler, so
//     this logs around an operation rather than wrapping a handler
package middleware

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const requestIDKey contextKey = "request-id"

// NewRequestID generates a correlation ID for a new inbound call.
func NewRequestID() string {
	return uuid.New().String()
}

// WithRequestID attaches a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromCtx retrieves the request ID from the context, or "" if
// none was attached.
func RequestIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// LogOperation writes one structured JSON log line describing a
// completed service operation (Insert, Query, a horizon sweep).
//
// Log fields:
//   - timestamp: RFC3339 timestamp
//   - request_id: correlation ID from ctx
//   - op: operation name, e.g. "insert", "query", "sweep"
//   - duration_ms: operation duration in milliseconds
//   - err: error string, omitted on success
//   - fields: caller-supplied structured fields (e.g. accepted/rejected counts)
//
// Level is Error if err != nil, Info otherwise.
func LogOperation(ctx context.Context, op string, duration time.Duration, err error, fields map[string]interface{}) {
	entry := map[string]interface{}{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"request_id":  RequestIDFromCtx(ctx),
		"op":          op,
		"duration_ms": duration.Milliseconds(),
	}
	for k, v := range fields {
		entry[k] = v
	}

	level := "INFO"
	if err != nil {
		level = "ERROR"
		entry["err"] = err.Error()
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		log.Printf("[ERROR] failed to marshal log entry: %v", marshalErr)
		log.Printf("[%s] op=%s duration_ms=%d err=%v", level, op, duration.Milliseconds(), err)
		return
	}
	log.Printf("[%s] %s", level, string(data))
}

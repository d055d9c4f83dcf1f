package httpserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/helixir/scholarsearch/internal/observability"
)

// correlationIDMiddleware ensures every request has a correlation ID and
// propagates it through the request context for logging. An X-Trace-ID
// header from an upstream tracer is carried through the same way.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := observability.WithRequestID(r.Context(), correlationID)

		if traceID := r.Header.Get("X-Trace-ID"); traceID != "" {
			w.Header().Set("X-Trace-ID", traceID)
			ctx = observability.WithTraceID(ctx, traceID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// requestLoggingMiddleware logs one line per request with method, path,
// status and latency.
func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		evt := s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", observability.RequestIDFromContext(r.Context()))
		if traceID := observability.TraceIDFromContext(r.Context()); traceID != "" {
			evt = evt.Str("trace_id", traceID)
		}
		evt.Msg("request completed")
	})
}

// Package http exposes the partition catalog as a JSON-over-HTTP API.
package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/partcat/partcat/internal/logging"
	"github.com/partcat/partcat/pkg/types"
)

// Request headers carrying caller identity.
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderUser          = "X-User"
	HeaderClientApp     = "X-Client-App"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Category  string `json:"category,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestContextMiddleware attaches a types.RequestContext built from the
// request headers. A missing X-Request-ID gets a fresh one, and a missing
// correlation ID falls back to the request ID. Both are echoed back.
func RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		traceID := r.Header.Get(HeaderCorrelationID)
		if traceID == "" {
			traceID = requestID
		}

		w.Header().Set(HeaderRequestID, requestID)
		w.Header().Set(HeaderCorrelationID, traceID)

		rc := &types.RequestContext{
			RequestID:     requestID,
			UserName:      r.Header.Get(HeaderUser),
			ClientAppName: r.Header.Get(HeaderClientApp),
			TraceID:       traceID,
			Timestamp:     time.Now(),
		}
		next.ServeHTTP(w, r.WithContext(types.WithRequestContext(r.Context(), rc)))
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	log := logging.Component(logger, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.WithRequest(r.Context(), log).
						WithField("panic", rec).
						WithField("path", r.URL.Path).
						Error("handler panicked")
					writeError(w, http.StatusInternalServerError, ErrorResponse{
						Error:     "internal server error",
						RequestID: GetRequestID(r),
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ContentTypeMiddleware ensures JSON content type for API requests.
func ContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the default middleware chain for API handlers.
func DefaultMiddleware(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	return ChainMiddleware(
		RequestContextMiddleware,
		RecoveryMiddleware(logger),
		ContentTypeMiddleware,
	)
}

func writeError(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	writeJSON(w, statusCode, resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// GetRequestID returns the request ID assigned by RequestContextMiddleware.
func GetRequestID(r *http.Request) string {
	return types.RequestContextFrom(r.Context()).RequestID
}

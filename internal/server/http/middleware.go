package httpserver

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/helixir/research-report-service/internal/observability"
)

// correlationIDMiddleware ensures every request has a correlation ID. The ID
// is taken from the X-Correlation-ID header when present, falls back to the
// chi request ID, and is echoed back on the response.
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = middleware.GetReqID(r.Context())
		}
		if correlationID == "" {
			buf := make([]byte, 8)
			if _, err := rand.Read(buf); err != nil {
				// Fallback to timestamp-based ID if crypto/rand fails.
				correlationID = fmt.Sprintf("%x", time.Now().UnixNano())
			} else {
				correlationID = fmt.Sprintf("%x", buf)
			}
		}

		w.Header().Set("X-Correlation-ID", correlationID)
		ctx := observability.WithCorrelationID(r.Context(), correlationID)
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

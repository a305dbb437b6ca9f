package httpmiddleware

import (
	"net/http"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// CorrelationID keeps a well-formed client correlation id, or replaces it with
// a fresh UUID, and echoes it on the response.
func CorrelationID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r, id := logger.EnsureHTTPCorrelationID(r)
			w.Header().Set(logger.CorrelationIDHeader, id)
			next.ServeHTTP(w, r)
		})
	}
}

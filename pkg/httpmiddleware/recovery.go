package httpmiddleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// recoveryBody matches the error shape of the chat endpoint.
const recoveryBody = `{"error":"internal server error","outcome":"failed"}` + "\n"

// Recovery turns a panic into a 500 JSON response and logs it with the stack
// trace. Without a logger it falls back to chi's Recoverer.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	if log == nil {
		return middleware.Recoverer
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rvr := recover()
				if rvr == nil {
					return
				}
				// Let the server abort the response as it normally would.
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}

				log.Error("HTTP request panic recovered",
					logger.StringField("panic_error", fmt.Sprintf("%v", rvr)),
					logger.HTTPMethodField(r.Method),
					logger.HTTPPathField(r.URL.Path),
					logger.ClientIPField(r.RemoteAddr),
					logger.CorrelationIDField(logger.GetCorrelationIDFromContext(r.Context())),
					logger.StringField("stack_trace", string(debug.Stack())),
				)

				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(recoveryBody))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

package health

import (
	"encoding/json"
	"net/http"

	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// HealthResponse is the JSON body returned by the health endpoints.
type HealthResponse struct {
	Status  string                 `json:"status"`            // "healthy" | "unhealthy"
	Checks  map[string]CheckStatus `json:"checks,omitempty"`  // check name -> status
	Message string                 `json:"message,omitempty"` // failure summary
}

// CheckStatus represents the status of an individual check in the HTTP response.
type CheckStatus struct {
	Status  string `json:"status"` // "ok" | "error"
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// LivenessHandler returns 200 while the process is alive and 503 when it should be restarted.
func (h *HealthChecker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckLiveness(r.Context())
		h.write(w, status, err)
	}
}

// ReadinessHandler returns 200 when the service can take traffic and 503 otherwise.
func (h *HealthChecker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := h.CheckReadiness(r.Context())
		h.write(w, status, err)
	}
}

func (h *HealthChecker) write(w http.ResponseWriter, status *HealthStatus, err error) {
	resp := HealthResponse{Status: "healthy", Checks: make(map[string]CheckStatus, len(status.Checks))}
	code := http.StatusOK
	if !status.Healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
		if err != nil {
			resp.Message = err.Error()
		}
	}

	for _, r := range status.Checks {
		cs := CheckStatus{Status: "ok", Latency: r.Latency.String()}
		if !r.Healthy {
			cs.Status = "error"
			cs.Error = r.Error
		}
		resp.Checks[r.Name] = cs
	}

	body, mErr := json.Marshal(resp)
	if mErr != nil {
		h.logger.Error("Failed to encode health response", logger.ErrorField(mErr))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

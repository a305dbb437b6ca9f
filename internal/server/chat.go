package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/lewisedginton/agent_handoff/internal/handoff"
	"github.com/lewisedginton/agent_handoff/internal/journal"
	"github.com/lewisedginton/agent_handoff/pkg/logger"
)

// ChatRequest is the body of POST /chat. turn_id is optional and accepted as a
// non-negative integer or a string holding one.
type ChatRequest struct {
	ExperimentID     string      `json:"experiment_id"`
	DialogID         string      `json:"dialog_id"`
	TurnID           json.Number `json:"turn_id"`
	NewUserUtterance string      `json:"new_user_utterance"`
	SystemName       string      `json:"system_name"`
}

// ChatResponse is the body of a successful POST /chat.
type ChatResponse struct {
	AgentUtterance string    `json:"agent_utterance"`
	LogObject      LogObject `json:"log_object"`
}

// LogObject carries exchange bookkeeping back to the front-end.
type LogObject struct {
	ExchangeID string `json:"exchange_id"`
	QueuedMs   int64  `json:"queued_ms"`
	WaitMs     int64  `json:"wait_ms"`
	DurationMs int64  `json:"duration_ms"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error      string `json:"error"`
	Outcome    string `json:"outcome,omitempty"`
	ExchangeID string `json:"exchange_id,omitempty"`
}

func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	log := logger.GetLoggerFromContext(r.Context(), s.log)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Security.MaxRequestBytes)
	var body ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if body.NewUserUtterance == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "new_user_utterance is required"})
		return
	}
	turnID, ok := parseTurnID(body.TurnID)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "turn_id must be a non-negative integer"})
		return
	}

	req := handoff.Request{
		Utterance: body.NewUserUtterance,
		Labels: handoff.Labels{
			ExperimentID: body.ExperimentID,
			DialogID:     body.DialogID,
			TurnID:       turnID,
			SystemName:   body.SystemName,
		},
	}
	log.Info("Chat request received",
		logger.StringField("experiment_id", body.ExperimentID),
		logger.StringField("dialog_id", body.DialogID),
		logger.StringField("turn_id", req.Labels.TurnID),
		logger.StringField("system_name", body.SystemName))

	res, err := s.channel.Exchange(r.Context(), req)
	s.record(r.Context(), req, res, err, log)

	if err != nil {
		resp := ErrorResponse{Error: err.Error(), Outcome: handoff.Outcome(err)}
		if res != nil {
			resp.ExchangeID = res.ID.String()
		}
		if errors.Is(err, handoff.ErrBusy) {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, statusFor(err), resp)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		AgentUtterance: res.Reply,
		LogObject: LogObject{
			ExchangeID: res.ID.String(),
			QueuedMs:   res.Queued().Milliseconds(),
			WaitMs:     res.Wait().Milliseconds(),
			DurationMs: res.Duration().Milliseconds(),
		},
	})
}

// record journals the exchange. The client may already be gone, so the
// request context's cancellation is dropped.
func (s *Server) record(ctx context.Context, req handoff.Request, res *handoff.Result, err error, log logger.Logger) {
	if jErr := s.components.Journal.Record(context.WithoutCancel(ctx), journal.NewEntry(req, res, err)); jErr != nil {
		log.Error("Failed to journal exchange", logger.ErrorField(jErr))
	}
}

// parseTurnID returns the canonical form of n. An absent turn_id is valid.
func parseTurnID(n json.Number) (string, bool) {
	if n == "" {
		return "", true
	}
	id, err := n.Int64()
	if err != nil || id < 0 {
		return "", false
	}
	return strconv.FormatInt(id, 10), true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, handoff.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, handoff.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, handoff.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

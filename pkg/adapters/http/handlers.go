package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aretw0/leadflow/pkg/domain"
	"github.com/aretw0/leadflow/pkg/flowstore"
	"github.com/aretw0/leadflow/pkg/orchestrator"
)

// nextRequest is the body of POST /api/chat/next.
// visitorHash and urlOrigen are accepted as legacy spellings.
type nextRequest struct {
	SessionID   string          `json:"sessionId"`
	VisitorRef  string          `json:"visitorRef"`
	VisitorHash string          `json:"visitorHash"`
	OriginRef   string          `json:"originRef"`
	URLOrigen   string          `json:"urlOrigen"`
	FlowID      string          `json:"flowId"`
	UserInput   json.RawMessage `json:"userInput"`
}

func (b nextRequest) visitor() string {
	if b.VisitorRef != "" {
		return b.VisitorRef
	}
	return b.VisitorHash
}

func (b nextRequest) origin() string {
	if b.OriginRef != "" {
		return b.OriginRef
	}
	return b.URLOrigen
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Next handles POST /api/chat/next.
func (s *Server) Next(w http.ResponseWriter, r *http.Request) {
	var body nextRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		s.logger.Warn("invalid request body", "err", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusBadRequest, "invalid request body", domain.CodeBadRequest)
		return
	}

	input, err := DecodeInput(body.UserInput)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), domain.CodeBadRequest)
		return
	}

	resp, err := s.turns.Turn(r.Context(), orchestrator.TurnRequest{
		SessionID:  body.SessionID,
		VisitorRef: body.visitor(),
		OriginRef:  body.origin(),
		FlowID:     body.FlowID,
		Input:      input,
	})
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("turn failed", "err", err, "session_id", body.SessionID,
				"request_id", middleware.GetReqID(r.Context()))
			writeError(w, status, "internal error", domain.Code(err))
			return
		}
		writeError(w, status, err.Error(), domain.Code(err))
		return
	}

	status := http.StatusOK
	if resp.Rejected() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// statusFor maps infrastructure and request errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrFlowNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// ListFlows handles GET /api/flows.
func (s *Server) ListFlows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flows.Flows())
}

type nodeSummary struct {
	ID     string   `json:"id"`
	Kind   string   `json:"kind"`
	Prompt string   `json:"prompt,omitempty"`
	Next   []string `json:"next"`
}

type flowDetail struct {
	flowstore.Summary
	NodeList []nodeSummary `json:"nodeList"`
}

// GetFlow handles GET /api/flows/{flowID}.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	flow, err := s.flows.Flow(chi.URLParam(r, "flowID"))
	if err != nil {
		writeError(w, statusFor(err), err.Error(), domain.Code(err))
		return
	}
	detail := flowDetail{
		Summary: flowstore.Summary{
			ID:      flow.ID,
			Version: flow.Version,
			Start:   flow.Start,
			Nodes:   len(flow.Nodes),
			Commits: flow.Commits,
		},
		NodeList: make([]nodeSummary, 0, len(flow.Nodes)),
	}
	for _, n := range flow.Nodes {
		next := domain.Successors(n)
		if next == nil {
			next = []string{}
		}
		detail.NodeList = append(detail.NodeList, nodeSummary{
			ID:     n.NodeID(),
			Kind:   string(n.Kind()),
			Prompt: n.Prompt(),
			Next:   next,
		})
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetHealth handles GET /health. Any failing check turns the status into 503.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}{Status: "ok"}
	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
	}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn("health check failed", "check", name, "err", err)
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

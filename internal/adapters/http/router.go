// Package httpadapter exposes the chat and assessment pipelines over HTTP.
// It is a thin layer: request decoding, error-to-status mapping, and metrics.
package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinassist/ng12-assistant/internal/core/ports"
	"github.com/clinassist/ng12-assistant/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	assessor ports.RiskAssessor
	patients ports.PatientDirectory
	chat     ports.ChatService
	sessions ports.SessionAdmin
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	assessor ports.RiskAssessor,
	patients ports.PatientDirectory,
	chat ports.ChatService,
	sessions ports.SessionAdmin,
	m *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		assessor: assessor,
		patients: patients,
		chat:     chat,
		sessions: sessions,
		metrics:  m,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/assess", rt.assess)
	mux.HandleFunc("/v1/patients", rt.listPatients)
	mux.HandleFunc("/v1/chat", rt.chatTurn)
	mux.HandleFunc("/v1/sessions/", rt.session)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
		return requestIDMiddleware(accessLogMiddleware(rt.metrics.Middleware(serviceName, mux)))
	}
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) assess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		PatientID string `json:"patient_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.PatientID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "patient_id is required"})
		return
	}

	start := time.Now()
	result, err := rt.assessor.Assess(r.Context(), req.PatientID)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordPipeline(serviceName, "assess", len(result.Results), time.Since(start))
	}

	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) chatTurn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	start := time.Now()
	result, err := rt.chat.Chat(r.Context(), sessionID, req.Message)
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordChatDecision(serviceName, string(result.InputCategory), string(result.Tier), string(result.Strategy))
		if result.Scores != nil {
			rt.metrics.RecordPipeline(serviceName, "chat", result.Scores.TotalResults, time.Since(start))
		}
	}

	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) listPatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	summaries, err := rt.patients.ListPatients(r.Context())
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

// session serves the per-session resource: GET returns the stored history
// and topic, DELETE clears them.
func (rt *Router) session(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session id is required"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		view, err := rt.sessions.SessionHistory(id)
		if err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodDelete:
		if err := rt.sessions.ClearSession(id); err != nil {
			writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/factlens/factlens/internal/models"
	"github.com/factlens/factlens/internal/pipeline"
	"github.com/factlens/factlens/internal/session"
)

// ReportHandler exposes the report lifecycle over HTTP:
//
//	POST /v1/reports                   start a generation stream
//	GET  /v1/reports/{id}              report snapshot
//	GET  /v1/reports/{id}/events       SSE progress stream
//	GET  /v1/reports/{id}/ws           WebSocket progress stream
//	GET  /v1/sessions/{id}             session snapshot
//	POST /v1/sessions/{id}/cancel      cancel the session's live stream
//	DELETE /v1/sessions/{id}           delete the session
type ReportHandler struct {
	runner    *pipeline.Runner
	sessions  *session.Manager
	streaming *StreamingHandler
	logger    *zap.Logger
}

// NewReportHandler constructs the handler.
func NewReportHandler(runner *pipeline.Runner, sessions *session.Manager, streaming *StreamingHandler, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{runner: runner, sessions: sessions, streaming: streaming, logger: logger}
}

// RegisterRoutes registers report and session endpoints on the mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reports", h.handleCreateReport)
	mux.HandleFunc("/v1/reports/", h.handleReport)
	mux.HandleFunc("/v1/sessions/", h.handleSession)
}

type createReportRequest struct {
	SessionID   string              `json:"session_id,omitempty"`
	Text        string              `json:"text"`
	Attachments []models.Attachment `json:"attachments,omitempty"`
	ContextURLs []string            `json:"context_urls,omitempty"`
	Provider    string              `json:"provider"`
	ModelID     string              `json:"model_id,omitempty"`
	ReportKind  string              `json:"report_kind,omitempty"`
	Config      map[string]string   `json:"config,omitempty"`
}

type createReportResponse struct {
	ReportID  string `json:"report_id"`
	SessionID string `json:"session_id"`
}

func (h *ReportHandler) handleCreateReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		return
	}

	var req createReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		http.Error(w, `{"error":"text is required"}`, http.StatusBadRequest)
		return
	}
	if req.ReportKind == "" {
		req.ReportKind = "initial"
	}

	var sess *session.Session
	var err error
	if req.SessionID != "" {
		sess, err = h.sessions.GetSession(r.Context(), req.SessionID)
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
			http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
			return
		}
	} else {
		sess, err = h.sessions.CreateSession(r.Context())
	}
	if err != nil {
		h.logger.Error("Session lookup failed", zap.Error(err))
		http.Error(w, `{"error":"session unavailable"}`, http.StatusServiceUnavailable)
		return
	}

	sess.Lock()
	sess.Provider = req.Provider
	sess.ModelID = req.ModelID
	sess.Attachments = req.Attachments
	sess.Unlock()

	reportID, err := h.runner.Start(sess, models.ReportRequest{
		Text:        req.Text,
		Attachments: req.Attachments,
		ContextURLs: req.ContextURLs,
		Provider:    req.Provider,
		ModelID:     req.ModelID,
		ReportKind:  req.ReportKind,
		Config:      req.Config,
	})
	switch {
	case errors.Is(err, pipeline.ErrUnknownProvider):
		http.Error(w, `{"error":"unknown provider"}`, http.StatusBadRequest)
		return
	case err != nil:
		h.logger.Error("Failed to start report stream", zap.Error(err))
		http.Error(w, `{"error":"failed to start report"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, createReportResponse{
		ReportID:  reportID,
		SessionID: sess.ID,
	})
}

func (h *ReportHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/reports/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, `{"error":"report id required"}`, http.StatusBadRequest)
		return
	}
	reportID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getReport(w, reportID)
	case len(parts) == 2 && parts[1] == "events":
		h.streaming.HandleSSE(w, r, reportID)
	case len(parts) == 2 && parts[1] == "ws":
		h.streaming.HandleWS(w, r, reportID)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (h *ReportHandler) getReport(w http.ResponseWriter, reportID string) {
	snap, ok := h.runner.SnapshotReport(reportID)
	if !ok {
		http.Error(w, `{"error":"report not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *ReportHandler) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, `{"error":"session id required"}`, http.StatusBadRequest)
		return
	}
	sessionID := parts[0]

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		h.getSession(w, r, sessionID)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		h.deleteSession(w, r, sessionID)
	case len(parts) == 2 && parts[1] == "cancel" && r.Method == http.MethodPost:
		h.cancelStream(w, sessionID)
	default:
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}
}

func (h *ReportHandler) getSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	sess, err := h.sessions.GetSession(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionExpired) {
		http.Error(w, `{"error":"session not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Session read failed", zap.Error(err))
		http.Error(w, `{"error":"session unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	// Marshal a locked copy; a live stream may be mutating the original.
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

func (h *ReportHandler) deleteSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	h.runner.Cancel(sessionID)
	if err := h.sessions.DeleteSession(r.Context(), sessionID); err != nil {
		h.logger.Error("Session delete failed", zap.Error(err))
		http.Error(w, `{"error":"delete failed"}`, http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReportHandler) cancelStream(w http.ResponseWriter, sessionID string) {
	if !h.runner.Cancel(sessionID) {
		http.Error(w, `{"error":"no live stream for session"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling"})
}

// writeJSON writes a JSON response with status and content-type.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

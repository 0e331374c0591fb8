package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"newco.ai/founder-scout/internal/core"
	"newco.ai/founder-scout/internal/store"
)

const saveFailedMessage = "We could not save your conversation. Please try ending it again."

type APIHandler struct {
	interviews *core.InterviewService
}

func NewAPIHandler(interviews *core.InterviewService) *APIHandler {
	return &APIHandler{interviews: interviews}
}

type SessionResponse struct {
	*core.Session
	Phase core.Phase `json:"phase"`
}

func newSessionResponse(s *core.Session) SessionResponse {
	return SessionResponse{Session: s, Phase: s.Phase()}
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := h.interviews.StartSession()
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.interviews.Session(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (h *APIHandler) ResetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.interviews.ResetSession(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !h.appendUserMessage(w, r, sessionID) {
		return
	}

	turn, err := h.interviews.RequestAssistantTurn(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// StreamMessageHandler sends the reply as server-sent events: one "fragment"
// event per chunk followed by a single "done" event carrying the Turn.
func (h *APIHandler) StreamMessageHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming is not supported"})
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if !h.appendUserMessage(w, r, sessionID) {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	started := false
	start := func() {
		if !started {
			w.WriteHeader(http.StatusOK)
			started = true
		}
	}

	turn, err := h.interviews.StreamAssistantTurn(r.Context(), sessionID, func(fragment string) {
		start()
		writeEvent(w, "fragment", map[string]string{"text": fragment})
		flusher.Flush()
	})
	if err != nil {
		if !started {
			h.writeError(w, r, err)
			return
		}
		writeEvent(w, "error", errorResponse{Error: err.Error()})
		flusher.Flush()
		return
	}

	start()
	writeEvent(w, "done", turn)
	flusher.Flush()
}

type EndSessionResponse struct {
	Outcome         string `json:"outcome"`
	Saved           bool   `json:"saved"`
	SummaryError    string `json:"summary_error,omitempty"`
	EvaluationError string `json:"evaluation_error,omitempty"`
}

func (h *APIHandler) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	result, err := h.interviews.EndSession(r.Context(), sessionID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !result.Outcome.Success() {
		if errors.Is(result.Err, core.ErrPersistenceDisabled) {
			h.writeError(w, r, result.Err)
			return
		}
		hlog.FromRequest(r).Error().Err(result.Err).Str("session_id", sessionID).Msg("Conversation save failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: saveFailedMessage})
		return
	}

	resp := EndSessionResponse{Outcome: result.Outcome.String(), Saved: true}
	if result.SummaryErr != nil {
		resp.SummaryError = "summary could not be generated"
	}
	if result.EvaluationErr != nil {
		resp.EvaluationError = "evaluation could not be generated"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	conversations, err := h.interviews.ListConversations(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	conversation, err := h.interviews.GetConversation(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if conversation == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "conversation not found"})
		return
	}
	writeJSON(w, http.StatusOK, conversation)
}

func (h *APIHandler) appendUserMessage(w http.ResponseWriter, r *http.Request, sessionID string) bool {
	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body: " + err.Error()})
		return false
	}
	if err := h.interviews.AppendUserMessage(sessionID, req.Content); err != nil {
		h.writeError(w, r, err)
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *store.ValidationError
	var persistenceErr *store.PersistenceError

	status := http.StatusInternalServerError
	message := "Something went wrong. Please try again."
	switch {
	case errors.As(err, &validationErr):
		status, message = http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, core.ErrSessionNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrSessionBusy),
		errors.Is(err, core.ErrReplyPending),
		errors.Is(err, core.ErrNoPendingMessage),
		errors.Is(err, core.ErrSessionClosed),
		errors.Is(err, core.ErrInterviewInProgress),
		errors.Is(err, core.ErrInterviewComplete):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrPersistenceDisabled):
		status, message = http.StatusServiceUnavailable, err.Error()
	case errors.As(err, &persistenceErr):
		message = "Conversation storage is unavailable. Please try again later."
	}

	if status == http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Msg("Request failed")
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(`{}`)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

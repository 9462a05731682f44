package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/hrconsult-assistant/internal/session"
	"github.com/wolfman30/hrconsult-assistant/pkg/logging"
)

// maxChatBody caps chat request bodies; a turn message is far smaller.
const maxChatBody = 16 << 10

// Handler wires HTTP requests to the chat service.
type Handler struct {
	service *Service
	logger  *logging.Logger
	stream  bool
}

// NewHandler creates a chat handler. streamDefault selects streaming for
// WebSocket turns that do not say otherwise.
func NewHandler(service *Service, streamDefault bool, logger *logging.Logger) *Handler {
	if service == nil {
		panic("conversation: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger.Component("chat-http"), stream: streamDefault}
}

type startSessionRequest struct {
	SessionID string `json:"session_id"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type messagesResponse struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
}

// StartSession handles POST /chat/sessions.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	conv, err := h.service.StartSession(r.Context(), req.SessionID)
	if err != nil {
		h.logger.Error("failed to start session", "error", err)
		http.Error(w, "Failed to start session", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusCreated, conv)
}

// GetSession handles GET /chat/sessions/{sessionID}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	conv, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// ListMessages handles GET /chat/sessions/{sessionID}/messages?limit=N.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	msgs, err := h.service.Messages(r.Context(), sessionID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []Message{}
	}
	h.writeJSON(w, http.StatusOK, messagesResponse{SessionID: sessionID, Messages: msgs})
}

// PostMessage handles POST /chat/sessions/{sessionID}/messages (non-streaming turn).
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	result, err := h.service.Turn(r.Context(), TurnRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		Message:   req.Message,
		Transport: "http",
	}, nil)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// StreamMessage handles POST /chat/sessions/{sessionID}/stream. Fragments are
// sent as SSE "fragment" events followed by a single "done" event. A client
// disconnect cancels the request context and aborts the turn.
func (h *Handler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	var req messageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
	}

	result, err := h.service.Turn(r.Context(), TurnRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		Message:   req.Message,
		Stream:    true,
		Transport: "sse",
	}, func(fragment string) {
		start()
		h.writeEvent(w, "fragment", map[string]string{"text": fragment})
		flusher.Flush()
	})
	if err != nil {
		if started {
			h.writeEvent(w, "error", map[string]string{"error": err.Error()})
			flusher.Flush()
			return
		}
		h.writeError(w, err)
		return
	}
	start()
	h.writeEvent(w, "done", result)
	flusher.Flush()
}

// CancelTurn handles POST /chat/sessions/{sessionID}/cancel.
func (h *Handler) CancelTurn(w http.ResponseWriter, r *http.Request) {
	if !h.service.Cancel(chi.URLParam(r, "sessionID")) {
		http.Error(w, "No turn in flight", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeEvent(w http.ResponseWriter, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode SSE payload", "event", event, "error", err)
		return
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		h.logger.Debug("failed to write SSE event", "event", event, "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		http.Error(w, "Session not found", http.StatusNotFound)
	case errors.Is(err, session.ErrMissingSessionID), errors.Is(err, ErrEmptyMessage):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrTurnInFlight):
		http.Error(w, "A reply is already in progress for this session", http.StatusConflict)
	default:
		h.logger.Error("chat request failed", "error", err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

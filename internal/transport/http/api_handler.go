package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"trivia-session-service/internal/app"
	"trivia-session-service/internal/domain"
)

// APIHandler exposes the session control surface over plain HTTP: starting
// a quiz on a channel, stopping a session, and status lookups. Answer
// traffic stays on the websocket.
type APIHandler struct {
	service     *app.QuizService
	defaultWait int // waiting period in seconds when the request omits one
}

func NewAPIHandler(service *app.QuizService, defaultWaitSeconds int) *APIHandler {
	return &APIHandler{service: service, defaultWait: defaultWaitSeconds}
}

// Register mounts the routes on mux using method patterns.
func (h *APIHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /channels/{channelID}/start", h.startQuiz)
	mux.HandleFunc("POST /sessions/{sessionID}/stop", h.stopSession)
	mux.HandleFunc("GET /channels/{channelID}/session", h.activeSession)
}

type startRequest struct {
	QuizID string `json:"quizId"`
	// nil means "use the configured default"; an explicit 0 skips the
	// waiting period entirely.
	WaitSeconds *int   `json:"waitSeconds"`
	IsPrivate   bool   `json:"isPrivate"`
	OwnerID     string `json:"ownerId,omitempty"`
}

func (h *APIHandler) startQuiz(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channelID")

	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuizID == "" {
		writeError(w, http.StatusBadRequest, "quizId is required")
		return
	}

	wait := h.defaultWait
	if req.WaitSeconds != nil {
		wait = *req.WaitSeconds
	}

	summary, err := h.service.StartQuiz(r.Context(), channelID, req.QuizID, app.StartOptions{
		WaitSeconds: wait,
		IsPrivate:   req.IsPrivate,
		OwnerID:     req.OwnerID,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, summary)
}

func (h *APIHandler) stopSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.StopSession(r.Context(), r.PathValue("sessionID")); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *APIHandler) activeSession(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.ActiveSession(r.Context(), r.PathValue("channelID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrChannelActive):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoQuestions), errors.Is(err, domain.ErrInvalidQuestion):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		log.Printf("api error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

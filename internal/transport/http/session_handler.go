package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"trivia-board/internal/domain"
)

type createSessionRequest struct {
	GameID       uuid.UUID `json:"gameId"`
	Name         string    `json:"name"`
	TimerSeconds int       `json:"timerSeconds"`
}

func errInvalidPayload(msgType string) error {
	return fmt.Errorf("%w: invalid %s payload", domain.ErrValidation, msgType)
}

// handleCreateSession starts a new session. Admin-only: the bearer token
// stands in for the external identity surface.
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.adminToken == "" || r.Header.Get("Authorization") != "Bearer "+h.adminToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	sess, err := h.coordinator.CreateSession(r.Context(), req.GameID, req.Name, req.TimerSeconds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleSessionLobby serves the pre-join snapshot for a join code.
func (h *Handler) handleSessionLobby(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if code == "" || strings.Contains(code, "/") {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	summary, err := h.coordinator.SummaryByCode(r.Context(), strings.ToUpper(code))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case domain.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

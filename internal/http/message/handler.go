// Package message exposes the inbound chat message endpoint.
package message

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Engine is the conversation surface the handler drives.
type Engine interface {
	HandleMessage(ctx context.Context, userID, text string) (string, error)
}

type Handler struct {
	engine Engine
	logger *slog.Logger
}

func NewHandler(engine Engine, logger *slog.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.handleMessage)
}

type messageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type messageResponse struct {
	Replies []string `json:"replies"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json body"})
		return
	}

	if strings.TrimSpace(req.UserID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "user_id is required"})
		return
	}

	reply, err := h.engine.HandleMessage(r.Context(), req.UserID, req.Text)
	if err != nil {
		h.logger.Error("handling message",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})

		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Replies: []string{reply}})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

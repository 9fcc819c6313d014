// internal/waitlist/handler.go
package waitlist

import (
	"net/http"
	"time"

	"bookstore/internal/httpapi"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	manager *Manager
}

func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/books/{bookID}/waitlist", h.HandleEntries)
	r.Post("/books/{bookID}/waitlist", h.HandleJoin)
	r.Delete("/books/{bookID}/waitlist", h.HandleLeave)
	r.Get("/books/{bookID}/waitlist/me", h.HandlePosition)
}

type positionResponse struct {
	Position     int        `json:"position"`
	EstimatedETA *time.Time `json:"estimated_available_at"`
}

func (h *Handler) HandleEntries(w http.ResponseWriter, r *http.Request) {
	bookID, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	entries, err := h.manager.Entries(r.Context(), bookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, entries)
}

func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	bookID, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	entry, err := h.manager.Join(r.Context(), userID, bookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	eta, err := h.manager.EstimateAvailability(r.Context(), bookID, entry.Position)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusCreated, positionResponse{Position: entry.Position, EstimatedETA: eta})
}

func (h *Handler) HandleLeave(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	bookID, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	if err := h.manager.Leave(r.Context(), userID, bookID); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandlePosition(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	bookID, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	entry, err := h.manager.Position(r.Context(), userID, bookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	eta, err := h.manager.EstimateAvailability(r.Context(), bookID, entry.Position)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, positionResponse{Position: entry.Position, EstimatedETA: eta})
}

// internal/circulation/handler.go
package circulation

import (
	"net/http"

	"bookstore/internal/httpapi"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/borrows", h.HandleBorrow)
	r.Post("/returns", h.HandleReturn)
	r.Get("/borrows", h.HandleActive)
	r.Get("/borrows/history", h.HandleHistory)
}

type bookRequest struct {
	BookID uuid.UUID `json:"book_id" validate:"required"`
}

func (h *Handler) HandleBorrow(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req bookRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	borrow, err := h.service.Borrow(r.Context(), userID, req.BookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusCreated, borrow)
}

type returnResponse struct {
	*ReturnResult
	Degraded bool `json:"degraded"`
}

func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req bookRequest
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	result, err := h.service.Return(r.Context(), userID, req.BookID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, returnResponse{ReturnResult: result, Degraded: result.Degraded()})
}

func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	borrows, err := h.service.ActiveBorrows(r.Context(), userID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, borrows)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	borrows, err := h.service.History(r.Context(), userID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, borrows)
}

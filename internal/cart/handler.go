// internal/cart/handler.go
package cart

import (
	"net/http"

	"bookstore/internal/httpapi"
	"bookstore/internal/model"

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
	r.Get("/cart", h.HandleCart)
	r.Post("/cart/items", h.HandleAdd)
	r.Delete("/cart/items/{itemID}", h.HandleRemove)
	r.Post("/cart/checkout", h.HandleCheckout)
}

func (h *Handler) HandleCart(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	view, err := h.service.Cart(r.Context(), userID)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, view)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		BookID uuid.UUID `json:"book_id" validate:"required"`
		Intent string    `json:"intent" validate:"required,oneof=borrow purchase"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	item, err := h.service.AddToCart(r.Context(), userID, req.BookID, model.Intent(req.Intent))
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusCreated, item)
}

func (h *Handler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}
	itemID, err := httpapi.PathID(r, "itemID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	if err := h.service.RemoveFromCart(r.Context(), userID, itemID); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, err := httpapi.UserID(r)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	result, err := h.service.Checkout(r.Context(), userID)
	if err != nil {
		if result != nil {
			// Lines before the failure are committed.
			httpapi.PartialError(w, r, err, result)
			return
		}
		httpapi.Error(w, r, err)
		return
	}

	status := http.StatusOK
	if !result.Complete() {
		status = http.StatusMultiStatus
	}
	httpapi.JSON(w, status, result)
}

// internal/membership/handler.go
package membership

import (
	"errors"
	"net/http"

	"bookstore/internal/httpapi"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/users", h.HandleRegister)
	r.Get("/users/{userID}", h.HandleGet)
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req Registration
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Name)
	if errors.Is(err, ErrRateLimited) {
		w.Header().Set("Retry-After", "1")
		httpapi.JSON(w, http.StatusTooManyRequests, httpapi.ErrorBody{Code: "RATE_LIMITED", Message: err.Error()})
		return
	}
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusCreated, user)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "userID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, user)
}

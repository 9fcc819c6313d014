// internal/catalog/handler.go
package catalog

import (
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
	r.Get("/books", h.HandleList)
	r.Post("/books", h.HandleAdd)
	r.Get("/books/{bookID}", h.HandleGet)
	r.Patch("/books/{bookID}/copies", h.HandleUpdateCopies)
	r.Get("/books/{bookID}/discounts", h.HandleDiscounts)
	r.Post("/books/{bookID}/discounts", h.HandleCreateDiscount)
	r.Put("/discounts/{discountID}", h.HandleUpdateDiscount)
	r.Delete("/discounts/{discountID}", h.HandleDeactivateDiscount)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	books, err := h.service.ListBooks(r.Context())
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, books)
}

func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var req NewBook
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.AddBook(r.Context(), req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusCreated, book)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.GetBook(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, book)
}

func (h *Handler) HandleUpdateCopies(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req struct {
		TotalCopies *int `json:"total_copies" validate:"required"`
	}
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	book, err := h.service.UpdateCopies(r.Context(), id, *req.TotalCopies)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, book)
}

func (h *Handler) HandleDiscounts(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	discounts, err := h.service.Discounts(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, discounts)
}

func (h *Handler) HandleCreateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "bookID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req DiscountInput
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	discount, err := h.service.CreateDiscount(r.Context(), id, req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusCreated, discount)
}

func (h *Handler) HandleUpdateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "discountID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	var req DiscountInput
	if err := httpapi.Decode(r, &req); err != nil {
		httpapi.Error(w, r, err)
		return
	}

	discount, err := h.service.UpdateDiscount(r.Context(), id, req)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, discount)
}

func (h *Handler) HandleDeactivateDiscount(w http.ResponseWriter, r *http.Request) {
	id, err := httpapi.PathID(r, "discountID")
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	discount, err := h.service.DeactivateDiscount(r.Context(), id)
	if err != nil {
		httpapi.Error(w, r, err)
		return
	}

	httpapi.JSON(w, http.StatusOK, discount)
}

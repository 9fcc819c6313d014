// internal/httpapi/respond.go

// Package httpapi holds the JSON plumbing shared by the domain handlers.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bookstore/internal/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// UserHeader carries the caller's user id. Identity is established upstream.
const UserHeader = "X-User-ID"

var validate = validator.New()

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Partial any    `json:"partial,omitempty"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

// Error maps err to a status code. Business errors keep their code and
// message; anything else is reported as unavailable without detail.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	PartialError(w, r, err, nil)
}

// PartialError is Error for operations that committed some work before
// failing. partial describes what went through and is sent alongside the code.
func PartialError(w http.ResponseWriter, r *http.Request, err error, partial any) {
	code := model.Code(err)
	if code == "" {
		slog.ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		JSON(w, http.StatusServiceUnavailable, ErrorBody{
			Code:    "UNAVAILABLE",
			Message: "temporarily unavailable, try again",
			Partial: partial,
		})
		return
	}
	JSON(w, StatusFor(code), ErrorBody{Code: string(code), Message: err.Error(), Partial: partial})
}

// StatusFor returns the HTTP status for a business error code.
func StatusFor(code model.ErrCode) int {
	switch code {
	case model.CodeNotFound:
		return http.StatusNotFound
	case model.CodeInvalidInput:
		return http.StatusBadRequest
	case model.CodeNotBorrowable, model.CodeNotPurchasable,
		model.CodeDiscountWindowTooLong:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// Decode reads a JSON body into v and validates its struct tags.
func Decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return model.Errorf(model.ErrInvalidInput, "malformed body: %v", err)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return model.Errorf(model.ErrInvalidInput, "field %s fails %q", verrs[0].Field(), verrs[0].Tag())
		}
		return model.Errorf(model.ErrInvalidInput, "%v", err)
	}
	return nil
}

// UserID returns the caller's id from UserHeader.
func UserID(r *http.Request) (uuid.UUID, error) {
	raw := r.Header.Get(UserHeader)
	if raw == "" {
		return uuid.Nil, model.Errorf(model.ErrInvalidInput, "missing %s header", UserHeader)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, model.Errorf(model.ErrInvalidInput, "%s: %v", UserHeader, err)
	}
	return id, nil
}

// PathID parses the named chi URL parameter as a uuid.
func PathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, model.Errorf(model.ErrInvalidInput, "invalid %s", name)
	}
	return id, nil
}

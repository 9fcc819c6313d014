// internal/store/postgres/errors.go
package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"bookstore/internal/model"
	"bookstore/internal/store"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// pgError extracts the SQLSTATE and constraint name from either driver.
func pgError(err error) (code, constraint string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Constraint, true
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code, pgxErr.ConstraintName, true
	}
	return "", "", false
}

// classify turns a driver error into the error the core expects. Unique
// violations on known constraints become business errors, lost races become
// store.ErrConcurrencyConflict, and everything else is an infrastructure failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	code, constraint, ok := pgError(err)
	if ok {
		switch code {
		case codeSerializationFailure, codeDeadlockDetected:
			return model.Infra(op, fmt.Errorf("%w: %v", store.ErrConcurrencyConflict, err))
		case codeUniqueViolation:
			switch constraint {
			case "borrows_one_active_per_user_book":
				return model.Errorf(model.ErrDuplicateBorrow, "%s", op)
			case "waiting_list_unique_user":
				return model.Errorf(model.ErrAlreadyQueued, "%s", op)
			case "cart_items_unique_book":
				return model.Errorf(model.ErrDuplicateCartItem, "%s", op)
			case "users_email_key":
				return model.Errorf(model.ErrInvalidInput, "email already registered")
			default:
				return model.Infra(op, fmt.Errorf("%w: %v", store.ErrConcurrencyConflict, err))
			}
		}
	}
	return model.Infra(op, err)
}

// notFound maps sql.ErrNoRows to a business not-found error.
func notFound(op string, err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return model.Errorf(model.ErrNotFound, format, args...)
	}
	return classify(op, err)
}

// optional maps sql.ErrNoRows to a nil error so the caller can return nil, nil.
func optional(op string, err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(op, err)
	}
	return true, nil
}

// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// ErrCode identifies a business rule violation. Callers map codes to user
// facing messages.
type ErrCode string

const (
	CodeCapacityExceeded      ErrCode = "CAPACITY_EXCEEDED"
	CodeDuplicateBorrow       ErrCode = "DUPLICATE_BORROW"
	CodeBorrowLimitReached    ErrCode = "BORROW_LIMIT_REACHED"
	CodeNotBorrowable         ErrCode = "NOT_BORROWABLE"
	CodeNotPurchasable        ErrCode = "NOT_PURCHASABLE"
	CodeAlreadyQueued         ErrCode = "ALREADY_QUEUED"
	CodeCopiesAvailable       ErrCode = "COPIES_AVAILABLE"
	CodeDuplicateCartItem     ErrCode = "DUPLICATE_CART_ITEM"
	CodeDiscountOverlap       ErrCode = "DISCOUNT_OVERLAP"
	CodeDiscountWindowTooLong ErrCode = "DISCOUNT_WINDOW_TOO_LONG"
	CodeNotFound              ErrCode = "NOT_FOUND"
	CodeInvalidInput          ErrCode = "INVALID_INPUT"
)

// Error is a recoverable business outcome. Two errors match under errors.Is
// when their codes are equal, so wrapped detail never hides the code.
type Error struct {
	Code    ErrCode
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrCapacityExceeded      = &Error{Code: CodeCapacityExceeded, Message: "no copies available"}
	ErrDuplicateBorrow       = &Error{Code: CodeDuplicateBorrow, Message: "book already borrowed by user"}
	ErrBorrowLimitReached    = &Error{Code: CodeBorrowLimitReached, Message: "borrow limit reached"}
	ErrNotBorrowable         = &Error{Code: CodeNotBorrowable, Message: "book cannot be borrowed"}
	ErrNotPurchasable        = &Error{Code: CodeNotPurchasable, Message: "book cannot be purchased"}
	ErrAlreadyQueued         = &Error{Code: CodeAlreadyQueued, Message: "user already on waiting list"}
	ErrCopiesAvailable       = &Error{Code: CodeCopiesAvailable, Message: "copies are available, borrow instead"}
	ErrDuplicateCartItem     = &Error{Code: CodeDuplicateCartItem, Message: "book already in cart"}
	ErrDiscountOverlap       = &Error{Code: CodeDiscountOverlap, Message: "an active discount already covers this period"}
	ErrDiscountWindowTooLong = &Error{Code: CodeDiscountWindowTooLong, Message: "discount window too long"}
	ErrNotFound              = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidInput          = &Error{Code: CodeInvalidInput, Message: "invalid input"}
)

// Errorf returns a business error carrying base's code and a detailed message.
func Errorf(base *Error, format string, args ...any) error {
	return &Error{Code: base.Code, Message: base.Message + ": " + fmt.Sprintf(format, args...)}
}

// Code extracts the business error code, or "" for anything else.
func Code(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsBusiness reports whether err is a business rule outcome.
func IsBusiness(err error) bool {
	return Code(err) != ""
}

// InfraError marks a failure of the persistence layer or another collaborator.
// Callers should retry later rather than change their input.
type InfraError struct {
	Op  string
	Err error
}

func (e *InfraError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InfraError) Unwrap() error { return e.Err }

// Infra wraps err as an infrastructure failure. Business errors and errors
// that are already infrastructure failures pass through unchanged.
func Infra(op string, err error) error {
	if err == nil || IsBusiness(err) || IsInfra(err) {
		return err
	}
	return &InfraError{Op: op, Err: err}
}

// IsInfra reports whether err is an infrastructure failure.
func IsInfra(err error) bool {
	var e *InfraError
	return errors.As(err, &e)
}

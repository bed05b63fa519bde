// Package apperr carries the error taxonomy shared by the ledger, cart,
// checkout and order packages.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is a machine-readable error category.
type Kind string

const (
	KindValidation            Kind = "VALIDATION"
	KindNotFound              Kind = "NOT_FOUND"
	KindInsufficientStock     Kind = "INSUFFICIENT_STOCK"
	KindInsufficientReserved  Kind = "INSUFFICIENT_RESERVED"
	KindInsufficientAvailable Kind = "INSUFFICIENT_AVAILABLE"
	KindInvalidTransition     Kind = "INVALID_TRANSITION"
	KindConflict              Kind = "CONFLICT"
	KindEmptyCart             Kind = "EMPTY_CART"
	KindStoreUnavailable      Kind = "STORE_UNAVAILABLE"
)

// HTTPStatus maps a kind to the status code used by the transport.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation, KindEmptyCart:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindInsufficientReserved, KindInsufficientAvailable,
		KindInvalidTransition, KindConflict:
		return http.StatusConflict
	case KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type.
type Error struct {
	Kind       Kind
	Message    string
	Quantities map[string]int // stock counters observed at failure time
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// Sentinels for errors.Is checks.
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInsufficientStock     = &Error{Kind: KindInsufficientStock}
	ErrInsufficientReserved  = &Error{Kind: KindInsufficientReserved}
	ErrInsufficientAvailable = &Error{Kind: KindInsufficientAvailable}
	ErrInvalidTransition     = &Error{Kind: KindInvalidTransition}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrEmptyCart             = &Error{Kind: KindEmptyCart}
	ErrStoreUnavailable      = &Error{Kind: KindStoreUnavailable}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }

func NotFound(msg string) *Error { return New(KindNotFound, msg) }

func Conflict(msg string) *Error { return New(KindConflict, msg) }

func InvalidTransition(msg string) *Error { return New(KindInvalidTransition, msg) }

func EmptyCart() *Error { return New(KindEmptyCart, "cart is empty") }

func StoreUnavailable(cause error) *Error {
	return Wrap(KindStoreUnavailable, "store unavailable", cause)
}

// InsufficientStock reports a reservation larger than the free stock.
func InsufficientStock(free int) *Error {
	return &Error{
		Kind:       KindInsufficientStock,
		Message:    "insufficient stock",
		Quantities: map[string]int{"free": free},
	}
}

// InsufficientReserved reports a commit larger than the reserved quantity.
func InsufficientReserved(reserved int) *Error {
	return &Error{
		Kind:       KindInsufficientReserved,
		Message:    "not enough reserved quantity to commit",
		Quantities: map[string]int{"reserved": reserved},
	}
}

// InsufficientAvailable reports a commit larger than the available quantity.
func InsufficientAvailable(available int) *Error {
	return &Error{
		Kind:       KindInsufficientAvailable,
		Message:    "insufficient available quantity",
		Quantities: map[string]int{"available": available},
	}
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

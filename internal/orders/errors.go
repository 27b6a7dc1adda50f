package orders

import (
	"errors"
	"fmt"
	"strconv"
)

// Error kinds. Every typed error below unwraps to exactly one of these so
// callers can branch with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrConflict          = errors.New("write conflict")
	ErrDispatch          = errors.New("notification dispatch failed")
	ErrDuplicateOrder    = errors.New("order already exists")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type NotFoundError struct {
	Kind string // "product" | "order"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func ProductNotFound(id string) error { return &NotFoundError{Kind: "product", ID: id} }
func OrderNotFound(id string) error   { return &NotFoundError{Kind: "order", ID: id} }

type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError is a transactional write conflict. Attempts is zero when
// raised by storage and set by the workflow once its retries are spent.
type ConflictError struct {
	Attempts int
	Err      error
}

func (e *ConflictError) Error() string {
	msg := "write conflict"
	if e.Attempts > 0 {
		msg += " after " + strconv.Itoa(e.Attempts) + " attempts"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrConflict}
	}
	return []error{ErrConflict, e.Err}
}

// DispatchError never reaches order callers; dispatchers log it.
type DispatchError struct {
	OrderID string
	Err     error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch order %s: %v", e.OrderID, e.Err)
}

func (e *DispatchError) Unwrap() []error { return []error{ErrDispatch, e.Err} }

func quote(s string) string { return strconv.Quote(s) }

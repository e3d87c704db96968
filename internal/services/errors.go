package services

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies service failures so the HTTP boundary can pick a status code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindBusinessRule
	KindConflict
	KindProvider
	KindUnauthorized
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindBusinessRule:
		return "business_rule"
	case KindConflict:
		return "conflict"
	case KindProvider:
		return "provider"
	case KindUnauthorized:
		return "unauthorized"
	}
	return "internal"
}

// Error is a classified service error. Message is safe to show to API clients;
// Detail and the wrapped cause are for logs and the details field.
type Error struct {
	Kind      ErrorKind
	Message   string
	Detail    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error with the same kind and message, so errors.Is(err, ErrOrderNotFound)
// holds for detailed copies of the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

func newError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// withDetail returns a copy of sentinel carrying extra context.
func withDetail(sentinel *Error, format string, args ...interface{}) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Retryable: sentinel.Retryable, Detail: fmt.Sprintf(format, args...)}
}

func validationError(format string, args ...interface{}) error {
	return withDetail(ErrValidation, format, args...)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a classified error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

var (
	ErrValidation   = newError(KindValidation, "Input validation failed")
	ErrUnauthorized = newError(KindUnauthorized, "Invalid username or password")

	ErrOrderNotFound       = newError(KindNotFound, "Order not found")
	ErrPaymentNotFound     = newError(KindNotFound, "Payment not found")
	ErrMenuItemNotFound    = newError(KindNotFound, "Menu item not found")
	ErrUserNotFound        = newError(KindNotFound, "User not found")
	ErrInvalidOrderStatus  = newError(KindValidation, "Invalid order status")
	ErrMenuItemUnavailable = newError(KindBusinessRule, "One or more menu items are unavailable")
	ErrBelowMinimumOrder   = newError(KindBusinessRule, "Order subtotal is below the minimum order amount")
	ErrIllegalTransition   = newError(KindBusinessRule, "Illegal order status transition")
	ErrOrderNotCancellable = newError(KindBusinessRule, "Order can no longer be cancelled")

	ErrOrderNotPayable       = newError(KindBusinessRule, "Order is not in a payable state")
	ErrPaymentAmountMismatch = newError(KindBusinessRule, "Payment amount does not match order total")
	ErrRefundNotAllowed      = newError(KindBusinessRule, "Can only refund completed payments")
	ErrPaymentInProgress     = newError(KindBusinessRule, "Order already has a payment in progress or completed")
	ErrCashNotSupported      = newError(KindValidation, "Cash payments are settled at the counter and do not use payment intents")

	ErrMenuItemInUse  = newError(KindConflict, "Cannot delete a menu item with order history")
	ErrMenuItemExists = newError(KindConflict, "A menu item with this name already exists")
	ErrUsernameExists = newError(KindConflict, "Username already exists")

	ErrProviderFailure = &Error{Kind: KindProvider, Message: "Payment provider request failed"}
)

// retryable is implemented by provider errors that know whether a retry can succeed.
type retryable interface {
	Retryable() bool
}

// providerError wraps a failure from the payment provider. Timeouts and errors reporting
// Retryable() == true are marked retryable.
func providerError(op string, err error) error {
	retry := errors.Is(err, context.DeadlineExceeded)
	var r retryable
	if errors.As(err, &r) {
		retry = retry || r.Retryable()
	}
	return &Error{
		Kind:      KindProvider,
		Message:   ErrProviderFailure.Message,
		Detail:    op,
		Retryable: retry,
		Err:       err,
	}
}

package services

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrorKind classifies service failures so handlers can pick a status code.
type ErrorKind string

const (
	KindValidation          ErrorKind = "validation"
	KindUnauthorized        ErrorKind = "unauthorized"
	KindForbidden           ErrorKind = "forbidden"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindPaymentVerification ErrorKind = "payment_verification"
	KindInternal            ErrorKind = "internal"
)

// ServiceError is the typed error every service operation returns.
type ServiceError struct {
	Kind    ErrorKind
	Message string
	Err     error // Underlying cause, logged but never shown to clients
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

// Is matches sentinels by kind and message so wrapped copies still compare equal.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

func newError(kind ErrorKind, msg string, err error) *ServiceError {
	return &ServiceError{Kind: kind, Message: msg, Err: err}
}

// ValidationError wraps bad input.
func ValidationError(msg string, err error) *ServiceError {
	return newError(KindValidation, msg, err)
}

// NotFoundError reports a missing entity.
func NotFoundError(msg string) *ServiceError { return newError(KindNotFound, msg, nil) }

// ForbiddenError reports an authenticated caller acting outside their rights.
func ForbiddenError(msg string) *ServiceError { return newError(KindForbidden, msg, nil) }

// ConflictError reports a state that forbids the operation.
func ConflictError(msg string) *ServiceError { return newError(KindConflict, msg, nil) }

// InternalError hides err behind a generic message.
func InternalError(msg string, err error) *ServiceError {
	return newError(KindInternal, msg, err)
}

// PaymentVerificationError reports that the gateway did not confirm a charge.
func PaymentVerificationError(msg string, err error) *ServiceError {
	return newError(KindPaymentVerification, msg, err)
}

var (
	ErrRideNotFound            = NotFoundError("ride not found")
	ErrRideNotAvailable        = ConflictError("ride no longer available")
	ErrDriverBusy              = ConflictError("finish current ride first")
	ErrInvalidTransition       = ValidationError("invalid transition", nil)
	ErrNotAssignedDriver       = ForbiddenError("ride is assigned to another driver")
	ErrNotRideOwner            = ForbiddenError("only the rider who requested the ride can do this")
	ErrRideNotCancellable      = ConflictError("cannot cancel a ride already in progress or completed/cancelled")
	ErrRideAlreadyPaid         = ConflictError("ride already paid")
	ErrNoActiveRide            = NotFoundError("no active ride")
	ErrPaymentNotFound         = NotFoundError("payment not found")
	ErrInvalidWebhookSignature = ValidationError("invalid webhook signature", nil)
	ErrWebhookTooLarge         = ValidationError("webhook body too large", nil)
	ErrInvalidCredentials      = newError(KindUnauthorized, "invalid email or password", nil)
)

// InsufficientFundsError is a Conflict carrying the shortfall.
type InsufficientFundsError struct {
	Balance  decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient wallet balance: have %s, need %s", e.Balance.StringFixed(2), e.Required.StringFixed(2))
}

// KindOf returns the kind of err, KindInternal for anything untyped.
func KindOf(err error) ErrorKind {
	var insufficient *InsufficientFundsError
	if errors.As(err, &insufficient) {
		return KindConflict
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Kind
	}
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		return KindValidation
	}
	return KindInternal
}

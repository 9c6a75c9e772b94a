package xerrors

import (
	"errors"
	"net/http"
)

// Kind classifies failures returned across the API boundary.
type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindInvalidInput      Kind = "invalid_input"
	KindPlanNotFound      Kind = "plan_not_found"
	KindStoreNotConnected Kind = "store_not_connected"
	KindQuotaExceeded     Kind = "quota_exceeded"
	KindNoInventory       Kind = "no_inventory"
	KindInvalidPrice      Kind = "invalid_price"
	KindGateway           Kind = "gateway_error"
	KindPersistence       Kind = "persistence_error"
	KindRateLimited       Kind = "rate_limited"
)

// Error carries a Kind and a message that is safe to show to the caller.
// Err holds the internal cause and is only ever logged.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func Unauthenticated(message string) *Error {
	return New(KindUnauthenticated, message, ErrUnauthorized)
}

func InvalidInput(message string, err error) *Error {
	if err == nil {
		err = ErrInvalidInput
	}
	return New(KindInvalidInput, message, err)
}

func PlanNotFound(err error) *Error {
	return New(KindPlanNotFound, "membership plan not found", err)
}

func StoreNotConnected() *Error {
	return New(KindStoreNotConnected, "connect your store before upgrading to a paid plan", nil)
}

func QuotaExceeded(message string) *Error {
	return New(KindQuotaExceeded, message, nil)
}

func NoInventory(productID, variantID string) *Error {
	return New(KindNoInventory, "bargaining cannot be enabled for a variant without inventory", nil).
		withDetail("product " + productID + " variant " + variantID)
}

func InvalidPrice(err error) *Error {
	return New(KindInvalidPrice, "the price floor cannot be applied to this variant", err)
}

func Gateway(message string, err error) *Error {
	return New(KindGateway, message, err)
}

func Persistence(err error) *Error {
	return New(KindPersistence, "something went wrong while saving your changes", err)
}

func (e *Error) withDetail(detail string) *Error {
	if e.Err == nil {
		e.Err = errors.New(detail)
	}
	return e
}

// KindOf returns the Kind of the first *Error in the chain, or
// KindPersistence for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindPersistence
}

// PublicMessage returns the caller-facing message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "something went wrong while processing your request"
}

// HTTPStatus maps a Kind to the status code written by the handlers.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindPlanNotFound:
		return http.StatusNotFound
	case KindStoreNotConnected:
		return http.StatusConflict
	case KindQuotaExceeded:
		return http.StatusForbidden
	case KindNoInventory, KindInvalidPrice:
		return http.StatusUnprocessableEntity
	case KindGateway:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Classify keeps typed errors as they are and treats anything else as a
// persistence failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Persistence(err)
}

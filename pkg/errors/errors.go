package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"time"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeConflict          Code = "CONFLICT"
	CodeInvalidState      Code = "INVALID_STATE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeInvalidCoupon     Code = "INVALID_COUPON"
	CodeCouponApplied     Code = "COUPON_ALREADY_APPLIED"
	CodeStackingLimit     Code = "DISCOUNT_STACKING_LIMIT"
	CodeOrderTransition   Code = "INVALID_ORDER_TRANSITION"
	CodeOrderNotPickup    Code = "ORDER_NOT_PICKUP"
	CodePickupTimeInPast  Code = "PICKUP_TIME_IN_PAST"
	CodeStoreClosed       Code = "STORE_CLOSED"
	CodeInvalidTimeFormat Code = "INVALID_TIME_FORMAT"
	CodeLocationNotFound  Code = "LOCATION_NOT_FOUND"

	CodePaymentInvalidStatus Code = "PAYMENT_INVALID_STATUS"
	CodePaymentExpired       Code = "PAYMENT_SESSION_EXPIRED"
	CodePaymentNotFound      Code = "PAYMENT_NOT_FOUND"

	CodeStateTransition Code = "STATE_TRANSITION_ERROR"

	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeContextLength Code = "CONTEXT_LENGTH_EXCEEDED"
	CodeFunctionCall  Code = "FUNCTION_CALL_ERROR"
	CodeQuotaExceeded Code = "QUOTA_EXCEEDED"
	CodeTimeout       Code = "TIMEOUT"
	CodeLLMAPI        Code = "LLM_API_ERROR"

	CodeConfiguration Code = "CONFIGURATION_ERROR"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
)

// Category groups codes by the layer that produces them.
type Category string

const (
	CategoryBusiness Category = "business"
	CategoryPayment  Category = "payment"
	CategoryLLM      Category = "llm"
	CategorySystem   Category = "system"
)

// Severity tags how loudly a failure should be surfaced.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	Category       Category
	Severity       Severity
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        business(http.StatusBadRequest, "validation failed"),
	CodeNotFound:          business(http.StatusNotFound, "resource not found"),
	CodeConflict:          business(http.StatusConflict, "conflict detected"),
	CodeInvalidState:      business(http.StatusUnprocessableEntity, "operation not allowed in current state"),
	CodeInsufficientStock: business(http.StatusConflict, "insufficient stock"),
	CodeInvalidCoupon:     business(http.StatusUnprocessableEntity, "coupon is not valid"),
	CodeCouponApplied:     business(http.StatusConflict, "coupon already applied"),
	CodeStackingLimit:     business(http.StatusUnprocessableEntity, "discount cannot be combined"),
	CodeOrderTransition:   business(http.StatusUnprocessableEntity, "order status transition disallowed"),
	CodeOrderNotPickup:    business(http.StatusUnprocessableEntity, "order is not a pickup order"),
	CodePickupTimeInPast:  business(http.StatusUnprocessableEntity, "pickup time must be in the future"),
	CodeStoreClosed:       business(http.StatusUnprocessableEntity, "store is closed at the requested time"),
	CodeInvalidTimeFormat: business(http.StatusBadRequest, "invalid time format"),
	CodeLocationNotFound:  business(http.StatusNotFound, "pickup location not found"),

	CodePaymentInvalidStatus: payment(http.StatusUnprocessableEntity, "payment status transition disallowed"),
	CodePaymentExpired:       payment(http.StatusGone, "payment session expired"),
	CodePaymentNotFound:      payment(http.StatusNotFound, "payment session not found"),

	CodeStateTransition: {
		HTTPStatus:     http.StatusConflict,
		PublicMessage:  "state transition disallowed",
		DetailsAllowed: true,
		Category:       CategorySystem,
		Severity:       SeverityHigh,
	},

	CodeRateLimit:     llm(http.StatusTooManyRequests, true, SeverityMedium, "rate limit exceeded"),
	CodeContextLength: llm(http.StatusRequestEntityTooLarge, true, SeverityMedium, "conversation too long"),
	CodeFunctionCall:  llm(http.StatusBadGateway, true, SeverityLow, "function call failed"),
	CodeQuotaExceeded: llm(http.StatusServiceUnavailable, false, SeverityCritical, "assistant quota exhausted"),
	CodeTimeout:       llm(http.StatusGatewayTimeout, true, SeverityMedium, "assistant timed out"),
	CodeLLMAPI:        llm(http.StatusBadGateway, true, SeverityHigh, "assistant unavailable"),

	CodeConfiguration: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "configuration error",
		Category:      CategorySystem,
		Severity:      SeverityCritical,
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
		Category:      CategorySystem,
		Severity:      SeverityHigh,
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
		Category:       CategorySystem,
		Severity:       SeverityHigh,
	},
}

func business(status int, msg string) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  msg,
		DetailsAllowed: true,
		Category:       CategoryBusiness,
		Severity:       SeverityLow,
	}
}

func payment(status int, msg string) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  msg,
		DetailsAllowed: true,
		Category:       CategoryPayment,
		Severity:       SeverityMedium,
	}
}

func llm(status int, retryable bool, severity Severity, msg string) Metadata {
	return Metadata{
		HTTPStatus:    status,
		Retryable:     retryable,
		PublicMessage: msg,
		Category:      CategoryLLM,
		Severity:      severity,
	}
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code       Code
	message    string
	details    any
	cause      error
	retryAfter time.Duration
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

// RetryAfter is the delay advertised by the failing dependency, zero when unknown.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

func (e *Error) WithRetryAfter(d time.Duration) *Error {
	if e == nil {
		return nil
	}
	e.retryAfter = d
	return e
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the typed code of err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsStructured reports whether err belongs to a category returned as a result
// rather than raised past an agent boundary.
func IsStructured(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	switch MetadataFor(typed.Code()).Category {
	case CategoryBusiness, CategoryPayment:
		return true
	default:
		return false
	}
}

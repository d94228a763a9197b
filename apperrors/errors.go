package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an application error independently of its message.
type Kind string

const (
	KindNotFound                  Kind = "NOT_FOUND"
	KindInsufficientStock         Kind = "INSUFFICIENT_STOCK"
	KindInvalidTransition         Kind = "INVALID_TRANSITION"
	KindInfrastructureUnavailable Kind = "INFRASTRUCTURE_UNAVAILABLE"
	KindValidation                Kind = "VALIDATION"
	KindInternal                  Kind = "INTERNAL"
)

// Error represents an application error
type Error struct {
	Code    int    `json:"-"`
	Kind    Kind   `json:"code"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind. An invalid transition also reports as
// not found: the reservation exists, but not in a state the caller can act on.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind == t.Kind {
		return true
	}
	return e.Kind == KindInvalidTransition && t.Kind == KindNotFound
}

// JSON returns the error as a JSON string
func (e *Error) JSON() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// New creates a new Error
func New(code int, kind Kind, message string, err error) *Error {
	return &Error{
		Code:    code,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound                  = New(http.StatusNotFound, KindNotFound, "Not found", nil)
	ErrInsufficientStock         = New(http.StatusConflict, KindInsufficientStock, "Insufficient stock", nil)
	ErrInvalidTransition         = New(http.StatusConflict, KindInvalidTransition, "Invalid state transition", nil)
	ErrInfrastructureUnavailable = New(http.StatusServiceUnavailable, KindInfrastructureUnavailable, "Service unavailable", nil)
	ErrValidation                = New(http.StatusBadRequest, KindValidation, "Validation error", nil)
)

func NotFound(format string, args ...any) *Error {
	return New(http.StatusNotFound, KindNotFound, fmt.Sprintf(format, args...), nil)
}

func Validation(format string, args ...any) *Error {
	return New(http.StatusBadRequest, KindValidation, fmt.Sprintf(format, args...), nil)
}

// InsufficientStock reports how much was asked for and how much is left so
// callers can retry with a smaller quantity.
func InsufficientStock(productID string, requested, available int) *Error {
	return New(http.StatusConflict, KindInsufficientStock,
		fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", productID, requested, available), nil)
}

func InvalidTransition(id, from, to string) *Error {
	return New(http.StatusConflict, KindInvalidTransition,
		fmt.Sprintf("reservation %s cannot move from %s to %s", id, from, to), nil)
}

func Unavailable(message string, err error) *Error {
	return New(http.StatusServiceUnavailable, KindInfrastructureUnavailable, message, err)
}

// From converts any error into an *Error, defaulting to 500.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(http.StatusInternalServerError, KindInternal, "Internal server error", err)
}

// HTTPStatus maps an error to the status code handlers should respond with.
func HTTPStatus(err error) int {
	return From(err).Code
}

// ErrorMiddleware renders the last error attached with c.Error.
func ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			appErr := From(c.Errors.Last().Err)
			c.JSON(appErr.Code, appErr)
			c.Abort()
		}
	}
}

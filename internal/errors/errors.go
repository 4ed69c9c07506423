package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Error codes exposed to clients.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeNoVersion       = "no_version"
	CodeInvalidAnchor   = "invalid_anchor"
	CodeConflict        = "conflict"
	CodeUnprocessable   = "unprocessable_entity"
	CodeValidation      = "validation_failed"
	CodeInternal        = "internal_error"
)

// APIError represents an application error
type APIError struct {
	Status   int               `json:"-"`
	Code     string            `json:"code"`
	Message  string            `json:"error"`
	Fields   map[string]string `json:"fields,omitempty"`
	Internal error             `json:"-"`
}

// Error returns the error message
func (e *APIError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the original error
func (e *APIError) Unwrap() error {
	return e.Internal
}

// New creates a new application error
func New(status int, code, message string, err error) *APIError {
	return &APIError{
		Status:   status,
		Code:     code,
		Message:  message,
		Internal: err,
	}
}

func BadRequest(msg string, err error) *APIError {
	return New(http.StatusBadRequest, CodeBadRequest, msg, err)
}

func Unauthenticated(msg string, err error) *APIError {
	return New(http.StatusUnauthorized, CodeUnauthenticated, msg, err)
}

func Forbidden(msg string, err error) *APIError {
	return New(http.StatusForbidden, CodeForbidden, msg, err)
}

func NotFound(msg string, err error) *APIError {
	return New(http.StatusNotFound, CodeNotFound, msg, err)
}

// NoVersion is returned when a document has nothing to view or annotate yet.
func NoVersion(msg string) *APIError {
	return New(http.StatusConflict, CodeNoVersion, msg, nil)
}

func InvalidAnchor(msg string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, CodeInvalidAnchor, msg, err)
}

// Conflict is retryable by the client.
func Conflict(msg string, err error) *APIError {
	return New(http.StatusConflict, CodeConflict, msg, err)
}

func UnprocessableEntity(msg string, err error) *APIError {
	return New(http.StatusUnprocessableEntity, CodeUnprocessable, msg, err)
}

func Internal(err error) *APIError {
	return New(http.StatusInternalServerError, CodeInternal, "Internal server error", err)
}

// NewValidationError flattens binding errors into per-field messages.
func NewValidationError(err error) *APIError {
	apiErr := New(http.StatusUnprocessableEntity, CodeValidation, "Validation failed", err)

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		apiErr.Status = http.StatusBadRequest
		apiErr.Code = CodeBadRequest
		apiErr.Message = "Invalid request body"
		return apiErr
	}

	apiErr.Fields = make(map[string]string, len(validationErrs))
	for _, fe := range validationErrs {
		apiErr.Fields[strings.ToLower(fe.Field())] = fieldMessage(fe)
	}
	return apiErr
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "is invalid"
	}
}

// Is reports whether err carries an APIError with the given code.
func Is(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

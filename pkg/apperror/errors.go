package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	EntityName string `json:"entity_name,omitempty"`
	ErrorKey   string `json:"error_key,omitempty"` // machine-readable key for client-side alerts
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // wrapped internal error, never exposed to the client
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// BadRequestAlert is a 400 carrying the entity name and alert key shown to the client.
func BadRequestAlert(code, message, entityName, errorKey string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		EntityName: entityName,
		ErrorKey:   errorKey,
		HTTPStatus: http.StatusBadRequest,
	}
}

// ---- Wallet resource (WAL) ----

func ErrIDExists(entity string) *AppError {
	return BadRequestAlert("WAL_001", fmt.Sprintf("A new %s cannot already have an ID", entity), entity, "idexists")
}

func ErrIDNull(entity string) *AppError {
	return BadRequestAlert("WAL_002", "Invalid id", entity, "idnull")
}

func ErrNotFound(entity string) *AppError {
	e := New("WAL_003", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
	e.EntityName = entity
	e.ErrorKey = "notfound"
	return e
}

// ---- Request shape (REQ) ----

// Validation returns a REQ_001 error for malformed or invalid request bodies.
func Validation(message string) *AppError {
	return New("REQ_001", message, http.StatusBadRequest)
}

func ErrInvalidID(raw string) *AppError {
	return New("REQ_002", fmt.Sprintf("invalid id %q", raw), http.StatusBadRequest)
}

func ErrMissingQuery() *AppError {
	return New("REQ_003", "query parameter is required", http.StatusBadRequest)
}

func ErrBodyTooLarge(limit int64) *AppError {
	return New("REQ_004", fmt.Sprintf("request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

// ErrIdempotencyKeyReused rejects a replayed Idempotency-Key whose body differs
// from the request that first used it.
func ErrIdempotencyKeyReused() *AppError {
	return New("REQ_005", "Idempotency-Key was already used with a different request body", http.StatusUnprocessableEntity)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_005", "Insufficient authority", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// ErrIndexStale reports a mutation committed to the primary store whose search
// index write failed. The index entry for id is out of date until reconciled.
func ErrIndexStale(entity string, id int64, err error) *AppError {
	e := Wrap("SYS_004", fmt.Sprintf("%s %d saved but search index is stale", entity, id), http.StatusInternalServerError, err)
	e.EntityName = entity
	e.ErrorKey = "indexstale"
	return e
}

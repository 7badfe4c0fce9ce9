package common

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden access")
	ErrBadRequest         = errors.New("bad request")
	ErrConflict           = errors.New("resource conflict")
	ErrInternalServer     = errors.New("internal server error")
	ErrValidation         = errors.New("validation failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrLockFailed         = errors.New("failed to acquire team lock")
)

// Judging taxonomy. Execution errors never leave the harness as errors: they
// are folded into a failed test result.
var (
	ErrExecutionTimeout  = errors.New("time limit exceeded")
	ErrExecutionRuntime  = errors.New("runtime error")
	ErrQuestionIntegrity = errors.New("question integrity check failed")
	ErrConcurrentUpdate  = errors.New("concurrent team score update")
	ErrChannelDelivery   = errors.New("realtime channel delivery failed")
	ErrSubmissionFailed  = errors.New("submission failed, try again")
)

// HTTPStatusFromError maps domain errors to HTTP status codes.
func HTTPStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrForbidden) {
		return http.StatusForbidden
	}
	if errors.Is(err, ErrBadRequest) || errors.Is(err, ErrValidation) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrQuestionIntegrity) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, ErrServiceUnavailable) || errors.Is(err, ErrLockFailed) ||
		errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrSubmissionFailed) {
		return http.StatusServiceUnavailable
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // Unique violation
			return http.StatusConflict
		}
	}

	return http.StatusInternalServerError
}

// Errorf creates a new error with formatting, useful for wrapping.
func Errorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusFromError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: http.StatusOK},
		{name: "wrapped not found", err: fmt.Errorf("pgQuestionRepository.GetQuestion: %w", ErrNotFound), want: http.StatusNotFound},
		{name: "validation", err: ErrValidation, want: http.StatusBadRequest},
		{name: "integrity", err: ErrQuestionIntegrity, want: http.StatusUnprocessableEntity},
		{name: "concurrent update", err: ErrConcurrentUpdate, want: http.StatusServiceUnavailable},
		{name: "lock", err: ErrLockFailed, want: http.StatusServiceUnavailable},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505"}, want: http.StatusConflict},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusFromError(tt.err))
		})
	}
}

func TestRespondWithDomainErrorHidesServerFailures(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDomainError(rec, errors.New("dial tcp 10.0.0.3:5432: connection refused"))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "submission failed, try again", body.Error)
}

func TestRespondWithDomainErrorKeepsClientErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondWithDomainError(rec, fmt.Errorf("question belongs to another cohort: %w", ErrForbidden))

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "another cohort")
}

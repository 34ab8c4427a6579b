package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "celebrate/pkg/domain-errors"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWriteErrorStatuses(t *testing.T) {
	tests := []struct {
		code   dErrors.Code
		status int
	}{
		{dErrors.CodeInvalidInput, http.StatusBadRequest},
		{dErrors.CodeNotFound, http.StatusNotFound},
		{dErrors.CodeInvalidTransition, http.StatusConflict},
		{dErrors.CodeStaleState, http.StatusConflict},
		{dErrors.CodeLimitExceeded, http.StatusUnprocessableEntity},
		{dErrors.CodeCapturePending, http.StatusAccepted},
		{dErrors.CodePaymentCaptureFailed, http.StatusBadGateway},
		{dErrors.CodeUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, dErrors.New(tt.code, "celebration "+string(tt.code)))

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, string(tt.code), body["error"])
			assert.Equal(t, "celebration "+string(tt.code), body["error_description"])
		})
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, dErrors.Wrap(errors.New("pq: connection refused"), dErrors.CodeInternal, "failed to load celebration"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, body, "error_description")
	assert.False(t, strings.Contains(rec.Body.String(), "pq:"))
}

type limitError struct{ error }

func (e limitError) Unwrap() error { return e.error }

func (limitError) ErrorDetails() map[string]any {
	return map[string]any{"remaining_limit": 1000}
}

func TestWriteErrorMergesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, limitError{dErrors.New(dErrors.CodeLimitExceeded, "pledge exceeds limit")})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "limit_exceeded", body["error"])
	assert.EqualValues(t, 1000, body["remaining_limit"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount_cents":100,"surprise":true}`))
	var v struct {
		AmountCents int64 `json:"amount_cents"`
	}
	err := DecodeJSON(req, &v)
	require.Error(t, err)
	assert.Equal(t, dErrors.CodeBadRequest, dErrors.CodeOf(err))
}

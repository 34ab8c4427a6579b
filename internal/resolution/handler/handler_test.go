package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celebrate/internal/resolution"
	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
)

type stubTrigger struct {
	report resolution.Report
	err    error
	calls  []string
}

func (s *stubTrigger) Trigger(_ context.Context, billID domain.BillID) (resolution.Report, error) {
	s.calls = append(s.calls, "trigger:"+billID.String())
	return s.report, s.err
}

func (s *stubTrigger) Fail(_ context.Context, billID domain.BillID) (resolution.Report, error) {
	s.calls = append(s.calls, "fail:"+billID.String())
	return s.report, s.err
}

func newRouter(trigger Trigger) http.Handler {
	r := chi.NewRouter()
	New(trigger, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestTriggerReport(t *testing.T) {
	resolved := domain.CelebrationID(uuid.New())
	failed := domain.CelebrationID(uuid.New())
	stub := &stubTrigger{report: resolution.Report{
		BillID:   "hr-1-119",
		Resolved: []domain.CelebrationID{resolved},
		Failed: []resolution.Failure{{
			CelebrationID: failed,
			Code:          dErrors.CodePaymentCaptureFailed,
			Message:       "payment capture failed: insufficient_funds",
			Retrying:      true,
		}},
	}}

	rec := httptest.NewRecorder()
	newRouter(stub).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/bills/HR-1-119/trigger", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"trigger:hr-1-119"}, stub.calls)

	var body ReportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{resolved.String()}, body.Resolved)
	assert.Empty(t, body.Skipped)
	require.Len(t, body.Failed, 1)
	assert.Equal(t, "payment_capture_failed", body.Failed[0].Error)
	assert.True(t, body.Failed[0].Retrying)
}

func TestFailBill(t *testing.T) {
	stub := &stubTrigger{report: resolution.Report{BillID: "s-22-119"}}
	rec := httptest.NewRecorder()
	newRouter(stub).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/bills/s-22-119/fail", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"fail:s-22-119"}, stub.calls)
}

func TestTriggerErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	newRouter(&stubTrigger{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/bills/hr_1_119/trigger", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	newRouter(&stubTrigger{err: errors.New("db down")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/bills/hr-1-119/trigger", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

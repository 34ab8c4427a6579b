package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	"celebrate/pkg/platform/circuit"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, opts ...HTTPOption) *HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	base := []HTTPOption{
		WithBackoff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRateLimit(1000, 1000),
	}
	g, err := NewHTTPGateway(srv.URL, "sk_test", append(base, opts...)...)
	require.NoError(t, err)
	return g
}

func TestHTTPGatewayAuthorize(t *testing.T) {
	var gotKey string
	var body authorizeBody
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/authorizations", r.URL.Path)
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		gotKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"id":"auth_42"}`))
	})

	auth, err := g.Authorize(context.Background(), AuthorizeRequest{
		IdempotencyKey: "key-1",
		DonorID:        domain.DonorID(uuid.New()),
		CelebrationID:  domain.NewCelebrationID(),
		Amount:         domain.Dollars(25),
	})
	require.NoError(t, err)
	assert.Equal(t, "auth_42", auth.ID)
	assert.Equal(t, "key-1", gotKey)
	assert.Equal(t, int64(2500), body.AmountCents)
	assert.Equal(t, "USD", body.Currency)
}

func TestHTTPGatewayCaptureRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"confirmed","capture_id":"cap_1"}`))
	})

	res, err := g.Capture(context.Background(), "auth_1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, CaptureConfirmed, res.Status)
	assert.Equal(t, "cap_1", res.CaptureID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPGatewayCaptureExhaustedIsUnknownOutcome(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, WithMaxRetries(1))

	res, err := g.Capture(context.Background(), "auth_1", "key-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownOutcome)
	assert.Equal(t, CapturePending, res.Status)
}

func TestHTTPGatewayCaptureTimeoutIsUnknownOutcome(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}, WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}), WithMaxRetries(0))

	_, err := g.Capture(context.Background(), "auth_1", "key-1")
	assert.ErrorIs(t, err, ErrUnknownOutcome)
}

func TestHTTPGatewayCaptureDeclined(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`card expired`))
	})

	res, err := g.Capture(context.Background(), "auth_1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, CaptureFailed, res.Status)
	assert.Contains(t, res.Reason, "card expired")
	assert.Equal(t, int32(1), calls.Load(), "declines are not retried")
}

func TestHTTPGatewayBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}, WithMaxRetries(0), WithBreaker(circuit.New("payments", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))))

	for range 2 {
		_, err := g.Authorize(context.Background(), AuthorizeRequest{IdempotencyKey: "k", Amount: 1})
		require.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	}
	_, err := g.Authorize(context.Background(), AuthorizeRequest{IdempotencyKey: "k", Amount: 1})
	require.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPGatewayVoidRejected(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/authorizations/auth_1/void", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
	})
	err := g.Void(context.Background(), "auth_1", "key-1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnknownOutcome))
	assert.ErrorIs(t, err, ErrAlreadyCaptured)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}

func TestNewHTTPGatewayRejectsBadURL(t *testing.T) {
	_, err := NewHTTPGateway("not a url", "k")
	require.Error(t, err)
}

package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"celebrate/pkg/domain"
	dErrors "celebrate/pkg/domain-errors"
	"celebrate/pkg/platform/circuit"
)

// HTTPGateway talks to the payment provider's REST API. Calls are rate
// limited client-side, retried with exponential backoff on transient
// failures, and short-circuited while the breaker is open.
type HTTPGateway struct {
	baseURL    *url.URL
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	breaker    *circuit.Breaker
	maxRetries uint64
	newBackoff func() backoff.BackOff
	logger     *slog.Logger
}

type HTTPOption func(*HTTPGateway)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) { g.client = c }
}

func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(g *HTTPGateway) { g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithBreaker(b *circuit.Breaker) HTTPOption {
	return func(g *HTTPGateway) { g.breaker = b }
}

func WithMaxRetries(n uint) HTTPOption {
	return func(g *HTTPGateway) { g.maxRetries = uint64(n) }
}

// WithBackoff overrides the retry schedule; tests use a zero backoff.
func WithBackoff(factory func() backoff.BackOff) HTTPOption {
	return func(g *HTTPGateway) { g.newBackoff = factory }
}

func WithLogger(logger *slog.Logger) HTTPOption {
	return func(g *HTTPGateway) { g.logger = logger }
}

func NewHTTPGateway(baseURL, apiKey string, opts ...HTTPOption) (*HTTPGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid payment base URL %q", baseURL)
	}
	g := &HTTPGateway{
		baseURL:    u,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(20), 40),
		breaker:    circuit.New("payments"),
		maxRetries: 3,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type authorizeBody struct {
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
	IdempotencyKey string            `json:"idempotency_key"`
	Reference      string            `json:"reference"`
	Customer       string            `json:"customer"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

type authorizeResponse struct {
	ID string `json:"id"`
}

type keyedBody struct {
	IdempotencyKey string `json:"idempotency_key"`
}

type captureResponse struct {
	Status    CaptureStatus `json:"status"`
	CaptureID string        `json:"capture_id"`
	Reason    string        `json:"reason"`
}

// transientError marks a failure that may succeed on retry and may have
// reached the provider.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func (g *HTTPGateway) Authorize(ctx context.Context, req AuthorizeRequest) (Authorization, error) {
	var resp authorizeResponse
	err := g.call(ctx, "/v1/authorizations", req.IdempotencyKey, authorizeBody{
		AmountCents:    req.Amount.Cents(),
		Currency:       "USD",
		IdempotencyKey: req.IdempotencyKey.String(),
		Reference:      req.CelebrationID.String(),
		Customer:       req.DonorID.String(),
		Metadata:       req.Metadata,
	}, &resp)
	if err != nil {
		return Authorization{}, classify(err, "authorize")
	}
	if resp.ID == "" {
		return Authorization{}, dErrors.New(dErrors.CodeUnavailable, "payment provider returned no authorization id")
	}
	return Authorization{ID: resp.ID}, nil
}

// Capture returns ErrUnknownOutcome (wrapped) when every attempt failed in a
// way that may have reached the provider.
func (g *HTTPGateway) Capture(ctx context.Context, authorizationID string, key domain.IdempotencyKey) (CaptureResult, error) {
	var resp captureResponse
	path := "/v1/authorizations/" + url.PathEscape(authorizationID) + "/capture"
	err := g.call(ctx, path, key, keyedBody{IdempotencyKey: key.String()}, &resp)
	if err != nil {
		if mayHaveLanded(err) {
			return CaptureResult{Status: CapturePending}, fmt.Errorf("%w: %v", ErrUnknownOutcome, err)
		}
		if errors.Is(err, ErrDeclined) {
			return CaptureResult{Status: CaptureFailed, Reason: err.Error()}, nil
		}
		return CaptureResult{}, classify(err, "capture")
	}
	switch resp.Status {
	case CaptureConfirmed, CapturePending, CaptureFailed:
	default:
		return CaptureResult{Status: CapturePending}, fmt.Errorf("%w: unexpected capture status %q", ErrUnknownOutcome, resp.Status)
	}
	return CaptureResult{Status: resp.Status, CaptureID: resp.CaptureID, Reason: resp.Reason}, nil
}

func (g *HTTPGateway) Void(ctx context.Context, authorizationID string, key domain.IdempotencyKey) error {
	path := "/v1/authorizations/" + url.PathEscape(authorizationID) + "/void"
	if err := g.call(ctx, path, key, keyedBody{IdempotencyKey: key.String()}, nil); err != nil {
		if errors.Is(err, errProviderConflict) {
			return dErrors.Wrap(fmt.Errorf("%w: %v", ErrAlreadyCaptured, err), dErrors.CodeConflict, "authorization already captured")
		}
		return classify(err, "void")
	}
	return nil
}

func (g *HTTPGateway) call(ctx context.Context, path string, key domain.IdempotencyKey, body, out any) error {
	if !g.breaker.Allow() {
		return dErrors.New(dErrors.CodeUnavailable, "payment provider circuit open")
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payment request: %w", err)
	}

	attempt := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := g.do(ctx, path, key, payload, out)
		var te *transientError
		if err != nil && !errors.As(err, &te) {
			return backoff.Permanent(err)
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(g.newBackoff(), g.maxRetries), ctx)
	err = backoff.RetryNotify(attempt, b, func(err error, wait time.Duration) {
		g.logger.WarnContext(ctx, "payment call retry", "path", path, "wait", wait, "error", err)
	})

	var te *transientError
	if err != nil && errors.As(err, &te) {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.ErrorContext(ctx, "payment circuit opened", "breaker", g.breaker.Name())
		}
	} else {
		if _, change := g.breaker.RecordSuccess(); change.Closed {
			g.logger.InfoContext(ctx, "payment circuit closed", "breaker", g.breaker.Name())
		}
	}
	return err
}

func (g *HTTPGateway) do(ctx context.Context, path string, key domain.IdempotencyKey, payload []byte, out any) error {
	u := g.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build payment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Idempotency-Key", key.String())

	resp, err := g.client.Do(req)
	if err != nil {
		return &transientError{err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &transientError{err: err}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return &transientError{err: fmt.Errorf("payment provider status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusPaymentRequired || resp.StatusCode == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrDeclined, bytes.TrimSpace(raw))
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", errProviderConflict, bytes.TrimSpace(raw))
	case resp.StatusCode >= 400:
		return fmt.Errorf("payment provider rejected request: status %d", resp.StatusCode)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode payment response: %w", err)
	}
	return nil
}

// errProviderConflict is a 409: the authorization is in a state that refuses
// the call.
var errProviderConflict = errors.New("payment provider conflict")

func mayHaveLanded(err error) bool {
	var te *transientError
	return errors.As(err, &te) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func classify(err error, op string) error {
	var te *transientError
	switch {
	case errors.Is(err, ErrDeclined):
		return dErrors.Wrap(err, dErrors.CodeValidation, "payment "+op+" declined")
	case errors.As(err, &te):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "payment provider unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "payment "+op+" timed out")
	case dErrors.CodeOf(err) != dErrors.CodeInternal:
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "payment "+op+" failed")
	}
}

// Package e2e runs the Gherkin scenarios in features/ against a fully wired
// in-memory engine behind its real router.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/google/uuid"

	"celebrate/internal/app"
	"celebrate/internal/platform/config"
	"celebrate/pkg/domain"
)

// TestContext is the per-scenario world: one engine, one donor, and the last
// response seen.
type TestContext struct {
	app        *app.App
	router     http.Handler
	adminToken string

	donorToken    string
	celebrationID string
	status        int
	body          []byte
}

// NewTestContext builds a fresh engine from cfg.
func NewTestContext(ctx context.Context, cfg config.Config) (*TestContext, error) {
	a, err := app.Build(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), app.Options{})
	if err != nil {
		return nil, err
	}
	return &TestContext{app: a, router: a.Router(), adminToken: cfg.Server.AdminToken}, nil
}

// Close releases the engine.
func (tc *TestContext) Close() {
	tc.app.Close()
}

// NewDonor mints a bearer token for a fresh donor and makes it current.
func (tc *TestContext) NewDonor() error {
	token, err := tc.app.Tokens.GenerateAccessToken(domain.DonorID(uuid.New()), time.Hour)
	if err != nil {
		return err
	}
	tc.donorToken = token
	return nil
}

// AsDonor sends a request with the current donor's token.
func (tc *TestContext) AsDonor(method, path string, body any, headers map[string]string) error {
	h := map[string]string{"Authorization": "Bearer " + tc.donorToken}
	for k, v := range headers {
		h[k] = v
	}
	return tc.do(method, path, body, h)
}

// AsOperator sends a request with the admin token.
func (tc *TestContext) AsOperator(method, path string, body any) error {
	return tc.do(method, path, body, map[string]string{"X-Admin-Token": tc.adminToken})
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	tc.router.ServeHTTP(rec, req)
	tc.status = rec.Code
	tc.body = rec.Body.Bytes()
	return nil
}

// Status returns the last response status.
func (tc *TestContext) Status() int { return tc.status }

// Body returns the last response body.
func (tc *TestContext) Body() []byte { return tc.body }

// Field reads a dotted path such as "ledger.0.kind" from the last JSON response.
func (tc *TestContext) Field(path string) (any, error) {
	var v any
	if err := json.Unmarshal(tc.body, &v); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	for _, part := range strings.Split(path, ".") {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %q missing in response", path)
			}
			v = next
		case []any:
			var i int
			if _, err := fmt.Sscanf(part, "%d", &i); err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %q", part, path)
			}
			v = node[i]
		default:
			return nil, fmt.Errorf("field %q missing in response", path)
		}
	}
	return v, nil
}

// RememberCelebration stores the id of the last created celebration.
func (tc *TestContext) RememberCelebration(id string) { tc.celebrationID = id }

// CelebrationID returns the remembered celebration id.
func (tc *TestContext) CelebrationID() string { return tc.celebrationID }

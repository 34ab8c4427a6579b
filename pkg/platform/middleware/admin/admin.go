// Package admin guards the operator routes: single-pledge resolve and
// defunct, and bill trigger and fail batches.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"celebrate/pkg/platform/httputil"
	"celebrate/pkg/requestcontext"
)

const (
	tokenHeader   = "X-Admin-Token"
	operatorActor = "operator"
)

// RequireAdminToken admits requests carrying the shared operator token and
// attributes them to the operator in ledger entries. An empty expected token
// locks the routes entirely.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	want := []byte(expected)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			got := []byte(r.Header.Get(tokenHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				logger.WarnContext(ctx, "operator request rejected",
					"path", r.URL.Path,
					"client_ip", requestcontext.ClientIP(ctx),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{
					"error":             "unauthorized",
					"error_description": "admin token required",
				})
				return
			}
			next.ServeHTTP(w, r.WithContext(requestcontext.WithActor(ctx, operatorActor)))
		})
	}
}

package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"celebrate/pkg/requestcontext"
)

func TestClientIPFromRequest(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{name: "first forwarded hop", remoteAddr: "10.0.0.9:443", headers: map[string]string{"X-Forwarded-For": " 203.0.113.7 , 10.0.0.1"}, want: "203.0.113.7"},
		{name: "garbage forwarded header falls through", remoteAddr: "10.0.0.9:443", headers: map[string]string{"X-Forwarded-For": "evil", "X-Real-IP": "198.51.100.4"}, want: "198.51.100.4"},
		{name: "ipv6 peer", remoteAddr: "[2001:db8::1]:8080", want: "2001:db8::1"},
		{name: "mapped ipv4 peer", remoteAddr: "[::ffff:192.0.2.1]:80", want: "192.0.2.1"},
		{name: "unparseable peer", remoteAddr: "pipe", want: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIPFromRequest(req))
		})
	}
}

func TestClientMetadataStoresIP(t *testing.T) {
	var got string
	h := ClientMetadata(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = requestcontext.ClientIP(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5000"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "192.0.2.10", got)
}

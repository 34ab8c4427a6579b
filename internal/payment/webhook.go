package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	dErrors "celebrate/pkg/domain-errors"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>" over "<t>.<body>".
const SignatureHeader = "X-Payment-Signature"

// DefaultSignatureTolerance bounds replay of old signed payloads.
const DefaultSignatureTolerance = 5 * time.Minute

// Sign produces a header value for body at t. Used by the fake gateway and tests.
func Sign(secret string, body []byte, t time.Time) string {
	ts := strconv.FormatInt(t.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, mac(secret, ts, body))
}

// VerifyWebhook checks the signature and decodes the notification.
func VerifyWebhook(secret, header string, body []byte, now time.Time, tolerance time.Duration) (Notification, error) {
	if secret == "" {
		return Notification{}, dErrors.New(dErrors.CodeUnauthorized, "webhook secret not configured")
	}
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return Notification{}, dErrors.New(dErrors.CodeUnauthorized, "malformed signature header")
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Notification{}, dErrors.New(dErrors.CodeUnauthorized, "malformed signature timestamp")
	}
	if d := now.Sub(time.Unix(unix, 0)); d > tolerance || d < -tolerance {
		return Notification{}, dErrors.New(dErrors.CodeUnauthorized, "signature timestamp outside tolerance")
	}
	if !hmac.Equal([]byte(sig), []byte(mac(secret, ts, body))) {
		return Notification{}, dErrors.New(dErrors.CodeUnauthorized, "signature mismatch")
	}

	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid webhook body")
	}
	if n.EventID == "" || n.AuthorizationID == "" {
		return Notification{}, dErrors.New(dErrors.CodeValidation, "event_id and authorization_id are required")
	}
	switch n.Status {
	case CaptureConfirmed, CaptureFailed, CapturePending:
	default:
		return Notification{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown capture status %q", n.Status))
	}
	return n, nil
}

func mac(secret, ts string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(ts))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

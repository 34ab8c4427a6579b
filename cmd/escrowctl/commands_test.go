package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("CELEBRATE_DB_URL", "")
	t.Setenv("CELEBRATE_REDIS_URL", "")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, "token", uuid.NewString(), "--ttl", "5m")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3, "compact JWS")

	_, err = execute(t, "token", "not-a-uuid")
	assert.Error(t, err)
}

func TestTriggerCommandReportsEmptyBill(t *testing.T) {
	out, err := execute(t, "trigger", "HR-1-119")
	require.NoError(t, err)

	var report struct {
		BillID   string   `json:"bill_id"`
		Resolved []string `json:"resolved"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "hr-1-119", report.BillID)
	assert.Empty(t, report.Resolved)
}

func TestCommandsRejectBadInput(t *testing.T) {
	_, err := execute(t, "fail", "hr 1")
	assert.Error(t, err)

	_, err = execute(t, "verify-ledger")
	assert.ErrorContains(t, err, "--donor")

	_, err = execute(t, "migrate")
	assert.ErrorContains(t, err, "CELEBRATE_DB_URL")
}

func TestExpireAndRetryOnEmptyStores(t *testing.T) {
	out, err := execute(t, "expire")
	require.NoError(t, err)
	assert.JSONEq(t, `{"released":0}`, out)

	out, err = execute(t, "retry")
	require.NoError(t, err)
	assert.JSONEq(t, `{"processed":0,"queued":0}`, out)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTriggerSetsPendingFlag(t *testing.T) {
	h := NewWebhookHandler(true)

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.ConsumeTrigger())
	assert.False(t, h.ConsumeTrigger(), "consume resets the flag")
}

func TestTriggerDisabledReturnsForbidden(t *testing.T) {
	h := NewWebhookHandler(false)

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/trigger", nil))

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, h.ConsumeTrigger())
}

func TestStatusReportsEnabledAndPending(t *testing.T) {
	h := NewWebhookHandler(true)
	h.Trigger(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/trigger", nil))

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, true, payload["webhook_enabled"])
	assert.Equal(t, true, payload["trigger_status"])

	// Status is read-only; the trigger stays pending.
	assert.True(t, h.ConsumeTrigger())
}

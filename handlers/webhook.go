package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
)

// WebhookHandler accepts external update triggers. The flag is level-style:
// many triggers before the next cycle collapse into one run.
type WebhookHandler struct {
	enabled bool

	mu      sync.Mutex
	pending bool
}

func NewWebhookHandler(enabled bool) *WebhookHandler {
	return &WebhookHandler{enabled: enabled}
}

// Enabled reports whether triggering is allowed.
func (h *WebhookHandler) Enabled() bool { return h.enabled }

// ConsumeTrigger returns the pending flag and resets it.
func (h *WebhookHandler) ConsumeTrigger() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	pending := h.pending
	h.pending = false
	return pending
}

// Trigger marks an update as pending for the runner's next trigger check.
func (h *WebhookHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if !h.enabled {
		writeJSONError(w, "webhook functionality is currently disabled", http.StatusForbidden)
		return
	}

	h.mu.Lock()
	h.pending = true
	h.mu.Unlock()
	log.Printf("[webhook] update trigger received")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Update triggered successfully"})
}

// Status reports whether the webhook is enabled and whether a trigger is
// still pending.
func (h *WebhookHandler) Status(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	pending := h.pending
	h.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"webhook_enabled": h.enabled,
		"trigger_status":  pending,
	})
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

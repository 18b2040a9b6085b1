// Package api wires the webhook HTTP surface.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"coversync/handlers"
)

// NewRouter builds the webhook router: a trigger endpoint for upstream
// automation and a status probe.
func NewRouter(webhook *handlers.WebhookHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/trigger", webhook.Trigger).Methods(http.MethodPost)
	r.HandleFunc("/status", webhook.Status).Methods(http.MethodGet)
	return r
}

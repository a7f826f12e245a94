// Package notify posts best-effort failure summaries to a Slack- or
// Discord-style webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kebairia/sqlbak/internal/logger"
)

// Supported webhook payload variants.
const (
	TypeSlack   = "slack"
	TypeDiscord = "discord"
)

// Webhook delivers one JSON message per Notify call. Delivery failures are
// never surfaced to the caller; a failed notification must not turn a
// successful run into a failed one.
type Webhook struct {
	url    string
	kind   string
	client *http.Client
	log    logger.Logger
}

// NewWebhook builds a Webhook for url. kind selects the payload schema;
// anything other than TypeDiscord falls back to the Slack shape. An empty
// url disables delivery entirely.
func NewWebhook(url, kind string, log logger.Logger) *Webhook {
	return &Webhook{
		url:    url,
		kind:   kind,
		client: &http.Client{Timeout: 15 * time.Second},
		log:    log,
	}
}

// Notify posts message to the configured webhook. Skipped when no URL is
// configured; the send error is deliberately discarded here after logging.
func (w *Webhook) Notify(message string) {
	if w.url == "" {
		return
	}
	if err := w.send(message); err != nil {
		w.log.Warn("notification delivery failed", "error", err.Error())
	}
}

// send performs the single HTTP POST and reports what went wrong so the
// suppression in Notify stays visible at one call site.
func (w *Webhook) send(message string) error {
	var payload any
	switch w.kind {
	case TypeDiscord:
		payload = map[string]string{"content": message}
	default:
		payload = map[string]string{"text": message}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %s", resp.Status)
	}
	return nil
}

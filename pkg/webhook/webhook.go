// Package webhook delivers finished task records to a caller-supplied URL.
// Delivery is best effort: a task outcome is already decided by the time
// the webhook fires, so failures are logged and never surfaced to the
// caller.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
)

const defaultTimeout = 30 * time.Second

// Pusher posts task records as JSON.
type Pusher struct {
	client *http.Client
	log    *logging.Logger
}

// Config configures a Pusher.
type Config struct {
	// Timeout bounds each delivery attempt. Zero means 30s.
	Timeout time.Duration
}

// NewPusher creates a Pusher.
func NewPusher(cfg Config, log *logging.Logger) *Pusher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Pusher{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Push posts record to url. An empty url disables delivery. Exactly one
// attempt is made per call; the outcome is reported through the logger
// only.
func (p *Pusher) Push(ctx context.Context, url string, record any) {
	if url == "" {
		return
	}

	data, err := json.Marshal(record)
	if err != nil {
		p.log.Warn(logging.CategoryDelivery, "webhook_marshal_failed", "could not encode webhook payload", map[string]any{
			"error": err.Error(),
		})
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		p.log.Warn(logging.CategoryDelivery, "webhook_request_failed", "could not build webhook request", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Warn(logging.CategoryDelivery, "webhook_post_failed", "webhook delivery failed", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		p.log.Warn(logging.CategoryDelivery, "webhook_rejected", "webhook endpoint returned non-2xx", map[string]any{
			"url":    url,
			"status": resp.StatusCode,
			"body":   string(body),
		})
		return
	}

	p.log.Info(logging.CategoryDelivery, "webhook_delivered", "webhook delivered", map[string]any{
		"url":    url,
		"status": resp.StatusCode,
	})
}

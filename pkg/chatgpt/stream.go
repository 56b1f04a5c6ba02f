package chatgpt

import (
	"context"
	"strings"
	"sync"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
)

// StreamBuffer holds the most recent raw payload captured from the
// conversation stream. Last write wins; nothing is accumulated.
type StreamBuffer struct {
	mu   sync.Mutex
	last []byte
}

// Store overwrites the buffer with the latest capture.
func (b *StreamBuffer) Store(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = data
}

// Load returns the most recent capture, or nil when nothing matched.
func (b *StreamBuffer) Load() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

// String returns the most recent capture as text.
func (b *StreamBuffer) String() string {
	return string(b.Load())
}

// captureStream installs the response interceptor feeding buf. Installed
// before navigation so the first conversation response is never missed.
// Every intercepted request continues normally; a failed body fetch only
// costs that one capture.
func captureStream(ctx context.Context, page browser.Page, buf *StreamBuffer, log *logging.Logger) (cancel func(), err error) {
	return page.InterceptResponses(ctx, streamPattern, func(c browser.Capture) {
		if !strings.Contains(c.URL, "/conversation") {
			return
		}
		if !strings.Contains(strings.ToLower(c.ContentType), "text/event-stream") {
			return
		}
		body, err := c.Body()
		if err != nil {
			log.Warn(logging.CategoryStream, "stream_body_failed", "could not read stream response body", map[string]any{
				"url":   c.URL,
				"error": err.Error(),
			})
			return
		}
		buf.Store(body)
		log.Debug(logging.CategoryStream, "stream_captured", "captured conversation stream payload", map[string]any{
			"url":   c.URL,
			"bytes": len(body),
		})
	})
}

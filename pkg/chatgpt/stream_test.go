package chatgpt

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
)

func sseCapture(url, body string) browser.Capture {
	return browser.Capture{
		URL:         url,
		ContentType: "text/event-stream; charset=utf-8",
		Body:        func() ([]byte, error) { return []byte(body), nil },
	}
}

func TestStreamBufferLastWriteWins(t *testing.T) {
	var buf StreamBuffer
	assert.Nil(t, buf.Load())
	assert.Empty(t, buf.String())

	buf.Store([]byte("first"))
	buf.Store([]byte("second"))
	assert.Equal(t, "second", buf.String())
}

func TestCaptureStreamKeepsOnlyConversationStreams(t *testing.T) {
	page := &fakePage{}
	var buf StreamBuffer
	log := logging.NewLogger(io.Discard, io.Discard)

	cancel, err := captureStream(context.Background(), page, &buf, log)
	require.NoError(t, err)
	defer cancel()

	// Wrong path, wrong content type, then two real stream payloads.
	page.fireCapture(browser.Capture{
		URL:         "https://chatgpt.com/backend-api/settings",
		ContentType: "application/json",
		Body:        func() ([]byte, error) { return []byte(`{}`), nil },
	})
	page.fireCapture(browser.Capture{
		URL:         "https://chatgpt.com/backend-api/conversation/init",
		ContentType: "application/json",
		Body:        func() ([]byte, error) { return []byte(`{}`), nil },
	})
	page.fireCapture(sseCapture("https://chatgpt.com/backend-api/conversation", "data: one\n\n"))
	page.fireCapture(sseCapture("https://chatgpt.com/backend-api/conversation", "data: two\n\n"))

	assert.Equal(t, "data: two\n\n", buf.String())
}

func TestCaptureStreamBodyFailureCostsOneCapture(t *testing.T) {
	page := &fakePage{}
	var buf StreamBuffer
	log := logging.NewLogger(io.Discard, io.Discard)

	cancel, err := captureStream(context.Background(), page, &buf, log)
	require.NoError(t, err)
	defer cancel()

	page.fireCapture(sseCapture("https://chatgpt.com/backend-api/conversation", "data: kept\n\n"))
	page.fireCapture(browser.Capture{
		URL:         "https://chatgpt.com/backend-api/conversation",
		ContentType: "text/event-stream",
		Body:        func() ([]byte, error) { return nil, errors.New("body gone") },
	})

	assert.Equal(t, "data: kept\n\n", buf.String())
}

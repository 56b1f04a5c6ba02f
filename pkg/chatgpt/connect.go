package chatgpt

import (
	"context"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser/adapters/cdp"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/faults"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/logging"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/scrapeless"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// sessionTTL is requested from the provisioning gateway; the remote
// browser is reclaimed after it regardless of task state.
const sessionTTL = 600

// defaultFingerprint is the device profile every session requests.
var defaultFingerprint = scrapeless.Fingerprint{
	Platform: "macOS",
	Timezone: "America/New_York",
	WindowSize: map[string]string{
		"--window-size": "1920,1080",
	},
}

// Connector obtains a control connection to a provisioned remote browser
// for one task, racing the handshake against the token's deadline.
type Connector interface {
	Connect(ctx context.Context, in task.Input, token *CancelToken) (browser.Browser, error)
}

// GatewayConnector provisions sessions through the scrapeless gateway and
// attaches over the devtools protocol.
type GatewayConnector struct {
	client *scrapeless.Client
	log    *logging.Logger

	// SessionTTL overrides the provisioning TTL when positive.
	SessionTTL int

	// dial is swappable for tests.
	dial func(ctx context.Context, endpoint string) (browser.Browser, error)
}

// NewGatewayConnector creates the production connector.
func NewGatewayConnector(client *scrapeless.Client, log *logging.Logger) *GatewayConnector {
	return &GatewayConnector{
		client: client,
		log:    log,
		dial: func(ctx context.Context, endpoint string) (browser.Browser, error) {
			return cdp.Connect(ctx, endpoint)
		},
	}
}

// Connect provisions a session and establishes the control connection.
// The provisioning call cannot be preempted; the handshake is raced
// against a polling check of the token's deadline so the caller never
// receives a half-open session. A connection abandoned by the race is
// closed as soon as it lands.
func (c *GatewayConnector) Connect(ctx context.Context, in task.Input, token *CancelToken) (browser.Browser, error) {
	ttl := c.SessionTTL
	if ttl <= 0 {
		ttl = sessionTTL
	}
	session, err := c.client.CreateSession(ctx, scrapeless.SessionOptions{
		SessionName:      in.SessionName,
		SessionTTL:       ttl,
		SessionRecording: in.SessionRecording,
		ProxyURL:         in.ProxyURL,
		Fingerprint:      defaultFingerprint,
	})
	if err != nil {
		c.log.Error(logging.CategorySession, "provision_failed", "browser provisioning failed", map[string]any{"error": err.Error()})
		return nil, faults.Wrap(err, faults.CodeConnection, "create browser session")
	}

	type dialResult struct {
		b   browser.Browser
		err error
	}
	done := make(chan dialResult, 1)
	go func() {
		b, err := c.dial(ctx, session.BrowserWSEndpoint)
		done <- dialResult{b, err}
	}()

	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()
	for {
		select {
		case res := <-done:
			if res.err != nil {
				c.log.Error(logging.CategorySession, "handshake_failed", "browser connection failed", map[string]any{"error": res.err.Error()})
				return nil, faults.Wrap(res.err, faults.CodeConnection, "connect to browser")
			}
			return res.b, nil
		case <-ticker.C:
			if !token.Expired() {
				continue
			}
			// Discard whatever the handshake eventually produces.
			go func() {
				if res := <-done; res.b != nil {
					res.b.Close()
				}
			}()
			return nil, faults.New(faults.CodeConnection, "browser connection timeout")
		case <-ctx.Done():
			go func() {
				if res := <-done; res.b != nil {
					res.b.Close()
				}
			}()
			return nil, faults.Wrap(ctx.Err(), faults.CodeConnection, "connect to browser")
		}
	}
}

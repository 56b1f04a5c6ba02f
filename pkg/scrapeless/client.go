// Package scrapeless is the client for the remote-browser provisioning
// service. It creates ephemeral browser sessions and hands back the
// control endpoint; everything past the endpoint is the cdp adapter's
// concern.
package scrapeless

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

const (
	// DefaultGatewayURL is the public provisioning gateway.
	DefaultGatewayURL = "https://browser.scrapeless.com"

	createSessionPath = "/api/v2/browser/session"
)

// Fingerprint describes the device profile requested for a session.
type Fingerprint struct {
	Platform   string            `json:"platform,omitempty"`
	Timezone   string            `json:"timezone,omitempty"`
	WindowSize map[string]string `json:"args,omitempty"`
}

// SessionOptions configures a provisioned browser session.
type SessionOptions struct {
	SessionName      string      `json:"session_name,omitempty"`
	SessionTTL       int         `json:"session_ttl,omitempty"`
	SessionRecording bool        `json:"session_recording,omitempty"`
	ProxyURL         string      `json:"proxy_url,omitempty"`
	Fingerprint      Fingerprint `json:"fingerprint,omitempty"`
}

// Session is a provisioned browser: an opaque control endpoint plus the
// country tag derived from the proxy specifier.
type Session struct {
	BrowserWSEndpoint string `json:"browserWSEndpoint"`
	CountryCode       string `json:"country_code,omitempty"`
}

// Client talks to the provisioning gateway.
type Client struct {
	apiKey     string
	gatewayURL string
	httpClient *http.Client
}

// Config configures the provisioning client.
type Config struct {
	// APIKey authenticates against the gateway.
	APIKey string

	// GatewayURL overrides the default gateway (optional).
	GatewayURL string

	// Timeout bounds each provisioning call (optional, default 60s).
	Timeout time.Duration
}

// NewClient creates a provisioning client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	gateway := cfg.GatewayURL
	if gateway == "" {
		gateway = DefaultGatewayURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		apiKey:     cfg.APIKey,
		gatewayURL: gateway,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// CreateSession requests a browser session and returns its control
// endpoint. The call itself cannot be preempted once issued; callers that
// need a harder bound should discard the result.
func (c *Client) CreateSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("marshal session options: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gatewayURL+createSessionPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("create session: gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(detail))
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return nil, fmt.Errorf("decode session response: %w", err)
	}
	if sess.BrowserWSEndpoint == "" {
		return nil, fmt.Errorf("gateway response carries no control endpoint")
	}
	if sess.CountryCode == "" {
		sess.CountryCode = CountryFromProxy(opts.ProxyURL)
	}
	return &sess, nil
}

var proxyCountryPattern = regexp.MustCompile(`-country_([A-Z]{2,3})`)

// CountryFromProxy extracts the country tag from a proxy specifier,
// defaulting to ANY.
func CountryFromProxy(proxyURL string) string {
	if m := proxyCountryPattern.FindStringSubmatch(proxyURL); m != nil {
		return m[1]
	}
	return "ANY"
}

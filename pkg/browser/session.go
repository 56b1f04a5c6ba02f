package browser

import (
	"context"
	"time"
)

// Browser is the control connection to one provisioned browser. Owned
// exclusively by one task and closed exactly once at teardown.
type Browser interface {
	// NewPage opens a fresh page target and attaches to it.
	NewPage(ctx context.Context) (Page, error)

	// OnTargetOpened registers a listener for targets opened while the
	// subscription is live (new tabs spawned by page interaction). The
	// returned cancel deregisters the listener; it must be called before
	// the subscribing stage ends so listeners never leak into later
	// stages.
	OnTargetOpened(fn func(TargetInfo)) (cancel func())

	// TargetInfo fetches current metadata for a target.
	TargetInfo(ctx context.Context, targetID string) (TargetInfo, error)

	// CloseTarget closes a target (a spawned tab) without touching the
	// rest of the session.
	CloseTarget(ctx context.Context, targetID string) error

	// Close tears down the control connection. Idempotent.
	Close() error
}

// Page is one page target under a Browser. In-flight operations cannot be
// natively preempted; cancellation is cooperative via ctx and the caller's
// abort checks.
type Page interface {
	// TargetID identifies this page for opener correlation.
	TargetID() string

	// Navigate loads url, honoring the ctx deadline.
	Navigate(ctx context.Context, url string) error

	// Evaluate runs a script in the page and unmarshals the returned
	// value into out (pass nil to discard).
	Evaluate(ctx context.Context, expression string, out any) error

	// AddInitScript registers a script evaluated before any page script
	// on every new document.
	AddInitScript(ctx context.Context, source string) error

	// WaitForSelector polls until the selector resolves to a visible
	// element or the timeout elapses.
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error

	// Click dispatches a click on the first element matching selector.
	Click(ctx context.Context, selector string) error

	// BringToFront focuses this page.
	BringToFront(ctx context.Context) error

	// OnMainFrameNavigated registers a listener for main-frame
	// navigations; returns a deregistration func.
	OnMainFrameNavigated(fn func(url string)) (cancel func())

	// InterceptResponses installs a response interceptor for requests
	// whose URL matches pattern. Every intercepted request continues
	// normally after fn returns. The cancel func removes the
	// interceptor.
	InterceptResponses(ctx context.Context, pattern string, fn func(Capture)) (cancel func(), err error)

	// Close closes the page target. Idempotent.
	Close() error
}

// TargetInfo describes one browser target.
type TargetInfo struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	URL      string `json:"url"`
	Title    string `json:"title"`
	OpenerID string `json:"openerId,omitempty"`
}

// Capture is one intercepted response. Body is lazy: fetching it is only
// worthwhile once the headers identified an interesting payload.
type Capture struct {
	URL         string
	ContentType string
	Body        func() ([]byte, error)
}

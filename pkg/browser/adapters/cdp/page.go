package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
)

// Page implements browser.Page for one attached page target.
type Page struct {
	conn      *Conn
	targetID  string
	sessionID string
}

var _ browser.Page = (*Page)(nil)

// TargetID identifies this page for opener correlation.
func (p *Page) TargetID() string {
	return p.targetID
}

// Navigate loads url and waits for the load event, bounded by ctx.
func (p *Page) Navigate(ctx context.Context, url string) error {
	loaded := make(chan struct{}, 1)
	unsub := p.conn.Subscribe(p.sessionID, "Page.loadEventFired", func(json.RawMessage) {
		select {
		case loaded <- struct{}{}:
		default:
		}
	})
	defer unsub()

	var res struct {
		ErrorText string `json:"errorText"`
	}
	err := p.conn.Call(ctx, p.sessionID, "Page.navigate", map[string]any{
		"url": url,
	}, &res)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return browser.ErrOperationTimeout
		}
		return err
	}
	if res.ErrorText != "" {
		return fmt.Errorf("navigate failed: %s", res.ErrorText)
	}

	select {
	case <-loaded:
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return browser.ErrOperationTimeout
		}
		return ctx.Err()
	case <-p.conn.Done():
		return browser.ErrConnectionLost
	}
}

// Evaluate runs an expression in the page, awaiting promises, and decodes
// the returned value into out.
func (p *Page) Evaluate(ctx context.Context, expression string, out any) error {
	var res struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text      string `json:"text"`
			Exception *struct {
				Description string `json:"description"`
			} `json:"exception"`
		} `json:"exceptionDetails"`
	}
	err := p.conn.Call(ctx, p.sessionID, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	}, &res)
	if err != nil {
		return err
	}
	if res.ExceptionDetails != nil {
		detail := res.ExceptionDetails.Text
		if res.ExceptionDetails.Exception != nil && res.ExceptionDetails.Exception.Description != "" {
			detail = res.ExceptionDetails.Exception.Description
		}
		return fmt.Errorf("page script threw: %s", detail)
	}
	if out != nil && len(res.Result.Value) > 0 {
		if err := json.Unmarshal(res.Result.Value, out); err != nil {
			return fmt.Errorf("decode evaluate result: %w", err)
		}
	}
	return nil
}

// AddInitScript registers source to run before any page script on every
// new document.
func (p *Page) AddInitScript(ctx context.Context, source string) error {
	return p.conn.Call(ctx, p.sessionID, "Page.addScriptToEvaluateOnNewDocument", map[string]any{
		"source": source,
	}, nil)
}

const selectorProbeInterval = 100 * time.Millisecond

// WaitForSelector polls for a visible element matching selector.
func (p *Page) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	probe := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  const rect = el.getBoundingClientRect();
  return rect.width > 0 && rect.height > 0;
})();`, jsString(selector))

	deadline := time.Now().Add(timeout)
	for {
		var visible bool
		if err := p.Evaluate(ctx, probe, &visible); err != nil {
			return err
		}
		if visible {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%q: %w", selector, browser.ErrSelectorTimeout)
		}
		select {
		case <-time.After(selectorProbeInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Click dispatches a click on the first element matching selector.
func (p *Page) Click(ctx context.Context, selector string) error {
	script := fmt.Sprintf(`(() => {
  const el = document.querySelector(%s);
  if (!el) return false;
  el.click();
  return true;
})();`, jsString(selector))

	var clicked bool
	if err := p.Evaluate(ctx, script, &clicked); err != nil {
		return err
	}
	if !clicked {
		return fmt.Errorf("click: no element matches %q", selector)
	}
	return nil
}

// BringToFront focuses this page.
func (p *Page) BringToFront(ctx context.Context) error {
	return p.conn.Call(ctx, p.sessionID, "Page.bringToFront", nil, nil)
}

// OnMainFrameNavigated fires for navigations of the top frame only.
func (p *Page) OnMainFrameNavigated(fn func(url string)) (cancel func()) {
	return p.conn.Subscribe(p.sessionID, "Page.frameNavigated", func(params json.RawMessage) {
		var ev struct {
			Frame struct {
				ParentID string `json:"parentId"`
				URL      string `json:"url"`
			} `json:"frame"`
		}
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		if ev.Frame.ParentID != "" {
			return
		}
		fn(ev.Frame.URL)
	})
}

// InterceptResponses pauses responses matching pattern long enough to
// inspect them, then lets every request continue.
func (p *Page) InterceptResponses(ctx context.Context, pattern string, fn func(browser.Capture)) (cancel func(), err error) {
	err = p.conn.Call(ctx, p.sessionID, "Fetch.enable", map[string]any{
		"patterns": []map[string]any{
			{"urlPattern": pattern, "requestStage": "Response"},
		},
	}, nil)
	if err != nil {
		return nil, err
	}

	unsub := p.conn.Subscribe(p.sessionID, "Fetch.requestPaused", func(params json.RawMessage) {
		var ev struct {
			RequestID string `json:"requestId"`
			Request   struct {
				URL string `json:"url"`
			} `json:"request"`
			ResponseHeaders []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"responseHeaders"`
		}
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}

		contentType := ""
		for _, h := range ev.ResponseHeaders {
			if strings.EqualFold(h.Name, "content-type") {
				contentType = h.Value
				break
			}
		}

		fn(browser.Capture{
			URL:         ev.Request.URL,
			ContentType: contentType,
			Body: func() ([]byte, error) {
				return p.responseBody(ev.RequestID)
			},
		})

		// pass-through regardless of what the inspector did
		continueCtx, cancelContinue := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelContinue()
		_ = p.conn.Call(continueCtx, p.sessionID, "Fetch.continueRequest", map[string]any{
			"requestId": ev.RequestID,
		}, nil)
	})

	return func() {
		unsub()
		disableCtx, cancelDisable := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelDisable()
		_ = p.conn.Call(disableCtx, p.sessionID, "Fetch.disable", nil, nil)
	}, nil
}

func (p *Page) responseBody(requestID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var res struct {
		Body          string `json:"body"`
		Base64Encoded bool   `json:"base64Encoded"`
	}
	err := p.conn.Call(ctx, p.sessionID, "Fetch.getResponseBody", map[string]any{
		"requestId": requestID,
	}, &res)
	if err != nil {
		return nil, err
	}
	if res.Base64Encoded {
		return base64.StdEncoding.DecodeString(res.Body)
	}
	return []byte(res.Body), nil
}

// Close closes this page's target.
func (p *Page) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return p.conn.Call(ctx, "", "Target.closeTarget", map[string]any{
		"targetId": p.targetID,
	}, nil)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

package cdp

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
)

// Browser implements browser.Browser over one devtools connection.
type Browser struct {
	conn *Conn

	discoverMu  sync.Mutex
	discovering bool
}

var _ browser.Browser = (*Browser)(nil)

// Connect dials the control endpoint of a provisioned browser.
func Connect(ctx context.Context, endpoint string) (*Browser, error) {
	conn, err := Dial(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &Browser{conn: conn}, nil
}

// NewPage opens a blank page target and attaches to it.
func (b *Browser) NewPage(ctx context.Context) (browser.Page, error) {
	var created struct {
		TargetID string `json:"targetId"`
	}
	err := b.conn.Call(ctx, "", "Target.createTarget", map[string]any{
		"url": "about:blank",
	}, &created)
	if err != nil {
		return nil, err
	}

	var attached struct {
		SessionID string `json:"sessionId"`
	}
	err = b.conn.Call(ctx, "", "Target.attachToTarget", map[string]any{
		"targetId": created.TargetID,
		"flatten":  true,
	}, &attached)
	if err != nil {
		return nil, err
	}

	p := &Page{
		conn:      b.conn,
		targetID:  created.TargetID,
		sessionID: attached.SessionID,
	}
	if err := b.conn.Call(ctx, p.sessionID, "Page.enable", nil, nil); err != nil {
		return nil, err
	}
	if err := b.conn.Call(ctx, p.sessionID, "Runtime.enable", nil, nil); err != nil {
		return nil, err
	}
	return p, nil
}

// OnTargetOpened subscribes to target creation across the browser. The
// first subscriber turns on target discovery; a failed discovery call is
// retried by the next subscriber rather than leaving a subscription that
// can never fire.
func (b *Browser) OnTargetOpened(fn func(browser.TargetInfo)) (cancel func()) {
	b.discoverMu.Lock()
	if !b.discovering {
		err := b.conn.Call(context.Background(), "", "Target.setDiscoverTargets", map[string]any{
			"discover": true,
		}, nil)
		if err == nil {
			b.discovering = true
		}
	}
	b.discoverMu.Unlock()

	return b.conn.Subscribe("", "Target.targetCreated", func(params json.RawMessage) {
		var ev struct {
			TargetInfo browser.TargetInfo `json:"targetInfo"`
		}
		if err := json.Unmarshal(params, &ev); err != nil {
			return
		}
		fn(ev.TargetInfo)
	})
}

// TargetInfo fetches current metadata for a target.
func (b *Browser) TargetInfo(ctx context.Context, targetID string) (browser.TargetInfo, error) {
	var res struct {
		TargetInfo browser.TargetInfo `json:"targetInfo"`
	}
	err := b.conn.Call(ctx, "", "Target.getTargetInfo", map[string]any{
		"targetId": targetID,
	}, &res)
	return res.TargetInfo, err
}

// CloseTarget closes one target, leaving the session up.
func (b *Browser) CloseTarget(ctx context.Context, targetID string) error {
	return b.conn.Call(ctx, "", "Target.closeTarget", map[string]any{
		"targetId": targetID,
	}, nil)
}

// Close tears down the control connection.
func (b *Browser) Close() error {
	return b.conn.Close()
}

package chatgpt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
	"github.com/scrapelesshq/LLM-chat-scraper/pkg/task"
)

// setValue copies v into out the way a protocol result would arrive.
func setValue(out, v any) {
	if out == nil {
		return
	}
	data, _ := json.Marshal(v)
	json.Unmarshal(data, out)
}

// fakePage is a scripted page: tests install per-operation behaviors and
// every interaction is recorded for call-freeze assertions.
type fakePage struct {
	mu    sync.Mutex
	calls []string

	onNavigate func(ctx context.Context, url string) error
	onEvaluate func(ctx context.Context, expr string, out any) error
	onWaitFor  func(ctx context.Context, sel string, timeout time.Duration) error
	onClick    func(ctx context.Context, sel string) error

	navListeners []func(string)
	interceptFn  func(browser.Capture)
	closed       bool
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePage) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePage) callsSnapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) TargetID() string { return "PAGE-1" }

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	p.record("navigate:" + url)
	if p.onNavigate != nil {
		return p.onNavigate(ctx, url)
	}
	return nil
}

func (p *fakePage) Evaluate(ctx context.Context, expr string, out any) error {
	p.record("evaluate:" + expr)
	if p.onEvaluate != nil {
		return p.onEvaluate(ctx, expr, out)
	}
	return nil
}

func (p *fakePage) AddInitScript(ctx context.Context, source string) error {
	p.record("init_script")
	return nil
}

func (p *fakePage) WaitForSelector(ctx context.Context, sel string, timeout time.Duration) error {
	p.record("wait:" + sel)
	if p.onWaitFor != nil {
		return p.onWaitFor(ctx, sel, timeout)
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, sel string) error {
	p.record("click:" + sel)
	if p.onClick != nil {
		return p.onClick(ctx, sel)
	}
	return nil
}

func (p *fakePage) BringToFront(ctx context.Context) error {
	p.record("bring_to_front")
	return nil
}

func (p *fakePage) OnMainFrameNavigated(fn func(url string)) (cancel func()) {
	p.mu.Lock()
	p.navListeners = append(p.navListeners, fn)
	idx := len(p.navListeners) - 1
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.navListeners[idx] = nil
		p.mu.Unlock()
	}
}

func (p *fakePage) fireNavigation(url string) {
	p.mu.Lock()
	listeners := append([]func(string){}, p.navListeners...)
	p.mu.Unlock()
	for _, fn := range listeners {
		if fn != nil {
			fn(url)
		}
	}
}

func (p *fakePage) InterceptResponses(ctx context.Context, pattern string, fn func(browser.Capture)) (func(), error) {
	p.record("intercept:" + pattern)
	p.mu.Lock()
	p.interceptFn = fn
	p.mu.Unlock()
	return func() {}, nil
}

func (p *fakePage) fireCapture(c browser.Capture) {
	p.mu.Lock()
	fn := p.interceptFn
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// fakeBrowser hands out one scripted page and lets tests emit target
// events into live subscriptions.
type fakeBrowser struct {
	mu     sync.Mutex
	page   *fakePage
	closed bool

	targetListeners map[int]func(browser.TargetInfo)
	nextListener    int
	targets         map[string]browser.TargetInfo
	closedTargets   []string
}

func (b *fakeBrowser) NewPage(ctx context.Context) (browser.Page, error) {
	return b.page, nil
}

func (b *fakeBrowser) OnTargetOpened(fn func(browser.TargetInfo)) (cancel func()) {
	b.mu.Lock()
	if b.targetListeners == nil {
		b.targetListeners = make(map[int]func(browser.TargetInfo))
	}
	id := b.nextListener
	b.nextListener++
	b.targetListeners[id] = fn
	b.mu.Unlock()
	return func() {
		b.mu.Lock()
		delete(b.targetListeners, id)
		b.mu.Unlock()
	}
}

func (b *fakeBrowser) fireTarget(info browser.TargetInfo) {
	b.mu.Lock()
	listeners := make([]func(browser.TargetInfo), 0, len(b.targetListeners))
	for _, fn := range b.targetListeners {
		listeners = append(listeners, fn)
	}
	b.mu.Unlock()
	for _, fn := range listeners {
		fn(info)
	}
}

func (b *fakeBrowser) activeTargetListeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.targetListeners)
}

func (b *fakeBrowser) TargetInfo(ctx context.Context, targetID string) (browser.TargetInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if info, ok := b.targets[targetID]; ok {
		return info, nil
	}
	return browser.TargetInfo{TargetID: targetID, Type: "page"}, nil
}

func (b *fakeBrowser) CloseTarget(ctx context.Context, targetID string) error {
	b.mu.Lock()
	b.closedTargets = append(b.closedTargets, targetID)
	b.mu.Unlock()
	return nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}

// fakeConnector returns a pre-built browser without provisioning.
type fakeConnector struct {
	browser *fakeBrowser
	err     error
}

func (c *fakeConnector) Connect(ctx context.Context, in task.Input, token *CancelToken) (browser.Browser, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.browser, nil
}

// countingPusher records every delivered payload.
type countingPusher struct {
	mu       sync.Mutex
	payloads []any
	urls     []string
}

func (p *countingPusher) Push(ctx context.Context, url string, record any) {
	if url == "" {
		return
	}
	p.mu.Lock()
	p.payloads = append(p.payloads, record)
	p.urls = append(p.urls, url)
	p.mu.Unlock()
}

func (p *countingPusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.payloads)
}

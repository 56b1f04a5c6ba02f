package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
)

// fakeEndpoint is a scripted devtools endpoint. The handler runs once per
// incoming command and may also emit events through the emitter.
type fakeEndpoint struct {
	srv     *httptest.Server
	mu      sync.Mutex
	conn    *websocket.Conn
	handler func(req rpcRequest, emit func(method, sessionID string, params any)) (result any, errReply *rpcError)

	callsMu sync.Mutex
	calls   []string
}

func newFakeEndpoint(t *testing.T, handler func(req rpcRequest, emit func(method, sessionID string, params any)) (any, *rpcError)) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{handler: handler}
	upgrader := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		for {
			var req rpcRequest
			raw := map[string]json.RawMessage{}
			if err := conn.ReadJSON(&raw); err != nil {
				return
			}
			json.Unmarshal(raw["id"], &req.ID)
			json.Unmarshal(raw["method"], &req.Method)
			json.Unmarshal(raw["sessionId"], &req.SessionID)
			if rawParams, ok := raw["params"]; ok {
				var params map[string]any
				json.Unmarshal(rawParams, &params)
				req.Params = params
			}

			f.callsMu.Lock()
			f.calls = append(f.calls, req.Method)
			f.callsMu.Unlock()

			result, errReply := f.handler(req, f.emit)
			resp := map[string]any{"id": req.ID}
			if errReply != nil {
				resp["error"] = errReply
			} else {
				resp["result"] = result
			}
			f.write(resp)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEndpoint) emit(method, sessionID string, params any) {
	msg := map[string]any{"method": method, "params": params}
	if sessionID != "" {
		msg["sessionId"] = sessionID
	}
	f.write(msg)
}

func (f *fakeEndpoint) write(v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		f.conn.WriteJSON(v)
	}
}

func (f *fakeEndpoint) wsURL() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeEndpoint) sawCall(method string) bool {
	f.callsMu.Lock()
	defer f.callsMu.Unlock()
	for _, m := range f.calls {
		if m == method {
			return true
		}
	}
	return false
}

func dialTest(t *testing.T, f *fakeEndpoint) *Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := Dial(ctx, f.wsURL())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestCallRoundTrip(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, _ func(string, string, any)) (any, *rpcError) {
		require.Equal(t, "Probe.value", req.Method)
		return map[string]any{"value": 42}, nil
	})
	conn := dialTest(t, f)

	var res struct {
		Value int `json:"value"`
	}
	err := conn.Call(context.Background(), "", "Probe.value", nil, &res)
	require.NoError(t, err)
	assert.Equal(t, 42, res.Value)
}

func TestCallProtocolError(t *testing.T) {
	f := newFakeEndpoint(t, func(rpcRequest, func(string, string, any)) (any, *rpcError) {
		return nil, &rpcError{Code: -32000, Message: "target crashed"}
	})
	conn := dialTest(t, f)

	err := conn.Call(context.Background(), "", "Probe.fail", nil, nil)
	require.Error(t, err)
	var perr *browser.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, -32000, perr.Code)
	assert.Equal(t, "target crashed", perr.Message)
}

func TestSubscribeSessionScoped(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, emit func(string, string, any)) (any, *rpcError) {
		emit("Custom.event", "S1", map[string]any{"n": 1})
		emit("Custom.event", "S2", map[string]any{"n": 2})
		return map[string]any{}, nil
	})
	conn := dialTest(t, f)

	got := make(chan int, 4)
	cancel := conn.Subscribe("S1", "Custom.event", func(params json.RawMessage) {
		var p struct {
			N int `json:"n"`
		}
		json.Unmarshal(params, &p)
		got <- p.N
	})
	defer cancel()

	require.NoError(t, conn.Call(context.Background(), "", "Trigger.now", nil, nil))

	select {
	case n := <-got:
		assert.Equal(t, 1, n)
	case <-time.After(2 * time.Second):
		t.Fatal("event for S1 never delivered")
	}
	select {
	case n := <-got:
		t.Fatalf("unexpected extra event %d (S2 must be filtered)", n)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, emit func(string, string, any)) (any, *rpcError) {
		emit("Custom.event", "", map[string]any{})
		return map[string]any{}, nil
	})
	conn := dialTest(t, f)

	got := make(chan struct{}, 4)
	cancel := conn.Subscribe("", "Custom.event", func(json.RawMessage) { got <- struct{}{} })
	cancel()

	require.NoError(t, conn.Call(context.Background(), "", "Trigger.now", nil, nil))
	select {
	case <-got:
		t.Fatal("handler fired after cancel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNavigateWaitsForLoadEvent(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, emit func(string, string, any)) (any, *rpcError) {
		if req.Method == "Page.navigate" {
			go func() {
				time.Sleep(50 * time.Millisecond)
				emit("Page.loadEventFired", "S1", map[string]any{})
			}()
			return map[string]any{"frameId": "F1"}, nil
		}
		return map[string]any{}, nil
	})
	conn := dialTest(t, f)
	page := &Page{conn: conn, targetID: "T1", sessionID: "S1"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, page.Navigate(ctx, "https://chatgpt.com/?q=ping"))
}

func TestNavigateTimesOutWithoutLoadEvent(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, _ func(string, string, any)) (any, *rpcError) {
		return map[string]any{"frameId": "F1"}, nil
	})
	conn := dialTest(t, f)
	page := &Page{conn: conn, targetID: "T1", sessionID: "S1"}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	err := page.Navigate(ctx, "https://chatgpt.com")
	require.ErrorIs(t, err, browser.ErrOperationTimeout)
}

func TestEvaluateDecodesValue(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, _ func(string, string, any)) (any, *rpcError) {
		return map[string]any{"result": map[string]any{"value": "hello"}}, nil
	})
	conn := dialTest(t, f)
	page := &Page{conn: conn, targetID: "T1", sessionID: "S1"}

	var out string
	require.NoError(t, page.Evaluate(context.Background(), "document.title", &out))
	assert.Equal(t, "hello", out)
}

func TestEvaluateSurfacesPageException(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, _ func(string, string, any)) (any, *rpcError) {
		return map[string]any{
			"result": map[string]any{},
			"exceptionDetails": map[string]any{
				"text":      "Uncaught",
				"exception": map[string]any{"description": "TypeError: boom"},
			},
		}, nil
	})
	conn := dialTest(t, f)
	page := &Page{conn: conn, targetID: "T1", sessionID: "S1"}

	err := page.Evaluate(context.Background(), "boom()", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TypeError: boom")
}

func TestOnMainFrameNavigatedFiltersSubframes(t *testing.T) {
	f := newFakeEndpoint(t, func(req rpcRequest, emit func(string, string, any)) (any, *rpcError) {
		emit("Page.frameNavigated", "S1", map[string]any{
			"frame": map[string]any{"id": "child", "parentId": "F1", "url": "https://iframe.example"},
		})
		emit("Page.frameNavigated", "S1", map[string]any{
			"frame": map[string]any{"id": "F1", "url": "https://auth.openai.com/login"},
		})
		return map[string]any{}, nil
	})
	conn := dialTest(t, f)
	page := &Page{conn: conn, targetID: "T1", sessionID: "S1"}

	urls := make(chan string, 4)
	cancel := page.OnMainFrameNavigated(func(url string) { urls <- url })
	defer cancel()

	require.NoError(t, conn.Call(context.Background(), "", "Trigger.now", nil, nil))

	select {
	case url := <-urls:
		assert.Equal(t, "https://auth.openai.com/login", url)
	case <-time.After(2 * time.Second):
		t.Fatal("main frame navigation never delivered")
	}
	select {
	case url := <-urls:
		t.Fatalf("subframe navigation leaked through: %s", url)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestInterceptResponsesCapturesAndContinues(t *testing.T) {
	sseBody := "data: {\"chunk\":1}\n\n"
	f := newFakeEndpoint(t, func(req rpcRequest, emit func(string, string, any)) (any, *rpcError) {
		switch req.Method {
		case "Fetch.enable":
			go func() {
				time.Sleep(50 * time.Millisecond)
				emit("Fetch.requestPaused", "S1", map[string]any{
					"requestId": "R1",
					"request":   map[string]any{"url": "https://chatgpt.com/backend-api/conversation"},
					"responseHeaders": []map[string]any{
						{"name": "Content-Type", "value": "text/event-stream; charset=utf-8"},
					},
				})
			}()
			return map[string]any{}, nil
		case "Fetch.getResponseBody":
			return map[string]any{
				"body":          base64.StdEncoding.EncodeToString([]byte(sseBody)),
				"base64Encoded": true,
			}, nil
		default:
			return map[string]any{}, nil
		}
	})
	conn := dialTest(t, f)
	page := &Page{conn: conn, targetID: "T1", sessionID: "S1"}

	captured := make(chan []byte, 1)
	cancel, err := page.InterceptResponses(context.Background(), "*conversation", func(c browser.Capture) {
		if !strings.Contains(c.ContentType, "text/event-stream") {
			return
		}
		body, err := c.Body()
		if err != nil {
			t.Errorf("Body() error: %v", err)
			return
		}
		captured <- body
	})
	require.NoError(t, err)
	defer cancel()

	select {
	case body := <-captured:
		assert.Equal(t, sseBody, string(body))
	case <-time.After(2 * time.Second):
		t.Fatal("capture never delivered")
	}

	// pass-through must happen for every paused request
	require.Eventually(t, func() bool {
		return f.sawCall("Fetch.continueRequest")
	}, 2*time.Second, 20*time.Millisecond, "request was never continued")
}

func TestCallAfterCloseFails(t *testing.T) {
	f := newFakeEndpoint(t, func(rpcRequest, func(string, string, any)) (any, *rpcError) {
		return map[string]any{}, nil
	})
	conn := dialTest(t, f)
	require.NoError(t, conn.Close())

	err := conn.Call(context.Background(), "", "Browser.getVersion", nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, browser.ErrConnectionLost))
}

// TestOnTargetOpenedRetriesDiscovery verifies a failed discovery call does
// not poison later subscriptions: the next subscriber retries, and events
// flow once discovery succeeds.
func TestOnTargetOpenedRetriesDiscovery(t *testing.T) {
	var discoverCalls atomic.Int32
	f := newFakeEndpoint(t, func(req rpcRequest, emit func(method, sessionID string, params any)) (any, *rpcError) {
		if req.Method == "Target.setDiscoverTargets" && discoverCalls.Add(1) == 1 {
			return nil, &rpcError{Code: -32000, Message: "discovery unavailable"}
		}
		return map[string]any{}, nil
	})
	conn := dialTest(t, f)
	b := &Browser{conn: conn}

	cancelFirst := b.OnTargetOpened(func(browser.TargetInfo) {})
	cancelFirst()

	got := make(chan browser.TargetInfo, 1)
	cancelSecond := b.OnTargetOpened(func(info browser.TargetInfo) {
		select {
		case got <- info:
		default:
		}
	})
	defer cancelSecond()
	assert.EqualValues(t, 2, discoverCalls.Load(), "second subscriber must retry discovery")

	f.emit("Target.targetCreated", "", map[string]any{
		"targetInfo": map[string]any{"targetId": "T9", "type": "page", "openerId": "T1"},
	})
	select {
	case info := <-got:
		assert.Equal(t, "T9", info.TargetID)
		assert.Equal(t, "T1", info.OpenerID)
	case <-time.After(2 * time.Second):
		t.Fatal("target event never delivered")
	}
}

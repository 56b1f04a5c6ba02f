// Package cdp implements the browser ports over the Chrome DevTools
// Protocol speaking JSON on a websocket control endpoint.
package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/scrapelesshq/LLM-chat-scraper/pkg/browser"
)

type rpcRequest struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcMessage struct {
	ID        int64           `json:"id,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *rpcError       `json:"error,omitempty"`
	Method    string          `json:"method,omitempty"`
	Params    json.RawMessage `json:"params,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
}

type reply struct {
	result json.RawMessage
	err    error
}

type eventHandler struct {
	id int64
	fn func(json.RawMessage)
}

// Conn multiplexes protocol calls and event subscriptions over one
// websocket. Calls are correlated by id; events are fanned out to
// subscribers keyed by method and protocol session.
type Conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan reply
	subs    map[string][]eventHandler

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens a control connection to a devtools websocket endpoint.
func Dial(ctx context.Context, endpoint string) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial control endpoint: %w", err)
	}
	c := &Conn{
		ws:      ws,
		pending: make(map[int64]chan reply),
		subs:    make(map[string][]eventHandler),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func subKey(sessionID, method string) string {
	return sessionID + "\x00" + method
}

// Call issues a protocol command and decodes the result into out (nil
// discards it). An empty sessionID targets the browser itself.
func (c *Conn) Call(ctx context.Context, sessionID, method string, params, out any) error {
	select {
	case <-c.closed:
		return browser.ErrConnectionLost
	default:
	}

	id := c.nextID.Add(1)
	ch := make(chan reply, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	req := rpcRequest{ID: id, Method: method, Params: params, SessionID: sessionID}
	c.writeMu.Lock()
	err := c.ws.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", method, browser.ErrConnectionLost)
	}

	select {
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("%s: %w", method, r.err)
		}
		if out != nil && len(r.result) > 0 {
			if err := json.Unmarshal(r.result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", method, ctx.Err())
	case <-c.closed:
		return fmt.Errorf("%s: %w", method, browser.ErrConnectionLost)
	}
}

// Subscribe registers fn for every event of the given method on the given
// protocol session. Handlers run on their own goroutines and may issue
// calls back on the connection. The returned cancel removes the handler.
func (c *Conn) Subscribe(sessionID, method string, fn func(json.RawMessage)) (cancel func()) {
	key := subKey(sessionID, method)
	id := c.nextID.Add(1)

	c.mu.Lock()
	c.subs[key] = append(c.subs[key], eventHandler{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		handlers := c.subs[key]
		for i, h := range handlers {
			if h.id == id {
				c.subs[key] = append(handlers[:i:i], handlers[i+1:]...)
				break
			}
		}
		c.mu.Unlock()
	}
}

func (c *Conn) readLoop() {
	for {
		var msg rpcMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.shutdown()
			return
		}

		if msg.ID != 0 {
			c.mu.Lock()
			ch := c.pending[msg.ID]
			c.mu.Unlock()
			if ch != nil {
				r := reply{result: msg.Result}
				if msg.Error != nil {
					r.err = &browser.ProtocolError{Code: msg.Error.Code, Message: msg.Error.Message}
				}
				ch <- r
			}
			continue
		}

		if msg.Method == "" {
			continue
		}
		c.mu.Lock()
		handlers := append([]eventHandler(nil), c.subs[subKey(msg.SessionID, msg.Method)]...)
		c.mu.Unlock()
		for _, h := range handlers {
			go h.fn(msg.Params)
		}
	}
}

func (c *Conn) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

// Close tears down the websocket. Idempotent; pending calls fail with
// ErrConnectionLost.
func (c *Conn) Close() error {
	c.shutdown()
	return nil
}

// Done is closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

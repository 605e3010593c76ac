package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/httpx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

const (
	generationPath = "ai/ws/generation/"
	readLimit      = 64 << 10
	writeWait      = 5 * time.Second
)

type WSDialer struct {
	baseURL string
	dialer  *websocket.Dialer
	header  http.Header
	log     *logger.Logger
}

// NewWSDialer dials progress streams under baseURL, which may be ws(s):// or
// the http(s):// API base URL.
func NewWSDialer(baseURL string, log *logger.Logger) (*WSDialer, error) {
	base, err := httpx.WebSocketBase(baseURL)
	if err != nil {
		return nil, fmt.Errorf("progress base url: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WSDialer{
		baseURL: base,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 15 * time.Second,
		},
		header: http.Header{},
		log:    log.With("component", "progress"),
	}, nil
}

func (d *WSDialer) URL(batchID string) string {
	return httpx.JoinURL(d.baseURL, generationPath+url.PathEscape(batchID))
}

func (d *WSDialer) Dial(ctx context.Context, batchID string) (Channel, error) {
	batchID = strings.TrimSpace(batchID)
	if batchID == "" {
		return nil, errors.New("batch id required")
	}
	c := &wsChannel{
		events: make(chan Event),
		done:   make(chan struct{}),
		log:    d.log.With("batch_id", batchID),
	}
	c.state.Store(int32(StateConnecting))

	target := d.URL(batchID)
	conn, resp, err := d.dialer.DialContext(ctx, target, d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		c.state.Store(int32(StateClosed))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, apierr.Network(fmt.Errorf("dial %s: %w", target, err))
	}
	conn.SetReadLimit(readLimit)
	c.conn = conn
	c.state.Store(int32(StateOpen))
	c.log.Debug("progress channel open", "url", target)

	go c.readLoop()
	return c, nil
}

type wsChannel struct {
	conn   *websocket.Conn
	events chan Event
	done   chan struct{}
	log    *logger.Logger

	state atomic.Int32

	mu        sync.RWMutex
	closed    bool
	err       error
	closeOnce sync.Once
}

func (c *wsChannel) Events() <-chan Event { return c.events }

func (c *wsChannel) State() State { return State(c.state.Load()) }

func (c *wsChannel) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *wsChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.state.Store(int32(StateClosed))

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		err = c.conn.Close()
		c.log.Debug("progress channel closed")
	})
	return err
}

func (c *wsChannel) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.fail(err)
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.log.Warn("bad progress payload", "error", err)
			continue
		}
		if ev.Terminal() {
			next := StateCompleted
			if ev.Status == StatusFailed {
				next = StateFailed
			}
			c.state.CompareAndSwap(int32(StateOpen), int32(next))
		}
		if !c.deliver(ev) {
			return
		}
		if ev.Terminal() {
			return
		}
	}
}

// deliver hands ev to the consumer unless the channel was closed. The read lock
// is held across the send so Close cannot return while a send is pending.
func (c *wsChannel) deliver(ev Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *wsChannel) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.err = &apierr.Error{Kind: apierr.KindNetwork, Message: ErrStreamEnded.Error(), Err: ErrStreamEnded}
	} else {
		c.err = apierr.Network(err)
	}
	c.state.Store(int32(StateClosed))
	c.log.Warn("progress channel error", "error", err)
}

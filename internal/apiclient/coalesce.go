package apiclient

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// KeyFunc derives the de-duplication key for a request. An empty key disables
// coalescing for that request.
type KeyFunc func(method, url string, body []byte) string

func DefaultKey(method, url string, body []byte) string {
	return method + ":" + url + ":" + string(body)
}

// Coalescer shares one in-flight call between concurrent identical requests.
// A key is released as soon as its call settles, whatever the outcome.
type Coalescer struct {
	key   KeyFunc
	group singleflight.Group

	mu      sync.Mutex
	flights map[string]*flight
}

// flight is the cancellation scope of one shared call. It ends when its last
// waiter leaves.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func NewCoalescer(key KeyFunc) *Coalescer {
	if key == nil {
		key = DefaultKey
	}
	return &Coalescer{key: key, flights: map[string]*flight{}}
}

func (c *Coalescer) Key(method, url string, body []byte) string {
	return c.key(method, url, body)
}

// Do runs fn once per key among concurrent callers. The shared call keeps the
// starting caller's context values but not its cancellation: it is cancelled
// only once every waiter has returned, so one caller giving up never fails
// another. shared reports whether the result was handed to more than one
// caller.
func (c *Coalescer) Do(ctx context.Context, key string, fn func(context.Context) (*Response, error)) (resp *Response, shared bool, err error) {
	if key == "" {
		resp, err = fn(ctx)
		return resp, false, err
	}
	f := c.join(ctx, key)
	defer c.leave(key, f)

	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn(f.ctx)
	})
	select {
	case res := <-ch:
		r, _ := res.Val.(*Response)
		return r, res.Shared, res.Err
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

func (c *Coalescer) join(ctx context.Context, key string) *flight {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flights == nil {
		c.flights = map[string]*flight{}
	}
	f := c.flights[key]
	if f == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[key] = f
	}
	f.waiters++
	return f
}

func (c *Coalescer) leave(key string, f *flight) {
	c.mu.Lock()
	f.waiters--
	last := f.waiters == 0
	if last && c.flights[key] == f {
		delete(c.flights, key)
		// An abandoned call may still be unwinding; later callers start fresh.
		c.group.Forget(key)
	}
	c.mu.Unlock()
	if last {
		f.cancel()
	}
}

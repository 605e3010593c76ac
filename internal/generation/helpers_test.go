package generation

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/coursegen/internal/apiclient"
	"github.com/yungbote/coursegen/internal/auth"
	"github.com/yungbote/coursegen/internal/notify"
	"github.com/yungbote/coursegen/internal/progress"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

// recordingTransport answers every request with handle and counts calls.
type recordingTransport struct {
	calls  atomic.Int32
	mu     sync.Mutex
	uris   []string
	handle func(req *http.Request) *http.Response
}

func (rt *recordingTransport) client(t *testing.T) *apiclient.Client {
	t.Helper()
	c, err := apiclient.New(apiclient.Options{
		BaseURL: "http://backend.test/api/v1",
		Tokens:  auth.NewMemoryStore("tok"),
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			rt.calls.Add(1)
			rt.mu.Lock()
			rt.uris = append(rt.uris, req.Method+" "+req.URL.RequestURI())
			rt.mu.Unlock()
			return rt.handle(req), nil
		})},
	})
	if err != nil {
		t.Fatalf("apiclient.New: %v", err)
	}
	return c
}

func (rt *recordingTransport) requests() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.uris...)
}

// fakeChannel delivers whatever the test sends and, unlike the websocket
// channel, keeps delivering after Close so the generator's own guard is tested.
type fakeChannel struct {
	events chan progress.Event
	closes atomic.Int32
	err    error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan progress.Event)}
}

func (c *fakeChannel) Events() <-chan progress.Event { return c.events }
func (c *fakeChannel) Err() error                    { return c.err }
func (c *fakeChannel) Close() error                  { c.closes.Add(1); return nil }
func (c *fakeChannel) State() progress.State {
	if c.closes.Load() > 0 {
		return progress.StateClosed
	}
	return progress.StateOpen
}

func (c *fakeChannel) send(t *testing.T, ev progress.Event) {
	t.Helper()
	select {
	case c.events <- ev:
	case <-time.After(2 * time.Second):
		t.Fatalf("generator did not receive event %+v", ev)
	}
}

type fakeDialer struct {
	mu       sync.Mutex
	channels []*fakeChannel
	ids      []string
	err      error
}

func (d *fakeDialer) Dial(_ context.Context, batchID string) (progress.Channel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, batchID)
	if d.err != nil {
		return nil, d.err
	}
	ch := newFakeChannel()
	d.channels = append(d.channels, ch)
	return ch, nil
}

func (d *fakeDialer) dialed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.ids...)
}

func (d *fakeDialer) channel(t *testing.T, i int) *fakeChannel {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.channels) {
		t.Fatalf("channel %d not dialed (have %d)", i, len(d.channels))
	}
	return d.channels[i]
}

type stateLog struct {
	mu     sync.Mutex
	states []BatchState
}

func (l *stateLog) record(s BatchState) {
	l.mu.Lock()
	l.states = append(l.states, s)
	l.mu.Unlock()
}

func (l *stateLog) all() []BatchState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]BatchState(nil), l.states...)
}

func waitDone(t *testing.T, g *BatchGenerator) BatchState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := g.Wait(ctx)
	if err != nil {
		t.Fatalf("batch did not settle: %v", err)
	}
	return s
}

func lastNotification(t *testing.T, rec *notify.Recorder) notify.Notification {
	t.Helper()
	n, ok := rec.Last()
	if !ok {
		t.Fatalf("no notification recorded")
	}
	return n
}

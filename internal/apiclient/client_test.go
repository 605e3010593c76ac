package apiclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/coursegen/internal/auth"
	"github.com/yungbote/coursegen/internal/platform/apierr"
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

func textResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(t *testing.T, tokens auth.TokenProvider, rt roundTripperFunc) *Client {
	t.Helper()
	c, err := New(Options{
		BaseURL:    "http://backend.test/api/v1/",
		Tokens:     tokens,
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

type countingStore struct {
	*auth.MemoryStore
	clears atomic.Int32
}

func (s *countingStore) Clear() error {
	s.clears.Add(1)
	return s.MemoryStore.Clear()
}

func TestConcurrentIdenticalRequestsShareOneCall(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 4)
	release := make(chan struct{})

	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		entered <- struct{}{}
		<-release
		return jsonResponse(http.StatusOK, `{"id":11,"title":"Intro"}`), nil
	})

	var keyed atomic.Int32
	c.coalescer = NewCoalescer(func(method, url string, body []byte) string {
		keyed.Add(1)
		return DefaultKey(method, url, body)
	})

	type result struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	}
	var wg sync.WaitGroup
	out := make([]result, 2)
	errs := make([]error, 2)
	call := func(i int) {
		defer wg.Done()
		errs[i] = c.Post(context.Background(), "contents/generate?unit_id=7", map[string]string{"content_type": "text"}, &out[i])
	}

	wg.Add(1)
	go call(0)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("first call never reached transport")
	}
	wg.Add(1)
	go call(1)
	deadline := time.Now().Add(2 * time.Second)
	for keyed.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("network calls=%d want=1", calls.Load())
	}
	for i := range errs {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if out[i].ID != 11 || out[i].Title != "Intro" {
			t.Fatalf("caller %d got=%+v", i, out[i])
		}
	}

	// The key is released once settled.
	if err := c.Post(context.Background(), "contents/generate?unit_id=7", map[string]string{"content_type": "text"}, nil); err != nil {
		t.Fatalf("third call: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("network calls after settle=%d want=2", calls.Load())
	}
}

func TestDifferentBodiesAreNotCoalesced(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusOK, `{}`), nil
	})
	_ = c.Post(context.Background(), "contents/generate?unit_id=1", map[string]string{"tone": "casual"}, nil)
	_ = c.Post(context.Background(), "contents/generate?unit_id=1", map[string]string{"tone": "academic"}, nil)
	if calls.Load() != 2 {
		t.Fatalf("calls=%d", calls.Load())
	}
}

func TestHeaders(t *testing.T) {
	type seen struct {
		method, path, auth, ctype string
	}
	var got []seen
	var mu sync.Mutex
	rt := func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		got = append(got, seen{req.Method, req.URL.Path, req.Header.Get("Authorization"), req.Header.Get("Content-Type")})
		mu.Unlock()
		if req.Header.Get("X-Request-ID") == "" {
			t.Errorf("missing X-Request-ID")
		}
		return jsonResponse(http.StatusOK, `null`), nil
	}

	c := newTestClient(t, auth.NewMemoryStore("tok-abc"), rt)
	ctx := context.Background()
	_ = c.Get(ctx, "/contents/unit?unit_id=3", nil)
	_ = c.Post(ctx, "contents/generate?unit_id=3", map[string]any{}, nil)
	_ = c.Put(ctx, "contents/9", map[string]any{"title": "x"}, nil)
	_ = c.Delete(ctx, "contents/9", nil)
	_ = c.Do(ctx, Request{Method: http.MethodPost, Endpoint: "uploads", Form: &Form{Fields: map[string]any{"unit_id": 3}}}, nil)

	anon := newTestClient(t, nil, rt)
	_ = anon.Get(ctx, "courses/public", nil)

	want := []seen{
		{"GET", "/api/v1/contents/unit", "Bearer tok-abc", ""},
		{"POST", "/api/v1/contents/generate", "Bearer tok-abc", "application/json"},
		{"PUT", "/api/v1/contents/9", "Bearer tok-abc", "application/json"},
		{"DELETE", "/api/v1/contents/9", "Bearer tok-abc", ""},
		{"POST", "/api/v1/uploads", "Bearer tok-abc", "multipart/form-data"},
		{"GET", "/api/v1/courses/public", "", ""},
	}
	if len(got) != len(want) {
		t.Fatalf("requests=%d want=%d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.method != w.method || g.path != w.path || g.auth != w.auth {
			t.Fatalf("request %d: got=%+v want=%+v", i, g, w)
		}
		if !strings.HasPrefix(g.ctype, w.ctype) || (w.ctype == "" && g.ctype != "") {
			t.Fatalf("request %d content-type=%q want prefix %q", i, g.ctype, w.ctype)
		}
	}
}

func TestUnauthorizedClearsTokenOnce(t *testing.T) {
	store := &countingStore{MemoryStore: auth.NewMemoryStore("stale")}
	c := newTestClient(t, store, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"detail":"Not authenticated"}`), nil
	})

	err := c.Get(context.Background(), "auth/me", nil)
	if !errors.Is(err, apierr.ErrAuthentication) {
		t.Fatalf("err=%v", err)
	}
	if err.Error() != "Could not validate credentials" {
		t.Fatalf("msg=%q", err.Error())
	}
	if store.clears.Load() != 1 {
		t.Fatalf("clears=%d", store.clears.Load())
	}
	if _, ok := store.Token(); ok {
		t.Fatalf("token not cleared")
	}
}

func TestValidationErrorMessage(t *testing.T) {
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity,
			`{"detail":[{"loc":["body","difficulty_level"],"msg":"invalid enum value","type":"enum"}]}`), nil
	})
	err := c.Post(context.Background(), "contents/generate?unit_id=7", map[string]string{"difficulty_level": "expert"}, nil)
	if !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("err=%v", err)
	}
	if err.Error() != "body.difficulty_level: invalid enum value" {
		t.Fatalf("msg=%q", err.Error())
	}
}

func TestValidationMessageShapes(t *testing.T) {
	cases := []struct {
		name   string
		detail any
		want   string
	}{
		{"multi", []any{
			map[string]any{"loc": []any{"query", "unit_id"}, "msg": "field required"},
			map[string]any{"loc": []any{"body", "items", float64(0)}, "msg": "bad"},
		}, "query.unit_id: field required, body.items.0: bad"},
		{"string", "title too long", "title too long"},
		{"missing", nil, "Validation error"},
	}
	for _, tc := range cases {
		if got := validationMessage(tc.detail); got != tc.want {
			t.Fatalf("%s: got=%q want=%q", tc.name, got, tc.want)
		}
	}
}

func TestGenerationRejectionOnlyOnBatchEndpoints(t *testing.T) {
	detail := `Invalid operation: candidate content { parts {} } finish_reason: RECITATION`
	body := `{"detail":` + quote(detail) + `}`
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, body), nil
	})

	err := c.Post(context.Background(), "contents/batch-generate?module_id=42", nil, nil)
	if !errors.Is(err, apierr.ErrGeneration) {
		t.Fatalf("err=%v", err)
	}
	if err.Error() != "Failed to generate content: "+detail {
		t.Fatalf("msg=%q", err.Error())
	}

	err = c.Post(context.Background(), "contents/generate?unit_id=1", nil, nil)
	if !errors.Is(err, apierr.ErrAPI) {
		t.Fatalf("non-batch err=%v", err)
	}
	if err.Error() != detail {
		t.Fatalf("non-batch msg=%q", err.Error())
	}
}

func TestFallbackMessages(t *testing.T) {
	cases := []struct {
		resp *http.Response
		want string
	}{
		{jsonResponse(http.StatusNotFound, `{"detail":"Unit not found"}`), "Unit not found"},
		{jsonResponse(http.StatusConflict, `{"message":"x"}`), "An error occurred"},
		{textResponse(http.StatusBadGateway, "<html>bad gateway</html>"), "HTTP error! status: 502"},
	}
	for _, tc := range cases {
		resp := tc.resp
		c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) { return resp, nil })
		err := c.Get(context.Background(), "units/1", nil)
		if !errors.Is(err, apierr.ErrAPI) {
			t.Fatalf("err=%v", err)
		}
		if err.Error() != tc.want {
			t.Fatalf("got=%q want=%q", err.Error(), tc.want)
		}
	}
}

func TestNonJSONSuccessResolvesToNull(t *testing.T) {
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return textResponse(http.StatusOK, "deleted"), nil
	})
	out := map[string]any{"untouched": true}
	if err := c.Delete(context.Background(), "contents/5", &out); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if out["untouched"] != true {
		t.Fatalf("out=%v", out)
	}

	resp, err := c.Send(context.Background(), Request{Method: "DELETE", Endpoint: "contents/5"})
	if err != nil || !resp.Null() {
		t.Fatalf("resp null=%v err=%v", resp != nil && resp.Null(), err)
	}
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")
	})
	err := c.Get(context.Background(), "courses", nil)
	if !errors.Is(err, apierr.ErrNetwork) {
		t.Fatalf("err=%v", err)
	}
}

func TestCancelledContextIsNotNetworkError(t *testing.T) {
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Get(ctx, "courses", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if apierr.KindOf(err) != "" {
		t.Fatalf("kind=%q", apierr.KindOf(err))
	}
}

func TestPrependedClassifierWins(t *testing.T) {
	errConflict := errors.New("content is locked")
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusConflict, `{"detail":"locked"}`), nil
	}).WithClassifiers([]Classifier{func(resp *Response) error {
		if resp.Status == http.StatusConflict {
			return errConflict
		}
		return nil
	}})
	if err := c.Put(context.Background(), "contents/1", map[string]any{}, nil); !errors.Is(err, errConflict) {
		t.Fatalf("err=%v", err)
	}
}

func TestAppendedClassifierRunsBeforeFallback(t *testing.T) {
	errDuplicate := errors.New("content already exists")
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusConflict, `{"detail":"duplicate"}`), nil
	}).WithClassifiers(nil, func(resp *Response) error {
		if resp.Status == http.StatusConflict {
			return errDuplicate
		}
		return nil
	})
	if err := c.Put(context.Background(), "contents/1", map[string]any{}, nil); !errors.Is(err, errDuplicate) {
		t.Fatalf("err=%v", err)
	}

	// Unclaimed statuses still end as ApiError.
	plain := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusConflict, `{"detail":"duplicate"}`), nil
	})
	err := plain.Put(context.Background(), "contents/1", map[string]any{}, nil)
	if !errors.Is(err, apierr.ErrAPI) || err.Error() != "duplicate" {
		t.Fatalf("err=%v", err)
	}
}

func TestCancelledWaiterDoesNotFailSharedCall(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		calls.Add(1)
		entered <- struct{}{}
		select {
		case <-release:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
		return jsonResponse(http.StatusOK, `{"id":3}`), nil
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() { firstErr <- c.Get(firstCtx, "courses/3", nil) }()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("first call never reached transport")
	}

	var out struct {
		ID int `json:"id"`
	}
	secondErr := make(chan error, 1)
	go func() { secondErr <- c.Get(context.Background(), "courses/3", &out) }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("first err=%v", err)
	}
	close(release)
	if err := <-secondErr; err != nil {
		t.Fatalf("second err=%v", err)
	}
	if out.ID != 3 || calls.Load() != 1 {
		t.Fatalf("out=%+v calls=%d", out, calls.Load())
	}
}

func TestAbandonedCallIsCancelled(t *testing.T) {
	cancelled := make(chan struct{})
	entered := make(chan struct{}, 1)
	c := newTestClient(t, nil, func(req *http.Request) (*http.Response, error) {
		entered <- struct{}{}
		<-req.Context().Done()
		close(cancelled)
		return nil, req.Context().Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Get(ctx, "courses", nil) }()
	<-entered
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatalf("shared call kept running after its only waiter left")
	}
}

func TestFormEncoding(t *testing.T) {
	body, ctype, err := (&Form{
		Fields: map[string]any{"title": "Intro", "order": 2, "meta": map[string]any{"a": 1}, "skip": nil},
		Files:  []FormFile{{Field: "file", Filename: "notes.md", Content: []byte("# hi")}},
	}).encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.HasPrefix(ctype, "multipart/form-data; boundary=") {
		t.Fatalf("ctype=%q", ctype)
	}
	for _, want := range []string{`name="title"`, "Intro", `name="order"`, `{"a":1}`, `filename="notes.md"`, "# hi"} {
		if !bytes.Contains(body, []byte(want)) {
			t.Fatalf("body missing %q", want)
		}
	}
	if bytes.Contains(body, []byte(`name="skip"`)) {
		t.Fatalf("nil field encoded")
	}
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

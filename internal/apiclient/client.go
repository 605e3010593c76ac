package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/coursegen/internal/auth"
	"github.com/yungbote/coursegen/internal/platform/apierr"
	"github.com/yungbote/coursegen/internal/platform/httpx"
	"github.com/yungbote/coursegen/internal/platform/logger"
)

const (
	DefaultBaseURL = "http://localhost:8000/api/v1"
	maxBodyBytes   = 8 << 20
)

type Options struct {
	BaseURL string
	Tokens  auth.TokenProvider
	// Timeout bounds each network call. Zero leaves it to the transport.
	Timeout    time.Duration
	HTTPClient *http.Client
	Key        KeyFunc
	// Classifiers replaces the default chain when non-empty.
	Classifiers []Classifier
	Log         *logger.Logger
}

type Client struct {
	baseURL     string
	tokens      auth.TokenProvider
	timeout     time.Duration
	httpClient  *http.Client
	coalescer   *Coalescer
	classifiers []Classifier
	log         *logger.Logger
	tracer      trace.Tracer
}

func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return nil, fmt.Errorf("base url must be http(s): %q", baseURL)
	}
	tokens := opts.Tokens
	if tokens == nil {
		tokens = auth.NewMemoryStore("")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	classifiers := opts.Classifiers
	if len(classifiers) == 0 {
		classifiers = DefaultClassifiers(tokens)
	}
	timeout := opts.Timeout
	if timeout < 0 {
		timeout = 0
	}
	return &Client{
		baseURL:     baseURL,
		tokens:      tokens,
		timeout:     timeout,
		httpClient:  hc,
		coalescer:   NewCoalescer(opts.Key),
		classifiers: classifiers,
		log:         log.With("component", "apiclient"),
		tracer:      otel.Tracer("github.com/yungbote/coursegen/internal/apiclient"),
	}, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// WithClassifiers returns a copy of c whose chain is prepend, the current chain,
// then appendix. The copy has its own in-flight table.
func (c *Client) WithClassifiers(prepend []Classifier, appendix ...Classifier) *Client {
	cp := *c
	cp.coalescer = NewCoalescer(c.coalescer.key)
	chain := make([]Classifier, 0, len(prepend)+len(c.classifiers)+len(appendix))
	chain = append(chain, prepend...)
	chain = append(chain, c.classifiers...)
	chain = append(chain, appendix...)
	cp.classifiers = chain
	return &cp
}

// Do sends r and decodes a JSON success body into out. A success without a
// usable JSON body leaves out untouched and returns nil.
func (c *Client) Do(ctx context.Context, r Request, out any) error {
	resp, err := c.Send(ctx, r)
	if err != nil {
		return err
	}
	if out == nil || resp.Null() {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", resp.Method, resp.Endpoint, err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Endpoint: endpoint}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Endpoint: endpoint, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint}, out)
}

// Send performs r, coalescing it with any identical call already in flight,
// and returns the successful response or a classified error.
func (c *Client) Send(ctx context.Context, r Request) (*Response, error) {
	method := normalizeMethod(r.Method)
	url := httpx.JoinURL(c.baseURL, r.Endpoint)
	body, contentType, err := encodeBody(method, r)
	if err != nil {
		return nil, err
	}

	key := ""
	if r.Form == nil {
		key = c.coalescer.Key(method, url, body)
	}
	resp, shared, err := c.coalescer.Do(ctx, key, func(callCtx context.Context) (*Response, error) {
		return c.roundTrip(callCtx, method, url, r, body, contentType)
	})
	if shared {
		c.log.Debug("coalesced request", "method", method, "endpoint", r.Endpoint)
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, url string, r Request, body []byte, contentType string) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "apiclient "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("coursegen.endpoint", r.Endpoint),
		),
	)
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var rdr io.Reader
	if len(body) > 0 {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, r.Header, contentType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	res, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		if !httpx.IsTransportError(err) {
			return nil, err
		}
		c.log.Warn("request failed", "method", method, "endpoint", r.Endpoint, "error", err)
		return nil, apierr.Network(err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		span.RecordError(err)
		return nil, apierr.Network(err)
	}
	span.SetAttributes(attribute.Int("http.response.status_code", res.StatusCode))
	c.log.Debug("request settled",
		"method", method,
		"endpoint", r.Endpoint,
		"status", res.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	resp := newResponse(method, r.Endpoint, res.StatusCode, res.Header, raw)
	if resp.OK() {
		return resp, nil
	}
	cerr := c.classify(resp)
	span.SetStatus(codes.Error, cerr.Error())
	return nil, cerr
}

func (c *Client) classify(resp *Response) error {
	for _, cl := range c.classifiers {
		if err := cl(resp); err != nil {
			return err
		}
	}
	return Fallback()(resp)
}

func (c *Client) setHeaders(req *http.Request, extra http.Header, contentType string) {
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if tok, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
}

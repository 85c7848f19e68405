package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/time/rate"
)

// idempotentMethods are retried on connection errors, 429 and 5xx.
var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

var allowedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodPatch:   true,
	http.MethodDelete:  true,
	http.MethodHead:    true,
	http.MethodOptions: true,
}

// Request is one http capability call as issued by the script.
type Request struct {
	Method    string
	URL       string
	Headers   map[string]string
	BodyText  *string
	TimeoutMs int
}

// Response is what the script receives. Header names are lowercased.
type Response struct {
	Status   int
	BodyText string
	Headers  map[string]string
}

// AsyncResult settles one requestAsync call.
type AsyncResult struct {
	Response *Response
	Err      error
}

// HTTPOptions bounds the http capability.
type HTTPOptions struct {
	DefaultTimeout time.Duration
	MaxTimeout     time.Duration
	RateLimit      float64 // requests per second, 0 for unlimited
	MaxBodyBytes   int64
	UserAgent      string

	// Retries bounds extra attempts for idempotent requests. All attempts
	// share the request's timeout.
	Retries      int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// DefaultHTTPOptions mirrors the config defaults.
func DefaultHTTPOptions() HTTPOptions {
	return HTTPOptions{
		DefaultTimeout: 10 * time.Second,
		MaxTimeout:     60 * time.Second,
		MaxBodyBytes:   10 << 20,
		UserAgent:      "probehost/0.1",
		Retries:        2,
		RetryWaitMin:   100 * time.Millisecond,
		RetryWaitMax:   time.Second,
	}
}

// HTTPClient is the http capability.
type HTTPClient interface {
	Request(ctx context.Context, req Request) (*Response, error)
	RequestAsync(ctx context.Context, req Request) (<-chan AsyncResult, error)
}

// HTTP issues plugin requests. One per run: no cookies or limiter state
// survive the run.
type HTTP struct {
	client   *resty.Client
	retrying *resty.Client
	limiter  *rate.Limiter
	opts    HTTPOptions
	inv     invoker
}

var _ HTTPClient = (*HTTP)(nil)

// NewTransport returns the pooled transport shared by every run's client.
func NewTransport() http.RoundTripper {
	return cleanhttp.DefaultPooledTransport()
}

func newHTTP(transport http.RoundTripper, opts HTTPOptions, inv invoker) *HTTP {
	if transport == nil {
		transport = NewTransport()
	}
	if opts.RetryWaitMin <= 0 || opts.RetryWaitMax < opts.RetryWaitMin {
		opts.RetryWaitMin = DefaultHTTPOptions().RetryWaitMin
		opts.RetryWaitMax = DefaultHTTPOptions().RetryWaitMax
	}
	plain := &http.Client{Transport: transport}

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = plain
	retryClient.Logger = nil
	retryClient.RetryMax = opts.Retries
	retryClient.RetryWaitMin = opts.RetryWaitMin
	retryClient.RetryWaitMax = opts.RetryWaitMax
	// The last response reaches the script as is, whatever its status.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTP{
		client:   newResty(plain, opts),
		retrying: newResty(retryClient.StandardClient(), opts),
		limiter:  newLimiter(opts.RateLimit),
		opts:     opts,
		inv:      inv,
	}
}

func newResty(hc *http.Client, opts HTTPOptions) *resty.Client {
	client := resty.NewWithClient(hc).
		SetRetryCount(0).
		SetDoNotParseResponse(true).
		SetHeader("User-Agent", opts.UserAgent)
	client.SetCookieJar(nil)
	return client
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Validate checks a request without touching the network.
func (h *HTTP) Validate(req Request) error {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if !allowedMethods[method] {
		return fmt.Errorf("%w %q", ErrMethod, req.Method)
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return invalid("url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return invalid("url has no host")
	}
	if req.TimeoutMs < 0 {
		return invalid("timeoutMs must not be negative")
	}
	for name := range req.Headers {
		if name == "" || strings.ContainsAny(name, " \r\n:") {
			return invalid("header name %q", name)
		}
	}
	return nil
}

func (h *HTTP) timeout(req Request) time.Duration {
	if req.TimeoutMs == 0 {
		return h.opts.DefaultTimeout
	}
	d := time.Duration(req.TimeoutMs) * time.Millisecond
	if h.opts.MaxTimeout > 0 && d > h.opts.MaxTimeout {
		return h.opts.MaxTimeout
	}
	return d
}

// Request performs the call and waits for it.
func (h *HTTP) Request(ctx context.Context, req Request) (*Response, error) {
	if err := h.Validate(req); err != nil {
		return nil, capErr("http", "request", err)
	}
	v, err := h.inv.do(ctx, "http", "request", func(ctx context.Context) (interface{}, error) {
		return h.execute(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Response), nil
}

// RequestAsync validates synchronously, then queues the call behind
// earlier capability calls and returns without waiting.
func (h *HTTP) RequestAsync(ctx context.Context, req Request) (<-chan AsyncResult, error) {
	if err := h.Validate(req); err != nil {
		return nil, capErr("http", "requestAsync", err)
	}

	wait := h.inv.start(ctx, "http", "requestAsync", func(ctx context.Context) (interface{}, error) {
		return h.execute(ctx, req)
	})
	out := make(chan AsyncResult, 1)
	go func() {
		v, err := wait()
		if err != nil {
			out <- AsyncResult{Err: err}
			return
		}
		out <- AsyncResult{Response: v.(*Response)}
	}()
	return out, nil
}

func (h *HTTP) execute(runCtx context.Context, req Request) (*Response, error) {
	if err := h.limiter.Wait(runCtx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(runCtx, h.timeout(req))
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(req.Method))
	client := h.client
	if idempotentMethods[method] && h.opts.Retries > 0 {
		client = h.retrying
	}
	r := client.R().SetContext(reqCtx).SetHeaders(req.Headers)
	if req.BodyText != nil {
		r.SetBody(*req.BodyText)
	}

	resp, err := r.Execute(method, req.URL)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && runCtx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrRequestTimeout, h.timeout(req))
		}
		return nil, err
	}
	body := resp.RawBody()
	defer body.Close()

	text, err := h.readBody(resp.Header(), body)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && runCtx.Err() == nil {
			return nil, fmt.Errorf("%w reading body", ErrRequestTimeout)
		}
		return nil, err
	}

	return &Response{
		Status:   resp.StatusCode(),
		BodyText: text,
		Headers:  flattenHeaders(resp.Header()),
	}, nil
}

// readBody decodes content the transport left encoded, which happens when
// the plugin sets Accept-Encoding itself.
func (h *HTTP) readBody(header http.Header, body io.Reader) (string, error) {
	var reader io.Reader = body
	switch strings.ToLower(strings.TrimSpace(header.Get("Content-Encoding"))) {
	case "zstd":
		dec, err := zstd.NewReader(body)
		if err != nil {
			return "", fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		reader = dec
	case "gzip":
		dec, err := gzip.NewReader(body)
		if err != nil {
			return "", fmt.Errorf("gzip: %w", err)
		}
		defer dec.Close()
		reader = dec
	}

	limit := h.opts.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultHTTPOptions().MaxBodyBytes
	}
	data, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return "", err
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("response body exceeds %d bytes", limit)
	}
	return string(data), nil
}

func flattenHeaders(header http.Header) map[string]string {
	out := make(map[string]string, len(header))
	for k, v := range header {
		if len(v) > 0 {
			out[strings.ToLower(k)] = v[0]
		}
	}
	return out
}

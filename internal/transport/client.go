package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"
)

// DefaultTimeout bounds every request when ClientOptions.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// Client is the interface for the HTTP transport layer. Discovery, probing
// and the intercepting proxy all send their requests through it.
type Client interface {
	// Do sends an HTTP request and returns the response.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Jar returns the session cookie jar shared by every request.
	Jar() http.CookieJar

	// Stats returns transport statistics.
	Stats() *TransportStats
}

// TransportStats holds aggregate statistics for the transport client.
type TransportStats struct {
	TotalRequests int64
	TotalErrors   int64
	TotalDuration time.Duration
	AvgDuration   time.Duration
}

// ClientOptions holds configuration for creating a new DefaultClient.
type ClientOptions struct {
	// Timeout is the default timeout for all requests. Zero means DefaultTimeout;
	// requests are never allowed to block indefinitely.
	Timeout time.Duration

	// ProxyURL is the upstream proxy URL (HTTP or SOCKS5).
	ProxyURL string

	// FollowRedirects controls whether redirects are followed.
	FollowRedirects bool

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// RandomUserAgent enables random User-Agent header selection.
	RandomUserAgent bool

	// MaxRPS is the maximum requests per second (0 = unlimited).
	MaxRPS float64
}

// DefaultClient is the default implementation of the Client interface,
// backed by net/http.
type DefaultClient struct {
	httpClient      *http.Client
	jar             *cookiejar.Jar
	opts            ClientOptions
	limiter         *rate.Limiter
	mu              sync.Mutex
	totalRequests   int64
	totalErrors     int64
	totalDurationNs int64
}

// NewClient creates a new DefaultClient with the given options.
func NewClient(opts ClientOptions) (*DefaultClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 32,
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if proxyURL.Scheme == "" || proxyURL.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL %q: missing scheme or host", opts.ProxyURL)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		Jar:       jar,
	}

	if !opts.FollowRedirects {
		client.CheckRedirect = noRedirect
	}

	dc := &DefaultClient{
		httpClient: client,
		jar:        jar,
		opts:       opts,
	}

	if opts.MaxRPS > 0 {
		dc.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}

	return dc, nil
}

func noRedirect(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// Do sends an HTTP request and returns the response. It applies rate
// limiting, timing measurement, custom headers and optional per-request
// overrides.
func (c *DefaultClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if req.Body != "" {
		bodyReader = strings.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}

	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	if c.opts.RandomUserAgent && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", RandomUserAgent())
	}

	// Per-request overrides for redirect policy or timeout use a shallow
	// copy so the shared client is never mutated.
	httpClient := c.httpClient
	if req.FollowRedirects != nil || req.Timeout > 0 {
		cc := *c.httpClient
		if req.Timeout > 0 {
			cc.Timeout = req.Timeout
		}
		if req.FollowRedirects != nil {
			if *req.FollowRedirects {
				cc.CheckRedirect = nil
			} else {
				cc.CheckRedirect = noRedirect
			}
		}
		httpClient = &cc
	}

	start := time.Now()
	httpResp, err := httpClient.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		c.record(duration, true)
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.record(duration, true)
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   duration,
	}

	c.record(duration, false)
	return resp, nil
}

func (c *DefaultClient) record(d time.Duration, failed bool) {
	c.mu.Lock()
	c.totalRequests++
	c.totalDurationNs += d.Nanoseconds()
	if failed {
		c.totalErrors++
	}
	c.mu.Unlock()
}

// Jar returns the session cookie jar.
func (c *DefaultClient) Jar() http.CookieJar {
	return c.jar
}

// Stats returns aggregate transport statistics.
func (c *DefaultClient) Stats() *TransportStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := &TransportStats{
		TotalRequests: c.totalRequests,
		TotalErrors:   c.totalErrors,
		TotalDuration: time.Duration(c.totalDurationNs),
	}
	if c.totalRequests > 0 {
		stats.AvgDuration = time.Duration(c.totalDurationNs / c.totalRequests)
	}
	return stats
}

// Send performs req and returns nil when no response was obtained.
// Connection failures, timeouts and cancellations all collapse into the
// nil "no response" result, which detection code treats as a non-match.
func Send(ctx context.Context, c Client, req *Request) *Response {
	resp, err := c.Do(ctx, req)
	if err != nil {
		log.Debug().Err(err).Str("method", req.Method).Str("url", req.URL).Msg("no response")
		return nil
	}
	return resp
}

// Get is Send for a plain GET of rawURL.
func Get(ctx context.Context, c Client, rawURL string) *Response {
	return Send(ctx, c, &Request{Method: http.MethodGet, URL: rawURL})
}

var _ Client = (*DefaultClient)(nil)

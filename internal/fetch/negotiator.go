// Package fetch is the HTTP negotiator: content-negotiated fetches with
// redirect tracking, typed links, response caching, rate limiting and retries.
package fetch

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/fairmeter/internal/apperr"
	"github.com/ppiankov/fairmeter/internal/cache"
	"github.com/ppiankov/fairmeter/internal/metrics"
	"github.com/ppiankov/fairmeter/internal/model"
	"github.com/ppiankov/fairmeter/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids a fetch
var ErrDisallowed = errors.New("disallowed by robots.txt")

// fetchSleepFunc waits between retries (injectable for tests)
var fetchSleepFunc = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Request describes one fetch
type Request struct {
	Method   string        // GET when empty
	URL      string
	Classes  []MimeClass   // preference order, used when Accept is empty
	Accept   string        // explicit Accept header
	MaxBytes int64         // 0 uses the negotiator default
	Timeout  time.Duration // 0 uses the client timeout
	NoCache  bool
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (r Request) accept() string {
	if r.Accept != "" {
		return r.Accept
	}
	return AcceptHeader(r.Classes...)
}

// Response is a completed HTTP exchange
type Response struct {
	RequestURL    string      `json:"request_url"`
	FinalURL      string      `json:"final_url"`
	StatusCode    int         `json:"status_code"`
	StatusChain   []int       `json:"status_chain"`
	RedirectChain []string    `json:"redirect_chain"`
	Header        http.Header `json:"header"`
	ContentType   string      `json:"content_type"`
	ContentLength int64       `json:"content_length"`
	Body          []byte      `json:"body,omitempty"`
	Truncated     bool        `json:"truncated"`
	Links         []TypedLink `json:"links,omitempty"`
	FromCache     bool        `json:"-"`
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Class returns the MIME class of the response
func (r *Response) Class() MimeClass {
	if r == nil {
		return ""
	}
	return ClassOf(r.ContentType)
}

// StatusError reports a completed exchange with a non-2xx status
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.StatusCode, e.URL)
}

// IsNotFound reports 404 or 410
func (e *StatusError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

// IsUnauthorized reports 401 or 403
func (e *StatusError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// AsStatusError extracts a StatusError from err
func AsStatusError(err error) (*StatusError, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// Option configures a Negotiator
type Option func(*Negotiator)

// WithCache serves repeated fetches from c
func WithCache(c cache.Cache) Option {
	return func(n *Negotiator) { n.cache = c }
}

// WithLimiter applies per-host rate limiting
func WithLimiter(l *worker.Limiter) Option {
	return func(n *Negotiator) { n.limiter = l }
}

// WithRobots checks robots.txt before every fetch
func WithRobots(r *RobotsChecker) Option {
	return func(n *Negotiator) { n.robots = r }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(n *Negotiator) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithTransport replaces the base transport
func WithTransport(rt http.RoundTripper) Option {
	return func(n *Negotiator) { n.transport = rt }
}

// Negotiator performs content-negotiated fetches
type Negotiator struct {
	cfg       model.HTTPConfig
	client    *http.Client
	transport http.RoundTripper
	auth      *AuthTransport
	cache     cache.Cache
	limiter   *worker.Limiter
	robots    *RobotsChecker
	logger    *zap.Logger
}

// New creates a negotiator from the HTTP configuration
func New(cfg model.HTTPConfig, opts ...Option) *Negotiator {
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 5_000_000
	}

	n := &Negotiator{
		cfg:    cfg,
		cache:  cache.Nop{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.transport == nil {
		n.transport = newTransport(cfg)
	}
	n.buildClient()
	return n
}

// With returns a copy of the negotiator with extra options applied. Caches,
// limiters and robots state are shared with the original.
func (n *Negotiator) With(opts ...Option) *Negotiator {
	clone := *n
	for _, opt := range opts {
		opt(&clone)
	}
	clone.buildClient()
	return &clone
}

// Client returns the underlying HTTP client
func (n *Negotiator) Client() *http.Client {
	return n.client
}

// UserAgent returns the configured User-Agent
func (n *Negotiator) UserAgent() string {
	return n.cfg.UserAgent
}

func newTransport(cfg model.HTTPConfig) http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = ProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	if cfg.InsecureTLS {
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}
	return t
}

func (n *Negotiator) buildClient() {
	rt := n.transport
	if n.auth != nil {
		a := *n.auth
		a.Base = rt
		rt = &a
	}

	maxRedirects := n.cfg.MaxRedirects
	n.client = &http.Client{
		Timeout:   n.cfg.Timeout,
		Transport: rt,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// Fetch GETs rawURL with an Accept header built from classes
func (n *Negotiator) Fetch(ctx context.Context, rawURL string, classes ...MimeClass) (*Response, error) {
	return n.Do(ctx, Request{URL: rawURL, Classes: classes})
}

// Head issues a HEAD request
func (n *Negotiator) Head(ctx context.Context, rawURL string) (*Response, error) {
	return n.Do(ctx, Request{Method: http.MethodHead, URL: rawURL})
}

// Do performs req with retries. A non-2xx exchange returns both the response
// and a *StatusError. Transport failures return an apperr network error.
func (n *Negotiator) Do(ctx context.Context, req Request) (*Response, error) {
	accept := req.accept()
	maxBytes := req.MaxBytes
	if maxBytes <= 0 {
		maxBytes = n.cfg.MaxBodyBytes
	}

	key := cache.Key("http", req.method(), req.URL, accept, strconv.FormatInt(maxBytes, 10))
	if !req.NoCache {
		if resp, ok := n.cached(key); ok {
			metrics.CacheHitsTotal.Inc()
			n.logger.Debug("served from cache", zap.String("url", req.URL))
			return resp, statusErr(resp)
		}
	}

	if n.robots != nil && !n.robots.Allowed(ctx, req.URL) {
		n.logger.Warn("fetch disallowed by robots.txt", zap.String("url", req.URL))
		return nil, apperr.Network("fetch", ErrDisallowed)
	}

	var (
		resp *Response
		err  error
	)
	attempts := n.cfg.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		resp, err = n.once(ctx, req, accept, maxBytes)
		if !retryable(ctx, resp, err) || attempt == attempts-1 {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
		n.logger.Debug("retrying fetch", zap.String("url", req.URL), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff))
		if sleepErr := fetchSleepFunc(ctx, backoff); sleepErr != nil {
			break
		}
	}

	if err != nil {
		return nil, apperr.Network("fetch "+req.URL, err)
	}

	if !req.NoCache {
		n.store(key, resp)
	}
	return resp, statusErr(resp)
}

func (n *Negotiator) once(ctx context.Context, req Request, accept string, maxBytes int64) (*Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if n.limiter != nil {
		if err := n.limiter.Wait(ctx, req.URL); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", accept)
	if n.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", n.cfg.UserAgent)
	}

	start := time.Now()
	httpResp, err := n.client.Do(httpReq)
	metrics.FetchDuration.WithLabelValues(req.method()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchesTotal.WithLabelValues(req.method(), metrics.StatusClass(0)).Inc()
		n.logger.Debug("fetch failed", zap.String("url", req.URL), zap.Error(err))
		return nil, err
	}
	defer func() { _ = httpResp.Body.Close() }()
	metrics.FetchesTotal.WithLabelValues(req.method(), metrics.StatusClass(httpResp.StatusCode)).Inc()

	resp := &Response{
		RequestURL:    req.URL,
		FinalURL:      httpResp.Request.URL.String(),
		StatusCode:    httpResp.StatusCode,
		Header:        httpResp.Header.Clone(),
		ContentType:   MediaType(httpResp.Header.Get("Content-Type")),
		ContentLength: httpResp.ContentLength,
	}
	resp.RedirectChain, resp.StatusChain = redirectChain(httpResp)
	resp.Links = ParseLinkHeader(httpResp.Header.Values("Link"), resp.FinalURL)

	if req.method() != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBytes+1))
		if err != nil && len(body) == 0 {
			return nil, fmt.Errorf("read body: %w", err)
		}
		if int64(len(body)) > maxBytes {
			body = body[:maxBytes]
			resp.Truncated = true
		}
		resp.Body = body
	}

	n.logger.Debug("fetched",
		zap.String("url", req.URL),
		zap.String("final_url", resp.FinalURL),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.ContentType),
		zap.Int("bytes", len(resp.Body)),
	)
	return resp, nil
}

// redirectChain walks the redirect responses that led to resp
func redirectChain(resp *http.Response) ([]string, []int) {
	var urls []string
	var codes []int
	for r := resp.Request; r != nil && r.Response != nil; r = r.Response.Request {
		urls = append(urls, r.Response.Request.URL.String())
		codes = append(codes, r.Response.StatusCode)
	}
	for i, j := 0, len(urls)-1; i < j; i, j = i+1, j-1 {
		urls[i], urls[j] = urls[j], urls[i]
		codes[i], codes[j] = codes[j], codes[i]
	}
	urls = append(urls, resp.Request.URL.String())
	codes = append(codes, resp.StatusCode)
	return urls, codes
}

func statusErr(resp *Response) error {
	if resp.OK() {
		return nil
	}
	return &StatusError{URL: resp.RequestURL, StatusCode: resp.StatusCode}
}

func retryable(ctx context.Context, resp *Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

func (n *Negotiator) cached(key string) (*Response, bool) {
	raw, ok := n.cache.Get(key)
	if !ok {
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, false
	}
	resp.FromCache = true
	return &resp, true
}

func (n *Negotiator) store(key string, resp *Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := n.cache.Set(key, raw, 0); err != nil {
		n.logger.Debug("cache write failed", zap.Error(err))
	}
}

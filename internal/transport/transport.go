// Package transport is the single network boundary for wiki access. It applies
// per-call timeouts, retries network failures with capped exponential backoff,
// and classifies every outcome into the shared error taxonomy.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	apierrors "github.com/olgasafonova/mediawiki-mcp-server/internal/errors"
	"github.com/olgasafonova/mediawiki-mcp-server/internal/infra"
	"github.com/olgasafonova/mediawiki-mcp-server/metrics"
	"github.com/olgasafonova/mediawiki-mcp-server/tracing"
)

const (
	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxRetries is the number of extra attempts after a network failure.
	DefaultMaxRetries = 2

	// DefaultLanguage is the interface language sent with every request.
	DefaultLanguage = "en"

	// InitialBackoff and MaxBackoff shape the retry delay: min(1s * 2^n, 5s).
	InitialBackoff = time.Second
	MaxBackoff     = 5 * time.Second
)

// DefaultUserAgent identifies the server to wikis.
var DefaultUserAgent = "mediawiki-mcp-server/1.0 (https://github.com/olgasafonova/mediawiki-mcp-server)"

// Doer executes HTTP requests. *http.Client satisfies it; tests substitute stubs.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Transport performs wiki HTTP calls. It is safe for concurrent use and is
// built once at startup and shared by reference.
type Transport struct {
	doer       Doer
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries int
	userAgent  string
	language   string
	sleep      Sleeper
	breakers   *infra.BreakerSet

	rateLimit  float64
	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	blockPrivate bool
}

// Option configures the Transport
type Option func(*Transport)

// WithDoer replaces the HTTP client.
func WithDoer(d Doer) Option {
	return func(t *Transport) {
		t.doer = d
	}
}

// WithLogger sets a custom logger
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a network failure is retried.
func WithMaxRetries(n int) Option {
	return func(t *Transport) {
		if n >= 0 {
			t.maxRetries = n
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// WithLanguage sets the interface language (uselang / Accept-Language).
func WithLanguage(lang string) Option {
	return func(t *Transport) {
		if lang != "" {
			t.language = lang
		}
	}
}

// WithSleeper replaces the backoff sleep, mostly for tests.
func WithSleeper(s Sleeper) Option {
	return func(t *Transport) {
		t.sleep = s
	}
}

// WithBreakers sets the per-host circuit breakers.
func WithBreakers(b *infra.BreakerSet) Option {
	return func(t *Transport) {
		t.breakers = b
	}
}

// WithRateLimit paces outbound requests to rps per host. Zero disables pacing.
func WithRateLimit(rps float64) Option {
	return func(t *Transport) {
		t.rateLimit = rps
	}
}

// WithBlockPrivateNetworks refuses connections to private and loopback addresses.
// Only applies to the default HTTP client.
func WithBlockPrivateNetworks(block bool) Option {
	return func(t *Transport) {
		t.blockPrivate = block
	}
}

// New creates a Transport with default settings
func New(opts ...Option) *Transport {
	t := &Transport{
		logger:     slog.Default(),
		timeout:    DefaultTimeout,
		maxRetries: DefaultMaxRetries,
		userAgent:  DefaultUserAgent,
		language:   DefaultLanguage,
		sleep:      sleepContext,
		breakers:   infra.NewBreakerSet(infra.DefaultBreakerConfig()),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.doer == nil {
		t.doer = newHTTPClient(t.blockPrivate)
	}
	return t
}

// Language returns the configured interface language.
func (t *Transport) Language() string {
	return t.language
}

// BreakerStats exposes per-host circuit breaker state.
func (t *Transport) BreakerStats() map[string]infra.CircuitBreakerStats {
	return t.breakers.Stats()
}

// Request describes one HTTP call. Body is kept as bytes so retries can replay it.
type Request struct {
	Method      string
	URL         string
	Query       url.Values
	Header      http.Header
	Body        []byte
	ContentType string
	Bearer      string // sent as "Authorization: Bearer ..." when set
}

// Response is a completed 2xx response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	URL    string
}

// Do executes req. Network failures are retried with backoff; a non-2xx
// status is returned as *errors.HTTPError without retrying.
func (t *Transport) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := t.buildURL(req)
	if err != nil {
		return nil, err
	}
	host := target.Host
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	ctx, span := tracing.StartSpan(ctx, "wiki.http "+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.request.method", method),
		attribute.String("server.address", host),
		attribute.String("url.path", target.Path),
	)

	breaker := t.breakers.For(host)
	if !breaker.Allow() {
		stats := breaker.Stats()
		err := infra.ErrCircuitOpen{Host: host, RetryAt: stats.RetryAt, Failures: stats.ConsecutiveFails}
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordTransport(method, "circuit_open", 0)
		return nil, err
	}

	b := newBackoff()
	var lastErr *apierrors.NetworkError
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			delay := b.NextBackOff()
			metrics.TransportRetries.WithLabelValues(string(lastErr.Kind)).Inc()
			t.logger.Warn("Wiki request failed, retrying",
				"attempt", attempt,
				"max_retries", t.maxRetries,
				"delay", delay,
				"url", target.String(),
				"error", lastErr.Err)
			if err := t.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("context canceled during backoff: %w", err)
			}
		}

		if err := t.wait(ctx, host); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := t.attempt(ctx, method, target, req)
		duration := time.Since(start).Seconds()

		if err == nil {
			breaker.RecordSuccess()
			span.SetAttributes(attribute.Int("http.response.status_code", resp.Status))
			if resp.Status < 200 || resp.Status > 299 {
				metrics.RecordTransport(method, "http_error", duration)
				httpErr := &apierrors.HTTPError{Status: resp.Status, URL: target.String(), Body: string(resp.Body)}
				span.SetStatus(codes.Error, httpErr.Error())
				return nil, httpErr
			}
			metrics.RecordTransport(method, "success", duration)
			span.SetStatus(codes.Ok, "")
			return resp, nil
		}

		if ctx.Err() != nil {
			// Caller gave up; do not count it against the host.
			return nil, fmt.Errorf("request to %s canceled: %w", target.String(), ctx.Err())
		}

		var netErr *apierrors.NetworkError
		if !errors.As(err, &netErr) {
			return nil, err
		}
		metrics.RecordTransport(method, string(netErr.Kind), duration)
		lastErr = netErr
	}

	breaker.RecordFailure()
	lastErr.Attempts = t.maxRetries + 1
	tracing.RecordError(span, lastErr)
	return nil, lastErr
}

// JSON executes req and decodes a JSON body into out. A body that is not
// valid JSON yields *errors.DecodeError, never an empty success.
func (t *Transport) JSON(ctx context.Context, req Request, out any) error {
	if req.Header == nil {
		req.Header = http.Header{}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	resp, err := t.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &apierrors.DecodeError{URL: resp.URL, RawBody: string(resp.Body), Err: err}
	}
	return nil
}

// attempt performs one HTTP round trip bounded by the per-attempt timeout.
func (t *Transport) attempt(ctx context.Context, method string, target *url.URL, req Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("User-Agent", t.userAgent)
	httpReq.Header.Set("Accept-Language", t.language)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.Bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Bearer)
	}

	resp, err := t.doer.Do(httpReq)
	if err != nil {
		return nil, classify(target.String(), err)
	}
	data, err := readAndClose(resp)
	if err != nil {
		return nil, classify(target.String(), err)
	}
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
		URL:    target.String(),
	}, nil
}

func (t *Transport) buildURL(req Request) (*url.URL, error) {
	raw := req.URL
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, apierrors.NewValidationError("url", req.URL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, apierrors.NewValidationError("url", req.URL, "only http and https URLs are supported")
	}
	q := u.Query()
	for k, vs := range req.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("uselang", t.language)
	u.RawQuery = q.Encode()
	return u, nil
}

// wait blocks on the host's rate limiter when pacing is enabled.
func (t *Transport) wait(ctx context.Context, host string) error {
	if t.rateLimit <= 0 {
		return nil
	}
	t.limitersMu.Lock()
	lim, ok := t.limiters[host]
	if !ok {
		burst := int(t.rateLimit)
		if burst < 1 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(t.rateLimit), burst)
		t.limiters[host] = lim
	}
	t.limitersMu.Unlock()

	if lim.Tokens() < 1 {
		metrics.RateLimitWaits.Inc()
	}
	if err := lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter for %s: %w", host, err)
	}
	return nil
}

// classify maps a client error onto the network error categories.
func classify(target string, err error) error {
	kind := apierrors.NetworkOther
	var dnsErr *net.DNSError
	var ne net.Error
	switch {
	case errors.As(err, &dnsErr):
		kind = apierrors.NetworkDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = apierrors.NetworkConnectionRefused
	case errors.Is(err, context.DeadlineExceeded):
		kind = apierrors.NetworkTimeout
	case errors.As(err, &ne) && ne.Timeout():
		kind = apierrors.NetworkTimeout
	}
	return &apierrors.NetworkError{Kind: kind, URL: target, Err: err}
}

// newBackoff returns the retry schedule 1s, 2s, 4s, 5s, 5s, ...
func newBackoff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     InitialBackoff,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         MaxBackoff,
	}
	b.Reset()
	return b
}

// BackoffSchedule returns the first n retry delays.
func BackoffSchedule(n int) []time.Duration {
	b := newBackoff()
	out := make([]time.Duration, n)
	for i := range out {
		out[i] = b.NextBackOff()
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readAndClose reads the response body and closes it
func readAndClose(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return body, err
}

// newHTTPClient creates an HTTP client with a cookie jar for login sessions.
func newHTTPClient(blockPrivate bool) *http.Client {
	jar, _ := cookiejar.New(nil)
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       120 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	if blockPrivate {
		tr.DialContext = safeDialer.DialContext
	}
	return &http.Client{
		Jar:       jar,
		Transport: tr,
	}
}

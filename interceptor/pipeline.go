package interceptor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/internal/tlsutil"
	"github.com/BaSui01/toolbridge/types"
)

// DefaultUserAgent is sent when the caller sets none.
const DefaultUserAgent = "toolbridge"

// BackendRedis selects the shared Redis window counter for rate limiting.
const BackendRedis = "redis"

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	transport  http.RoundTripper
	env        EnvLookup
	discovered string
	limiter    Limiter
	counter    WindowCounter
	limitName  string
	clock      Clock
	sleep      Sleeper
	timeout    time.Duration
	userAgent  string
	onRetry    func(attempt int, status int, delay time.Duration)
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithTransport injects the network capability used by the send step.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithEnvLookup replaces os.LookupEnv for credential and base URL lookups.
func WithEnvLookup(env EnvLookup) Option {
	return func(o *options) { o.env = env }
}

// WithDiscoveredBaseURL sets the last-resort base URL, usually the first
// server of the OpenAPI document.
func WithDiscoveredBaseURL(url string) Option {
	return func(o *options) { o.discovered = url }
}

// WithLimiter overrides the limiter built from the profile.
func WithLimiter(l Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithWindowCounter supplies the shared counter required by the redis backend.
// name scopes the counters, typically the profile name.
func WithWindowCounter(counter WindowCounter, name string) Option {
	return func(o *options) {
		o.counter = counter
		o.limitName = name
	}
}

// WithClock sets the clock used by rate limiting.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithSleeper sets how the wait policy blocks.
func WithSleeper(s Sleeper) Option {
	return func(o *options) { o.sleep = s }
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithUserAgent sets the default User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithOnRetry observes every retry before its backoff sleep.
func WithOnRetry(fn func(attempt int, status int, delay time.Duration)) Option {
	return func(o *options) { o.onRetry = fn }
}

// Pipeline executes outbound calls through the fixed policy chain:
// base URL, auth, array serialization, rate limit, retry, send.
// It is safe for concurrent use; the rate limiter is shared by all callers.
type Pipeline struct {
	handler   Handler
	client    *retryablehttp.Client
	limiter   Limiter
	policy    *RetryPolicy
	userAgent string
	logger    *zap.Logger
}

// New builds a pipeline from a profile's interceptor configuration.
func New(cfg types.InterceptorConfig, opts ...Option) (*Pipeline, error) {
	o := &options{userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	logger := o.logger.With(zap.String("component", "interceptor"))
	if o.transport == nil {
		o.transport = tlsutil.SecureTransport()
	}
	if o.env == nil {
		o.env = defaultEnvLookup
	}

	limiter := o.limiter
	if limiter == nil && cfg.RateLimit != nil && cfg.RateLimit.MaxRequestsPerMinute > 0 {
		if cfg.RateLimit.Backend == BackendRedis {
			if o.counter == nil {
				return nil, fmt.Errorf("rate limit backend %q requires a window counter", BackendRedis)
			}
			limiter = NewSharedWindowLimiter(o.counter, o.limitName, cfg.RateLimit.MaxRequestsPerMinute, DefaultRateWindow, o.clock)
		} else {
			var err error
			if limiter, err = NewLimiter(cfg.RateLimit, o.clock); err != nil {
				return nil, err
			}
		}
	}
	action := types.RateLimitActionReject
	if cfg.RateLimit != nil && cfg.RateLimit.OnLimit != "" {
		action = cfg.RateLimit.OnLimit
	}

	policy := NewRetryPolicy(cfg.Retry)
	policy.OnRetry = o.onRetry

	p := &Pipeline{
		client:    newRetryClient(policy, o.transport, o.timeout, logger),
		limiter:   limiter,
		policy:    policy,
		userAgent: o.userAgent,
		logger:    logger,
	}

	chain := NewChain(
		BaseURLMiddleware(cfg.BaseURL, o.discovered, o.env),
		AuthMiddleware(cfg.Auth, o.env, logger),
		ArrayFormatMiddleware(cfg.ArrayFormat),
		RateLimitMiddleware(limiter, action, o.sleep, logger),
	)
	p.handler = chain.Then(p.send)

	logger.Debug("pipeline ready",
		zap.Int("max_attempts", policy.MaxAttempts),
		zap.Bool("rate_limited", limiter != nil),
		zap.String("on_limit", string(action)),
	)
	return p, nil
}

// Request performs one logical call. Any HTTP status is returned as a normal
// response; transport failures surface as NETWORK_ERROR after retries are
// exhausted, and cancellation as the context error.
func (p *Pipeline) Request(ctx context.Context, method, path string, opts RequestOptions) (*Response, error) {
	req, err := newRequest(method, path, opts)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "invalid request").WithCause(err)
	}
	if req.Header.Get("User-Agent") == "" && p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}
	return p.handler(ctx, req)
}

// Policy returns the effective retry policy.
func (p *Pipeline) Policy() *RetryPolicy {
	return p.policy
}

// Limiter returns the shared rate limiter, or nil if none is configured.
func (p *Pipeline) Limiter() Limiter {
	return p.limiter
}

func (p *Pipeline) send(ctx context.Context, req *Request) (*Response, error) {
	var body any
	if req.Body != nil {
		body = req.Body
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, req.Method, req.fullURL(), body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "failed to build request").WithCause(err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		p.logger.Warn("backend request failed", callFields(ctx,
			zap.String("method", req.Method),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)...)
		return nil, types.NewNetworkError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, types.NewNetworkError(fmt.Errorf("read response body: %w", err))
	}

	p.logger.Debug("backend request completed", callFields(ctx,
		zap.String("method", req.Method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)...)
	return &Response{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

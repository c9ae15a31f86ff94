package interceptor

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/types"
)

// RetryPolicy 定义重试策略配置
type RetryPolicy struct {
	MaxAttempts   int             // 总尝试次数（含首次），最小为 1
	Backoff       []time.Duration // 第 i 次重试前的等待，超出列表长度时取最后一个值
	RetryOnStatus []int           // 触发重试的 HTTP 状态码；传输层错误总是重试
	// OnRetry 在每次重试等待前回调，attempt 为即将开始的尝试序号（从 2 开始）
	OnRetry func(attempt int, status int, delay time.Duration)
}

// NewRetryPolicy converts the profile retry block. A nil config means a
// single attempt.
func NewRetryPolicy(cfg *types.RetryConfig) *RetryPolicy {
	p := &RetryPolicy{MaxAttempts: 1}
	if cfg == nil {
		return p
	}
	if cfg.MaxAttempts > 1 {
		p.MaxAttempts = cfg.MaxAttempts
	}
	for _, ms := range cfg.BackoffMs {
		p.Backoff = append(p.Backoff, time.Duration(ms)*time.Millisecond)
	}
	p.RetryOnStatus = append([]int(nil), cfg.RetryOnStatus...)
	return p
}

// Delay returns the wait before retry number attempt (0-based).
func (p *RetryPolicy) Delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt >= len(p.Backoff) {
		attempt = len(p.Backoff) - 1
	}
	if attempt < 0 {
		attempt = 0
	}
	return p.Backoff[attempt]
}

func (p *RetryPolicy) shouldRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	// 上下文取消时不再重试
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	return resp != nil && slices.Contains(p.RetryOnStatus, resp.StatusCode), nil
}

// newRetryClient builds the retrying sender. After the last attempt the final
// response or transport error is passed through unchanged.
func newRetryClient(policy *RetryPolicy, transport http.RoundTripper, timeout time.Duration, logger *zap.Logger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = &http.Client{
		Transport: &attemptTransport{base: transport},
		Timeout:   timeout,
	}
	client.RetryMax = policy.MaxAttempts - 1
	client.CheckRetry = policy.shouldRetry
	client.Backoff = func(_, _ time.Duration, attemptNum int, resp *http.Response) time.Duration {
		delay := policy.Delay(attemptNum)
		if policy.OnRetry != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			policy.OnRetry(attemptNum+2, status, delay)
		}
		return delay
	}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	client.Logger = &zapLeveledLogger{logger: logger.Sugar()}
	return client
}

// attemptTransport 在每次发送前应用上下文中登记的钩子（如凭据刷新）
type attemptTransport struct {
	base http.RoundTripper
}

func (t *attemptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	hooks := attemptHooksFrom(req.Context())
	if len(hooks) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for _, hook := range hooks {
		hook(clone)
	}
	return t.base.RoundTrip(clone)
}

// zapLeveledLogger adapts zap to retryablehttp.LeveledLogger. Query strings
// are stripped from logged URLs since they may carry credentials.
type zapLeveledLogger struct {
	logger *zap.SugaredLogger
}

// Error 单次尝试失败由调用方最终处理，这里按告警级别记录
func (l *zapLeveledLogger) Error(msg string, keysAndValues ...any) {
	l.logger.Warnw(msg, redactKV(keysAndValues)...)
}

func (l *zapLeveledLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Infow(msg, redactKV(keysAndValues)...)
}

func (l *zapLeveledLogger) Debug(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, redactKV(keysAndValues)...)
}

func (l *zapLeveledLogger) Warn(msg string, keysAndValues ...any) {
	l.logger.Warnw(msg, redactKV(keysAndValues)...)
}

func redactKV(kv []any) []any {
	out := make([]any, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		if key, ok := out[i].(string); ok && key == "url" {
			s := fmt.Sprint(out[i+1])
			if before, _, found := strings.Cut(s, "?"); found {
				out[i+1] = before + "?[redacted]"
			}
		}
	}
	return out
}

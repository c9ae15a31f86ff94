package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/internal/ctxkeys"
)

// EnvLookup resolves an environment variable by name.
type EnvLookup func(key string) (string, bool)

// RequestOptions carries the per-call inputs of Pipeline.Request.
type RequestOptions struct {
	Headers map[string]string
	// Query 中的数组值由序列化层按 array_format 展开
	Query map[string]any
	// Body 为 []byte 时原样发送，其余非 nil 值按 JSON 编码
	Body any
}

// Request is the mutable request flowing through the chain.
type Request struct {
	Method   string
	URL      string
	Header   http.Header
	Query    map[string]any
	RawQuery string
	Body     []byte
}

// Response is the raw backend answer. Any status, including 4xx/5xx, is a
// normal result.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// IsError reports whether the backend answered with a 4xx/5xx status.
func (r *Response) IsError() bool {
	return r.Status >= http.StatusBadRequest
}

func newRequest(method, path string, opts RequestOptions) (*Request, error) {
	req := &Request{
		Method: strings.ToUpper(method),
		URL:    path,
		Header: make(http.Header),
		Query:  make(map[string]any, len(opts.Query)),
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Query {
		req.Query[k] = v
	}

	switch b := opts.Body.(type) {
	case nil:
	case []byte:
		req.Body = b
	case json.RawMessage:
		req.Body = b
		setDefaultContentType(req.Header)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		req.Body = data
		setDefaultContentType(req.Header)
	}
	return req, nil
}

func setDefaultContentType(h http.Header) {
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}
}

// fullURL 拼接序列化后的查询串
func (r *Request) fullURL() string {
	if r.RawQuery == "" {
		return r.URL
	}
	if strings.Contains(r.URL, "?") {
		return r.URL + "&" + r.RawQuery
	}
	return r.URL + "?" + r.RawQuery
}

func defaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// attemptHook 在每次实际发送前作用于克隆出的 *http.Request
type attemptHook func(*http.Request)

type attemptHooksKey struct{}

func withAttemptHook(ctx context.Context, hook attemptHook) context.Context {
	existing, _ := ctx.Value(attemptHooksKey{}).([]attemptHook)
	hooks := make([]attemptHook, 0, len(existing)+1)
	hooks = append(hooks, existing...)
	hooks = append(hooks, hook)
	return context.WithValue(ctx, attemptHooksKey{}, hooks)
}

func attemptHooksFrom(ctx context.Context) []attemptHook {
	hooks, _ := ctx.Value(attemptHooksKey{}).([]attemptHook)
	return hooks
}

// callFields 返回 context 中携带的调用标识，附加到出站日志
func callFields(ctx context.Context, fields ...zap.Field) []zap.Field {
	if tool, ok := ctxkeys.Tool(ctx); ok {
		fields = append(fields, zap.String("tool", tool))
	}
	if id, ok := ctxkeys.InvocationID(ctx); ok {
		fields = append(fields, zap.String("invocation_id", id))
	}
	return fields
}

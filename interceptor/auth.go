package interceptor

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/types"
)

// AuthMiddleware attaches the backend credential. The value is read from the
// environment on every call and again before every retry attempt, so rotated
// secrets take effect without a reload.
func AuthMiddleware(cfg *types.AuthConfig, env EnvLookup, logger *zap.Logger) Middleware {
	if env == nil {
		env = defaultEnvLookup
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		if cfg == nil || cfg.Type == "" {
			return next
		}
		return func(ctx context.Context, req *Request) (*Response, error) {
			value, ok := env(cfg.EnvVar)
			if !ok || value == "" {
				// 缺少凭据时继续发送，由后端决定是否拒绝
				logger.Warn("credential environment variable is empty, sending unauthenticated", callFields(ctx,
					zap.String("env_var", cfg.EnvVar),
					zap.String("auth_type", string(cfg.Type)),
				)...)
				return next(ctx, req)
			}

			switch cfg.Type {
			case types.AuthBearer:
				req.Header.Set("Authorization", "Bearer "+value)
			case types.AuthCustomHeader:
				req.Header.Set(cfg.HeaderName, value)
			case types.AuthQuery:
				req.Query[cfg.ParamName] = value
			}

			ctx = withAttemptHook(ctx, func(r *http.Request) {
				fresh, ok := env(cfg.EnvVar)
				if !ok || fresh == "" || fresh == value {
					return
				}
				applyCredential(r, cfg, fresh)
			})
			return next(ctx, req)
		}
	}
}

func applyCredential(r *http.Request, cfg *types.AuthConfig, value string) {
	switch cfg.Type {
	case types.AuthBearer:
		r.Header.Set("Authorization", "Bearer "+value)
	case types.AuthCustomHeader:
		r.Header.Set(cfg.HeaderName, value)
	case types.AuthQuery:
		r.URL.RawQuery = replaceQueryParam(r.URL.RawQuery, cfg.ParamName, value)
	}
}

// replaceQueryParam 只替换目标参数，保留其余参数的原始编码
func replaceQueryParam(raw, name, value string) string {
	key := url.QueryEscape(name)
	pair := key + "=" + url.QueryEscape(value)
	if raw == "" {
		return pair
	}
	parts := strings.Split(raw, "&")
	out := make([]string, 0, len(parts)+1)
	replaced := false
	for _, p := range parts {
		k, _, _ := strings.Cut(p, "=")
		if k == key {
			if !replaced {
				out = append(out, pair)
				replaced = true
			}
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, pair)
	}
	return strings.Join(out, "&")
}

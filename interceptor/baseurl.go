package interceptor

import (
	"context"
	"strings"

	"github.com/BaSui01/toolbridge/types"
)

// BaseURLMiddleware prefixes relative paths with the backend base URL.
// Sources in order: the configured environment variable, the configured
// default, then the server URL discovered in the OpenAPI document.
func BaseURLMiddleware(cfg *types.BaseURLConfig, discovered string, env EnvLookup) Middleware {
	if env == nil {
		env = defaultEnvLookup
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if isAbsoluteURL(req.URL) {
				return next(ctx, req)
			}
			base := resolveBaseURL(cfg, discovered, env)
			if base == "" {
				return nil, types.Errorf(types.ErrInvalidRequest, "no base URL configured for %s", req.URL)
			}
			req.URL = joinURL(base, req.URL)
			return next(ctx, req)
		}
	}
}

func resolveBaseURL(cfg *types.BaseURLConfig, discovered string, env EnvLookup) string {
	if cfg != nil {
		if cfg.EnvVar != "" {
			if v, ok := env(cfg.EnvVar); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		if cfg.Default != "" {
			return cfg.Default
		}
	}
	return discovered
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func joinURL(base, path string) string {
	if path == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

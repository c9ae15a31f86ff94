package main

import (
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/config"
	"github.com/BaSui01/toolbridge/gateway"
	"github.com/BaSui01/toolbridge/interceptor"
	"github.com/BaSui01/toolbridge/internal/cache"
	"github.com/BaSui01/toolbridge/internal/metrics"
	"github.com/BaSui01/toolbridge/internal/tlsutil"
	"github.com/BaSui01/toolbridge/profile"
	"github.com/BaSui01/toolbridge/tools/openapi"
	"github.com/BaSui01/toolbridge/types"
)

// =============================================================================
// 🧩 运行时装配
// =============================================================================

// app 持有跨重载共享的依赖：出站连接池、指标收集器与 Redis 计数器
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	transport http.RoundTripper
	collector *metrics.Collector

	mu      sync.Mutex
	counter *cache.Manager
}

func newApp(cfg *config.Config, logger *zap.Logger) *app {
	a := &app{
		cfg:    cfg,
		logger: logger,
		transport: tlsutil.NewTransport(tlsutil.TransportOptions{
			InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
		}),
	}
	if cfg.HTTP.InsecureSkipVerify {
		logger.Warn("TLS verification disabled for backend calls")
	}
	if cfg.Metrics.Enabled {
		a.collector = metrics.NewCollector(cfg.Metrics.Namespace, nil, logger)
	}
	return a
}

// build 读取档案与 OpenAPI 文档并构建新的运行时
func (a *app) build() (*gateway.Runtime, error) {
	p, err := profile.LoadFile(a.cfg.Profile.Path)
	if err != nil {
		return nil, err
	}
	index, err := openapi.LoadFile(a.cfg.OpenAPI.Path, a.logger)
	if err != nil {
		return nil, err
	}

	opts := []gateway.Option{
		gateway.WithLogger(a.logger),
		gateway.WithTransport(a.transport),
		gateway.WithMaxConcurrency(a.cfg.HTTP.MaxConcurrency),
		gateway.WithPipelineOptions(
			interceptor.WithTimeout(a.cfg.HTTP.Timeout),
			interceptor.WithUserAgent(a.cfg.HTTP.UserAgent),
		),
	}
	if a.collector != nil {
		opts = append(opts,
			gateway.WithHooks(a.collector),
			gateway.WithPipelineOptions(interceptor.WithOnRetry(a.collector.RecordRetry)),
		)
	}
	if rl := p.Interceptors.RateLimit; rl != nil && rl.Backend == interceptor.BackendRedis {
		counter, err := a.windowCounter()
		if err != nil {
			return nil, types.NewError(types.ErrProfileLogic, "rate_limit.backend=redis is unavailable").WithCause(err)
		}
		opts = append(opts, gateway.WithWindowCounter(counter))
	}

	rt, err := gateway.New(p, index, opts...)
	if err != nil {
		return nil, fmt.Errorf("build runtime for profile %q: %w", p.Name, err)
	}
	return rt, nil
}

// windowCounter 首次需要时连接 Redis，之后在重载间复用
func (a *app) windowCounter() (*cache.Manager, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counter != nil {
		return a.counter, nil
	}
	rc := a.cfg.Redis
	m, err := cache.NewManager(cache.Config{
		Addr:       rc.Addr,
		Password:   rc.Password,
		DB:         rc.DB,
		KeyPrefix:  rc.KeyPrefix,
		MaxRetries: cache.DefaultConfig().MaxRetries,
		PoolSize:   rc.PoolSize,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	a.counter = m
	return m, nil
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.counter != nil {
		if err := a.counter.Close(); err != nil {
			a.logger.Warn("failed to close redis client", zap.Error(err))
		}
		a.counter = nil
	}
}

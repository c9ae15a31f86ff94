package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 运维端点
// =============================================================================

// Config 端点配置
type Config struct {
	// 监听地址，":0" 表示随机端口
	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回默认端点配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":9090",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// Status 是 /healthz 报告的当前工具集状态
type Status struct {
	Profile  string    `json:"profile"`
	Tools    int       `json:"tools"`
	LoadedAt time.Time `json:"loaded_at"`
	// 本进程限流窗口剩余配额；未配置或使用共享窗口时为 nil
	RateLimitRemaining *int `json:"rate_limit_remaining,omitempty"`
}

// StatusFunc 返回当前状态；ok=false 表示尚无可用的工具集
type StatusFunc func() (Status, bool)

// Endpoint 承载 /metrics 与 /healthz 等运维路由，与 stdio 上的 MCP 会话互不干扰
type Endpoint struct {
	mux      *http.ServeMux
	server   *http.Server
	config   Config
	logger   *zap.Logger
	status   StatusFunc
	errCh    chan error
	mu       sync.RWMutex
	listener net.Listener
	closed   bool
}

// NewEndpoint 创建端点并注册 /healthz
func NewEndpoint(config Config, status StatusFunc, logger *zap.Logger) *Endpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Endpoint{
		mux:    http.NewServeMux(),
		config: config,
		logger: logger.With(zap.String("component", "ops_endpoint")),
		status: status,
		errCh:  make(chan error, 1),
	}
	e.mux.HandleFunc("/healthz", e.handleHealth)
	e.server = &http.Server{
		Handler:      e.mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return e
}

// Handle 注册额外路由，须在 Start 之前调用
func (e *Endpoint) Handle(pattern string, h http.Handler) {
	e.mux.Handle(pattern, h)
}

// Start 监听并在后台提供服务
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case e.closed:
		return errors.New("endpoint is closed")
	case e.listener != nil:
		return errors.New("endpoint already started")
	}

	ln, err := net.Listen("tcp", e.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", e.config.Addr, err)
	}
	e.listener = ln
	e.logger.Info("ops endpoint listening", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("ops endpoint failed", zap.Error(err))
			select {
			case e.errCh <- err:
			default:
			}
		}
	}()
	return nil
}

// Shutdown 在 ShutdownTimeout 内排空连接，可重复调用
func (e *Endpoint) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	if e.listener == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown ops endpoint: %w", err)
	}
	e.listener = nil
	e.logger.Info("ops endpoint stopped")
	return nil
}

// Errors 返回后台 Serve 的异步错误
func (e *Endpoint) Errors() <-chan error {
	return e.errCh
}

// Addr 返回实际监听地址；未启动时返回配置地址
func (e *Endpoint) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.config.Addr
}

// IsRunning 是否正在监听
func (e *Endpoint) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.listener != nil && !e.closed
}

func (e *Endpoint) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var (
		st Status
		ok bool
	)
	if e.status != nil {
		st, ok = e.status()
	}
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{"status": "unavailable"})
		return
	}
	body := map[string]any{
		"status":    "ok",
		"profile":   st.Profile,
		"tools":     st.Tools,
		"loaded_at": st.LoadedAt,
	}
	if st.RateLimitRemaining != nil {
		body["rate_limit_remaining"] = *st.RateLimitRemaining
	}
	json.NewEncoder(w).Encode(body)
}

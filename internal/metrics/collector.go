// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/toolbridge/gateway"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，实现 gateway.Hooks
type Collector struct {
	// 后端调用指标
	callsTotal   *prometheus.CounterVec
	callDuration *prometheus.HistogramVec

	// 重试指标
	retriesTotal *prometheus.CounterVec

	registry *prometheus.Registry
	logger   *zap.Logger
}

// NewCollector 创建指标收集器。registry 为 nil 时使用独立的新 Registry
func NewCollector(namespace string, registry *prometheus.Registry, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)

	c := &Collector{
		registry: registry,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.callsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of backend calls made on behalf of tools",
		},
		[]string{"tool", "operation", "status_class", "error_type"},
	)

	c.callDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Backend call duration in seconds, retries included",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool", "operation"},
	)

	c.retriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Total number of backend call retries",
		},
		[]string{"status"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 调用指标记录
// =============================================================================

// OnCall 记录一次后端调用
func (c *Collector) OnCall(event gateway.CallEvent) {
	errorType := event.ErrorType
	if errorType == "" {
		errorType = "none"
	}
	c.callsTotal.WithLabelValues(event.Tool, event.Operation, event.StatusClass, errorType).Inc()
	c.callDuration.WithLabelValues(event.Tool, event.Operation).Observe(event.Duration.Seconds())
}

// RecordRetry 记录一次重试，签名匹配 interceptor.WithOnRetry
func (c *Collector) RecordRetry(_ int, status int, _ time.Duration) {
	label := "network"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.retriesTotal.WithLabelValues(label).Inc()
}

// =============================================================================
// 🌐 暴露
// =============================================================================

// Registry 返回指标注册表
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

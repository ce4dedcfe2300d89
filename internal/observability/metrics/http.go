package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dialog"

// Collector 汇总服务暴露的全部 Prometheus 指标。
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	turns       *prometheus.CounterVec
	turnLatency *prometheus.HistogramVec

	intentResults *prometheus.CounterVec

	toolCalls   *prometheus.CounterVec
	toolLatency *prometheus.HistogramVec
}

// New 创建一个使用独立 Registry 的 Collector。
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"handler", "method"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Conversation turns handled, partitioned by outcome.",
		}, []string{"outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "End-to-end conversation turn latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		intentResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intent_results_total",
			Help:      "Per-intent dispatch results, partitioned by status.",
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool invocations, partitioned by tool and result.",
		}, []string{"tool", "result"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
	}
	c.registry.MustRegister(
		c.httpRequests,
		c.httpErrors,
		c.httpLatency,
		c.turns,
		c.turnLatency,
		c.intentResults,
		c.toolCalls,
		c.toolLatency,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

var (
	defaultOnce      sync.Once
	defaultCollector *Collector
)

// Default 返回进程级共享的 Collector。
func Default() *Collector {
	defaultOnce.Do(func() {
		defaultCollector = New()
	})
	return defaultCollector
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	Default().ObserveHTTPRequest(handler, method, status, duration)
}

// ObserveHTTPRequest 记录一次 HTTP 请求。
func (c *Collector) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= 500 {
		c.httpErrors.WithLabelValues(handler, method).Inc()
	}
	c.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveTurn 记录一轮对话的结局与耗时。
func (c *Collector) ObserveTurn(outcome string, duration time.Duration) {
	c.turns.WithLabelValues(outcome).Inc()
	c.turnLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveIntentResult 记录单个意图的处理状态。
func (c *Collector) ObserveIntentResult(status string) {
	c.intentResults.WithLabelValues(status).Inc()
}

// ObserveToolCall 记录一次工具调用。
func (c *Collector) ObserveToolCall(tool string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.toolCalls.WithLabelValues(tool, result).Inc()
	c.toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// Handler exposes the default collector in Prometheus text exposition format.
func Handler() http.Handler {
	return Default().Handler()
}

// Handler 返回当前 Collector 的 /metrics 处理器。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}

package tooling

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	xerrors "OpenMCP-Dialog/internal/errors"
)

// Observer 接收每次工具调用的耗时与结果，用于指标采集。
type Observer func(tool string, elapsed time.Duration, err error)

// Gate 将后端调用串行化，并为每次调用施加超时。
// 它与会话级锁相互独立：同一时刻只有一个调用占用底层传输连接。
type Gate struct {
	backend  Backend
	sem      chan struct{}
	timeout  time.Duration
	observer Observer
}

// GateOption 定义可选配置。
type GateOption func(*Gate)

// WithCallTimeout 设置单次调用超时时间，<=0 表示不限制。
func WithCallTimeout(timeout time.Duration) GateOption {
	return func(g *Gate) {
		g.timeout = timeout
	}
}

// WithObserver 注册调用观察者。
func WithObserver(observer Observer) GateOption {
	return func(g *Gate) {
		g.observer = observer
	}
}

// NewGate 包装后端。
func NewGate(backend Backend, opts ...GateOption) *Gate {
	g := &Gate{backend: backend, sem: make(chan struct{}, 1)}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// acquire 等待占用权后才开始计时，排队时间不计入单次调用的超时。
func (g *Gate) acquire(ctx context.Context) (context.Context, func(), error) {
	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	callCtx := ctx
	cancel := func() {}
	if g.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
	}
	return callCtx, func() {
		cancel()
		<-g.sem
	}, nil
}

// ListTools 实现 Backend 接口。
func (g *Gate) ListTools(ctx context.Context) ([]Tool, error) {
	callCtx, release, err := g.acquire(ctx)
	if err != nil {
		return nil, classify(ctx, err, "tools/list")
	}
	defer release()
	tools, err := g.backend.ListTools(callCtx)
	if err != nil {
		return nil, classify(callCtx, err, "tools/list")
	}
	return tools, nil
}

// Invoke 实现 Backend 接口。超时与传输失败都以错误返回，由调用方转换为单个意图的错误结果。
func (g *Gate) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	start := time.Now()
	callCtx, release, err := g.acquire(ctx)
	if err != nil {
		err = classify(ctx, err, name)
		g.observe(name, start, err)
		return nil, err
	}
	defer release()
	result, err := g.backend.Invoke(callCtx, name, args)
	if err != nil {
		err = classify(callCtx, err, name)
	}
	g.observe(name, start, err)
	return result, err
}

// Close 关闭底层后端。
func (g *Gate) Close() error {
	if g.backend == nil {
		return nil
	}
	return g.backend.Close()
}

func (g *Gate) observe(name string, start time.Time, err error) {
	if g.observer != nil {
		g.observer(name, time.Since(start), err)
	}
}

func classify(ctx context.Context, err error, target string) error {
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutError(err, target)
	}
	if _, ok := xerrors.From(err); ok {
		return err
	}
	return xerrors.Wrap(xerrors.CodeToolFailure, err, fmt.Sprintf("调用 %s 失败", target), xerrors.WithMetadata("tool", target))
}

func timeoutError(err error, target string) error {
	return xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("调用 %s 超时", target), xerrors.WithMetadata("tool", target))
}

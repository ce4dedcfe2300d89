package tooling

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "OpenMCP-Dialog/internal/errors"
)

type stubBackend struct {
	tools    []Tool
	listErr  error
	wait     time.Duration
	inflight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	fail     map[string]error
}

func (s *stubBackend) ListTools(context.Context) ([]Tool, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.tools, nil
}

func (s *stubBackend) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	s.calls.Add(1)
	n := s.inflight.Add(1)
	defer s.inflight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := s.fail[name]; err != nil {
		return nil, err
	}
	return map[string]any{"tool": name, "args": args}, nil
}

func (s *stubBackend) Close() error { return nil }

func TestGateSerializesCalls(t *testing.T) {
	backend := &stubBackend{wait: 5 * time.Millisecond}
	gate := NewGate(backend)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gate.Invoke(context.Background(), "leave_balance", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), backend.calls.Load())
	assert.Equal(t, int32(1), backend.maxSeen.Load())
}

// heldBackend 让 "hold" 调用一直占用连接直到 release 被关闭。
type heldBackend struct {
	stubBackend
	entered chan struct{}
	release chan struct{}
}

func (h *heldBackend) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	if name == "hold" {
		close(h.entered)
		<-h.release
		return "held", nil
	}
	return h.stubBackend.Invoke(ctx, name, args)
}

func TestGateTimeoutExcludesQueueing(t *testing.T) {
	backend := &heldBackend{entered: make(chan struct{}), release: make(chan struct{})}
	gate := NewGate(backend, WithCallTimeout(50*time.Millisecond))

	held := make(chan error, 1)
	go func() {
		_, err := gate.Invoke(context.Background(), "hold", nil)
		held <- err
	}()
	<-backend.entered

	queued := make(chan error, 1)
	go func() {
		_, err := gate.Invoke(context.Background(), "leave_balance", nil)
		queued <- err
	}()

	time.Sleep(150 * time.Millisecond)
	close(backend.release)

	require.NoError(t, <-held)
	require.NoError(t, <-queued)
	assert.Equal(t, int32(1), backend.calls.Load())
}

func TestGateTimeoutBecomesToolError(t *testing.T) {
	backend := &stubBackend{wait: 200 * time.Millisecond}
	var observed error
	gate := NewGate(backend,
		WithCallTimeout(10*time.Millisecond),
		WithObserver(func(_ string, _ time.Duration, err error) { observed = err }),
	)

	_, err := gate.Invoke(context.Background(), "payroll_lookup", nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeTimeout, xerrors.CodeOf(err))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, err, observed)
}

func TestGateWrapsBackendFailure(t *testing.T) {
	backend := &stubBackend{fail: map[string]error{"leave_request": errors.New("invalid date")}}
	gate := NewGate(backend)

	_, err := gate.Invoke(context.Background(), "leave_request", nil)
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeToolFailure, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "invalid date")
}

func TestRegistryLookupIsCaseSensitive(t *testing.T) {
	backend := &stubBackend{tools: []Tool{NewTool("leave_request", "", nil)}}
	registry := NewRegistry(backend)

	_, ok, err := registry.Lookup(context.Background(), "Leave_Request")
	require.NoError(t, err)
	assert.False(t, ok)

	tool, ok, err := registry.Lookup(context.Background(), "leave_request")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "leave_request", tool.Name)

	matched, ok := MatchNormalized(backend.tools, "  Leave_Request ")
	assert.True(t, ok)
	assert.Equal(t, "leave_request", matched.Name)
}

func TestRegistryWrapsListFailure(t *testing.T) {
	registry := NewRegistry(&stubBackend{listErr: errors.New("broken pipe")})
	_, err := registry.ListTools(context.Background())
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeToolUnavailable, xerrors.CodeOf(err))
}

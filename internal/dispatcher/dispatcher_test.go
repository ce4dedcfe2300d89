package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenMCP-Dialog/internal/clarifier"
	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/session"
	"OpenMCP-Dialog/internal/tooling"
)

type fakeTools struct {
	tools   []tooling.Tool
	listErr error
	fail    map[string]error
	panics  map[string]string
	calls   []call
}

type call struct {
	name string
	args map[string]any
}

func (f *fakeTools) ListTools(context.Context) ([]tooling.Tool, error) {
	return f.tools, f.listErr
}

func (f *fakeTools) Invoke(_ context.Context, name string, args map[string]any) (any, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	if msg, ok := f.panics[name]; ok {
		panic(msg)
	}
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	return map[string]any{"ok": name}, nil
}

type failingRecorder struct{}

func (failingRecorder) AppendClarification(context.Context, string, string, []string) error {
	return errors.New("store offline")
}

func (failingRecorder) AppendToolCall(context.Context, string, string, map[string]any, any) error {
	return errors.New("store offline")
}

func newFixture() (*fakeTools, *session.MemoryStore, *Dispatcher) {
	tools := &fakeTools{tools: []tooling.Tool{
		tooling.NewTool("abc_tool", "", []byte(`{"required":["a","b"]}`)),
		tooling.NewTool("leave_balance", "", []byte(`{"required":["employee_id"]}`)),
		tooling.NewTool("payroll_lookup", "", []byte(`{"required":["employee_id"],"properties":{"period":{}}}`)),
	}}
	store := session.NewMemoryStore()
	return tools, store, New(tools, clarifier.New(tools), store)
}

func TestRequiredOnlyArgsAndClarification(t *testing.T) {
	tools, store, d := newFixture()
	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: "abc_tool", Confidence: 0.9, Args: map[string]any{"a": "x", "c": "y"}},
	})
	require.NoError(t, err)

	assert.Equal(t, dialog.Result{Status: dialog.StatusClarificationNeeded, Intent: "abc_tool", Missing: []string{"b"}}, results["abc_tool"])
	assert.Empty(t, tools.calls)

	sess, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, sess.Clarifications, 1)
	assert.Equal(t, []string{"b"}, sess.Clarifications[0].Missing)
}

func TestOptionalArgsDroppedBeforeExecution(t *testing.T) {
	tools, store, d := newFixture()
	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: " Payroll_Lookup ", Args: map[string]any{"employee_id": "E-1", "period": "2025-07"}},
	})
	require.NoError(t, err)

	assert.Equal(t, dialog.StatusSuccess, results["payroll_lookup"].Status)
	require.Len(t, tools.calls, 1)
	assert.Equal(t, "payroll_lookup", tools.calls[0].name)
	assert.Equal(t, map[string]any{"employee_id": "E-1"}, tools.calls[0].args)

	sess, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, sess.ToolCalls, 1)
}

func TestUnknownIntentsShareFallbackKey(t *testing.T) {
	_, _, d := newFixture()
	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: "hr_policy"},
		{Name: "employee_profile"},
	})
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, dialog.StatusNotFound, results[dialog.FallbackKey].Status)
	assert.Equal(t, "employee_profile", results[dialog.FallbackKey].Intent)
}

func TestToolFailureDoesNotAbortBatch(t *testing.T) {
	tools, _, d := newFixture()
	tools.fail = map[string]error{"leave_balance": errors.New("backend exploded")}

	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: "leave_balance", Args: map[string]any{"employee_id": "E-1"}},
		{Name: "payroll_lookup", Args: map[string]any{"employee_id": "E-1"}},
	})
	require.NoError(t, err)

	assert.Equal(t, dialog.StatusError, results["leave_balance"].Status)
	assert.Equal(t, "backend exploded", results["leave_balance"].Error)
	assert.Equal(t, dialog.StatusSuccess, results["payroll_lookup"].Status)
	assert.Len(t, tools.calls, 2)
}

func TestToolPanicBecomesErrorResult(t *testing.T) {
	tools, store, d := newFixture()
	tools.panics = map[string]string{"leave_balance": "nil map write"}

	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: "leave_balance", Args: map[string]any{"employee_id": "E-001"}},
		{Name: "payroll_lookup", Args: map[string]any{"employee_id": "E-001"}},
	})
	require.NoError(t, err)

	assert.Equal(t, dialog.StatusError, results["leave_balance"].Status)
	assert.Contains(t, results["leave_balance"].Error, "nil map write")
	assert.Contains(t, results["leave_balance"].Error, string(xerrors.CodeToolFailure))
	assert.Equal(t, dialog.StatusSuccess, results["payroll_lookup"].Status)
	require.Len(t, tools.calls, 2)

	sess, err := store.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, sess.ToolCalls, 1)
	assert.Equal(t, "payroll_lookup", sess.ToolCalls[0].Tool)
}

func TestDuplicateIntentNamesCollide(t *testing.T) {
	_, _, d := newFixture()
	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: "leave_balance", Args: map[string]any{"employee_id": "E-1"}},
		{Name: "LEAVE_BALANCE"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, dialog.StatusClarificationNeeded, results["leave_balance"].Status)
}

func TestRegistryOutageBecomesPerIntentErrors(t *testing.T) {
	tools, _, d := newFixture()
	tools.listErr = errors.New("connection reset")

	results, err := d.Execute(context.Background(), "s-1", []dialog.Intent{{Name: "leave_balance"}, {Name: "payroll_lookup"}})
	require.NoError(t, err)
	assert.Equal(t, dialog.StatusError, results["leave_balance"].Status)
	assert.Equal(t, dialog.StatusError, results["payroll_lookup"].Status)
}

func TestRecorderFailureEscalates(t *testing.T) {
	tools, _, _ := newFixture()
	d := New(tools, clarifier.New(tools), failingRecorder{})

	_, err := d.Execute(context.Background(), "s-1", []dialog.Intent{{Name: "leave_balance", Args: map[string]any{"employee_id": "E-1"}}})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeSessionFailure, xerrors.CodeOf(err))
}

func TestResultObserverSeesEveryResult(t *testing.T) {
	tools, store, _ := newFixture()
	var seen []dialog.Status
	d := New(tools, clarifier.New(tools), store, WithResultObserver(func(_ string, status dialog.Status) {
		seen = append(seen, status)
	}))

	_, err := d.Execute(context.Background(), "s-1", []dialog.Intent{
		{Name: "leave_balance", Args: map[string]any{"employee_id": "E-1"}},
		{Name: "abc_tool"},
		{Name: "unknown"},
	})
	require.NoError(t, err)
	assert.Equal(t, []dialog.Status{dialog.StatusSuccess, dialog.StatusClarificationNeeded, dialog.StatusNotFound}, seen)
}

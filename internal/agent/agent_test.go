package agent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"OpenMCP-Dialog/internal/clarifier"
	"OpenMCP-Dialog/internal/dialog"
	"OpenMCP-Dialog/internal/dispatcher"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/hrtools"
	"OpenMCP-Dialog/internal/llm"
	"OpenMCP-Dialog/internal/llm/template"
	"OpenMCP-Dialog/internal/session"
	"OpenMCP-Dialog/internal/storage"
	"OpenMCP-Dialog/internal/tooling"
)

var ignoreTimestamp = cmpopts.IgnoreFields(session.State{}, "Timestamp")

// scriptedDetector 按调用顺序返回预设的检测结果，脚本耗尽后返回空意图。
type scriptedDetector struct {
	mu      sync.Mutex
	script  []dialog.Detection
	err     error
	history []string
}

func (d *scriptedDetector) Detect(_ context.Context, _ string, history string) (dialog.Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = append(d.history, history)
	if d.err != nil {
		return dialog.Detection{}, d.err
	}
	if len(d.script) == 0 {
		return dialog.Detection{}, nil
	}
	next := d.script[0]
	d.script = d.script[1:]
	return next, nil
}

type recordingRenderer struct {
	mu       sync.Mutex
	requests []llm.RenderRequest
	err      error
	panicMsg string
}

func (r *recordingRenderer) Render(_ context.Context, req llm.RenderRequest) (string, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.panicMsg != "" {
		panic(r.panicMsg)
	}
	if r.err != nil {
		return "", r.err
	}
	return "rendered", nil
}

func (r *recordingRenderer) last() llm.RenderRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

// failingToolCalls 让工具调用记录写入失败，模拟会话存储故障。
type failingToolCalls struct {
	*session.MemoryStore
}

func (failingToolCalls) AppendToolCall(context.Context, string, string, map[string]any, any) error {
	return errors.New("store offline")
}

type fixture struct {
	store    *session.MemoryStore
	detector *scriptedDetector
	renderer *recordingRenderer
	agent    *Agent
}

func newFixture(t *testing.T, store session.Store, opts ...Option) *fixture {
	t.Helper()
	mem, ok := store.(*session.MemoryStore)
	if !ok {
		mem = store.(failingToolCalls).MemoryStore
	}
	registry := tooling.NewRegistry(hrtools.NewCatalog())
	resolver := clarifier.New(registry)
	detector := &scriptedDetector{}
	renderer := &recordingRenderer{}
	exec := dispatcher.New(registry, resolver, store)
	return &fixture{
		store:    mem,
		detector: detector,
		renderer: renderer,
		agent:    New(store, detector, resolver, exec, renderer, opts...),
	}
}

func detection(intents ...dialog.Intent) dialog.Detection {
	return dialog.Detection{Intents: intents}
}

func leaveRequest(args map[string]any) dialog.Intent {
	return dialog.Intent{Name: "leave_request", Confidence: 0.95, Args: args}
}

func TestLeaveRequestClarifiedThenResumed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{
		detection(leaveRequest(map[string]any{"employee_id": "E-001", "start": nil, "end": nil})),
		detection(leaveRequest(map[string]any{"start": "2025-05-10", "end": "2025-05-12"})),
	}

	first, err := f.agent.HandleTurn(ctx, "s-1", "saya mau cuti")
	require.NoError(t, err)
	assert.NotEmpty(t, first.TraceID)
	assert.Equal(t, []dialog.Clarification{{Intent: "leave_request", Missing: []string{"start", "end"}}}, first.Clarifications)
	assert.Empty(t, first.Results)
	assert.Equal(t, session.StatusAwaitingArgs, first.State.Status)
	assert.Equal(t, "leave_request", first.State.ActiveIntent)
	assert.Equal(t, []string{"start", "end"}, first.State.PendingArgs)
	assert.Equal(t, map[string]any{"employee_id": "E-001"}, first.State.ProvidedArgs)
	assert.Equal(t, "rendered", first.AssistantResponse)

	second, err := f.agent.HandleTurn(ctx, "s-1", "tanggal 10 sampai 12 Mei")
	require.NoError(t, err)
	assert.Empty(t, second.Clarifications)
	require.Contains(t, second.Results, "leave_request")
	assert.Equal(t, dialog.StatusSuccess, second.Results["leave_request"].Status)
	assert.Equal(t, map[string]any{"employee_id": "E-001", "start": "2025-05-10", "end": "2025-05-12"}, second.Intents[0].Args)

	require.Len(t, second.History.ToolCalls, 1)
	call := second.History.ToolCalls[0]
	assert.Equal(t, "leave_request", call.Tool)
	assert.Equal(t, map[string]any{"employee_id": "E-001", "start": "2025-05-10", "end": "2025-05-12"}, call.Args)
	assert.Equal(t, session.StatusExecuting, call.State.Status)

	rendered := f.renderer.last()
	assert.Equal(t, session.StatusCompleted, rendered.State.Status)

	want := session.NewState()
	want.LastCompleted = true
	if diff := cmp.Diff(want, second.State, ignoreTimestamp); diff != "" {
		t.Fatalf("state not reset after completion (-want +got):\n%s", diff)
	}

	_, err = f.agent.HandleTurn(ctx, "s-1", "terima kasih")
	require.NoError(t, err)
	assert.True(t, f.renderer.last().PreviousCompleted)

	state, err := f.store.State(ctx, "s-1")
	require.NoError(t, err)
	assert.False(t, state.LastCompleted)
}

func TestChitChatWhileAwaitingKeepsPendingArgs(t *testing.T) {
	ctx := context.Background()
	cases := map[string]dialog.Detection{
		"no intents":      detection(),
		"low confidence":  detection(dialog.Intent{Name: "leave_request", Confidence: 0.4, Args: map[string]any{"start": "2025-05-10"}}),
		"only empty args": detection(dialog.Intent{Name: "payroll_lookup", Confidence: 0.9, Args: map[string]any{"employee_id": "", "period": nil}}),
	}
	for name, followUp := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, session.NewMemoryStore())
			f.detector.script = []dialog.Detection{
				detection(leaveRequest(map[string]any{"employee_id": "E-001"})),
				followUp,
			}

			_, err := f.agent.HandleTurn(ctx, "s-1", "cuti")
			require.NoError(t, err)
			res, err := f.agent.HandleTurn(ctx, "s-1", "halo")
			require.NoError(t, err)

			assert.Equal(t, dialog.Results{dialog.FallbackKey: {Status: dialog.StatusNoIntent}}, res.Results)
			assert.Empty(t, res.Clarifications)
			assert.Equal(t, session.StatusAwaitingArgs, res.State.Status)
			assert.Equal(t, "leave_request", res.State.ActiveIntent)
			assert.Equal(t, []string{"start", "end"}, res.State.PendingArgs)
			assert.Equal(t, map[string]any{"employee_id": "E-001"}, res.State.ProvidedArgs)
			assert.Equal(t, session.IntentTypeChitChat, res.State.LastIntentType)
			assert.Empty(t, res.History.ToolCalls)
		})
	}
}

func TestAwaitingWithUnusableFirstIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{
		detection(leaveRequest(map[string]any{"employee_id": "E-001"})),
		detection(
			dialog.Intent{Name: "leave_status", Confidence: 0.9, Args: map[string]any{"employee_id": nil}},
			dialog.Intent{Name: "payroll_lookup", Confidence: 0.9, Args: map[string]any{"employee_id": "E-001"}},
		),
	}

	_, err := f.agent.HandleTurn(ctx, "s-1", "cuti")
	require.NoError(t, err)
	res, err := f.agent.HandleTurn(ctx, "s-1", "dan gaji saya?")
	require.NoError(t, err)

	assert.Equal(t, dialog.Results{dialog.FallbackKey: {Status: dialog.StatusNoIntent}}, res.Results)
	assert.Equal(t, session.StatusAwaitingArgs, res.State.Status)
	assert.Equal(t, []string{"start", "end"}, res.State.PendingArgs)
	assert.Empty(t, res.History.ToolCalls)
}

func TestIdleChitChatClearsActiveIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore())

	res, err := f.agent.HandleTurn(ctx, "s-1", "halo")
	require.NoError(t, err)

	assert.Equal(t, dialog.Results{dialog.FallbackKey: {Status: dialog.StatusNoIntent}}, res.Results)
	assert.Equal(t, session.StatusIdle, res.State.Status)
	assert.Empty(t, res.State.ActiveIntent)
	assert.Equal(t, session.IntentTypeChitChat, res.State.LastIntentType)
	require.Len(t, res.History.Messages, 2)
	assert.Equal(t, session.RoleUser, res.History.Messages[0].Role)
	assert.Equal(t, session.RoleAssistant, res.History.Messages[1].Role)
}

func TestDetectorFailureTreatedAsNoIntent(t *testing.T) {
	f := newFixture(t, session.NewMemoryStore())
	f.detector.err = xerrors.New(xerrors.CodeDetectionFailure, "model offline")

	res, err := f.agent.HandleTurn(context.Background(), "s-1", "cek gaji")
	require.NoError(t, err)
	assert.Empty(t, res.Intents)
	assert.Equal(t, dialog.StatusNoIntent, res.Results[dialog.FallbackKey].Status)
}

func TestToolFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{detection(
		leaveRequest(map[string]any{"employee_id": "E-001", "start": "bukan tanggal", "end": "2025-05-12"}),
		dialog.Intent{Name: "payroll_lookup", Confidence: 0.9, Args: map[string]any{"employee_id": "E-001", "period": "2025-08"}},
		dialog.Intent{Name: "book_flight", Confidence: 0.8, Args: map[string]any{"to": "Bali"}},
	)}

	res, err := f.agent.HandleTurn(context.Background(), "s-1", "cuti dan cek gaji")
	require.NoError(t, err)

	assert.Equal(t, dialog.StatusError, res.Results["leave_request"].Status)
	assert.NotEmpty(t, res.Results["leave_request"].Error)
	assert.Equal(t, dialog.StatusSuccess, res.Results["payroll_lookup"].Status)
	assert.Equal(t, dialog.StatusNotFound, res.Results[dialog.FallbackKey].Status)
	assert.Equal(t, session.StatusIdle, res.State.Status)
	assert.True(t, res.State.LastCompleted)
}

func TestClarifyPassCoversEveryIntent(t *testing.T) {
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{detection(
		dialog.Intent{Name: "leave_balance", Confidence: 0.9, Args: map[string]any{"employee_id": "E-001"}},
		dialog.Intent{Name: "payroll_lookup", Confidence: 0.9, Args: map[string]any{"employee_id": "E-001"}},
	)}

	res, err := f.agent.HandleTurn(context.Background(), "s-1", "sisa cuti dan gaji")
	require.NoError(t, err)

	assert.Equal(t, []dialog.Clarification{{Intent: "payroll_lookup", Missing: []string{"period"}}}, res.Clarifications)
	assert.Equal(t, session.StatusAwaitingArgs, res.State.Status)
	assert.Equal(t, "payroll_lookup", res.State.ActiveIntent)
	assert.Equal(t, map[string]any{"employee_id": "E-001"}, res.State.ProvidedArgs)
	assert.Empty(t, res.History.ToolCalls)
	require.Len(t, res.History.Clarifications, 1)
}

func TestClarifyKeepsArgsOfResumedTask(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{
		detection(leaveRequest(map[string]any{"employee_id": "E-001"})),
		detection(
			leaveRequest(map[string]any{"start": "2025-05-10", "end": "2025-05-12"}),
			dialog.Intent{Name: "payroll_lookup", Confidence: 0.9, Args: map[string]any{}},
		),
	}

	_, err := f.agent.HandleTurn(ctx, "s-1", "cuti")
	require.NoError(t, err)
	res, err := f.agent.HandleTurn(ctx, "s-1", "10 sampai 12 Mei, dan gaji saya")
	require.NoError(t, err)

	assert.Equal(t, []dialog.Clarification{{Intent: "payroll_lookup", Missing: []string{"employee_id"}}}, res.Clarifications)
	assert.Equal(t, session.StatusAwaitingArgs, res.State.Status)
	assert.Equal(t, "payroll_lookup", res.State.ActiveIntent)
	assert.Equal(t, []string{"employee_id"}, res.State.PendingArgs)
	assert.Equal(t, map[string]any{"employee_id": "E-001", "start": "2025-05-10", "end": "2025-05-12"}, res.State.ProvidedArgs)
	assert.Empty(t, res.History.ToolCalls)
}

func TestClarifyPrefersStillPendingActiveIntent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{
		detection(leaveRequest(map[string]any{"employee_id": "E-001"})),
		detection(
			leaveRequest(map[string]any{"start": "2025-05-10"}),
			dialog.Intent{Name: "payroll_lookup", Confidence: 0.9, Args: map[string]any{}},
		),
	}

	_, err := f.agent.HandleTurn(ctx, "s-1", "cuti")
	require.NoError(t, err)
	res, err := f.agent.HandleTurn(ctx, "s-1", "mulai 10 Mei, dan gaji saya")
	require.NoError(t, err)

	require.Len(t, res.Clarifications, 2)
	assert.Equal(t, "leave_request", res.State.ActiveIntent)
	assert.Equal(t, []string{"end"}, res.State.PendingArgs)
	assert.Equal(t, map[string]any{"employee_id": "E-001", "start": "2025-05-10"}, res.State.ProvidedArgs)
}

func TestClarifyMatchesIntentNamesLikeDispatcher(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore())
	f.detector.script = []dialog.Detection{
		detection(dialog.Intent{Name: " Leave_Request", Confidence: 0.95, Args: map[string]any{"employee_id": "E-001"}}),
		detection(leaveRequest(map[string]any{"start": "2025-05-10", "end": "2025-05-12"})),
	}

	first, err := f.agent.HandleTurn(ctx, "s-1", "Cuti")
	require.NoError(t, err)
	assert.Equal(t, []dialog.Clarification{{Intent: "leave_request", Missing: []string{"start", "end"}}}, first.Clarifications)
	assert.Empty(t, first.Results)
	assert.Equal(t, session.StatusAwaitingArgs, first.State.Status)
	assert.Equal(t, "leave_request", first.State.ActiveIntent)
	assert.False(t, first.State.LastCompleted)

	second, err := f.agent.HandleTurn(ctx, "s-1", "10 sampai 12 Mei")
	require.NoError(t, err)
	assert.Equal(t, dialog.StatusSuccess, second.Results["leave_request"].Status)
	assert.True(t, second.State.LastCompleted)
}

func TestRendererFailureFallsBackToTemplate(t *testing.T) {
	for name, configure := range map[string]func(*recordingRenderer){
		"error": func(r *recordingRenderer) { r.err = errors.New("rate limited") },
		"panic": func(r *recordingRenderer) { r.panicMsg = "boom" },
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, session.NewMemoryStore())
			configure(f.renderer)

			res, err := f.agent.HandleTurn(context.Background(), "s-1", "halo")
			require.NoError(t, err)
			assert.Equal(t, template.Greeting, res.AssistantResponse)
		})
	}
}

func TestStoreFailureEscalatesAndRollsBack(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStore()
	f := newFixture(t, failingToolCalls{MemoryStore: mem})
	f.detector.script = []dialog.Detection{
		detection(leaveRequest(map[string]any{"employee_id": "E-001"})),
		detection(leaveRequest(map[string]any{"start": "2025-05-10", "end": "2025-05-12"})),
	}

	_, err := f.agent.HandleTurn(ctx, "s-1", "cuti")
	require.NoError(t, err)

	_, err = f.agent.HandleTurn(ctx, "s-1", "10 sampai 12 Mei")
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeSessionFailure, xerrors.CodeOf(err))
	assert.False(t, xerrors.RetryableError(err))

	state, err := mem.State(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusAwaitingArgs, state.Status)
	assert.Equal(t, "leave_request", state.ActiveIntent)
	assert.Equal(t, []string{"start", "end"}, state.PendingArgs)
	assert.Equal(t, map[string]any{"employee_id": "E-001"}, state.ProvidedArgs)
}

func TestStoreFailureFromIdleResetsState(t *testing.T) {
	ctx := context.Background()
	mem := session.NewMemoryStore()
	f := newFixture(t, failingToolCalls{MemoryStore: mem})
	f.detector.script = []dialog.Detection{detection(
		dialog.Intent{Name: "leave_balance", Confidence: 0.9, Args: map[string]any{"employee_id": "E-001"}},
	)}

	_, err := f.agent.HandleTurn(ctx, "s-1", "sisa cuti")
	require.Error(t, err)

	state, err := mem.State(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusIdle, state.Status)
}

func TestHandleTurnValidatesInput(t *testing.T) {
	f := newFixture(t, session.NewMemoryStore())

	_, err := f.agent.HandleTurn(context.Background(), " ", "halo")
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = f.agent.HandleTurn(context.Background(), "s-1", "")
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = New(nil, nil, nil, nil, nil).HandleTurn(context.Background(), "s-1", "halo")
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestMemorySummaryUsesRecentMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, session.NewMemoryStore(), WithMemoryDepth(2))

	for _, msg := range []string{"halo", "apa kabar"} {
		_, err := f.agent.HandleTurn(ctx, "s-1", msg)
		require.NoError(t, err)
	}

	require.Len(t, f.detector.history, 2)
	assert.Empty(t, f.detector.history[0])
	assert.Equal(t, "user: halo\nassistant: rendered", f.detector.history[1])
}

// overlapDetector 记录同一会话内检测器的最大并发数。
type overlapDetector struct {
	active  atomic.Int32
	maximum atomic.Int32
}

func (p *overlapDetector) Detect(context.Context, string, string) (dialog.Detection, error) {
	current := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		seen := p.maximum.Load()
		if current <= seen || p.maximum.CompareAndSwap(seen, current) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return dialog.Detection{}, nil
}

func TestTurnsForOneSessionAreSerialized(t *testing.T) {
	store := session.NewMemoryStore()
	registry := tooling.NewRegistry(hrtools.NewCatalog())
	resolver := clarifier.New(registry)
	overlap := &overlapDetector{}
	ag := New(store, overlap, resolver, dispatcher.New(registry, resolver, store), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ag.HandleTurn(context.Background(), "shared", "halo")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), overlap.maximum.Load())
	sess, err := store.Get(context.Background(), "shared")
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 16)
}

func TestTurnsAreArchivedAndObserved(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.NewFileTranscriptRepository(t.TempDir())
	require.NoError(t, err)

	var outcomes []Outcome
	f := newFixture(t, session.NewMemoryStore(),
		WithTranscriptRepository(repo),
		WithTurnObserver(func(outcome Outcome, _ time.Duration) { outcomes = append(outcomes, outcome) }),
	)
	f.detector.script = []dialog.Detection{
		detection(leaveRequest(map[string]any{"employee_id": "E-001"})),
		detection(leaveRequest(map[string]any{"start": "2025-05-10", "end": "2025-05-12"})),
	}

	first, err := f.agent.HandleTurn(ctx, "s-1", "cuti")
	require.NoError(t, err)
	_, err = f.agent.HandleTurn(ctx, "s-1", "10 sampai 12 Mei")
	require.NoError(t, err)
	_, err = f.agent.HandleTurn(ctx, "s-1", "halo")
	require.NoError(t, err)

	assert.Equal(t, []Outcome{OutcomeClarification, OutcomeExecuted, OutcomeChitChat}, outcomes)

	records, err := f.agent.Transcripts(ctx, "s-1", 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, first.TraceID, records[2].TraceID)
	assert.Equal(t, string(session.StatusAwaitingArgs), records[2].ConversationStatus)
	assert.JSONEq(t, `[{"intent":"leave_request","missing":["start","end"]}]`, string(records[2].Clarifications))
	assert.Equal(t, string(session.StatusIdle), records[1].ConversationStatus)
}

func TestZeroRequiredToolExecutesFromIdle(t *testing.T) {
	backend := &staticBackend{tool: tooling.NewTool("company_holidays", "", []byte(`{"type":"object","properties":{}}`))}
	registry := tooling.NewRegistry(backend)
	resolver := clarifier.New(registry)
	store := session.NewMemoryStore()
	detector := &scriptedDetector{script: []dialog.Detection{detection(
		dialog.Intent{Name: "company_holidays", Confidence: 0.9, Args: map[string]any{"year": nil}},
	)}}
	ag := New(store, detector, resolver, dispatcher.New(registry, resolver, store), nil)

	res, err := ag.HandleTurn(context.Background(), "s-1", "libur kantor?")
	require.NoError(t, err)
	assert.Equal(t, dialog.StatusSuccess, res.Results["company_holidays"].Status)
	assert.Equal(t, 1, backend.calls)
}

func TestToolPanicDoesNotLeaveSessionExecuting(t *testing.T) {
	backend := &staticBackend{tool: tooling.NewTool("company_holidays", "", []byte(`{"type":"object","properties":{}}`)), panicMsg: "backend crashed"}
	registry := tooling.NewRegistry(tooling.NewGate(backend))
	resolver := clarifier.New(registry)
	store := session.NewMemoryStore()
	detector := &scriptedDetector{script: []dialog.Detection{detection(
		dialog.Intent{Name: "company_holidays", Confidence: 0.9},
	)}}
	ag := New(store, detector, resolver, dispatcher.New(registry, resolver, store), nil)

	res, err := ag.HandleTurn(context.Background(), "s-1", "libur kantor?")
	require.NoError(t, err)
	assert.Equal(t, dialog.StatusError, res.Results["company_holidays"].Status)
	assert.Contains(t, res.Results["company_holidays"].Error, "backend crashed")

	state, err := store.State(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, session.StatusIdle, state.Status)
	assert.True(t, state.LastCompleted)
}

type staticBackend struct {
	tool     tooling.Tool
	calls    int
	panicMsg string
}

func (b *staticBackend) ListTools(context.Context) ([]tooling.Tool, error) {
	return []tooling.Tool{b.tool}, nil
}

func (b *staticBackend) Invoke(context.Context, string, map[string]any) (any, error) {
	b.calls++
	if b.panicMsg != "" {
		panic(b.panicMsg)
	}
	return []any{"2025-12-25"}, nil
}

func (b *staticBackend) Close() error { return nil }

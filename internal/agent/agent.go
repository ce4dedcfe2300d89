package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"OpenMCP-Dialog/internal/dialog"
	"OpenMCP-Dialog/internal/dispatcher"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/llm"
	"OpenMCP-Dialog/internal/llm/template"
	"OpenMCP-Dialog/internal/session"
	"OpenMCP-Dialog/internal/storage"
	"OpenMCP-Dialog/internal/tooling"
	"OpenMCP-Dialog/pkg/logger"
)

// Outcome 概括一轮对话的走向，用于指标统计。
type Outcome string

const (
	OutcomeChitChat      Outcome = "chit_chat"
	OutcomeClarification Outcome = "clarification"
	OutcomeExecuted      Outcome = "executed"
	OutcomeFailed        Outcome = "failed"
)

// IntentExecutor 执行一轮中的全部意图，通常由 dispatcher.Dispatcher 实现。
type IntentExecutor interface {
	Execute(ctx context.Context, sessionID string, intents []dialog.Intent) (dialog.Results, error)
}

// ArgumentResolver 是 clarify 阶段使用的参数解析能力：先按规范化名称匹配工具，再计算缺失字段。
type ArgumentResolver interface {
	dispatcher.ArgumentResolver
	Lookup(ctx context.Context, intent string) (tooling.Tool, bool, error)
}

// TurnObserver 在每轮结束时被调用。
type TurnObserver func(outcome Outcome, elapsed time.Duration)

// TurnResult 是 HandleTurn 的返回值。
type TurnResult struct {
	TraceID           string                 `json:"trace_id"`
	SessionID         string                 `json:"session_id"`
	Intents           []dialog.Intent        `json:"intents"`
	Clarifications    []dialog.Clarification `json:"clarifications"`
	Results           dialog.Results         `json:"results"`
	AssistantResponse string                 `json:"assistant_response"`
	State             session.State          `json:"state"`
	History           *session.Session       `json:"history,omitempty"`
}

// Agent 是多轮对话的状态机驱动者：检测意图、更新会话状态、追问或执行，最后生成回复。
type Agent struct {
	store         session.Store
	locks         *session.Locker
	detector      llm.Detector
	resolver      ArgumentResolver
	executor      IntentExecutor
	renderer      llm.Renderer
	fallback      llm.Renderer
	archive       storage.TranscriptRepository
	observer      TurnObserver
	threshold     float64
	memoryDepth   int
	detectTimeout time.Duration
	renderTimeout time.Duration
}

// Option 定义可选的 Agent 配置。
type Option func(*Agent)

const (
	// defaultMemoryDepth 是提供给意图检测器的历史消息条数。
	defaultMemoryDepth = 5
	// defaultConfidenceThreshold 是等待补参时判定闲聊的置信度阈值。
	defaultConfidenceThreshold = 0.7
)

// WithConfidenceThreshold 设置闲聊判定的置信度阈值。
func WithConfidenceThreshold(threshold float64) Option {
	return func(a *Agent) {
		if threshold > 0 && threshold <= 1 {
			a.threshold = threshold
		}
	}
}

// WithMemoryDepth 设置提供给检测器的历史消息条数。
func WithMemoryDepth(depth int) Option {
	return func(a *Agent) {
		a.memoryDepth = depth
	}
}

// WithDetectTimeout 设置意图检测的超时时间。
func WithDetectTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.detectTimeout = timeout
	}
}

// WithRenderTimeout 设置回复生成的超时时间。
func WithRenderTimeout(timeout time.Duration) Option {
	return func(a *Agent) {
		if timeout < 0 {
			timeout = 0
		}
		a.renderTimeout = timeout
	}
}

// WithTranscriptRepository 配置对话归档。
func WithTranscriptRepository(repo storage.TranscriptRepository) Option {
	return func(a *Agent) {
		a.archive = repo
	}
}

// WithFallbackRenderer 替换渲染失败时使用的兜底渲染器。
func WithFallbackRenderer(renderer llm.Renderer) Option {
	return func(a *Agent) {
		if renderer != nil {
			a.fallback = renderer
		}
	}
}

// WithTurnObserver 注册轮次观察者。
func WithTurnObserver(observer TurnObserver) Option {
	return func(a *Agent) {
		a.observer = observer
	}
}

// New 创建一个 Agent。renderer 为空时直接使用模板渲染器。
func New(store session.Store, detector llm.Detector, resolver ArgumentResolver, executor IntentExecutor, renderer llm.Renderer, opts ...Option) *Agent {
	ag := &Agent{
		store:       store,
		locks:       session.NewLocker(),
		detector:    detector,
		resolver:    resolver,
		executor:    executor,
		renderer:    renderer,
		fallback:    template.New(),
		threshold:   defaultConfidenceThreshold,
		memoryDepth: defaultMemoryDepth,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ag)
		}
	}
	if ag.memoryDepth <= 0 {
		ag.memoryDepth = defaultMemoryDepth
	}
	return ag
}

// turn 保存单轮处理过程中的中间数据。
type turn struct {
	traceID           string
	sessionID         string
	message           string
	log               *slog.Logger
	prior             session.State
	state             session.State
	previousCompleted bool
	intents           []dialog.Intent
	clarifications    []dialog.Clarification
	results           dialog.Results
	shortCircuit      bool
	response          string
}

// HandleTurn 处理一条用户消息：detect → decide → clarify → execute → respond。
// 同一会话的轮次严格串行；只有会话存储失败或回复无法生成时才返回错误。
func (a *Agent) HandleTurn(ctx context.Context, sessionID, message string) (*TurnResult, error) {
	if a.store == nil || a.executor == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话存储或意图执行器")
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	}
	if strings.TrimSpace(message) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "用户消息不能为空")
	}

	started := time.Now()
	traceID := uuid.NewString()
	t := &turn{
		traceID:   traceID,
		sessionID: sessionID,
		message:   message,
		log:       logger.Trace(traceID).With("session_id", sessionID),
	}
	t.log.Info("收到用户消息")

	unlock := a.locks.Lock(sessionID)
	defer unlock()

	result, err := a.run(ctx, t)
	if err != nil {
		a.rollback(ctx, t)
		t.log.Error("对话轮次失败", "error", err)
		a.observe(OutcomeFailed, started)
		return nil, err
	}
	a.observe(outcomeOf(t), started)
	return result, nil
}

func (a *Agent) run(ctx context.Context, t *turn) (*TurnResult, error) {
	if err := a.detect(ctx, t); err != nil {
		return nil, err
	}
	if err := a.decide(ctx, t); err != nil {
		return nil, err
	}
	if err := a.clarify(ctx, t); err != nil {
		return nil, err
	}
	if err := a.execute(ctx, t); err != nil {
		return nil, err
	}
	if err := a.respond(ctx, t); err != nil {
		return nil, err
	}

	history, err := a.store.Get(ctx, t.sessionID)
	if err != nil {
		return nil, a.storeError(t, err, "读取会话历史失败")
	}
	a.archiveTurn(ctx, t)

	return &TurnResult{
		TraceID:           t.traceID,
		SessionID:         t.sessionID,
		Intents:           t.intents,
		Clarifications:    t.clarifications,
		Results:           t.results,
		AssistantResponse: t.response,
		State:             history.State,
		History:           history,
	}, nil
}

// detect 读取上下文、调用检测器并记录用户消息与意图。
func (a *Agent) detect(ctx context.Context, t *turn) error {
	completed, err := a.store.ConsumeCompleted(ctx, t.sessionID)
	if err != nil {
		return a.storeError(t, err, "读取上一任务完成标记失败")
	}
	t.previousCompleted = completed

	history, err := a.store.History(ctx, t.sessionID, a.memoryDepth)
	if err != nil {
		return a.storeError(t, err, "读取历史消息失败")
	}
	state, err := a.store.State(ctx, t.sessionID)
	if err != nil {
		return a.storeError(t, err, "读取会话状态失败")
	}
	t.prior = state.Clone()
	t.state = state

	t.intents = a.runDetector(ctx, t, summarizeHistory(history))

	if _, err := a.store.AppendMessage(ctx, t.sessionID, session.RoleUser, t.message); err != nil {
		return a.storeError(t, err, "记录用户消息失败")
	}
	if err := a.store.AppendIntentBatch(ctx, t.sessionID, t.intents); err != nil {
		return a.storeError(t, err, "记录意图失败")
	}
	t.log.Info("检测到意图", "count", len(t.intents), "intents", intentNames(t.intents), "status", t.state.Status)
	return nil
}

func (a *Agent) runDetector(ctx context.Context, t *turn, history string) []dialog.Intent {
	if a.detector == nil {
		t.log.Warn("未配置意图检测器，按闲聊处理")
		return nil
	}
	detectCtx := ctx
	if a.detectTimeout > 0 {
		var cancel context.CancelFunc
		detectCtx, cancel = context.WithTimeout(ctx, a.detectTimeout)
		defer cancel()
	}
	detection, err := a.detector.Detect(detectCtx, t.message, history)
	if err != nil {
		t.log.Warn("意图检测失败，按无意图处理", "error", err)
		return nil
	}
	return detection.Intents
}

// decide 根据当前状态与检测结果执行状态迁移。
func (a *Agent) decide(ctx context.Context, t *turn) error {
	if t.state.Awaiting() {
		if a.isChitChat(t.intents) {
			t.log.Info("等待补参期间收到闲聊，保留待补参数", "active_intent", t.state.ActiveIntent, "pending", t.state.PendingArgs)
			return a.chitChat(ctx, t, false)
		}

		first := t.intents[0]
		if !first.HasUsableArgs() {
			t.log.Info("首个意图未提供可用参数，保持等待", "intent", first.Name)
			t.results = noIntentResults()
			t.shortCircuit = true
			return nil
		}

		active := t.state.ActiveIntent
		state, err := a.store.SetState(ctx, t.sessionID,
			session.MergeProvidedArgs(first.UsableArgs()),
			session.WithActiveIntent(active),
			session.WithStatus(session.StatusExecuting),
			session.WithLastIntentType(session.IntentTypeTask),
		)
		if err != nil {
			return a.storeError(t, err, "合并补充参数失败")
		}
		t.state = state
		t.intents[0] = dialog.Intent{
			Name:       active,
			Confidence: first.Confidence,
			Args:       dialog.CloneArgs(state.ProvidedArgs),
		}
		t.log.Info("恢复待补全任务", "intent", active, "provided", keysOf(state.ProvidedArgs))
		return nil
	}

	if len(t.intents) == 0 {
		return a.chitChat(ctx, t, true)
	}

	state, err := a.store.SetState(ctx, t.sessionID, session.WithLastIntentType(session.IntentTypeTask))
	if err != nil {
		return a.storeError(t, err, "更新意图类型失败")
	}
	t.state = state
	return nil
}

// isChitChat 判断等待补参期间的输入是否应视为闲聊。
func (a *Agent) isChitChat(intents []dialog.Intent) bool {
	if len(intents) == 0 {
		return true
	}
	lowConfidence, noArgs := true, true
	for _, intent := range intents {
		if intent.Confidence >= a.threshold {
			lowConfidence = false
		}
		if intent.HasUsableArgs() {
			noArgs = false
		}
	}
	return lowConfidence || noArgs
}

func (a *Agent) chitChat(ctx context.Context, t *turn, clearActive bool) error {
	updates := []session.Update{session.WithLastIntentType(session.IntentTypeChitChat)}
	if clearActive {
		updates = append(updates, session.ClearActiveIntent())
	}
	state, err := a.store.SetState(ctx, t.sessionID, updates...)
	if err != nil {
		return a.storeError(t, err, "记录闲聊状态失败")
	}
	t.state = state
	t.results = noIntentResults()
	t.shortCircuit = true
	return nil
}

// clarify 对每个意图检查缺失参数。仍在追问中的当前意图保持为当前意图，
// 否则首个需要追问的意图成为当前意图；已累计的参数只合并不丢弃。
func (a *Agent) clarify(ctx context.Context, t *turn) error {
	if t.shortCircuit || a.resolver == nil {
		return nil
	}

	for _, intent := range t.intents {
		key := dialog.NormalizeName(intent.Name)
		tool, ok, err := a.resolver.Lookup(ctx, intent.Name)
		if err != nil {
			t.log.Warn("匹配工具失败，按无缺失处理", "intent", key, "error", err)
			continue
		}
		if !ok {
			continue
		}
		missing, err := a.resolver.MissingRequired(ctx, tool.Name, intent.Args)
		if err != nil {
			t.log.Warn("检查必填参数失败，按无缺失处理", "intent", key, "error", err)
			continue
		}
		if len(missing) == 0 {
			continue
		}
		if err := a.store.AppendClarification(ctx, t.sessionID, key, missing); err != nil {
			return a.storeError(t, err, "记录追问失败")
		}
		t.clarifications = append(t.clarifications, dialog.Clarification{Intent: key, Missing: missing})
	}
	if len(t.clarifications) == 0 {
		return nil
	}

	next := activeClarification(t.clarifications, t.state.ActiveIntent)
	state, err := a.store.SetState(ctx, t.sessionID,
		session.WithStatus(session.StatusAwaitingArgs),
		session.WithActiveIntent(next.Intent),
		session.WithPendingArgs(next.Missing),
		session.MergeProvidedArgs(usableArgsFor(t.intents, next.Intent)),
	)
	if err != nil {
		return a.storeError(t, err, "进入等待补参状态失败")
	}
	t.state = state
	t.log.Warn("需要补充参数", "clarifications", t.clarifications, "active_intent", next.Intent)
	return nil
}

// activeClarification 优先返回当前意图自身的追问，没有时返回第一条。
func activeClarification(clarifications []dialog.Clarification, active string) dialog.Clarification {
	key := dialog.NormalizeName(active)
	for _, c := range clarifications {
		if key != "" && c.Intent == key {
			return c
		}
	}
	return clarifications[0]
}

// execute 在无待追问且存在意图时调用调度器，批次结束即视为完成。
func (a *Agent) execute(ctx context.Context, t *turn) error {
	if t.shortCircuit || len(t.clarifications) > 0 || len(t.intents) == 0 {
		return nil
	}

	state, err := a.store.SetState(ctx, t.sessionID, session.WithStatus(session.StatusExecuting))
	if err != nil {
		return a.storeError(t, err, "进入执行状态失败")
	}
	t.state = state

	results, err := a.executor.Execute(ctx, t.sessionID, t.intents)
	if err != nil {
		return a.storeError(t, err, "执行意图失败")
	}
	t.results = results

	state, err = a.store.SetState(ctx, t.sessionID, session.WithStatus(session.StatusCompleted))
	if err != nil {
		return a.storeError(t, err, "进入完成状态失败")
	}
	t.state = state
	t.log.Info("意图执行完成", "results", summarizeResults(results))
	return nil
}

// respond 生成回复并记录；已完成的任务在此重置状态。
func (a *Agent) respond(ctx context.Context, t *turn) error {
	req := llm.RenderRequest{
		Results:           t.results,
		Clarifications:    t.clarifications,
		UserMessage:       t.message,
		State:             t.state.Clone(),
		PreviousCompleted: t.previousCompleted,
	}
	text, err := a.render(ctx, t, req)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeRenderFailure, err, "生成回复失败", xerrors.WithMetadata("trace_id", t.traceID))
	}
	t.response = text

	if _, err := a.store.AppendMessage(ctx, t.sessionID, session.RoleAssistant, text); err != nil {
		return a.storeError(t, err, "记录助手回复失败")
	}

	if t.state.Status == session.StatusCompleted {
		state, err := a.store.ResetState(ctx, t.sessionID)
		if err != nil {
			return a.storeError(t, err, "重置会话状态失败")
		}
		t.state = state
		if err := a.store.MarkCompleted(ctx, t.sessionID); err != nil {
			return a.storeError(t, err, "记录任务完成标记失败")
		}
	}
	t.log.Info("生成回复", "length", len(text), "status", t.state.Status)
	return nil
}

func (a *Agent) render(ctx context.Context, t *turn, req llm.RenderRequest) (string, error) {
	if a.renderer != nil {
		text, err := safeRender(ctx, a.renderer, req, a.renderTimeout)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		t.log.Warn("回复生成失败，使用模板回复", "error", err)
	}
	return safeRender(ctx, a.fallback, req, 0)
}

func safeRender(ctx context.Context, renderer llm.Renderer, req llm.RenderRequest, timeout time.Duration) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = xerrors.New(xerrors.CodeRenderFailure, fmt.Sprintf("渲染器异常: %v", r))
		}
	}()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return renderer.Render(ctx, req)
}

// rollback 在轮次失败后恢复进入本轮前的状态，确保不会停留在 executing。
func (a *Agent) rollback(ctx context.Context, t *turn) {
	if t.state.Status != session.StatusExecuting {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if t.prior.Status == session.StatusAwaitingArgs {
		_, err := a.store.SetState(ctx, t.sessionID,
			session.WithStatus(t.prior.Status),
			session.WithActiveIntent(t.prior.ActiveIntent),
			session.WithPendingArgs(t.prior.PendingArgs),
			session.ReplaceProvidedArgs(t.prior.ProvidedArgs),
		)
		if err == nil {
			t.log.Warn("已回滚到等待补参状态", "active_intent", t.prior.ActiveIntent)
			return
		}
		t.log.Error("回滚会话状态失败", "error", err)
	}
	if _, err := a.store.ResetState(ctx, t.sessionID); err != nil {
		t.log.Error("重置会话状态失败", "error", err)
		return
	}
	t.log.Warn("已重置会话状态")
}

func (a *Agent) archiveTurn(ctx context.Context, t *turn) {
	if a.archive == nil {
		return
	}
	record := storage.TranscriptRecord{
		TraceID:            t.traceID,
		SessionID:          t.sessionID,
		UserMessage:        t.message,
		AssistantResponse:  t.response,
		ConversationStatus: string(t.state.Status),
		Intents:            marshalRaw(t.intents),
		Clarifications:     marshalRaw(t.clarifications),
		Results:            marshalRaw(t.results),
		CreatedAt:          time.Now().Unix(),
	}
	if err := a.archive.Save(ctx, record); err != nil {
		t.log.Warn("归档对话失败", "error", err)
	}
}

// History 返回会话的完整历史。
func (a *Agent) History(ctx context.Context, sessionID string) (*session.Session, error) {
	if a.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置会话存储")
	}
	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeSessionFailure, err, "读取会话失败")
	}
	return sess, nil
}

// Transcripts 返回会话最近的归档记录。
func (a *Agent) Transcripts(ctx context.Context, sessionID string, limit int) ([]storage.TranscriptRecord, error) {
	if a.archive == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置对话归档")
	}
	return a.archive.ListBySession(ctx, sessionID, limit)
}

func (a *Agent) storeError(t *turn, err error, message string) error {
	if xerrors.CodeOf(err) == xerrors.CodeInvalidArgument {
		return err
	}
	return xerrors.Wrap(xerrors.CodeSessionFailure, err, message, xerrors.WithMetadata("trace_id", t.traceID))
}

func (a *Agent) observe(outcome Outcome, started time.Time) {
	if a.observer != nil {
		a.observer(outcome, time.Since(started))
	}
}

func outcomeOf(t *turn) Outcome {
	switch {
	case t.shortCircuit:
		return OutcomeChitChat
	case len(t.clarifications) > 0:
		return OutcomeClarification
	default:
		return OutcomeExecuted
	}
}

func noIntentResults() dialog.Results {
	return dialog.Results{dialog.FallbackKey: {Status: dialog.StatusNoIntent}}
}

func summarizeHistory(messages []session.Message) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(lines, "\n")
}

func usableArgsFor(intents []dialog.Intent, name string) map[string]any {
	for _, intent := range intents {
		if dialog.NormalizeName(intent.Name) == name {
			return intent.UsableArgs()
		}
	}
	return map[string]any{}
}

func intentNames(intents []dialog.Intent) []string {
	names := make([]string, 0, len(intents))
	for _, intent := range intents {
		names = append(names, intent.Name)
	}
	return names
}

func keysOf(args map[string]any) []string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	return keys
}

func summarizeResults(results dialog.Results) map[string]dialog.Status {
	out := make(map[string]dialog.Status, len(results))
	for key, result := range results {
		out[key] = result.Status
	}
	return out
}

func marshalRaw(v any) json.RawMessage {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return encoded
}

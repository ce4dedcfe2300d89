// Package dispatcher executes the intents detected for one turn against the
// tool registry, collecting a result per intent.
//
// Results are keyed by normalized intent name. Two intents with the same
// name in one turn overwrite each other, and every intent without a matching
// tool writes the shared "fallback" key, so only the last one survives.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/tooling"
	"OpenMCP-Dialog/pkg/logger"
)

// Tools 是调度器依赖的注册表能力。
type Tools interface {
	ListTools(ctx context.Context) ([]tooling.Tool, error)
	Invoke(ctx context.Context, name string, args map[string]any) (any, error)
}

// ArgumentResolver 计算缺失的必填参数。
type ArgumentResolver interface {
	MissingRequired(ctx context.Context, intent string, given map[string]any) ([]string, error)
}

// Recorder 是会话存储中调度器需要写入的部分。
type Recorder interface {
	AppendClarification(ctx context.Context, sessionID, intent string, missing []string) error
	AppendToolCall(ctx context.Context, sessionID, tool string, args map[string]any, result any) error
}

// ResultObserver 在每个结果写入时被调用。
type ResultObserver func(intent string, status dialog.Status)

// Dispatcher 负责多意图的匹配、参数规范化、追问与执行。
type Dispatcher struct {
	tools    Tools
	resolver ArgumentResolver
	recorder Recorder
	observer ResultObserver
	log      *slog.Logger
}

// Option 定义可选配置。
type Option func(*Dispatcher)

// WithResultObserver 注册结果观察者。
func WithResultObserver(observer ResultObserver) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// New 创建 Dispatcher。
func New(tools Tools, resolver ArgumentResolver, recorder Recorder, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		tools:    tools,
		resolver: resolver,
		recorder: recorder,
		log:      logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Execute 按给定顺序处理 intents，不重排也不去重。
// 单个意图的失败只体现在结果中；仅当会话记录写入失败时返回错误。
func (d *Dispatcher) Execute(ctx context.Context, sessionID string, intents []dialog.Intent) (dialog.Results, error) {
	results := make(dialog.Results, len(intents))
	log := d.log.With("session_id", sessionID)
	log.Info("开始执行多意图", "count", len(intents))

	tools, err := d.tools.ListTools(ctx)
	if err != nil {
		log.Error("获取工具列表失败", "error", err)
		for _, intent := range intents {
			d.put(results, dialog.NormalizeName(intent.Name), dialog.Result{
				Status: dialog.StatusError,
				Intent: dialog.NormalizeName(intent.Name),
				Error:  err.Error(),
			})
		}
		return results, nil
	}

	for _, intent := range intents {
		key := dialog.NormalizeName(intent.Name)
		tool, ok := tooling.MatchNormalized(tools, intent.Name)
		if !ok {
			log.Warn("没有匹配的工具", "intent", key)
			d.put(results, dialog.FallbackKey, dialog.Result{
				Status:  dialog.StatusNotFound,
				Intent:  key,
				Message: fmt.Sprintf("no tool available for intent '%s'", key),
			})
			continue
		}

		args := normalizeArgs(tool.Schema.RequiredFields(), intent.Args)
		missing, err := d.resolver.MissingRequired(ctx, tool.Name, args)
		if err != nil {
			log.Error("校验必填参数失败", "intent", key, "error", err)
			d.put(results, key, dialog.Result{Status: dialog.StatusError, Intent: key, Error: err.Error()})
			continue
		}
		if len(missing) > 0 {
			log.Warn("意图缺少必填参数", "intent", key, "missing", missing)
			d.put(results, key, dialog.Result{Status: dialog.StatusClarificationNeeded, Intent: key, Missing: missing})
			if err := d.recorder.AppendClarification(ctx, sessionID, key, missing); err != nil {
				return results, xerrors.Wrap(xerrors.CodeSessionFailure, err, "记录参数追问失败")
			}
			continue
		}

		out, err := d.invoke(ctx, tool.Name, args)
		if err != nil {
			log.Error("工具执行失败", "intent", key, "tool", tool.Name, "error", err)
			d.put(results, key, dialog.Result{Status: dialog.StatusError, Intent: key, Error: err.Error()})
			continue
		}
		log.Info("工具执行成功", "intent", key, "tool", tool.Name)
		d.put(results, key, dialog.Result{Status: dialog.StatusSuccess, Intent: key, Result: out})
		if err := d.recorder.AppendToolCall(ctx, sessionID, tool.Name, args, out); err != nil {
			return results, xerrors.Wrap(xerrors.CodeSessionFailure, err, "记录工具调用失败")
		}
	}
	return results, nil
}

// invoke 调用工具并把后端的 panic 转换为错误，保证单个意图不会中断整个批次。
func (d *Dispatcher) invoke(ctx context.Context, name string, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = xerrors.New(xerrors.CodeToolFailure, fmt.Sprintf("工具 %s 异常: %v", name, r))
		}
	}()
	return d.tools.Invoke(ctx, name, args)
}

func (d *Dispatcher) put(results dialog.Results, key string, result dialog.Result) {
	results[key] = result
	if d.observer != nil {
		d.observer(result.Intent, result.Status)
	}
}

// normalizeArgs 只保留必填字段，未提供的字段以 nil 占位。
func normalizeArgs(required []string, args map[string]any) map[string]any {
	out := make(map[string]any, len(required))
	for _, field := range required {
		out[field] = args[field]
	}
	return out
}

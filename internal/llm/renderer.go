package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"unicode"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/pkg/logger"
)

var greetings = map[string]struct{}{
	"halo": {}, "hai": {}, "assalamualaikum": {}, "pagi": {}, "siang": {}, "sore": {}, "malam": {},
	"hello": {}, "hi": {}, "hey": {}, "morning": {}, "afternoon": {}, "evening": {},
}

// IsGreeting 判断消息中是否包含问候语。
func IsGreeting(message string) bool {
	words := strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	for _, w := range words {
		if _, ok := greetings[w]; ok {
			return true
		}
	}
	return false
}

// OnlyFallback 判断结果集中是否只有 fallback 条目。
func OnlyFallback(results dialog.Results) bool {
	if len(results) != 1 {
		return false
	}
	_, ok := results[dialog.FallbackKey]
	return ok
}

const (
	chitChatPrompt = "You are a friendly HR assistant. If the user asks about something outside the HR tools " +
		"(leave, payroll, leave status), still answer politely and naturally in the user's language. " +
		"Avoid stiff answers and keep the conversation going."
	clarificationPrompt = "You are an HR assistant. The user's request is still missing information. " +
		"Politely and naturally ask for the missing fields, in the user's language."
	resultsPrompt = "You are an HR assistant. Based on the following tool results JSON, write a natural, short " +
		"and polite answer in the user's language.\n\n" +
		"- For leave_request, mention the request ID, the leave period and its status.\n" +
		"- For payroll_lookup, explain the net pay and the main items briefly.\n" +
		"- For leave_status, explain the remaining leave per leave type.\n\n" +
		"Do not add new facts, only paraphrase the data provided."
)

// ResponseRenderer 使用大模型生成回复，问候与无法理解的场景交给 canned 渲染器。
type ResponseRenderer struct {
	completer Completer
	canned    Renderer
	log       *slog.Logger
}

// NewResponseRenderer 创建 ResponseRenderer。canned 通常是模板渲染器。
func NewResponseRenderer(completer Completer, canned Renderer) *ResponseRenderer {
	return &ResponseRenderer{completer: completer, canned: canned, log: logger.Named("llm.renderer")}
}

// Render 实现 Renderer。
func (r *ResponseRenderer) Render(ctx context.Context, req RenderRequest) (string, error) {
	switch {
	case OnlyFallback(req.Results):
		if IsGreeting(req.UserMessage) || r.completer == nil {
			return r.canned.Render(ctx, req)
		}
		return r.complete(ctx, chitChatPrompt, req.UserMessage)
	case len(req.Clarifications) > 0:
		return r.completeJSON(ctx, clarificationPrompt, map[string]any{
			"clarifications":          req.Clarifications,
			"previous_task_completed": req.PreviousCompleted,
		})
	case len(req.Results) > 0:
		results := make(dialog.Results, len(req.Results))
		for k, v := range req.Results {
			if k != dialog.FallbackKey {
				results[k] = v
			}
		}
		return r.completeJSON(ctx, resultsPrompt, map[string]any{"results": results})
	default:
		return r.canned.Render(ctx, req)
	}
}

func (r *ResponseRenderer) completeJSON(ctx context.Context, system string, payload any) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeRenderFailure, err, "序列化回复上下文失败")
	}
	return r.complete(ctx, system, string(encoded))
}

func (r *ResponseRenderer) complete(ctx context.Context, system, user string) (string, error) {
	if r.completer == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	text, err := r.completer.Complete(ctx, system, user)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeRenderFailure, err, "调用大模型生成回复失败")
	}
	text = StripThink(text)
	if text == "" {
		return "", xerrors.New(xerrors.CodeRenderFailure, "大模型回复为空")
	}
	r.log.Debug("生成回复", "length", len(text))
	return text, nil
}

package llm

import (
	"context"

	"OpenMCP-Dialog/internal/dialog"
	"OpenMCP-Dialog/internal/session"
)

// Completer 是各大模型供应商适配器的统一接口：给定系统提示与用户输入返回文本。
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Detector 将用户消息映射为有序的意图列表。
type Detector interface {
	Detect(ctx context.Context, message, history string) (dialog.Detection, error)
}

// RenderRequest 是生成回复所需的全部结构化输入。
type RenderRequest struct {
	Results           dialog.Results
	Clarifications    []dialog.Clarification
	UserMessage       string
	State             session.State
	PreviousCompleted bool
}

// Renderer 将结构化结果转换为面向用户的文本。
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) (string, error)
}

// DetectorFunc 允许普通函数充当 Detector。
type DetectorFunc func(ctx context.Context, message, history string) (dialog.Detection, error)

// Detect 实现 Detector。
func (f DetectorFunc) Detect(ctx context.Context, message, history string) (dialog.Detection, error) {
	return f(ctx, message, history)
}

// RendererFunc 允许普通函数充当 Renderer。
type RendererFunc func(ctx context.Context, req RenderRequest) (string, error)

// Render 实现 Renderer。
func (f RendererFunc) Render(ctx context.Context, req RenderRequest) (string, error) {
	return f(ctx, req)
}

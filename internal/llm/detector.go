package llm

import (
	"context"
	"log/slog"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/tooling"
	"OpenMCP-Dialog/pkg/logger"
)

// ToolLister 提供构造提示词所需的工具清单。
type ToolLister interface {
	ListTools(ctx context.Context) ([]tooling.Tool, error)
}

// IntentDetector 基于大模型与实时工具清单识别意图。
type IntentDetector struct {
	completer Completer
	tools     ToolLister
	log       *slog.Logger
}

// NewIntentDetector 创建 IntentDetector。
func NewIntentDetector(completer Completer, tools ToolLister) *IntentDetector {
	return &IntentDetector{completer: completer, tools: tools, log: logger.Named("llm.detector")}
}

// Detect 实现 Detector。
func (d *IntentDetector) Detect(ctx context.Context, message, history string) (dialog.Detection, error) {
	if d.completer == nil {
		return dialog.Detection{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	tools, err := d.tools.ListTools(ctx)
	if err != nil {
		return dialog.Detection{}, xerrors.Wrap(xerrors.CodeDetectionFailure, err, "构造意图提示词失败")
	}
	system := BuildIntentPrompt(tools)
	d.log.Debug("意图识别提示词", "prompt", system)

	text, err := d.completer.Complete(ctx, system, ComposeDetectionInput(system, history, message))
	if err != nil {
		return dialog.Detection{}, xerrors.Wrap(xerrors.CodeDetectionFailure, err, "调用大模型识别意图失败")
	}
	detection, err := ParseDetection(text)
	if err != nil {
		return detection, err
	}
	d.log.Info("识别到意图", "count", len(detection.Intents))
	return detection, nil
}

package template

import (
	"context"
	"sort"
	"strings"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/llm"
)

// Detector 不依赖大模型，按消息中出现的工具名识别意图，并把 key=value 片段作为参数。
// 例如 "leave_request employee_id=E001 start=2025-08-01" 会得到一个带两个参数的 leave_request 意图。
type Detector struct {
	tools llm.ToolLister
}

// NewDetector 创建 Detector。
func NewDetector(tools llm.ToolLister) *Detector {
	return &Detector{tools: tools}
}

// Detect 实现 llm.Detector。未提及任何工具时返回空结果。
func (d *Detector) Detect(ctx context.Context, message, _ string) (dialog.Detection, error) {
	if d.tools == nil {
		return dialog.Detection{}, xerrors.New(xerrors.CodeDetectionFailure, "未配置工具清单")
	}
	tools, err := d.tools.ListTools(ctx)
	if err != nil {
		return dialog.Detection{}, xerrors.Wrap(xerrors.CodeDetectionFailure, err, "获取工具清单失败")
	}

	fields := strings.Fields(message)
	args := map[string]any{}
	words := make([]string, 0, len(fields))
	for _, field := range fields {
		if key, value, ok := strings.Cut(field, "="); ok && key != "" {
			args[strings.TrimSpace(key)] = strings.Trim(value, `"'`)
			continue
		}
		words = append(words, strings.ToLower(strings.Trim(field, ",.!?;:")))
	}

	type hit struct {
		name string
		pos  int
	}
	var hits []hit
	for _, tool := range tools {
		name := dialog.NormalizeName(tool.Name)
		for i, word := range words {
			if word == name {
				hits = append(hits, hit{name: tool.Name, pos: i})
				break
			}
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	detection := dialog.Detection{Intents: make([]dialog.Intent, 0, len(hits))}
	for i, h := range hits {
		intent := dialog.Intent{Name: h.name, Confidence: 1.0, Args: map[string]any{}}
		if i == 0 {
			intent.Args = args
		}
		detection.Intents = append(detection.Intents, intent)
	}
	return detection, nil
}

var _ llm.Detector = (*Detector)(nil)

package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
)

var thinkTags = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThink 移除推理模型输出中的 <think> 片段。
func StripThink(text string) string {
	return strings.TrimSpace(thinkTags.ReplaceAllString(text, ""))
}

// ExtractJSON 截取第一个 '{' 到最后一个 '}' 之间的内容。
func ExtractJSON(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return text[start : end+1], true
}

// ParseDetection 解析模型输出的意图 JSON。
// 不含 JSON 对象的输出视为空检测结果；JSON 损坏时返回 DETECTION_FAILURE。
func ParseDetection(text string) (dialog.Detection, error) {
	body, ok := ExtractJSON(StripThink(text))
	if !ok {
		return dialog.Detection{Intents: []dialog.Intent{}}, nil
	}
	var raw struct {
		Intents []struct {
			Name       string         `json:"name"`
			Confidence *float64       `json:"confidence"`
			Args       map[string]any `json:"args"`
		} `json:"intents"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return dialog.Detection{Intents: []dialog.Intent{}}, xerrors.Wrap(xerrors.CodeDetectionFailure, err, "解析意图 JSON 失败")
	}
	detection := dialog.Detection{Intents: make([]dialog.Intent, 0, len(raw.Intents))}
	for _, item := range raw.Intents {
		name := strings.TrimSpace(item.Name)
		if name == "" {
			continue
		}
		confidence := 1.0
		if item.Confidence != nil {
			confidence = clamp(*item.Confidence)
		}
		args := item.Args
		if args == nil {
			args = map[string]any{}
		}
		detection.Intents = append(detection.Intents, dialog.Intent{Name: name, Confidence: confidence, Args: args})
	}
	return detection, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

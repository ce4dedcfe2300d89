// Package dialog holds the value types exchanged between the intent detector,
// the dispatcher, the orchestrator and the response renderer.
package dialog

import "strings"

// Intent 描述一次检测到的用户意图。
type Intent struct {
	Name       string         `json:"name"`
	Confidence float64        `json:"confidence"`
	Args       map[string]any `json:"args"`
}

// Detection 是意图检测器针对单条消息的输出。
type Detection struct {
	Intents []Intent `json:"intents"`
}

// Status 表示单个意图的执行结果状态。
type Status string

const (
	StatusSuccess             Status = "success"
	StatusError               Status = "error"
	StatusClarificationNeeded Status = "clarification_needed"
	StatusNotFound            Status = "not_found"
	StatusNoIntent            Status = "no_intent"
)

// FallbackKey 是未匹配到工具的意图在结果集中共享的键。
const FallbackKey = "fallback"

// Result 是单个意图的处理结果。
type Result struct {
	Status  Status   `json:"status"`
	Intent  string   `json:"intent,omitempty"`
	Message string   `json:"message,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Result  any      `json:"result,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// Results 以意图名称为键聚合一轮对话的处理结果。
type Results map[string]Result

// Clarification 描述某个意图仍缺失的必填参数。
type Clarification struct {
	Intent  string   `json:"intent"`
	Missing []string `json:"missing"`
}

// NormalizeName 返回用于匹配的意图或工具名称。
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// IsEmptyValue 判断参数值是否视为未提供。
func IsEmptyValue(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	default:
		return false
	}
}

// HasUsableArgs 判断意图是否至少提供了一个非空参数。
func (i Intent) HasUsableArgs() bool {
	for _, v := range i.Args {
		if !IsEmptyValue(v) {
			return true
		}
	}
	return false
}

// UsableArgs 返回去除空值后的参数副本。
func (i Intent) UsableArgs() map[string]any {
	out := make(map[string]any, len(i.Args))
	for k, v := range i.Args {
		if !IsEmptyValue(v) {
			out[k] = v
		}
	}
	return out
}

// CloneArgs 复制参数映射，nil 输入返回空映射。
func CloneArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

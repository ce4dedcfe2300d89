package session

import (
	"time"

	"OpenMCP-Dialog/internal/dialog"
)

// Status 表示会话状态机所处的阶段。
type Status string

const (
	StatusIdle         Status = "idle"
	StatusAwaitingArgs Status = "awaiting_args"
	StatusExecuting    Status = "executing"
	StatusCompleted    Status = "completed"
)

// 最近一轮的意图类型标签。
const (
	IntentTypeChitChat = "chit_chat"
	IntentTypeTask     = "task"
)

// State 是单个会话唯一的状态机记录。
type State struct {
	ActiveIntent   string         `json:"active_intent,omitempty"`
	Status         Status         `json:"status"`
	PendingArgs    []string       `json:"pending_args"`
	ProvidedArgs   map[string]any `json:"provided_args"`
	LastIntentType string         `json:"last_intent_type,omitempty"`
	LastCompleted  bool           `json:"last_completed"`
	Timestamp      time.Time      `json:"timestamp"`
}

// NewState 返回初始的空闲状态。
func NewState() State {
	return State{
		Status:       StatusIdle,
		PendingArgs:  []string{},
		ProvidedArgs: map[string]any{},
		Timestamp:    time.Now().UTC(),
	}
}

// Clone 返回状态的深拷贝。
func (s State) Clone() State {
	clone := s
	clone.PendingArgs = append([]string{}, s.PendingArgs...)
	clone.ProvidedArgs = dialog.CloneArgs(s.ProvidedArgs)
	return clone
}

// Awaiting 判断当前是否在等待补充参数。
func (s State) Awaiting() bool {
	return s.Status == StatusAwaitingArgs
}

// Update 描述一次合并式状态更新，只覆盖显式传入的字段。
type Update func(*State)

// WithStatus 设置状态机阶段。
func WithStatus(status Status) Update {
	return func(s *State) {
		s.Status = status
	}
}

// WithActiveIntent 设置当前正在补全的意图。
func WithActiveIntent(name string) Update {
	return func(s *State) {
		s.ActiveIntent = name
	}
}

// ClearActiveIntent 清空当前意图。
func ClearActiveIntent() Update {
	return WithActiveIntent("")
}

// WithPendingArgs 覆盖仍缺失的参数列表。
func WithPendingArgs(fields []string) Update {
	return func(s *State) {
		s.PendingArgs = append([]string{}, fields...)
	}
}

// MergeProvidedArgs 按键合并已提供的参数，同名键以新值为准。
func MergeProvidedArgs(args map[string]any) Update {
	return func(s *State) {
		if s.ProvidedArgs == nil {
			s.ProvidedArgs = make(map[string]any, len(args))
		}
		for k, v := range args {
			s.ProvidedArgs[k] = v
		}
	}
}

// ReplaceProvidedArgs 丢弃已累计的参数并替换为 args。
func ReplaceProvidedArgs(args map[string]any) Update {
	return func(s *State) {
		s.ProvidedArgs = dialog.CloneArgs(args)
	}
}

// WithLastIntentType 记录最近一轮的意图类型标签。
func WithLastIntentType(tag string) Update {
	return func(s *State) {
		s.LastIntentType = tag
	}
}

func validateState(s State) error {
	if s.Status == StatusAwaitingArgs && (s.ActiveIntent == "" || len(s.PendingArgs) == 0) {
		return errInvalidAwaiting
	}
	return nil
}

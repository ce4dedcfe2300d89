package session

import (
	"context"
	"time"

	"OpenMCP-Dialog/internal/dialog"
	xerrors "OpenMCP-Dialog/internal/errors"
)

// Role 区分消息来源。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 是一条对话消息，附带记录时刻的状态快照。
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// IntentBatch 记录某一轮检测出的全部意图。
type IntentBatch struct {
	ID        string          `json:"id"`
	Intents   []dialog.Intent `json:"intents"`
	State     State           `json:"state"`
	Timestamp time.Time       `json:"timestamp"`
}

// ToolCallRecord 记录一次成功的工具调用。
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Tool      string         `json:"tool"`
	Args      map[string]any `json:"args"`
	Result    any            `json:"result"`
	State     State          `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
}

// ClarificationRecord 记录一次参数追问。
type ClarificationRecord struct {
	ID        string    `json:"id"`
	Intent    string    `json:"intent"`
	Missing   []string  `json:"missing"`
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// Session 聚合一个会话的全部历史与当前状态。
type Session struct {
	ID             string                `json:"id"`
	CreatedAt      time.Time             `json:"created_at"`
	Messages       []Message             `json:"messages"`
	IntentBatches  []IntentBatch         `json:"intent_batches"`
	ToolCalls      []ToolCallRecord      `json:"tool_calls"`
	Clarifications []ClarificationRecord `json:"clarifications"`
	State          State                 `json:"state"`
}

// Store 是唯一允许修改会话状态的组件。所有操作均以会话 ID 为键。
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	State(ctx context.Context, id string) (State, error)
	History(ctx context.Context, id string, limit int) ([]Message, error)
	AppendMessage(ctx context.Context, id string, role Role, content string) (Message, error)
	AppendIntentBatch(ctx context.Context, id string, intents []dialog.Intent) error
	AppendToolCall(ctx context.Context, id, tool string, args map[string]any, result any) error
	AppendClarification(ctx context.Context, id, intent string, missing []string) error
	SetState(ctx context.Context, id string, updates ...Update) (State, error)
	ResetState(ctx context.Context, id string) (State, error)
	MarkCompleted(ctx context.Context, id string) error
	ConsumeCompleted(ctx context.Context, id string) (bool, error)
}

var (
	errEmptyID         = xerrors.New(xerrors.CodeInvalidArgument, "会话 ID 不能为空")
	errInvalidAwaiting = xerrors.New(xerrors.CodeInvalidArgument, "等待补充参数时必须同时设置当前意图与缺失参数")
)

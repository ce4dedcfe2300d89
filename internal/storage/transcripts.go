// Package storage defines the turn transcript archive contract shared by the
// file and MySQL backends. Transcripts are append-only audit records; they are
// never read back into live conversation state.
package storage

import (
	"context"
	"encoding/json"
	"strings"

	xerrors "OpenMCP-Dialog/internal/errors"
)

// DefaultListLimit 是 ListBySession 未指定 limit 时返回的条数。
const DefaultListLimit = 20

// TranscriptRecord 表示一轮对话的归档记录。意图、澄清与结果以 JSON 原文保存。
type TranscriptRecord struct {
	ID                 int64           `json:"id,omitempty"`
	TraceID            string          `json:"trace_id"`
	SessionID          string          `json:"session_id"`
	UserMessage        string          `json:"user_message"`
	AssistantResponse  string          `json:"assistant_response"`
	ConversationStatus string          `json:"conversation_status"`
	Intents            json.RawMessage `json:"intents,omitempty"`
	Clarifications     json.RawMessage `json:"clarifications,omitempty"`
	Results            json.RawMessage `json:"results,omitempty"`
	CreatedAt          int64           `json:"created_at"`
}

// TranscriptRepository 抽象对话归档的持久化接口。归档只追加，不回读到会话状态。
type TranscriptRepository interface {
	Save(ctx context.Context, record TranscriptRecord) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]TranscriptRecord, error)
}

// ValidateRecord 校验归档记录的必填字段。
func ValidateRecord(record TranscriptRecord) error {
	if strings.TrimSpace(record.SessionID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "归档记录缺少 session_id")
	}
	if strings.TrimSpace(record.TraceID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "归档记录缺少 trace_id")
	}
	return nil
}

package mysql

import (
	"context"
	"database/sql"
	"encoding/json"

	xerrors "OpenMCP-Dialog/internal/errors"
	"OpenMCP-Dialog/internal/storage"
)

// SQLTranscriptRepository 将归档写入 MySQL 的 turn_transcripts 表。
type SQLTranscriptRepository struct {
	db *sql.DB
}

// NewSQLTranscriptRepository 建立连接池并执行迁移。
func NewSQLTranscriptRepository(ctx context.Context, cfg Config) (*SQLTranscriptRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行归档表迁移失败")
	}
	return &SQLTranscriptRepository{db: db}, nil
}

// NewSQLTranscriptRepositoryFromDB 复用已有连接池，调用方负责迁移。
func NewSQLTranscriptRepositoryFromDB(db *sql.DB) *SQLTranscriptRepository {
	return &SQLTranscriptRepository{db: db}
}

const insertTranscriptSQL = `INSERT INTO turn_transcripts
    (trace_id, session_id, user_message, assistant_response, conversation_status, intents, clarifications, results, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectTranscriptsSQL = `SELECT id, trace_id, session_id, user_message, assistant_response, conversation_status, intents, clarifications, results, created_at
    FROM turn_transcripts WHERE session_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`

// Save 写入一条归档记录。
func (s *SQLTranscriptRepository) Save(ctx context.Context, record storage.TranscriptRecord) error {
	if err := storage.ValidateRecord(record); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertTranscriptSQL,
		record.TraceID,
		record.SessionID,
		record.UserMessage,
		record.AssistantResponse,
		record.ConversationStatus,
		rawString(record.Intents),
		rawString(record.Clarifications),
		rawString(record.Results),
		record.CreatedAt,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入归档记录失败")
	}
	return nil
}

// ListBySession 查询指定会话最近的归档记录。
func (s *SQLTranscriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]storage.TranscriptRecord, error) {
	if limit <= 0 {
		limit = storage.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, selectTranscriptsSQL, sessionID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询归档记录失败")
	}
	defer rows.Close()

	var records []storage.TranscriptRecord
	for rows.Next() {
		var (
			record                           storage.TranscriptRecord
			intents, clarifications, results sql.NullString
		)
		if err := rows.Scan(
			&record.ID,
			&record.TraceID,
			&record.SessionID,
			&record.UserMessage,
			&record.AssistantResponse,
			&record.ConversationStatus,
			&intents,
			&clarifications,
			&results,
			&record.CreatedAt,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析归档记录失败")
		}
		record.Intents = nullRaw(intents)
		record.Clarifications = nullRaw(clarifications)
		record.Results = nullRaw(results)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历归档记录失败")
	}
	return records, nil
}

// Close 关闭底层连接池。
func (s *SQLTranscriptRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func rawString(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

func nullRaw(value sql.NullString) json.RawMessage {
	if !value.Valid || value.String == "" {
		return nil
	}
	return json.RawMessage(value.String)
}

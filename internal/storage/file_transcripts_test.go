package storage

import (
	"context"
	"encoding/json"
	"testing"

	xerrors "OpenMCP-Dialog/internal/errors"
)

func TestFileTranscriptRepositorySaveAndList(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := NewFileTranscriptRepository(dir)
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}

	ctx := context.Background()
	records := []TranscriptRecord{
		{TraceID: "t-1", SessionID: "s-1", UserMessage: "cuti besok", AssistantResponse: "tanggal berapa?", ConversationStatus: "awaiting_args", CreatedAt: 10},
		{TraceID: "t-2", SessionID: "s-2", UserMessage: "halo", AssistantResponse: "hai", ConversationStatus: "idle", CreatedAt: 11},
		{TraceID: "t-3", SessionID: "s-1", UserMessage: "2025-09-01", AssistantResponse: "sudah diajukan", ConversationStatus: "completed", Results: json.RawMessage(`{"leave_request":{"status":"success"}}`), CreatedAt: 12},
	}
	for _, record := range records {
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	list, err := repo.ListBySession(ctx, "s-1", 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 || list[0].TraceID != "t-3" || list[1].TraceID != "t-1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	limited, err := repo.ListBySession(ctx, "s-1", 1)
	if err != nil {
		t.Fatalf("limited list failed: %v", err)
	}
	if len(limited) != 1 || limited[0].TraceID != "t-3" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}

	reopened, err := NewFileTranscriptRepository(dir)
	if err != nil {
		t.Fatalf("failed to reopen file repo: %v", err)
	}
	restored, err := reopened.ListBySession(ctx, "s-1", 0)
	if err != nil {
		t.Fatalf("list after reopen failed: %v", err)
	}
	if len(restored) != 2 || restored[0].TraceID != "t-3" {
		t.Fatalf("records not restored in order: %+v", restored)
	}
	if string(restored[0].Results) != `{"leave_request":{"status":"success"}}` {
		t.Fatalf("results not preserved: %s", restored[0].Results)
	}
}

func TestFileTranscriptRepositoryRejectsIncompleteRecord(t *testing.T) {
	t.Parallel()

	repo, err := NewFileTranscriptRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file repo: %v", err)
	}
	err = repo.Save(context.Background(), TranscriptRecord{TraceID: "t-1"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

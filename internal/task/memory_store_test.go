package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"OpenMCP-Dialog/internal/dialog"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	tasks := []*Task{
		{ID: "t1", SessionID: "s1", Message: "我想请假", Status: StatusPending, MaxRetries: 3},
		{ID: "t2", SessionID: "s1", Message: "查一下年假", Status: StatusPending, MaxRetries: 3},
		{ID: "t3", SessionID: "s2", Message: "你好", Status: StatusPending, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "t2", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Reply: "你好呀", ConversationStatus: "idle"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.Unix()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(all))
	}
	if all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %s", all[0].ID)
	}

	oldestFirst, err := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list ascending: %v", err)
	}
	if oldestFirst[0].ID != "t1" {
		t.Fatalf("expected oldest task first, got %s", oldestFirst[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	succeeded, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != "t3" {
		t.Fatalf("unexpected result list: %+v", succeeded)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedBetween(since, time.Time{})}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	bySession, err := store.List(ctx, buildListOptions([]ListOption{WithSessionID(" s1 ")}))
	if err != nil {
		t.Fatalf("list by session: %v", err)
	}
	if len(bySession) != 2 {
		t.Fatalf("expected 2 tasks for session s1, got %d", len(bySession))
	}

	byQuery, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("你好呀")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "t3" {
		t.Fatalf("expected reply text to match t3, got %+v", byQuery)
	}

	paged, err := store.List(ctx, buildListOptions([]ListOption{WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list paged: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", paged)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	tasks := []*Task{
		{ID: "a", SessionID: "s", Message: "m1", Status: StatusPending, MaxRetries: 3},
		{ID: "b", SessionID: "s", Message: "m2", Status: StatusPending, MaxRetries: 3},
		{ID: "c", SessionID: "s", Message: "m3", Status: StatusPending, MaxRetries: 3},
	}

	for _, task := range tasks {
		if err := store.Create(ctx, task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "b", CodeTaskProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Reply: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.Unix()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}

	other, err := store.Stats(ctx, buildListOptions([]ListOption{WithSessionID("other")}))
	if err != nil {
		t.Fatalf("stats other session: %v", err)
	}
	if other.Total != 0 {
		t.Fatalf("expected empty stats for unknown session, got %+v", other)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "job", SessionID: "s", Message: "m", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "job", SessionID: "s", Message: "m", Status: StatusPending, MaxRetries: 2}); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	claimed, err := store.Claim(ctx, "job")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed task: %+v", claimed)
	}
	if _, err := store.Claim(ctx, "job"); !errors.Is(err, ErrTaskConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkFailed(ctx, "job", CodeTaskProcessing, "transient", false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	requeued, err := store.Get(ctx, "job")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if requeued.Status != StatusPending || requeued.ErrorCode != string(CodeTaskProcessing) {
		t.Fatalf("non-terminal failure should return to pending: %+v", requeued)
	}

	if _, err := store.Claim(ctx, "job"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "job", CodeTaskProcessing, "transient", false); err != nil {
		t.Fatalf("mark failed again: %v", err)
	}
	if _, err := store.Claim(ctx, "job"); !errors.Is(err, ErrTaskExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Task{ID: "job", SessionID: "s", Message: "m", Status: StatusPending, MaxRetries: 1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	result := ExecutionResult{
		Reply:          "请补充日期",
		Clarifications: []dialog.Clarification{{Intent: "request_leave", Missing: []string{"start_date"}}},
		Results:        dialog.Results{"request_leave": {Status: dialog.StatusError, Error: "x"}},
	}
	if err := store.MarkSucceeded(ctx, "job", result); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	first, err := store.Get(ctx, "job")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Result.Clarifications[0].Missing[0] = "mutated"
	first.Result.Results["extra"] = dialog.Result{}

	second, err := store.Get(ctx, "job")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if second.Result.Clarifications[0].Missing[0] != "start_date" {
		t.Fatalf("clarifications leaked through copy: %+v", second.Result.Clarifications)
	}
	if _, ok := second.Result.Results["extra"]; ok {
		t.Fatalf("results leaked through copy: %+v", second.Result.Results)
	}
	if _, err := store.Claim(ctx, "job"); !errors.Is(err, ErrTaskCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
}

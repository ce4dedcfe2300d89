package task

import (
	"testing"
	"time"

	xerrors "OpenMCP-Dialog/internal/errors"
)

func TestParseStatuses(t *testing.T) {
	got, err := ParseStatuses(" Pending, failed,,succeeded ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Status{StatusPending, StatusFailed, StatusSucceeded}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}

	if _, err := ParseStatuses("pending,done"); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestBuildListOptionsDefaults(t *testing.T) {
	opts := buildListOptions([]ListOption{
		WithLimit(500),
		WithOffset(-3),
		WithStatuses(StatusFailed, StatusFailed, "bogus"),
		WithSessionID("  s-1 "),
		WithUpdatedBetween(time.Unix(100, 0), time.Time{}),
		WithResultPresence(false),
	})

	if opts.Limit != MaxListLimit || opts.Offset != 0 {
		t.Fatalf("unexpected paging: limit=%d offset=%d", opts.Limit, opts.Offset)
	}
	if len(opts.Statuses) != 1 || opts.Statuses[0] != StatusFailed {
		t.Fatalf("unexpected statuses: %v", opts.Statuses)
	}
	if opts.SessionID != "s-1" || opts.UpdatedGTE != 100 || opts.UpdatedLTE != 0 {
		t.Fatalf("unexpected filters: %+v", opts)
	}
	if opts.HasResult == nil || *opts.HasResult {
		t.Fatalf("expected has_result=false filter")
	}
	if buildListOptions(nil).Limit != DefaultListLimit {
		t.Fatalf("expected default limit")
	}
}

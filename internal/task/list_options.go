package task

import (
	"fmt"
	"strings"
	"time"

	xerrors "OpenMCP-Dialog/internal/errors"
)

const (
	// DefaultListLimit 是未指定 limit 时的分页大小。
	DefaultListLimit = 20
	// MaxListLimit 是单页允许的最大条数。
	MaxListLimit = 100
)

// SortOrder 决定 List 按更新时间排序的方向。
type SortOrder int

const (
	SortByUpdatedDesc SortOrder = iota
	SortByUpdatedAsc
)

// ListOptions 是 List 与 Stats 共用的过滤条件，零值表示不过滤。
type ListOptions struct {
	Limit      int
	Offset     int
	SessionID  string
	Statuses   []Status
	UpdatedGTE int64
	UpdatedLTE int64
	HasResult  *bool
	Order      SortOrder
	Query      string
}

func (opts *ListOptions) applyDefaults() {
	switch {
	case opts.Limit <= 0:
		opts.Limit = DefaultListLimit
	case opts.Limit > MaxListLimit:
		opts.Limit = MaxListLimit
	}
	opts.Offset = max(opts.Offset, 0)
	opts.Statuses = dedupeStatuses(opts.Statuses)
	if opts.Order != SortByUpdatedAsc {
		opts.Order = SortByUpdatedDesc
	}
	opts.SessionID = strings.TrimSpace(opts.SessionID)
	opts.Query = strings.TrimSpace(opts.Query)
}

// ListOption 以函数选项方式构造 ListOptions。
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithSessionID 只返回指定会话提交的轮次。
func WithSessionID(sessionID string) ListOption {
	return func(opts *ListOptions) { opts.SessionID = sessionID }
}

func WithStatuses(statuses ...Status) ListOption {
	return func(opts *ListOptions) { opts.Statuses = append([]Status(nil), statuses...) }
}

// WithUpdatedBetween 按更新时间闭区间过滤，零值端点表示不限。
func WithUpdatedBetween(since, until time.Time) ListOption {
	return func(opts *ListOptions) {
		opts.UpdatedGTE, opts.UpdatedLTE = 0, 0
		if !since.IsZero() {
			opts.UpdatedGTE = since.Unix()
		}
		if !until.IsZero() {
			opts.UpdatedLTE = until.Unix()
		}
	}
}

// WithResultPresence 按是否已记录执行结果过滤。
func WithResultPresence(hasResult bool) ListOption {
	return func(opts *ListOptions) { opts.HasResult = &hasResult }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(opts *ListOptions) { opts.Order = order }
}

// WithQuery 对 ID、消息、错误与回复做子串匹配。
func WithQuery(query string) ListOption {
	return func(opts *ListOptions) { opts.Query = query }
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

// ParseStatuses 解析逗号分隔的状态列表，遇到未知状态返回 INVALID_ARGUMENT。
func ParseStatuses(raw string) ([]Status, error) {
	var statuses []Status
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		status := Status(strings.ToLower(part))
		if !IsValidStatus(status) {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的任务状态: %s", part))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func dedupeStatuses(input []Status) []Status {
	var result []Status
	seen := make(map[Status]bool, len(input))
	for _, status := range input {
		if !IsValidStatus(status) || seen[status] {
			continue
		}
		seen[status] = true
		result = append(result, status)
	}
	return result
}

package task

import (
	"context"

	xerrors "OpenMCP-Dialog/internal/errors"
)

// Store 持久化异步轮次的生命周期：pending -> running -> succeeded | failed。
// 非终止失败由 MarkFailed 放回 pending，等待处理器重投。
type Store interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	// Claim 原子地把 pending 任务置为 running 并递增 Attempts。
	Claim(ctx context.Context, id string) (*Task, error)
	MarkSucceeded(ctx context.Context, id string, result ExecutionResult) error
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Task, error)
	Stats(ctx context.Context, opts ListOptions) (TaskStats, error)
	Close() error
}

// TaskStats 是 Stats 的返回值，时间字段为 Unix 秒。
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// Handler 处理一条出队的任务 ID。返回的错误只会被记录，队列不会因此重投。
type Handler func(ctx context.Context, taskID string) error

// Producer 向队列投递任务 ID。
type Producer interface {
	Publish(ctx context.Context, taskID string) error
	Close() error
}

// Consumer 以 workerCount 个协程消费队列，直到 ctx 结束。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 是 memory、redis 与 rabbitmq 三种队列共同实现的接口。
type Queue interface {
	Producer
	Consumer
}

package tasks

import (
	"context"
	"time"
)

// Task 维护任务接口
type Task interface {
	// ID 返回任务唯一标识
	ID() string

	// Name 返回任务名称
	Name() string

	// Schedule 返回 cron 表达式，如 "@every 3h"、"@daily"
	Schedule() string

	// Execute 执行任务
	Execute(ctx context.Context) error
}

// TaskStatus 任务运行状态（存储在 JSON 文件中）
type TaskStatus struct {
	ID          string    `json:"id"`                     // 任务 ID
	Name        string    `json:"name"`                   // 任务名称
	Schedule    string    `json:"schedule"`               // cron 表达式
	NextRun     time.Time `json:"next_run,omitempty"`     // 下次执行时间
	LastRun     time.Time `json:"last_run,omitempty"`     // 上次执行时间
	LastSuccess time.Time `json:"last_success,omitempty"` // 上次成功时间
	LastError   string    `json:"last_error,omitempty"`   // 上次错误信息
	RunCount    int       `json:"run_count"`
}

// TaskRegistry 任务状态表
type TaskRegistry struct {
	Tasks []*TaskStatus `json:"tasks"`
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner 基于 cron 的维护任务执行器
type Runner struct {
	cron     *cron.Cron
	registry *Registry
	logger   *slog.Logger

	mu      sync.Mutex
	tasks   map[string]Task
	entries map[string]cron.EntryID
	running map[string]bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewRunner 创建任务执行器
func NewRunner(registry *Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron:     cron.New(),
		registry: registry,
		logger:   logger.With("component", "tasks"),
		tasks:    make(map[string]Task),
		entries:  make(map[string]cron.EntryID),
		running:  make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Add 注册任务
func (r *Runner) Add(task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID()]; ok {
		return fmt.Errorf("task already exists: %s", task.ID())
	}

	id, err := r.cron.AddFunc(task.Schedule(), func() { r.run(task) })
	if err != nil {
		return fmt.Errorf("schedule task %s: %w", task.ID(), err)
	}
	r.tasks[task.ID()] = task
	r.entries[task.ID()] = id

	r.registry.Update(task.ID(), func(st *TaskStatus) {
		st.Name = task.Name()
		st.Schedule = task.Schedule()
	})
	r.logger.Info("Task scheduled", "task", task.ID(), "schedule", task.Schedule())
	return nil
}

// Start 启动 cron
func (r *Runner) Start() {
	r.cron.Start()
	r.refreshNextRuns()
	if err := r.registry.Save(); err != nil {
		r.logger.Warn("Failed to save task registry", "error", err)
	}
}

// Stop 停止调度并等待正在执行的任务完成
func (r *Runner) Stop() {
	r.cancel()
	<-r.cron.Stop().Done()
	if err := r.registry.Save(); err != nil {
		r.logger.Warn("Failed to save task registry", "error", err)
	}
}

// RunNow 立即执行指定任务
func (r *Runner) RunNow(id string) error {
	r.mu.Lock()
	task, ok := r.tasks[id]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	return r.run(task)
}

// run 执行任务并更新状态，同一任务不重叠执行
func (r *Runner) run(task Task) (err error) {
	r.mu.Lock()
	if r.running[task.ID()] {
		r.mu.Unlock()
		r.logger.Warn("Task skipped: already running", "task", task.ID())
		return nil
	}
	r.running[task.ID()] = true
	r.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("task panic: %v", p)
		}

		r.mu.Lock()
		delete(r.running, task.ID())
		r.mu.Unlock()

		now := time.Now()
		r.registry.Update(task.ID(), func(st *TaskStatus) {
			st.LastRun = now
			st.RunCount++
			if err != nil {
				st.LastError = err.Error()
			} else {
				st.LastSuccess = now
				st.LastError = ""
			}
		})
		r.refreshNextRuns()
		if saveErr := r.registry.Save(); saveErr != nil {
			r.logger.Warn("Failed to save task registry", "error", saveErr)
		}

		if err != nil {
			r.logger.Error("Task failed", "task", task.ID(), "error", err)
		} else {
			r.logger.Debug("Task completed", "task", task.ID())
		}
	}()

	return task.Execute(r.ctx)
}

func (r *Runner) refreshNextRuns() {
	r.mu.Lock()
	entries := make(map[string]cron.EntryID, len(r.entries))
	for k, v := range r.entries {
		entries[k] = v
	}
	r.mu.Unlock()

	for id, entryID := range entries {
		next := r.cron.Entry(entryID).Next
		r.registry.Update(id, func(st *TaskStatus) { st.NextRun = next })
	}
}

// Statuses 所有任务状态
func (r *Runner) Statuses() []TaskStatus {
	return r.registry.All()
}

package tasks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Registry 任务状态管理器，重启后保留上次执行信息
type Registry struct {
	filePath string
	registry *TaskRegistry
	mu       sync.RWMutex
}

// NewRegistry 创建任务状态表
func NewRegistry(runDir string) *Registry {
	return &Registry{
		filePath: filepath.Join(runDir, "tasks.json"),
		registry: &TaskRegistry{
			Tasks: make([]*TaskStatus, 0),
		},
	}
}

// Load 从文件加载任务状态
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			r.registry = &TaskRegistry{Tasks: make([]*TaskStatus, 0)}
			return nil
		}
		return fmt.Errorf("read tasks file: %w", err)
	}

	var registry TaskRegistry
	if err := json.Unmarshal(data, &registry); err != nil {
		return fmt.Errorf("parse tasks file: %w", err)
	}

	r.registry = &registry
	return nil
}

// Save 保存任务状态到文件
func (r *Registry) Save() error {
	r.mu.RLock()
	data, err := json.MarshalIndent(r.registry, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.filePath), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	if err := os.WriteFile(r.filePath, data, 0644); err != nil {
		return fmt.Errorf("write tasks file: %w", err)
	}
	return nil
}

// Get 获取指定 ID 的任务状态副本，不存在时返回 nil
func (r *Registry) Get(id string) *TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, task := range r.registry.Tasks {
		if task.ID == id {
			cp := *task
			return &cp
		}
	}
	return nil
}

// All 获取所有任务状态副本
func (r *Registry) All() []TaskStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]TaskStatus, len(r.registry.Tasks))
	for i, task := range r.registry.Tasks {
		out[i] = *task
	}
	return out
}

// Update 按 ID 修改任务状态，不存在时新增
func (r *Registry) Update(id string, fn func(*TaskStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.registry.Tasks {
		if task.ID == id {
			fn(task)
			return
		}
	}

	task := &TaskStatus{ID: id}
	fn(task)
	r.registry.Tasks = append(r.registry.Tasks, task)
}

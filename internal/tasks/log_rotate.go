package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// ReopenableLog 正在写入的日志文件；Windows 下打开的文件不能重命名，轮转前需先关闭
type ReopenableLog interface {
	Close() error
	Reopen() error
}

// LogRotateTask 日志轮转任务，超过大小限制时重命名为 .old
type LogRotateTask struct {
	logFiles     []string // 需要轮转的日志文件路径列表
	maxLogSizeMB int      // 日志文件最大大小（MB）
	log          ReopenableLog
}

// NewLogRotateTask 创建日志轮转任务，log 可以为空
func NewLogRotateTask(logFiles []string, maxLogSizeMB int, log ReopenableLog) *LogRotateTask {
	return &LogRotateTask{
		logFiles:     logFiles,
		maxLogSizeMB: maxLogSizeMB,
		log:          log,
	}
}

func (t *LogRotateTask) ID() string       { return "log-rotate" }
func (t *LogRotateTask) Name() string     { return "日志文件轮转" }
func (t *LogRotateTask) Schedule() string { return "@every 3h" }

// Execute 执行任务
func (t *LogRotateTask) Execute(ctx context.Context) error {
	if t.maxLogSizeMB <= 0 {
		return nil
	}

	var errs []error
	var oversized []string
	for _, logFile := range t.logFiles {
		ok, err := t.needsRotation(logFile)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", logFile, err))
		} else if ok {
			oversized = append(oversized, logFile)
		}
	}
	if len(oversized) == 0 {
		return errors.Join(errs...)
	}

	if t.log != nil {
		if err := t.log.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log: %w", err))
		}
	}

	rotated := 0
	for _, logFile := range oversized {
		if err := rotate(logFile); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", logFile, err))
			continue
		}
		rotated++
	}

	if t.log != nil {
		if err := t.log.Reopen(); err != nil {
			errs = append(errs, fmt.Errorf("reopen log: %w", err))
		}
	}
	if rotated > 0 {
		slog.Info("Log rotation completed", "rotated", rotated)
	}

	return errors.Join(errs...)
}

// needsRotation 文件超过大小限制时返回 true，文件不存在不算错误
func (t *LogRotateTask) needsRotation(logFile string) (bool, error) {
	info, err := os.Stat(logFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat log file: %w", err)
	}
	return info.Size() > int64(t.maxLogSizeMB)*1024*1024, nil
}

// rotate 重命名为 .old，覆盖上一次的备份
func rotate(logFile string) error {
	oldLogFile := logFile + ".old"
	if _, err := os.Stat(oldLogFile); err == nil {
		if err := os.Remove(oldLogFile); err != nil {
			return fmt.Errorf("remove old backup: %w", err)
		}
	}

	if err := os.Rename(logFile, oldLogFile); err != nil {
		return fmt.Errorf("rename log file: %w", err)
	}

	slog.Info("Log file rotated", "file", logFile, "backup", oldLogFile)
	return nil
}

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const lockFileName = "checkin.lock"

// CheckAndAcquireLock 检查并获取进程锁，防止同时运行两个后台服务
// dir: 锁文件所在目录（通常为 DataDir）
func CheckAndAcquireLock(dir string) error {
	lockFile := getLockFilePath(dir)

	if data, err := os.ReadFile(lockFile); err == nil {
		oldPID := strings.TrimSpace(string(data))

		if pid, err := strconv.Atoi(oldPID); err == nil && pid != os.Getpid() && isProcessRunning(pid) {
			return fmt.Errorf("服务已在运行 (PID: %s)\n\n提示：\n  - 查看状态: checkin status\n  - 手动签到: checkin run\n  - 如需停止服务，结束进程 %s 后重试", oldPID, oldPID)
		}

		// 进程已结束，删除旧锁文件
		slog.Info("Cleaning up stale lock file", "pid", oldPID)
		os.Remove(lockFile)
	}

	if err := os.MkdirAll(filepath.Dir(lockFile), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(lockFile, []byte(pid), 0644); err != nil {
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	slog.Info("Process lock acquired", "pid", pid, "lock_file", lockFile)
	return nil
}

// ReleaseLock 释放进程锁
func ReleaseLock(dir string) {
	lockFile := getLockFilePath(dir)
	os.Remove(lockFile)
	slog.Info("Process lock released", "lock_file", lockFile)
}

// getLockFilePath dir 为空时使用临时目录
func getLockFilePath(dir string) string {
	if dir == "" {
		return filepath.Join(os.TempDir(), lockFileName)
	}
	return filepath.Join(dir, lockFileName)
}

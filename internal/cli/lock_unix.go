//go:build !windows

package cli

import (
	"os"
	"syscall"
)

// isProcessRunning 发送信号 0 检查进程是否存在（不实际发送信号）
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

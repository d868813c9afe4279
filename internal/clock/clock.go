// Package clock 可取消的等待
package clock

import (
	"context"
	"time"
)

// SleepFunc 等待 d，ctx 取消时提前返回 ctx.Err()
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep 默认实现
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// NoSleep 测试用，不等待
func NoSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

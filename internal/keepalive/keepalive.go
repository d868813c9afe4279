// Package keepalive 系统空闲时轻微移动鼠标，防止锁屏或休眠打断无人值守的签到
package keepalive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"humg.top/checkin_scheduler/internal/clock"
	"humg.top/checkin_scheduler/internal/osauto"
)

// Service 空闲检测与鼠标微动
type Service struct {
	auto      osauto.Automation
	threshold time.Duration
	interval  time.Duration
	logger    *slog.Logger

	// Sleep 抖动两次移动之间的等待
	Sleep clock.SleepFunc
	// Busy 返回 true 时不移动鼠标，签到流程独占输入
	Busy func() bool

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewService idleThreshold 为触发模拟的空闲时长
func NewService(auto osauto.Automation, idleThreshold time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if idleThreshold <= 0 {
		idleThreshold = 60 * time.Second
	}
	return &Service{
		auto:      auto,
		threshold: idleThreshold,
		interval:  time.Second,
		logger:    logger.With("component", "keepalive"),
		Sleep:     clock.Sleep,
	}
}

// Start 启动检测循环，重复调用无副作用
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	s.logger.Info("Keep-alive started", "idle_threshold", s.threshold)

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop 停止检测循环并等待退出
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.done
	s.mu.Unlock()
	<-done
}

// tick 空闲超过阈值时右移 2 像素再移回
func (s *Service) tick(ctx context.Context) bool {
	idle, err := s.auto.IdleTime()
	if err != nil {
		s.logger.Debug("Idle time unavailable", "error", err)
		return false
	}
	if idle < s.threshold {
		return false
	}
	// 签到流程从启动到第一次点击至少要经过窗口激活和图像匹配，远长于一次微动
	if s.Busy != nil && s.Busy() {
		s.logger.Debug("Check-in running, skip nudge", "idle", idle)
		return false
	}

	if err := s.auto.NudgeCursor(2, 0); err != nil {
		s.logger.Warn("Nudge cursor failed", "error", err)
		return false
	}
	s.Sleep(ctx, 50*time.Millisecond)
	if err := s.auto.NudgeCursor(-2, 0); err != nil {
		s.logger.Warn("Nudge cursor back failed", "error", err)
	}
	s.logger.Debug("Simulated activity", "idle", idle)
	return true
}

// Package observer 通过浏览器窗口标题判断签到是否成功
package observer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
)

// Poster 接收签到结果
type Poster interface {
	PostOutcome(o models.CheckInOutcome) models.CheckInOutcome
}

// TitleWatcher 轮询指定进程的窗口标题，出现成功关键字时上报成功
type TitleWatcher struct {
	auto      osauto.Automation
	poster    Poster
	processes []string
	keywords  []string
	interval  time.Duration
	logger    *slog.Logger
}

// NewTitleWatcher 创建标题探测器
func NewTitleWatcher(auto osauto.Automation, poster Poster, cfg models.TitleWatchConfig, logger *slog.Logger) *TitleWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	procs := make([]string, 0, len(cfg.Processes))
	for _, p := range cfg.Processes {
		procs = append(procs, normalizeProcess(p))
	}
	return &TitleWatcher{
		auto:      auto,
		poster:    poster,
		processes: procs,
		keywords:  cfg.Keywords,
		interval:  interval,
		logger:    logger.With("component", "observer"),
	}
}

// Watch 持续轮询直到发现成功标识或 ctx 结束，每次调用最多上报一次
func (w *TitleWatcher) Watch(ctx context.Context, since time.Time) {
	if len(w.keywords) == 0 {
		return
	}
	w.logger.Debug("Watching window titles", "since", since.Format(time.TimeOnly), "processes", w.processes)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if title, ok := w.Check(); ok {
			w.poster.PostOutcome(models.CheckInOutcome{
				Success:    true,
				ObservedAt: time.Now(),
				Message:    title,
				Source:     "title",
			})
			return
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// Check 检查一次，返回命中的窗口标题
func (w *TitleWatcher) Check() (string, bool) {
	windows, err := w.auto.Windows()
	if err != nil {
		w.logger.Debug("Enumerate windows failed", "error", err)
		return "", false
	}

	for _, win := range windows {
		if !w.watched(win.Process) {
			continue
		}
		for _, kw := range w.keywords {
			if kw != "" && strings.Contains(win.Title, kw) {
				w.logger.Info("Success keyword detected", "title", win.Title, "keyword", kw, "process", win.Process)
				return win.Title, true
			}
		}
	}
	return "", false
}

func (w *TitleWatcher) watched(process string) bool {
	if len(w.processes) == 0 {
		return true
	}
	process = normalizeProcess(process)
	for _, p := range w.processes {
		if p == process {
			return true
		}
	}
	return false
}

// normalizeProcess 进程名统一为小写且去掉 .exe
func normalizeProcess(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".exe")
}

// Package app 根据配置组装各组件并运行后台服务
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"humg.top/checkin_scheduler/config"
	"humg.top/checkin_scheduler/internal/inbox"
	"humg.top/checkin_scheduler/internal/input"
	"humg.top/checkin_scheduler/internal/keepalive"
	"humg.top/checkin_scheduler/internal/matcher"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/observer"
	"humg.top/checkin_scheduler/internal/osauto"
	"humg.top/checkin_scheduler/internal/queue"
	"humg.top/checkin_scheduler/internal/scheduler"
	"humg.top/checkin_scheduler/internal/sequencer"
	"humg.top/checkin_scheduler/internal/server"
	"humg.top/checkin_scheduler/internal/storage"
	"humg.top/checkin_scheduler/internal/tasks"
	"humg.top/checkin_scheduler/internal/window"
)

// App 持有全部运行期组件
type App struct {
	Config *models.Config
	Logger *slog.Logger

	Auto       osauto.Automation
	Locator    *window.Locator
	Dispatcher *input.Dispatcher
	Resolver   *matcher.Resolver
	Sequencer  *sequencer.Sequencer
	Records    *storage.JSONStorage
	History    storage.HistoryStore // 打开失败时为 nil
	Results    *queue.ResultQueue
	Scheduler  *scheduler.Scheduler

	// Log 当前写入的日志文件，供轮转任务关闭与重新打开
	Log tasks.ReopenableLog
}

// New 组装组件；auto 为空时使用当前平台的实现
func New(cfg *models.Config, auto osauto.Automation, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if auto == nil {
		native, err := osauto.Native()
		if err != nil {
			return nil, fmt.Errorf("init automation backend: %w", err)
		}
		auto = native
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Auto:       auto,
		Locator:    window.NewLocator(auto, logger),
		Dispatcher: input.NewDispatcher(auto, logger),
		Resolver: matcher.NewResolver(cfg.MatcherPath, cfg.MatcherArgs,
			time.Duration(cfg.TimeoutSeconds)*time.Second, logger),
		Records: storage.NewJSONStorage(cfg.RecordPath),
		Results: queue.New(),
	}
	a.Sequencer = sequencer.New(sequencer.ScriptFromConfig(cfg), a.Locator, a.Resolver, a.Dispatcher, logger)

	var history storage.HistoryStore
	if cfg.HistoryDB != "" {
		h, err := storage.NewSQLiteHistory(cfg.HistoryDB)
		if err != nil {
			logger.Warn("Attempt history disabled", "db", cfg.HistoryDB, "error", err)
		} else {
			history = h
		}
	}
	a.History = history

	a.Scheduler = scheduler.NewScheduler(cfg, a.Sequencer, a.Records, history, a.Results, logger)
	if cfg.TitleWatch.Enabled {
		a.Scheduler.SetWatcher(observer.NewTitleWatcher(auto, a.Scheduler, cfg.TitleWatch, logger))
	}
	return a, nil
}

// Close 释放历史数据库
func (a *App) Close() error {
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}

// Serve 启动调度器与全部后台服务，阻塞到 ctx 结束后依次关闭
func (a *App) Serve(ctx context.Context) error {
	cfg := a.Config
	logger := a.Logger

	if cfg.Enabled {
		if err := config.RequireAutomation(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	var stops []func()
	defer func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}()

	// 维护任务
	registry := tasks.NewRegistry(cfg.DataDir)
	if err := registry.Load(); err != nil {
		logger.Warn("Failed to load task registry", "error", err)
	}
	runner := tasks.NewRunner(registry, logger)
	if cfg.EnableLogging && cfg.LogFile != "" {
		if err := runner.Add(tasks.NewLogRotateTask([]string{cfg.LogFile}, cfg.MaxLogSizeMB, a.Log)); err != nil {
			return err
		}
	}
	if a.History != nil && cfg.HistoryRetentionDays > 0 {
		if err := runner.Add(tasks.NewHistoryPruneTask(a.History, cfg.HistoryRetentionDays)); err != nil {
			return err
		}
	}
	runner.Start()
	stops = append(stops, runner.Stop)

	// 收件目录
	if cfg.InboxDir != "" {
		w, err := inbox.NewWatcher(cfg.InboxDir, a.Scheduler, logger)
		if err == nil {
			err = w.Start()
		}
		if err != nil {
			logger.Error("Inbox watcher disabled", "dir", cfg.InboxDir, "error", err)
		} else {
			stops = append(stops, w.Stop)
		}
	}

	// 本地 API
	if cfg.ListenAddr != "" {
		handler := server.NewHandler(ctx, a.Scheduler, a.History, logger)
		srv := server.New(cfg.ListenAddr, handler.Router(), logger)
		srv.Start()
		stops = append(stops, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Server forced to shutdown", "error", err)
			}
		})
	}

	if cfg.KeepAlive.Enabled {
		ka := keepalive.NewService(a.Auto, time.Duration(cfg.KeepAlive.IdleSeconds)*time.Second, logger)
		ka.Busy = a.Scheduler.Busy
		ka.Start(ctx)
		stops = append(stops, ka.Stop)
	}

	a.Scheduler.Start(ctx)
	stops = append(stops, a.Scheduler.Stop)

	if next, slot := a.Scheduler.Preview(); !next.IsZero() {
		logger.Info("Next check-in", "slot", slot, "at", next.Format(time.DateTime))
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	return nil
}

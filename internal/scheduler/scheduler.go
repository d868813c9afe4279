package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"humg.top/checkin_scheduler/internal/clock"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/queue"
	"humg.top/checkin_scheduler/internal/sequencer"
	"humg.top/checkin_scheduler/internal/storage"
)

// ErrBusy 已有签到流程在执行
var ErrBusy = errors.New("a check-in is already running")

// Runner 执行签到脚本（含重试）
type Runner interface {
	Run(ctx context.Context) (sequencer.Result, int)
}

// OutcomeWatcher 在等待结果期间主动探测签到结果
type OutcomeWatcher interface {
	Watch(ctx context.Context, since time.Time)
}

// Scheduler 定时签到调度器
type Scheduler struct {
	config  *models.Config
	runner  Runner
	records storage.RecordStore
	history storage.HistoryStore
	results *queue.ResultQueue
	watcher OutcomeWatcher
	logger  *slog.Logger

	// 可替换的时间源，便于测试
	Now    func() time.Time
	Sleep  clock.SleepFunc
	Jitter func(limit time.Duration) time.Duration

	ResultTimeout time.Duration // 等待结果上报
	ErrorBackoff  time.Duration // 单次循环出错后等待
	MaxLateness   time.Duration // 醒来晚于计划超过该值时放弃本次（如系统休眠），0 表示不检查
	SleepChunk    time.Duration // 长时间等待拆分为小段，便于感知墙上时钟跳变

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	nextRun time.Time
	nextFor models.Slot
	last    *models.Attempt

	runMu sync.Mutex // 同一时间只执行一个签到流程
}

// NewScheduler 创建调度器
func NewScheduler(
	config *models.Config,
	runner Runner,
	records storage.RecordStore,
	history storage.HistoryStore,
	results *queue.ResultQueue,
	logger *slog.Logger,
) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	resultTimeout := 2 * time.Minute
	if config.ResultTimeoutSeconds > 0 {
		resultTimeout = time.Duration(config.ResultTimeoutSeconds) * time.Second
	}
	return &Scheduler{
		config:        config,
		runner:        runner,
		records:       records,
		history:       history,
		results:       results,
		logger:        logger.With("component", "scheduler"),
		Now:           time.Now,
		Sleep:         clock.Sleep,
		Jitter:        randomJitter,
		ResultTimeout: resultTimeout,
		ErrorBackoff:  30 * time.Second,
		MaxLateness:   30 * time.Minute,
		SleepChunk:    time.Minute,
	}
}

// SetWatcher 设置等待结果期间运行的探测器
func (s *Scheduler) SetWatcher(w OutcomeWatcher) {
	s.watcher = w
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit) + 1))
}

// Start 启动调度循环，重复调用无副作用；配置未启用时直接返回
func (s *Scheduler) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info("Auto check-in disabled, scheduler not started")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	s.logger.Info("Scheduler started",
		"morning", s.config.MorningTime.String(),
		"evening", s.config.EveningTime.String(),
		"jitter_minutes", s.config.JitterMinutes,
		"strategy", s.config.ClickStrategy)

	go s.loop(ctx, s.done)
}

// Stop 停止调度循环并等待其退出（最多 5 秒），未运行时无副作用
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	select {
	case <-done:
		s.logger.Info("Scheduler stopped")
	case <-time.After(5 * time.Second):
		s.logger.Warn("Scheduler did not stop within 5s")
	}
}

// Running 调度循环是否在运行
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		if err := s.safeIterate(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Scheduler iteration failed", "error", err, "backoff", s.ErrorBackoff)
			if s.Sleep(ctx, s.ErrorBackoff) != nil {
				return
			}
		}
	}
}

// safeIterate 单次循环中的 panic 转换为错误，不影响后续调度
func (s *Scheduler) safeIterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Scheduler iteration panicked", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()
	return s.iterate(ctx)
}

// iterate 计算下一次签到时间，等待，醒来后按记录决定是否执行
func (s *Scheduler) iterate(ctx context.Context) error {
	now := s.Now()
	record := s.loadRecord(now)

	next, slot, day := nextDue(now, s.config, record, s.Jitter)
	s.setNext(next, slot)
	s.logger.Info("Next check-in scheduled",
		"slot", slot, "at", next.Format("2006-01-02 15:04:05"), "in", next.Sub(now).Round(time.Second))

	if err := s.sleepUntil(ctx, next); err != nil {
		return err
	}

	now = s.Now()
	if late := now.Sub(next); s.MaxLateness > 0 && late > s.MaxLateness {
		s.logger.Warn("Woke up too late, skipping this slot",
			"slot", slot, "expected", next.Format("15:04:05"), "actual", now.Format("15:04:05"), "late", late.Round(time.Second))
		s.skip(slot, day, now, "woke up late")
		return nil
	}

	// 随机偏移把时段推过零点时，记录会落到别的日期上
	if !startOfDay(now).Equal(day) {
		s.logger.Warn("Slot moved to another day by jitter, skipping",
			"slot", slot, "slot_day", day.Format(models.DateLayout), "actual", now.Format("2006-01-02 15:04:05"))
		s.skip(slot, day, now, "slot crossed midnight")
		return nil
	}

	// 以计划时段为准；按时刻推断的时段只用于核对
	if bySlot := slotFor(now, s.config); bySlot != slot {
		s.logger.Warn("Wake-up time falls outside the scheduled slot window",
			"slot", slot, "by_time_of_day", bySlot, "at", now.Format("15:04:05"))
	}
	record = s.loadRecord(now)
	if record.HasRun(slot, now) {
		s.logger.Info("Slot already done today, skipping", "slot", slot)
		return nil
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()
	s.execute(ctx, slot)
	return nil
}

// sleepUntil 分段等待到 target，按 Now 判断是否到达
func (s *Scheduler) sleepUntil(ctx context.Context, target time.Time) error {
	for {
		d := target.Sub(s.Now())
		if d <= 0 {
			return nil
		}
		if s.SleepChunk > 0 && d > s.SleepChunk {
			d = s.SleepChunk
		}
		if err := s.Sleep(ctx, d); err != nil {
			return err
		}
	}
}

// RunNow 立即执行一次手动签到，不写入每日记录；已有流程在执行时返回 ErrBusy
func (s *Scheduler) RunNow(ctx context.Context) (models.Attempt, error) {
	if !s.runMu.TryLock() {
		return models.Attempt{}, ErrBusy
	}
	defer s.runMu.Unlock()
	return s.execute(ctx, models.SlotManual), nil
}

// TriggerNow 在后台执行手动签到，立即返回；done 在结束时收到本次记录
func (s *Scheduler) TriggerNow(ctx context.Context, done func(models.Attempt)) error {
	if !s.runMu.TryLock() {
		return ErrBusy
	}
	go func() {
		defer s.runMu.Unlock()
		attempt := s.execute(ctx, models.SlotManual)
		if done != nil {
			done(attempt)
		}
	}()
	return nil
}

// execute 执行签到脚本、更新记录、等待结果；调用方需持有 runMu
func (s *Scheduler) execute(ctx context.Context, slot models.Slot) models.Attempt {
	attempt := models.Attempt{
		ID:        uuid.NewString(),
		Slot:      slot,
		StartedAt: s.Now(),
		Outcome:   models.OutcomeUnknown,
	}
	logger := s.logger.With("attempt_id", attempt.ID, "slot", slot)
	logger.Info("Check-in started")

	result, tries := s.runScript(ctx)
	attempt.FinishedAt = s.Now()
	attempt.Tries = tries
	attempt.Success = result.Success
	if !result.Success {
		attempt.FailedStep = int(result.Step)
		attempt.Reason = result.String()
		logger.Error("Check-in failed", "tries", tries, "result", result.String())
	} else {
		logger.Info("Check-in script completed", "tries", tries)
	}

	// 无论成败都记为已执行，避免外部依赖异常时反复触发
	if slot != models.SlotManual {
		s.markDone(slot, attempt.FinishedAt)
	}
	s.recordHistory(attempt)

	if result.Success {
		attempt.Outcome, attempt.OutcomeMessage = s.awaitOutcome(ctx, attempt.StartedAt, logger)
		s.recordHistory(attempt)
	}

	s.mu.Lock()
	last := attempt
	s.last = &last
	s.mu.Unlock()
	return attempt
}

// runScript 调用脚本执行器，panic 转为失败结果
func (s *Scheduler) runScript(ctx context.Context) (result sequencer.Result, tries int) {
	defer func() {
		if r := recover(); r != nil {
			result = sequencer.Failed(sequencer.StepNone, "unexpected panic", fmt.Errorf("%v", r))
		}
	}()
	return s.runner.Run(ctx)
}

// skip 放弃本次时段并记入历史；仍在时段所属日期内时标记为已执行
func (s *Scheduler) skip(slot models.Slot, day, now time.Time, reason string) {
	if startOfDay(now).Equal(day) {
		s.markDone(slot, now)
	}
	attempt := models.Attempt{
		ID:         uuid.NewString(),
		Slot:       slot,
		StartedAt:  now,
		FinishedAt: now,
		Reason:     reason,
		Outcome:    models.OutcomeSkipped,
	}
	s.recordHistory(attempt)

	s.mu.Lock()
	s.last = &attempt
	s.mu.Unlock()
}

func (s *Scheduler) markDone(slot models.Slot, at time.Time) {
	record := s.loadRecord(at)
	record.MarkRun(slot, at)
	if err := s.records.SaveRecord(record); err != nil {
		s.logger.Error("Failed to save daily record", "slot", slot, "error", err)
	}
}

func (s *Scheduler) loadRecord(now time.Time) *models.DailyRecord {
	record, err := s.records.LoadRecord(now)
	if err != nil {
		s.logger.Warn("Failed to load daily record, treating as empty", "error", err)
		return models.EmptyRecord(now)
	}
	return record
}

func (s *Scheduler) recordHistory(a models.Attempt) {
	if s.history == nil {
		return
	}
	// 写历史不受调度取消影响
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.history.RecordAttempt(ctx, a); err != nil {
		s.logger.Warn("Failed to record attempt history", "attempt_id", a.ID, "error", err)
	}
}

// awaitOutcome 在 ResultTimeout 内等待结果上报，丢弃 since 之前观察到的旧结果
func (s *Scheduler) awaitOutcome(ctx context.Context, since time.Time, logger *slog.Logger) (string, string) {
	if s.watcher != nil {
		wctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go s.watcher.Watch(wctx, since)
	}

	deadline := time.Now().Add(s.ResultTimeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		outcome, ok := s.results.DequeueWithTimeout(ctx, remaining)
		if !ok {
			break
		}
		if !outcome.ObservedAt.IsZero() && outcome.ObservedAt.Before(since) {
			logger.Debug("Discarding stale outcome", "outcome_id", outcome.ID, "observed_at", outcome.ObservedAt)
			continue
		}
		if outcome.Success {
			dropped := s.results.Clear()
			logger.Info("Check-in confirmed", "source", outcome.Source, "url", outcome.SourceURL,
				"message", outcome.Message, "dropped_duplicates", dropped)
			return models.OutcomeSuccess, outcome.Message
		}
		logger.Warn("Check-in reported failure", "source", outcome.Source, "url", outcome.SourceURL,
			"message", outcome.Message)
		return models.OutcomeFailure, outcome.Message
	}

	if ctx.Err() != nil {
		return models.OutcomeUnknown, "cancelled"
	}
	logger.Warn("No outcome reported in time, result unknown", "timeout", s.ResultTimeout)
	return models.OutcomeUnknown, ""
}

// PostOutcome 供外部上报签到结果，任意 goroutine 可调用
func (s *Scheduler) PostOutcome(o models.CheckInOutcome) models.CheckInOutcome {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.ObservedAt.IsZero() {
		o.ObservedAt = s.Now()
	}
	s.results.Enqueue(o)
	s.logger.Debug("Outcome posted", "outcome_id", o.ID, "success", o.Success, "source", o.Source)
	return o
}

func (s *Scheduler) setNext(at time.Time, slot models.Slot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRun = at
	s.nextFor = slot
}

// Status 调度器状态快照
type Status struct {
	Enabled         bool                `json:"enabled"`
	Running         bool                `json:"running"`
	Busy            bool                `json:"busy"`
	NextRun         *time.Time          `json:"next_run,omitempty"`
	NextSlot        models.Slot         `json:"next_slot,omitempty"`
	Record          *models.DailyRecord `json:"record"`
	LastAttempt     *models.Attempt     `json:"last_attempt,omitempty"`
	PendingOutcomes int                 `json:"pending_outcomes"`
}

// Status 返回当前状态
func (s *Scheduler) Status() Status {
	now := s.Now()
	st := Status{
		Enabled:         s.config.Enabled,
		Record:          s.loadRecord(now),
		PendingOutcomes: s.results.Len(),
	}

	st.Busy = s.Busy()

	s.mu.Lock()
	defer s.mu.Unlock()
	st.Running = s.cancel != nil
	if st.Running && !s.nextRun.IsZero() {
		next := s.nextRun
		st.NextRun = &next
		st.NextSlot = s.nextFor
	}
	if s.last != nil {
		last := *s.last
		st.LastAttempt = &last
	}
	return st
}

// Busy 是否有签到流程正在执行
func (s *Scheduler) Busy() bool {
	if s.runMu.TryLock() {
		s.runMu.Unlock()
		return false
	}
	return true
}

// Preview 不依赖运行状态计算下一次签到时间（随机偏移取当前随机数）
func (s *Scheduler) Preview() (time.Time, models.Slot) {
	now := s.Now()
	return calculateNextDue(now, s.config, s.loadRecord(now), s.Jitter)
}

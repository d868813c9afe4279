package sequencer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"humg.top/checkin_scheduler/internal/clock"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
)

// Step 签到脚本中的步骤编号
type Step int

const (
	StepNone          Step = iota
	StepActivateMain       // 激活主窗口
	StepClickFirst         // 点击第一张图片
	StepActivatePopup      // 等待并激活弹出窗口
	StepClickSecond        // 点击第二张图片
)

func (s Step) String() string {
	switch s {
	case StepActivateMain:
		return "activate main window"
	case StepClickFirst:
		return "click first target"
	case StepActivatePopup:
		return "activate popup window"
	case StepClickSecond:
		return "click second target"
	}
	return "none"
}

// Result 一次脚本执行的结果
type Result struct {
	Success bool
	Step    Step
	Reason  string
	Err     error
}

// Succeeded 成功结果
func Succeeded() Result {
	return Result{Success: true}
}

// Failed 在 step 失败
func Failed(step Step, reason string, err error) Result {
	return Result{Step: step, Reason: reason, Err: err}
}

func (r Result) String() string {
	if r.Success {
		return "success"
	}
	if r.Err != nil {
		return fmt.Sprintf("step %d (%s): %s: %v", r.Step, r.Step, r.Reason, r.Err)
	}
	return fmt.Sprintf("step %d (%s): %s", r.Step, r.Step, r.Reason)
}

// WindowFinder 窗口定位
type WindowFinder interface {
	FindAndActivate(ctx context.Context, title string) (osauto.Window, error)
	WaitAndActivate(ctx context.Context, title string, attempts int, interval time.Duration) (osauto.Window, error)
}

// CoordinateResolver 图片坐标解析
type CoordinateResolver interface {
	Resolve(ctx context.Context, imagePath string) (osauto.Point, error)
}

// Clicker 点击分发
type Clicker interface {
	Click(ctx context.Context, pt osauto.Point, handle uintptr, strategy models.ClickStrategy) bool
}

// Script 签到脚本参数
type Script struct {
	MainTitle   string
	PopupTitle  string
	FirstImage  string
	SecondImage string
	Strategy    models.ClickStrategy
}

// ScriptFromConfig 从配置构造脚本
func ScriptFromConfig(cfg *models.Config) Script {
	return Script{
		MainTitle:   cfg.IMWindowTitle,
		PopupTitle:  cfg.PopupWindowTitle,
		FirstImage:  cfg.FirstImagePath,
		SecondImage: cfg.SecondImagePath,
		Strategy:    cfg.ClickStrategy,
	}
}

// Sequencer 按顺序执行四步签到脚本，失败时整体重试
type Sequencer struct {
	script   Script
	windows  WindowFinder
	resolver CoordinateResolver
	clicker  Clicker
	logger   *slog.Logger

	MaxAttempts   int
	RetryDelay    time.Duration
	PopupLookups  int
	PopupInterval time.Duration
	Sleep         clock.SleepFunc
}

// New 创建脚本执行器
func New(script Script, windows WindowFinder, resolver CoordinateResolver, clicker Clicker, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		script:        script,
		windows:       windows,
		resolver:      resolver,
		clicker:       clicker,
		logger:        logger.With("component", "sequencer"),
		MaxAttempts:   5,
		RetryDelay:    5 * time.Second,
		PopupLookups:  10,
		PopupInterval: 2 * time.Second,
		Sleep:         clock.Sleep,
	}
}

// Run 最多执行 MaxAttempts 次脚本，首次成功即返回；返回最终结果和实际尝试次数
// 每次重试都从第一步重新开始
func (s *Sequencer) Run(ctx context.Context) (Result, int) {
	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var last Result
	for i := 1; i <= attempts; i++ {
		if i > 1 {
			s.logger.Info("Retrying check-in script", "attempt", i, "of", attempts, "after", s.RetryDelay)
			if err := s.Sleep(ctx, s.RetryDelay); err != nil {
				return Failed(last.Step, "cancelled", err), i - 1
			}
		}

		last = s.RunOnce(ctx)
		if last.Success {
			s.logger.Info("Check-in script succeeded", "attempt", i)
			return last, i
		}
		s.logger.Warn("Check-in script failed", "attempt", i, "step", int(last.Step), "result", last.String())

		if ctx.Err() != nil {
			return last, i
		}
	}

	s.logger.Error("Check-in script failed after all attempts", "attempts", attempts, "result", last.String())
	return last, attempts
}

// RunOnce 执行一次完整脚本，任何 panic 都转换为对应步骤的失败
func (s *Sequencer) RunOnce(ctx context.Context) (result Result) {
	step := StepNone
	defer func() {
		if r := recover(); r != nil {
			result = Failed(step, "unexpected panic", fmt.Errorf("%v", r))
		}
	}()

	step = StepActivateMain
	mainWin, err := s.windows.FindAndActivate(ctx, s.script.MainTitle)
	if err != nil {
		return Failed(step, "main window not found", err)
	}

	step = StepClickFirst
	if r := s.clickImage(ctx, step, s.script.FirstImage, mainWin); !r.Success {
		return r
	}

	step = StepActivatePopup
	popup, err := s.windows.WaitAndActivate(ctx, s.script.PopupTitle, s.PopupLookups, s.PopupInterval)
	if err != nil {
		return Failed(step, "popup window not found", err)
	}

	step = StepClickSecond
	return s.clickImage(ctx, step, s.script.SecondImage, popup)
}

func (s *Sequencer) clickImage(ctx context.Context, step Step, image string, target osauto.Window) Result {
	pt, err := s.resolver.Resolve(ctx, image)
	if err != nil {
		return Failed(step, "image not resolved", err)
	}
	if !s.clicker.Click(ctx, pt, target.Handle, s.script.Strategy) {
		return Failed(step, "click failed", nil)
	}
	return Succeeded()
}

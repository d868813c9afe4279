package input

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"humg.top/checkin_scheduler/internal/clock"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
)

// Dispatcher 按点击方式执行鼠标点击
type Dispatcher struct {
	auto   osauto.Automation
	logger *slog.Logger

	MoveDelay     time.Duration // 移动光标后等待
	PressDelay    time.Duration // 按下与抬起之间
	PostDelay     time.Duration // 后台点击两条消息之间
	DoubleGap     time.Duration // 双击两次点击之间
	FallbackDelay time.Duration // Auto 模式切换方式前等待
	Settle        time.Duration // 点击完成后等待目标程序响应
	Sleep         clock.SleepFunc
}

// NewDispatcher 创建点击分发器
func NewDispatcher(auto osauto.Automation, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		auto:          auto,
		logger:        logger.With("component", "input"),
		MoveDelay:     200 * time.Millisecond,
		PressDelay:    100 * time.Millisecond,
		PostDelay:     50 * time.Millisecond,
		DoubleGap:     100 * time.Millisecond,
		FallbackDelay: 500 * time.Millisecond,
		Settle:        time.Second,
		Sleep:         clock.Sleep,
	}
}

// Click 在屏幕坐标 pt 处点击，handle 为目标窗口（可为 0）
// 无论成败都会等待 Settle
func (d *Dispatcher) Click(ctx context.Context, pt osauto.Point, handle uintptr, strategy models.ClickStrategy) bool {
	d.logger.Debug("Click", "x", pt.X, "y", pt.Y, "strategy", strategy, "handle", handle)

	var ok bool
	switch strategy {
	case models.ClickForegroundOnly:
		ok = d.attempt(ctx, "foreground", func() error { return d.foreground(ctx, pt) })
	case models.ClickBackgroundOnly:
		ok = d.attempt(ctx, "background", func() error { return d.background(ctx, pt, handle) })
	case models.ClickRawInput:
		ok = d.attempt(ctx, "raw input", func() error { return d.rawInput(ctx, pt) })
	case models.ClickDoubleClick:
		ok = d.attempt(ctx, "double click", func() error { return d.doubleClick(ctx, pt) })
	default:
		ok = d.cascade(ctx, pt, handle)
	}

	if ok {
		d.logger.Info("Click succeeded", "x", pt.X, "y", pt.Y, "strategy", strategy)
	} else {
		d.logger.Warn("Click failed", "x", pt.X, "y", pt.Y, "strategy", strategy)
	}

	if err := d.Sleep(ctx, d.Settle); err != nil {
		return false
	}
	return ok
}

// cascade 依次尝试前台、底层注入、后台（有句柄时）、双击
func (d *Dispatcher) cascade(ctx context.Context, pt osauto.Point, handle uintptr) bool {
	type method struct {
		name string
		fn   func() error
	}
	methods := []method{
		{"foreground", func() error { return d.foreground(ctx, pt) }},
		{"raw input", func() error { return d.rawInput(ctx, pt) }},
	}
	if handle != 0 {
		methods = append(methods, method{"background", func() error { return d.background(ctx, pt, handle) }})
	}
	methods = append(methods, method{"double click", func() error { return d.doubleClick(ctx, pt) }})

	for i, m := range methods {
		if i > 0 {
			if err := d.Sleep(ctx, d.FallbackDelay); err != nil {
				return false
			}
		}
		if d.attempt(ctx, m.name, m.fn) {
			return true
		}
	}
	d.logger.Warn("All click methods failed", "x", pt.X, "y", pt.Y)
	return false
}

// attempt 执行一种点击方式，panic 视为失败
func (d *Dispatcher) attempt(ctx context.Context, name string, fn func() error) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Click method panicked", "method", name, "panic", r)
			ok = false
		}
	}()
	if err := fn(); err != nil {
		d.logger.Debug("Click method failed", "method", name, "error", err)
		return false
	}
	return ctx.Err() == nil
}

func (d *Dispatcher) foreground(ctx context.Context, pt osauto.Point) error {
	if err := d.auto.MoveCursor(pt.X, pt.Y); err != nil {
		return err
	}
	if err := d.Sleep(ctx, d.MoveDelay); err != nil {
		return err
	}
	return d.press(ctx)
}

func (d *Dispatcher) press(ctx context.Context) error {
	if err := d.auto.MouseButton(true); err != nil {
		return err
	}
	// 已按下时无论如何都要抬起
	sleepErr := d.Sleep(ctx, d.PressDelay)
	if err := d.auto.MouseButton(false); err != nil {
		return err
	}
	return sleepErr
}

func (d *Dispatcher) rawInput(ctx context.Context, pt osauto.Point) error {
	if err := d.auto.MoveCursor(pt.X, pt.Y); err != nil {
		return err
	}
	if err := d.Sleep(ctx, d.MoveDelay); err != nil {
		return err
	}
	n, err := d.auto.InjectClick(pt.X, pt.Y)
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("injected %d of 2 events", n)
	}
	return nil
}

func (d *Dispatcher) background(ctx context.Context, pt osauto.Point, handle uintptr) error {
	if handle == 0 {
		return fmt.Errorf("background click needs a window handle")
	}
	cx, cy, err := d.auto.ScreenToClient(handle, pt.X, pt.Y)
	if err != nil {
		return err
	}
	if err := d.auto.PostMouseMessage(handle, osauto.WMLButtonDown, cx, cy); err != nil {
		return err
	}
	sleepErr := d.Sleep(ctx, d.PostDelay)
	if err := d.auto.PostMouseMessage(handle, osauto.WMLButtonUp, cx, cy); err != nil {
		return err
	}
	return sleepErr
}

func (d *Dispatcher) doubleClick(ctx context.Context, pt osauto.Point) error {
	if err := d.foreground(ctx, pt); err != nil {
		return err
	}
	if err := d.Sleep(ctx, d.DoubleGap); err != nil {
		return err
	}
	return d.foreground(ctx, pt)
}

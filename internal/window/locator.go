package window

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"humg.top/checkin_scheduler/internal/clock"
	"humg.top/checkin_scheduler/internal/osauto"
)

// ErrNotFound 没有标题匹配的窗口
var ErrNotFound = errors.New("window not found")

// 任务栏、桌面、壁纸宿主和开始菜单，不参与匹配
var excludedClasses = map[string]bool{
	"Shell_TrayWnd":  true,
	"Progman":        true,
	"WorkerW":        true,
	"DV2ControlHost": true,
}

// IsExcluded 判断窗口类是否为系统外壳窗口
func IsExcluded(class string) bool {
	return excludedClasses[class]
}

// Locator 按标题查找并激活顶层窗口
type Locator struct {
	auto   osauto.Automation
	logger *slog.Logger

	// Settle 激活后等待窗口管理器完成切换
	Settle time.Duration
	Sleep  clock.SleepFunc
}

// NewLocator 创建窗口定位器
func NewLocator(auto osauto.Automation, logger *slog.Logger) *Locator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		auto:   auto,
		logger: logger.With("component", "window"),
		Settle: 200 * time.Millisecond,
		Sleep:  clock.Sleep,
	}
}

// Find 枚举一次窗口，返回第一个（Z 序最上层）标题包含 title 的窗口及匹配总数
// 不按可见性过滤，最小化或隐藏到托盘的窗口同样参与匹配
func (l *Locator) Find(title string) (osauto.Window, int, error) {
	if title == "" {
		return osauto.Window{}, 0, fmt.Errorf("%w: empty title", ErrNotFound)
	}

	windows, err := l.auto.Windows()
	if err != nil {
		return osauto.Window{}, 0, fmt.Errorf("enumerate windows: %w", err)
	}

	var first osauto.Window
	matches := 0
	for _, w := range windows {
		if w.Title == "" || IsExcluded(w.Class) {
			continue
		}
		if !strings.Contains(w.Title, title) {
			continue
		}
		if matches == 0 {
			first = w
		}
		matches++
	}

	if matches == 0 {
		return osauto.Window{}, 0, fmt.Errorf("%w: %q", ErrNotFound, title)
	}
	return first, matches, nil
}

// FindAndActivate 查找窗口并将其恢复、显示、置于前台
func (l *Locator) FindAndActivate(ctx context.Context, title string) (osauto.Window, error) {
	w, matches, err := l.Find(title)
	if err != nil {
		return osauto.Window{}, err
	}
	if matches > 1 {
		l.logger.Warn("Multiple windows match title, using topmost",
			"title", title, "matches", matches, "handle", w.Handle, "window_title", w.Title)
	}

	if err := l.Activate(ctx, w); err != nil {
		return osauto.Window{}, err
	}
	return w, nil
}

// Activate 恢复最小化、显示隐藏窗口并请求前台焦点
func (l *Locator) Activate(ctx context.Context, w osauto.Window) error {
	if w.Minimized {
		if err := l.auto.Restore(w.Handle); err != nil {
			return fmt.Errorf("restore window %q: %w", w.Title, err)
		}
	} else if !w.Visible {
		if err := l.auto.Show(w.Handle); err != nil {
			return fmt.Errorf("show window %q: %w", w.Title, err)
		}
	}

	// 系统可能拒绝前台请求，后台点击仍可使用句柄
	if err := l.auto.SetForeground(w.Handle); err != nil {
		l.logger.Warn("Foreground request refused", "title", w.Title, "error", err)
	}

	l.logger.Debug("Window activated", "title", w.Title, "handle", w.Handle, "state", w.State())
	return l.Sleep(ctx, l.Settle)
}

// WaitAndActivate 最多查找 attempts 次，每次间隔 interval
func (l *Locator) WaitAndActivate(ctx context.Context, title string, attempts int, interval time.Duration) (osauto.Window, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if err := l.Sleep(ctx, interval); err != nil {
				return osauto.Window{}, err
			}
		}
		w, err := l.FindAndActivate(ctx, title)
		if err == nil {
			return w, nil
		}
		lastErr = err
		if !errors.Is(err, ErrNotFound) && ctx.Err() != nil {
			return osauto.Window{}, err
		}
		l.logger.Debug("Window not ready", "title", title, "lookup", i+1, "of", attempts)
	}
	return osauto.Window{}, lastErr
}

// List 返回有标题的窗口，filter 非空时按标题做大小写不敏感过滤
func (l *Locator) List(filter string) ([]osauto.Window, error) {
	windows, err := l.auto.Windows()
	if err != nil {
		return nil, fmt.Errorf("enumerate windows: %w", err)
	}

	filter = strings.ToLower(filter)
	var out []osauto.Window
	for _, w := range windows {
		if w.Title == "" || IsExcluded(w.Class) {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(w.Title), filter) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

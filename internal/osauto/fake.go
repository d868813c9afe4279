package osauto

import (
	"sync"
	"time"
)

// Call 记录 Fake 收到的一次调用
type Call struct {
	Op     string
	Handle uintptr
	X, Y   int
	Msg    uint32
	Down   bool
}

// Fake 脚本化的 Automation 实现，用于测试和演练
type Fake struct {
	mu sync.Mutex

	// WindowList 固定的窗口列表；WindowsFunc 不为空时优先使用，n 为调用序号（从 0 开始）
	WindowList  []Window
	WindowsFunc func(n int) ([]Window, error)

	// Errors 按操作名注入错误，如 "SetForeground"、"MoveCursor"
	Errors map[string]error
	// Accepted InjectClick 返回的接受事件数，默认 2
	Accepted *int
	Idle     time.Duration

	// ClientOffset ScreenToClient 减去的偏移
	ClientOffset Point

	calls       []Call
	windowCalls int
}

// NewFake 使用给定窗口列表创建 Fake
func NewFake(windows ...Window) *Fake {
	return &Fake{WindowList: windows}
}

// Calls 返回调用记录副本
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// Ops 仅返回操作名序列
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, len(f.calls))
	for i, c := range f.calls {
		ops[i] = c.Op
	}
	return ops
}

// SetError 设置或清除某个操作的错误
func (f *Fake) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Errors == nil {
		f.Errors = make(map[string]error)
	}
	if err == nil {
		delete(f.Errors, op)
		return
	}
	f.Errors[op] = err
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.Errors[c.Op]
}

func (f *Fake) Windows() ([]Window, error) {
	f.mu.Lock()
	n := f.windowCalls
	f.windowCalls++
	fn := f.WindowsFunc
	list := append([]Window(nil), f.WindowList...)
	f.calls = append(f.calls, Call{Op: "Windows"})
	err := f.Errors["Windows"]
	f.mu.Unlock()

	if fn != nil {
		return fn(n)
	}
	return list, err
}

func (f *Fake) Restore(handle uintptr) error {
	if err := f.record(Call{Op: "Restore", Handle: handle}); err != nil {
		return err
	}
	f.update(handle, func(w *Window) { w.Minimized = false; w.Visible = true })
	return nil
}

func (f *Fake) Show(handle uintptr) error {
	if err := f.record(Call{Op: "Show", Handle: handle}); err != nil {
		return err
	}
	f.update(handle, func(w *Window) { w.Visible = true })
	return nil
}

func (f *Fake) update(handle uintptr, fn func(*Window)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.WindowList {
		if f.WindowList[i].Handle == handle {
			fn(&f.WindowList[i])
		}
	}
}

func (f *Fake) SetForeground(handle uintptr) error {
	return f.record(Call{Op: "SetForeground", Handle: handle})
}

func (f *Fake) MoveCursor(x, y int) error {
	return f.record(Call{Op: "MoveCursor", X: x, Y: y})
}

func (f *Fake) MouseButton(down bool) error {
	return f.record(Call{Op: "MouseButton", Down: down})
}

func (f *Fake) InjectClick(x, y int) (int, error) {
	err := f.record(Call{Op: "InjectClick", X: x, Y: y})
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Accepted != nil {
		return *f.Accepted, nil
	}
	return 2, nil
}

func (f *Fake) ScreenToClient(handle uintptr, x, y int) (int, int, error) {
	if err := f.record(Call{Op: "ScreenToClient", Handle: handle, X: x, Y: y}); err != nil {
		return 0, 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return x - f.ClientOffset.X, y - f.ClientOffset.Y, nil
}

func (f *Fake) PostMouseMessage(handle uintptr, msg uint32, clientX, clientY int) error {
	return f.record(Call{Op: "PostMouseMessage", Handle: handle, Msg: msg, X: clientX, Y: clientY})
}

func (f *Fake) IdleTime() (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "IdleTime"})
	return f.Idle, f.Errors["IdleTime"]
}

func (f *Fake) NudgeCursor(dx, dy int) error {
	return f.record(Call{Op: "NudgeCursor", X: dx, Y: dy})
}

var _ Automation = (*Fake)(nil)

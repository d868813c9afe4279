// Package osauto 封装窗口枚举与鼠标输入等操作系统调用
package osauto

import (
	"errors"
	"time"
)

// ErrUnsupported 当前平台或后端不支持该操作
var ErrUnsupported = errors.New("operation not supported on this platform")

// 后台点击使用的窗口消息
const (
	WMLButtonDown uint32 = 0x0201
	WMLButtonUp   uint32 = 0x0202
)

// Window 顶层窗口快照
type Window struct {
	Handle    uintptr `json:"handle"`
	Title     string  `json:"title"`
	Class     string  `json:"class"`
	PID       uint32  `json:"pid"`
	Process   string  `json:"process"` // 可执行文件名，不含路径
	Minimized bool    `json:"minimized"`
	Visible   bool    `json:"visible"`
}

// State 窗口状态描述
func (w Window) State() string {
	switch {
	case w.Minimized:
		return "minimized"
	case !w.Visible:
		return "hidden"
	default:
		return "visible"
	}
}

// Point 屏幕坐标
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Automation 操作系统自动化接口
type Automation interface {
	// Windows 按 Z 序（自顶向下）返回全部顶层窗口，包括最小化和隐藏的窗口
	Windows() ([]Window, error)
	Restore(handle uintptr) error
	Show(handle uintptr) error
	SetForeground(handle uintptr) error

	MoveCursor(x, y int) error
	// MouseButton 在当前光标位置按下或抬起左键
	MouseButton(down bool) error
	// InjectClick 以底层输入注入一次完整点击，返回被系统接受的事件数
	InjectClick(x, y int) (int, error)

	ScreenToClient(handle uintptr, x, y int) (int, int, error)
	PostMouseMessage(handle uintptr, msg uint32, clientX, clientY int) error

	// IdleTime 距离上次用户输入的时长
	IdleTime() (time.Duration, error)
	// NudgeCursor 相对移动光标
	NudgeCursor(dx, dy int) error
}

// MouseLParam 组合后台点击消息的 lParam
func MouseLParam(x, y int) uintptr {
	return uintptr(uint32(y)<<16 | uint32(x)&0xFFFF)
}

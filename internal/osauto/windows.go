//go:build windows

package osauto

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32   = windows.NewLazySystemDLL("user32.dll")
	kernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procEnumWindows              = user32.NewProc("EnumWindows")
	procGetWindowTextW           = user32.NewProc("GetWindowTextW")
	procGetWindowTextLengthW     = user32.NewProc("GetWindowTextLengthW")
	procGetClassNameW            = user32.NewProc("GetClassNameW")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procIsIconic                 = user32.NewProc("IsIconic")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procShowWindow               = user32.NewProc("ShowWindow")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procSetCursorPos             = user32.NewProc("SetCursorPos")
	procMouseEvent               = user32.NewProc("mouse_event")
	procSendInput                = user32.NewProc("SendInput")
	procScreenToClient           = user32.NewProc("ScreenToClient")
	procPostMessageW             = user32.NewProc("PostMessageW")
	procGetLastInputInfo         = user32.NewProc("GetLastInputInfo")
	procGetTickCount             = kernel32.NewProc("GetTickCount")
)

const (
	swShow    = 5
	swRestore = 9

	mouseEventMove     = 0x0001
	mouseEventLeftDown = 0x0002
	mouseEventLeftUp   = 0x0004

	inputMouse = 0
)

type mouseInput struct {
	dx        int32
	dy        int32
	mouseData uint32
	flags     uint32
	time      uint32
	extraInfo uintptr
}

type input struct {
	typ uint32
	mi  mouseInput
}

type lastInputInfo struct {
	size uint32
	time uint32
}

type point struct {
	x, y int32
}

// win32 基于 user32 的实现
type win32 struct{}

// Native 返回当前平台的实现
func Native() (Automation, error) {
	if err := procEnumWindows.Find(); err != nil {
		return nil, fmt.Errorf("load user32: %w", err)
	}
	return win32{}, nil
}

// 回调数量有进程级上限，只创建一次，用锁保护收集结果
var (
	enumMu     sync.Mutex
	enumResult []Window
	enumProc   = windows.NewCallback(func(hwnd uintptr, _ uintptr) uintptr {
		enumResult = append(enumResult, describe(hwnd))
		return 1
	})
)

func (win32) Windows() ([]Window, error) {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumResult = nil
	r, _, err := procEnumWindows.Call(enumProc, 0)
	list := enumResult
	enumResult = nil
	if r == 0 {
		return nil, fmt.Errorf("EnumWindows: %w", err)
	}
	return list, nil
}

func describe(hwnd uintptr) Window {
	w := Window{Handle: hwnd}

	n, _, _ := procGetWindowTextLengthW.Call(hwnd)
	if n > 0 {
		buf := make([]uint16, n+1)
		procGetWindowTextW.Call(hwnd, uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		w.Title = windows.UTF16ToString(buf)
	}

	cls := make([]uint16, 256)
	procGetClassNameW.Call(hwnd, uintptr(unsafe.Pointer(&cls[0])), uintptr(len(cls)))
	w.Class = windows.UTF16ToString(cls)

	var pid uint32
	procGetWindowThreadProcessId.Call(hwnd, uintptr(unsafe.Pointer(&pid)))
	w.PID = pid
	w.Process = processName(pid)

	iconic, _, _ := procIsIconic.Call(hwnd)
	visible, _, _ := procIsWindowVisible.Call(hwnd)
	w.Minimized = iconic != 0
	w.Visible = visible != 0
	return w
}

func processName(pid uint32) string {
	if pid == 0 {
		return ""
	}
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return ""
	}
	defer windows.CloseHandle(h)

	buf := make([]uint16, windows.MAX_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(h, 0, &buf[0], &size); err != nil {
		return ""
	}
	return filepath.Base(windows.UTF16ToString(buf[:size]))
}

func (win32) Restore(handle uintptr) error {
	procShowWindow.Call(handle, swRestore)
	return nil
}

func (win32) Show(handle uintptr) error {
	procShowWindow.Call(handle, swShow)
	return nil
}

func (win32) SetForeground(handle uintptr) error {
	r, _, err := procSetForegroundWindow.Call(handle)
	if r == 0 {
		return fmt.Errorf("SetForegroundWindow: %w", err)
	}
	return nil
}

func (win32) MoveCursor(x, y int) error {
	r, _, err := procSetCursorPos.Call(uintptr(int32(x)), uintptr(int32(y)))
	if r == 0 {
		return fmt.Errorf("SetCursorPos: %w", err)
	}
	return nil
}

func (win32) MouseButton(down bool) error {
	flag := uintptr(mouseEventLeftUp)
	if down {
		flag = mouseEventLeftDown
	}
	procMouseEvent.Call(flag, 0, 0, 0, 0)
	return nil
}

func (w win32) InjectClick(x, y int) (int, error) {
	if err := w.MoveCursor(x, y); err != nil {
		return 0, err
	}
	inputs := []input{
		{typ: inputMouse, mi: mouseInput{flags: mouseEventLeftDown}},
		{typ: inputMouse, mi: mouseInput{flags: mouseEventLeftUp}},
	}
	n, _, err := procSendInput.Call(
		uintptr(len(inputs)),
		uintptr(unsafe.Pointer(&inputs[0])),
		unsafe.Sizeof(inputs[0]),
	)
	if n == 0 {
		return 0, fmt.Errorf("SendInput: %w", err)
	}
	return int(n), nil
}

func (win32) ScreenToClient(handle uintptr, x, y int) (int, int, error) {
	p := point{x: int32(x), y: int32(y)}
	r, _, err := procScreenToClient.Call(handle, uintptr(unsafe.Pointer(&p)))
	if r == 0 {
		return 0, 0, fmt.Errorf("ScreenToClient: %w", err)
	}
	return int(p.x), int(p.y), nil
}

func (win32) PostMouseMessage(handle uintptr, msg uint32, clientX, clientY int) error {
	r, _, err := procPostMessageW.Call(handle, uintptr(msg), 0, MouseLParam(clientX, clientY))
	if r == 0 {
		return fmt.Errorf("PostMessage: %w", err)
	}
	return nil
}

func (win32) IdleTime() (time.Duration, error) {
	info := lastInputInfo{size: uint32(unsafe.Sizeof(lastInputInfo{}))}
	r, _, err := procGetLastInputInfo.Call(uintptr(unsafe.Pointer(&info)))
	if r == 0 {
		return 0, fmt.Errorf("GetLastInputInfo: %w", err)
	}
	tick, _, _ := procGetTickCount.Call()
	return time.Duration(uint32(tick)-info.time) * time.Millisecond, nil
}

func (win32) NudgeCursor(dx, dy int) error {
	procMouseEvent.Call(mouseEventMove, uintptr(int32(dx)), uintptr(int32(dy)), 0, 0)
	return nil
}

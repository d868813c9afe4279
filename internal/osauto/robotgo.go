//go:build !windows && robotgo

package osauto

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-vgo/robotgo"
)

// robotgoBackend 以进程为粒度模拟窗口，Handle 即 PID
type robotgoBackend struct{}

// Native 返回 robotgo 实现
func Native() (Automation, error) {
	return robotgoBackend{}, nil
}

func (robotgoBackend) Windows() ([]Window, error) {
	procs, err := robotgo.Process()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	var list []Window
	for _, p := range procs {
		title := robotgo.GetTitle(p.Pid)
		if title == "" {
			continue
		}
		list = append(list, Window{
			Handle:  uintptr(p.Pid),
			Title:   title,
			PID:     uint32(p.Pid),
			Process: filepath.Base(p.Name),
			Visible: true,
		})
	}
	return list, nil
}

func (robotgoBackend) Restore(handle uintptr) error {
	robotgo.MaxWindow(int(handle))
	return nil
}

func (robotgoBackend) Show(handle uintptr) error {
	return nil
}

func (robotgoBackend) SetForeground(handle uintptr) error {
	if err := robotgo.ActivePid(int(handle)); err != nil {
		return fmt.Errorf("activate pid %d: %w", handle, err)
	}
	return nil
}

func (robotgoBackend) MoveCursor(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (robotgoBackend) MouseButton(down bool) error {
	if down {
		return robotgo.Toggle("left")
	}
	return robotgo.Toggle("left", "up")
}

func (b robotgoBackend) InjectClick(x, y int) (int, error) {
	robotgo.Move(x, y)
	accepted := 0
	if err := robotgo.Toggle("left"); err != nil {
		return accepted, err
	}
	accepted++
	if err := robotgo.Toggle("left", "up"); err != nil {
		return accepted, err
	}
	return accepted + 1, nil
}

func (robotgoBackend) ScreenToClient(handle uintptr, x, y int) (int, int, error) {
	return 0, 0, ErrUnsupported
}

func (robotgoBackend) PostMouseMessage(handle uintptr, msg uint32, clientX, clientY int) error {
	return ErrUnsupported
}

func (robotgoBackend) IdleTime() (time.Duration, error) {
	return 0, ErrUnsupported
}

func (robotgoBackend) NudgeCursor(dx, dy int) error {
	robotgo.MoveRelative(dx, dy)
	return nil
}

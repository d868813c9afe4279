//go:build !windows && !robotgo

package osauto

// Native 非 Windows 平台默认没有可用实现，使用 -tags robotgo 构建可启用 robotgo 后端
func Native() (Automation, error) {
	return nil, ErrUnsupported
}

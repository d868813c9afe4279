package matcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"humg.top/checkin_scheduler/internal/osauto"
)

var (
	// ErrNoMatch 匹配程序以非零状态退出，通常表示屏幕上没有找到目标
	ErrNoMatch = errors.New("image not matched")
	// ErrMalformedOutput 输出不是 "x,y"
	ErrMalformedOutput = errors.New("malformed matcher output")
	// ErrTimeout 匹配程序超时
	ErrTimeout = errors.New("matcher timed out")
)

// Resolver 调用外部图像匹配程序获取目标坐标
// 命令形式为 <path> [args...] <image>，参数按数组传递，不经过 shell
type Resolver struct {
	path    string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// NewResolver 创建坐标解析器
func NewResolver(path string, args []string, timeout time.Duration, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		path:    path,
		args:    append([]string(nil), args...),
		timeout: timeout,
		logger:  logger.With("component", "matcher"),
	}
}

// Resolve 返回图片在屏幕上的坐标
func (r *Resolver) Resolve(ctx context.Context, imagePath string) (osauto.Point, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.args...), imagePath)
	cmd := exec.CommandContext(ctx, r.path, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return osauto.Point{}, fmt.Errorf("%w after %s: %s", ErrTimeout, r.timeout, imagePath)
		}
		if ctx.Err() != nil {
			return osauto.Point{}, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.logger.Debug("Matcher exited non-zero", "image", imagePath, "code", exitErr.ExitCode(),
				"stderr", strings.TrimSpace(stderr.String()))
			return osauto.Point{}, fmt.Errorf("%w: %s (exit %d)", ErrNoMatch, imagePath, exitErr.ExitCode())
		}
		return osauto.Point{}, fmt.Errorf("run matcher: %w", err)
	}

	pt, err := ParsePoint(stdout.String())
	if err != nil {
		return osauto.Point{}, err
	}
	r.logger.Debug("Image matched", "image", imagePath, "x", pt.X, "y", pt.Y, "elapsed", elapsed)
	return pt, nil
}

// ParsePoint 解析 "x,y"
func ParsePoint(out string) (osauto.Point, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return osauto.Point{}, fmt.Errorf("%w: empty output", ErrMalformedOutput)
	}

	xs, ys, ok := strings.Cut(out, ",")
	if !ok {
		return osauto.Point{}, fmt.Errorf("%w: %q", ErrMalformedOutput, out)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(xs))
	y, errY := strconv.Atoi(strings.TrimSpace(ys))
	if errX != nil || errY != nil {
		return osauto.Point{}, fmt.Errorf("%w: %q", ErrMalformedOutput, out)
	}
	return osauto.Point{X: x, Y: y}, nil
}

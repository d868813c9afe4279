package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss/table"

	"humg.top/checkin_scheduler/internal/inbox"
	"humg.top/checkin_scheduler/internal/input"
	"humg.top/checkin_scheduler/internal/matcher"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
	"humg.top/checkin_scheduler/internal/scheduler"
	"humg.top/checkin_scheduler/internal/storage"
	"humg.top/checkin_scheduler/internal/window"
)

// RunOnce 立即执行一次手动签到，不写入每日记录
func RunOnce(ctx context.Context, sched *scheduler.Scheduler, out io.Writer) error {
	attempt, err := sched.RunNow(ctx)
	if err != nil {
		return err
	}
	printAttempt(out, attempt)
	if !attempt.Success {
		return fmt.Errorf("check-in failed: %s", attempt.Reason)
	}
	return nil
}

func printAttempt(out io.Writer, a models.Attempt) {
	fmt.Fprintf(out, "%s 签到%s (%d 次尝试, 用时 %s)\n",
		mark(a.Success), map[bool]string{true: "脚本完成", false: "失败"}[a.Success],
		a.Tries, a.FinishedAt.Sub(a.StartedAt).Round(time.Second))
	if a.Reason != "" {
		fmt.Fprint(out, field("原因", a.Reason))
	}
	fmt.Fprint(out, field("结果", outcomeText(a.Outcome)))
	if a.OutcomeMessage != "" {
		fmt.Fprint(out, field("说明", a.OutcomeMessage))
	}
}

func outcomeText(outcome string) string {
	switch outcome {
	case models.OutcomeSuccess:
		return okStyle.Render(outcome)
	case models.OutcomeFailure:
		return failStyle.Render(outcome)
	default:
		return warnStyle.Render(outcome)
	}
}

// RunMatch 测试图像匹配
func RunMatch(ctx context.Context, resolver *matcher.Resolver, image string, out io.Writer) error {
	start := time.Now()
	pt, err := resolver.Resolve(ctx, image)
	if err != nil {
		fmt.Fprintf(out, "%s 匹配失败: %v\n", mark(false), err)
		return err
	}
	fmt.Fprintf(out, "%s 找到目标: (%d, %d) %s\n", mark(true), pt.X, pt.Y,
		dimStyle.Render(time.Since(start).Round(time.Millisecond).String()))
	return nil
}

// RunClick 测试在指定坐标点击；windowTitle 非空时用于后台点击的窗口句柄
func RunClick(ctx context.Context, auto osauto.Automation, pt osauto.Point, strategy models.ClickStrategy, windowTitle string, out io.Writer) error {
	var handle uintptr
	if windowTitle != "" {
		w, _, err := window.NewLocator(auto, nil).Find(windowTitle)
		if err != nil {
			fmt.Fprintf(out, "%s %v，后台点击不可用\n", warnStyle.Render("!"), err)
		} else {
			handle = w.Handle
		}
	}

	if !input.NewDispatcher(auto, nil).Click(ctx, pt, handle, strategy) {
		fmt.Fprintf(out, "%s 点击 (%d, %d) 失败 [%s]\n", mark(false), pt.X, pt.Y, strategy)
		return errors.New("click failed")
	}
	fmt.Fprintf(out, "%s 已点击 (%d, %d) [%s]\n", mark(true), pt.X, pt.Y, strategy)
	return nil
}

// RunWindows 列出窗口及其状态
func RunWindows(auto osauto.Automation, filter string, out io.Writer) error {
	windows, err := window.NewLocator(auto, nil).List(filter)
	if err != nil {
		return err
	}
	if len(windows) == 0 {
		fmt.Fprintln(out, "未找到窗口")
		return nil
	}

	t := table.New().Headers("句柄", "状态", "进程", "类名", "标题")
	for _, w := range windows {
		t.Row(fmt.Sprintf("0x%X", w.Handle), w.State(), w.Process, w.Class, w.Title)
	}
	fmt.Fprintln(out, t.Render())
	fmt.Fprintf(out, "\n共 %d 个窗口\n", len(windows))
	return nil
}

// RunStatus 显示配置、今日记录和下一次签到时间
func RunStatus(cfg *models.Config, configPath string, sched *scheduler.Scheduler, out io.Writer) error {
	st := sched.Status()

	fmt.Fprintln(out, titleStyle.Render("签到调度配置"))
	fmt.Fprint(out, field("配置文件", configPath))
	fmt.Fprint(out, field("自动签到", enabledText(cfg.Enabled)))
	fmt.Fprint(out, field("上班时间", fmt.Sprintf("%s (+0~%d 分钟)", cfg.MorningTime, cfg.JitterMinutes)))
	fmt.Fprint(out, field("下班时间", fmt.Sprintf("%s (+0~%d 分钟)", cfg.EveningTime, cfg.JitterMinutes)))
	fmt.Fprint(out, field("点击方式", string(cfg.ClickStrategy)))
	fmt.Fprint(out, field("主窗口", cfg.IMWindowTitle))
	fmt.Fprint(out, field("弹出窗口", cfg.PopupWindowTitle))
	fmt.Fprint(out, field("第一张图片", fileText(cfg.FirstImagePath)))
	fmt.Fprint(out, field("第二张图片", fileText(cfg.SecondImagePath)))
	fmt.Fprint(out, field("匹配程序", cfg.MatcherPath))
	fmt.Fprint(out, field("本地接口", valueOr(cfg.ListenAddr, "未启用")))

	fmt.Fprintln(out)
	fmt.Fprintln(out, titleStyle.Render("今日记录 "+st.Record.Date))
	fmt.Fprint(out, field("上班签到", doneText(st.Record.MorningDone)))
	fmt.Fprint(out, field("下班签到", doneText(st.Record.EveningDone)))

	if cfg.Enabled {
		next, slot := sched.Preview()
		fmt.Fprint(out, field("下一次", fmt.Sprintf("%s (%s)", next.Format("2006-01-02 15:04"), slot)))
	}
	return nil
}

func enabledText(on bool) string {
	if on {
		return okStyle.Render("启用")
	}
	return warnStyle.Render("停用")
}

func fileText(path string) string {
	if path == "" {
		return warnStyle.Render("未配置")
	}
	if _, err := os.Stat(path); err != nil {
		return path + " " + failStyle.Render("(不存在)")
	}
	return path
}

func doneText(t *time.Time) string {
	if t == nil {
		return dimStyle.Render("未执行")
	}
	return okStyle.Render(t.Format("15:04:05"))
}

func valueOr(v, fallback string) string {
	if v == "" {
		return dimStyle.Render(fallback)
	}
	return v
}

// RunHistory 显示最近的签到记录
func RunHistory(ctx context.Context, history storage.HistoryStore, limit int, out io.Writer) error {
	attempts, err := history.RecentAttempts(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	if len(attempts) == 0 {
		fmt.Fprintln(out, "暂无签到记录")
		return nil
	}

	t := table.New().Headers("时间", "时段", "脚本", "尝试", "结果", "原因")
	for _, a := range attempts {
		t.Row(
			a.StartedAt.Format("01-02 15:04:05"),
			string(a.Slot),
			mark(a.Success),
			strconv.Itoa(a.Tries),
			a.Outcome,
			a.Reason,
		)
	}
	fmt.Fprintln(out, t.Render())
	return nil
}

// RunPostOutcome 向收件目录投递签到结果，由后台服务处理
func RunPostOutcome(inboxDir string, success bool, sourceURL, message string, out io.Writer) error {
	path, err := inbox.Write(inboxDir, models.CheckInOutcome{
		Success:   success,
		SourceURL: sourceURL,
		Message:   message,
		Source:    "cli",
	})
	if err != nil {
		return fmt.Errorf("failed to post outcome: %w", err)
	}
	fmt.Fprintf(out, "%s 已投递结果 %s\n", mark(true), dimStyle.Render(path))
	return nil
}

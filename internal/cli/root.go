package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"humg.top/checkin_scheduler/config"
	"humg.top/checkin_scheduler/internal/app"
	"humg.top/checkin_scheduler/internal/matcher"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
	"humg.top/checkin_scheduler/internal/queue"
	"humg.top/checkin_scheduler/internal/scheduler"
	"humg.top/checkin_scheduler/internal/storage"
	"humg.top/checkin_scheduler/internal/tasks"
)

// LoggingSetup 按配置初始化日志；写入文件时返回该文件，供轮转任务使用
type LoggingSetup func(cfg *models.Config) (*slog.Logger, tasks.ReopenableLog, error)

// Options 根命令依赖，零值使用默认实现
type Options struct {
	SetupLogging LoggingSetup
	Automation   func() (osauto.Automation, error)
	Out          io.Writer
}

type rootState struct {
	opts       Options
	configPath string
	cfg        *models.Config
	logger     *slog.Logger
	logFile    tasks.ReopenableLog
}

// DefaultConfigPath 默认配置文件路径
func DefaultConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "checkin_scheduler", "config.yaml")
}

// NewRootCommand 构建命令树，不带子命令时等同于 serve
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Automation == nil {
		opts.Automation = osauto.Native
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	st := &rootState{opts: opts}

	root := &cobra.Command{
		Use:           "checkin",
		Short:         "定时自动签到",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return st.load()
		},
	}
	root.SetOut(opts.Out)
	root.PersistentFlags().StringVarP(&st.configPath, "config", "c", DefaultConfigPath(), "配置文件路径")

	serve := st.serveCommand()
	root.RunE = serve.RunE
	root.AddCommand(
		serve,
		st.runCommand(),
		st.matchCommand(),
		st.clickCommand(),
		st.windowsCommand(),
		st.statusCommand(),
		st.postOutcomeCommand(),
		st.historyCommand(),
	)
	return root
}

func (st *rootState) load() error {
	config.LoadDotEnv(st.configPath)
	cfg, err := config.Load(st.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.EnsureDirectories(cfg); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}
	st.cfg = cfg
	st.logger = slog.Default()
	if st.opts.SetupLogging != nil {
		logger, logFile, err := st.opts.SetupLogging(cfg)
		if err != nil {
			return err
		}
		st.logger, st.logFile = logger, logFile
	}
	return nil
}

func (st *rootState) newApp() (*app.App, error) {
	auto, err := st.opts.Automation()
	if err != nil {
		return nil, fmt.Errorf("automation backend unavailable: %w", err)
	}
	a, err := app.New(st.cfg, auto, st.logger)
	if err != nil {
		return nil, err
	}
	a.Log = st.logFile
	return a, nil
}

func (st *rootState) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "运行后台服务（定时签到、本地接口、收件目录）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := CheckAndAcquireLock(st.cfg.DataDir); err != nil {
				return err
			}
			defer ReleaseLock(st.cfg.DataDir)

			a, err := st.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			st.logger.Info("Check-in scheduler starting",
				"config", st.configPath, "data_dir", st.cfg.DataDir, "listen", st.cfg.ListenAddr)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = a.Serve(ctx)
			st.logger.Info("Goodbye!")
			return err
		},
	}
}

func (st *rootState) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "立即执行一次手动签到（不更新每日记录）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.RequireAutomation(st.cfg); err != nil {
				return err
			}
			a, err := st.newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunOnce(ctx, a.Scheduler, cmd.OutOrStdout())
		},
	}
}

func (st *rootState) matchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "match <image>",
		Short: "测试图像匹配",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if st.cfg.MatcherPath == "" {
				return fmt.Errorf("matcher_path is not configured")
			}
			resolver := matcher.NewResolver(st.cfg.MatcherPath, st.cfg.MatcherArgs,
				time.Duration(st.cfg.TimeoutSeconds)*time.Second, st.logger)
			return RunMatch(cmd.Context(), resolver, args[0], cmd.OutOrStdout())
		},
	}
}

func (st *rootState) clickCommand() *cobra.Command {
	var strategy, windowTitle string
	cmd := &cobra.Command{
		Use:   "click <x> <y>",
		Short: "测试在屏幕坐标点击",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			x, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid x: %w", err)
			}
			y, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid y: %w", err)
			}
			cs := st.cfg.ClickStrategy
			if strategy != "" {
				if cs, err = models.ParseClickStrategy(strategy); err != nil {
					return err
				}
			}
			auto, err := st.opts.Automation()
			if err != nil {
				return err
			}
			return RunClick(cmd.Context(), auto, osauto.Point{X: x, Y: y}, cs, windowTitle, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&strategy, "strategy", "s", "", "点击方式: Auto, ForegroundOnly, BackgroundOnly, RawInput, DoubleClick")
	cmd.Flags().StringVarP(&windowTitle, "window", "w", "", "后台点击的目标窗口标题")
	return cmd
}

func (st *rootState) windowsCommand() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "windows",
		Short: "列出窗口及其状态",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auto, err := st.opts.Automation()
			if err != nil {
				return err
			}
			return RunWindows(auto, filter, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "按标题过滤")
	return cmd
}

func (st *rootState) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "显示配置、今日记录与下一次签到时间",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records := storage.NewJSONStorage(st.cfg.RecordPath)
			sched := scheduler.NewScheduler(st.cfg, nil, records, nil, queue.New(), st.logger)
			return RunStatus(st.cfg, st.configPath, sched, cmd.OutOrStdout())
		},
	}
}

func (st *rootState) postOutcomeCommand() *cobra.Command {
	var failure bool
	var sourceURL, message string
	cmd := &cobra.Command{
		Use:   "post-outcome",
		Short: "上报签到结果（默认成功）",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunPostOutcome(st.cfg.InboxDir, !failure, sourceURL, message, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&failure, "failure", false, "上报失败")
	cmd.Flags().StringVar(&sourceURL, "url", "", "结果页面地址")
	cmd.Flags().StringVarP(&message, "message", "m", "", "附加说明")
	return cmd
}

func (st *rootState) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "显示最近的签到记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := storage.NewSQLiteHistory(st.cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer h.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			return RunHistory(ctx, h, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "显示条数")
	return cmd
}

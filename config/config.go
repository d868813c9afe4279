package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"humg.top/checkin_scheduler/internal/models"
)

// EnvPrefix 环境变量前缀，如 CHECKIN_MORNING_TIME
const EnvPrefix = "CHECKIN_"

// DefaultConfig 返回默认配置
func DefaultConfig() *models.Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, "checkin_scheduler")
	return &models.Config{
		Enabled:              true,
		MorningTime:          models.TimeOfDay{Hour: 9},
		EveningTime:          models.TimeOfDay{Hour: 18},
		JitterMinutes:        10,
		ClickStrategy:        models.ClickAuto,
		TimeoutSeconds:       30,
		ResultTimeoutSeconds: 120,
		DataDir:              filepath.Join(base, "data"),
		ListenAddr:           "127.0.0.1:8765",
		EnableLogging:        true,
		LogFile:              filepath.Join(base, "logs", "checkin.log"),
		LogLevel:             "info",
		MaxLogSizeMB:         10,
		HistoryRetentionDays: 90,
		KeepAlive: models.KeepAliveConfig{
			IdleSeconds: 60,
		},
		TitleWatch: models.TitleWatchConfig{
			IntervalSeconds: 2,
		},
	}
}

// LoadDotEnv 读取当前目录与配置文件目录下的 .env，文件不存在时忽略
func LoadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			// 已存在的环境变量优先
			_ = godotenv.Load(p)
		}
	}
}

// Load 从文件加载配置，如果不存在则使用默认配置
// 支持 YAML 和 JSON 格式，根据文件扩展名自动识别；环境变量覆盖文件中的值
func Load(configPath string) (*models.Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := decode(configPath, data, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	// 解析路径
	resolvePaths(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(configPath string, data []byte, cfg *models.Config) error {
	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		// 默认使用 YAML
		if err := yaml.Unmarshal(data, cfg); err != nil {
			// 如果 YAML 失败，尝试 JSON
			if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
				return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %w, JSON error: %v", err, jsonErr)
			}
		}
	}
	return nil
}

// applyEnvOverrides 用 CHECKIN_* 环境变量覆盖配置
func applyEnvOverrides(cfg *models.Config) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			return
		}
		*dst = b
	}
	text := func(key string, dst interface{ UnmarshalText([]byte) error }) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			if err := dst.UnmarshalText([]byte(strings.TrimSpace(v))); err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			}
		}
	}

	flag("ENABLED", &cfg.Enabled)
	text("MORNING_TIME", &cfg.MorningTime)
	text("EVENING_TIME", &cfg.EveningTime)
	num("JITTER_MINUTES", &cfg.JitterMinutes)
	text("CLICK_STRATEGY", &cfg.ClickStrategy)
	num("TIMEOUT_SECONDS", &cfg.TimeoutSeconds)
	str("IM_WINDOW_TITLE", &cfg.IMWindowTitle)
	str("POPUP_WINDOW_TITLE", &cfg.PopupWindowTitle)
	str("FIRST_IMAGE_PATH", &cfg.FirstImagePath)
	str("SECOND_IMAGE_PATH", &cfg.SecondImagePath)
	str("MATCHER_PATH", &cfg.MatcherPath)
	num("RESULT_TIMEOUT_SECONDS", &cfg.ResultTimeoutSeconds)
	str("WORK_DIR", &cfg.WorkDir)
	str("DATA_DIR", &cfg.DataDir)
	str("LISTEN_ADDR", &cfg.ListenAddr)
	str("LOG_FILE", &cfg.LogFile)
	str("LOG_LEVEL", &cfg.LogLevel)
	flag("KEEPALIVE", &cfg.KeepAlive.Enabled)

	return errors.Join(errs...)
}

// resolvePaths 根据 WorkDir 解析配置中的路径，并补全未配置的数据文件
func resolvePaths(cfg *models.Config) {
	// 如果配置了 WorkDir，将其转换为绝对路径
	if cfg.WorkDir != "" {
		if absPath, err := filepath.Abs(cfg.WorkDir); err == nil {
			cfg.WorkDir = absPath
		}
	}

	resolve := func(path string) string {
		if path == "" || filepath.IsAbs(path) || cfg.WorkDir == "" {
			return path
		}
		return filepath.Join(cfg.WorkDir, path)
	}

	cfg.DataDir = resolve(cfg.DataDir)
	cfg.LogFile = resolve(cfg.LogFile)
	cfg.FirstImagePath = resolve(cfg.FirstImagePath)
	cfg.SecondImagePath = resolve(cfg.SecondImagePath)
	cfg.RecordPath = resolve(cfg.RecordPath)
	cfg.HistoryDB = resolve(cfg.HistoryDB)
	cfg.InboxDir = resolve(cfg.InboxDir)
	// 只有文件名时交给 PATH 查找
	if strings.ContainsAny(cfg.MatcherPath, "/"+string(filepath.Separator)) {
		cfg.MatcherPath = resolve(cfg.MatcherPath)
	}

	// 未单独配置时放在 DataDir 下
	if cfg.RecordPath == "" {
		cfg.RecordPath = filepath.Join(cfg.DataDir, "record.json")
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = filepath.Join(cfg.DataDir, "history.db")
	}
	if cfg.InboxDir == "" {
		cfg.InboxDir = filepath.Join(cfg.DataDir, "inbox")
	}
}

// Validate 检查配置取值
func Validate(cfg *models.Config) error {
	var errs []error
	if cfg.JitterMinutes < 0 {
		errs = append(errs, fmt.Errorf("jitter_minutes must not be negative"))
	}
	if cfg.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must not be negative"))
	}
	if cfg.ResultTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("result_timeout_seconds must not be negative"))
	}
	if cfg.MorningTime.Duration() >= cfg.EveningTime.Duration() {
		errs = append(errs, fmt.Errorf("morning_time %s must be earlier than evening_time %s", cfg.MorningTime, cfg.EveningTime))
	} else if cfg.JitterMinutes > 0 {
		// 随机偏移后的两个时段不能重叠，也不能跨越零点
		jitter := time.Duration(cfg.JitterMinutes) * time.Minute
		if cfg.MorningTime.Duration() < jitter {
			errs = append(errs, fmt.Errorf("morning_time %s minus jitter_minutes %d crosses midnight", cfg.MorningTime, cfg.JitterMinutes))
		}
		if cfg.MorningTime.Duration()+jitter >= cfg.EveningTime.Duration() {
			errs = append(errs, fmt.Errorf("morning_time %s plus jitter_minutes %d must be earlier than evening_time %s",
				cfg.MorningTime, cfg.JitterMinutes, cfg.EveningTime))
		}
		if cfg.EveningTime.Duration()+jitter >= 24*time.Hour {
			errs = append(errs, fmt.Errorf("evening_time %s plus jitter_minutes %d crosses midnight", cfg.EveningTime, cfg.JitterMinutes))
		}
	}
	switch strings.ToLower(cfg.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", cfg.LogLevel))
	}
	return errors.Join(errs...)
}

// RequireAutomation 执行签到流程前检查必填项
func RequireAutomation(cfg *models.Config) error {
	var errs []error
	if cfg.IMWindowTitle == "" {
		errs = append(errs, fmt.Errorf("im_window_title is required"))
	}
	if cfg.PopupWindowTitle == "" {
		errs = append(errs, fmt.Errorf("popup_window_title is required"))
	}
	if cfg.FirstImagePath == "" || cfg.SecondImagePath == "" {
		errs = append(errs, fmt.Errorf("first_image_path and second_image_path are required"))
	}
	if cfg.MatcherPath == "" {
		errs = append(errs, fmt.Errorf("matcher_path is required"))
	}
	return errors.Join(errs...)
}

// Save 保存配置到文件
// 根据文件扩展名自动选择 YAML 或 JSON 格式
func Save(cfg *models.Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	var data []byte
	var err error

	ext := strings.ToLower(filepath.Ext(configPath))
	switch ext {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal JSON config: %w", err)
		}
	default:
		data, err = yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshal YAML config: %w", err)
		}
	}

	return os.WriteFile(configPath, data, 0644)
}

// EnsureDirectories 确保必要的目录存在
func EnsureDirectories(cfg *models.Config) error {
	dirs := []string{
		cfg.DataDir,
		filepath.Dir(cfg.RecordPath),
		filepath.Dir(cfg.HistoryDB),
		cfg.InboxDir,
	}
	if cfg.EnableLogging && cfg.LogFile != "" {
		dirs = append(dirs, filepath.Dir(cfg.LogFile))
	}
	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

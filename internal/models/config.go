package models

// Config 应用配置
type Config struct {
	Enabled        bool          `yaml:"enabled" json:"enabled"`                 // 是否启用自动签到
	MorningTime    TimeOfDay     `yaml:"morning_time" json:"morning_time"`       // 上班时间 HH:MM
	EveningTime    TimeOfDay     `yaml:"evening_time" json:"evening_time"`       // 下班时间 HH:MM
	JitterMinutes  int           `yaml:"jitter_minutes" json:"jitter_minutes"`   // 随机偏移上限（分钟）
	ClickStrategy  ClickStrategy `yaml:"click_strategy" json:"click_strategy"`   // 默认点击方式
	TimeoutSeconds int           `yaml:"timeout_seconds" json:"timeout_seconds"` // 单次操作超时（秒）

	// 窗口与图片
	IMWindowTitle    string   `yaml:"im_window_title" json:"im_window_title"`       // 主窗口标题关键字
	PopupWindowTitle string   `yaml:"popup_window_title" json:"popup_window_title"` // 弹出窗口标题关键字
	FirstImagePath   string   `yaml:"first_image_path" json:"first_image_path"`
	SecondImagePath  string   `yaml:"second_image_path" json:"second_image_path"`
	MatcherPath      string   `yaml:"matcher_path" json:"matcher_path"` // 图像匹配程序
	MatcherArgs      []string `yaml:"matcher_args" json:"matcher_args"` // 放在图片路径之前的参数

	ResultTimeoutSeconds int `yaml:"result_timeout_seconds" json:"result_timeout_seconds"` // 等待结果上报（秒）

	// 目录与文件
	WorkDir    string `yaml:"work_dir" json:"work_dir"`
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	RecordPath string `yaml:"record_path" json:"record_path"` // 每日执行记录
	HistoryDB  string `yaml:"history_db" json:"history_db"`
	InboxDir   string `yaml:"inbox_dir" json:"inbox_dir"`

	ListenAddr string `yaml:"listen_addr" json:"listen_addr"` // 本地 API，为空则不启动

	EnableLogging        bool   `yaml:"enable_logging" json:"enable_logging"`
	LogFile              string `yaml:"log_file" json:"log_file"`
	LogLevel             string `yaml:"log_level" json:"log_level"`
	MaxLogSizeMB         int    `yaml:"max_log_size_mb" json:"max_log_size_mb"`
	HistoryRetentionDays int    `yaml:"history_retention_days" json:"history_retention_days"`

	KeepAlive  KeepAliveConfig  `yaml:"keepalive" json:"keepalive"`
	TitleWatch TitleWatchConfig `yaml:"title_watch" json:"title_watch"`
}

// KeepAliveConfig 空闲时模拟鼠标活动
type KeepAliveConfig struct {
	Enabled     bool `yaml:"enabled" json:"enabled"`
	IdleSeconds int  `yaml:"idle_seconds" json:"idle_seconds"`
}

// TitleWatchConfig 通过浏览器窗口标题判断签到结果
type TitleWatchConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Processes       []string `yaml:"processes" json:"processes"` // 浏览器进程名
	Keywords        []string `yaml:"keywords" json:"keywords"`   // 成功关键字
	IntervalSeconds int      `yaml:"interval_seconds" json:"interval_seconds"`
}

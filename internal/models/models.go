package models

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout 记录文件中日期字段的格式
const DateLayout = "2006-01-02"

// Slot 每日签到时段
type Slot string

const (
	SlotMorning Slot = "morning" // 上班
	SlotEvening Slot = "evening" // 下班
	SlotManual  Slot = "manual"  // 手动触发，不写入每日记录
)

// TimeOfDay 一天中的时刻，配置中以 "HH:MM" 表示
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay 解析 "HH:MM"
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	s = strings.TrimSpace(s)
	if _, err := fmt.Sscanf(s, "%d:%d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return TimeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Duration 距离当天零点的时长
func (t TimeOfDay) Duration() time.Duration {
	return time.Duration(t.Hour)*time.Hour + time.Duration(t.Minute)*time.Minute
}

// On 返回 day 所在日期的该时刻
func (t TimeOfDay) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, t.Hour, t.Minute, 0, 0, day.Location())
}

func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ClickStrategy 点击方式
type ClickStrategy string

const (
	ClickAuto           ClickStrategy = "Auto"
	ClickForegroundOnly ClickStrategy = "ForegroundOnly"
	ClickBackgroundOnly ClickStrategy = "BackgroundOnly"
	ClickRawInput       ClickStrategy = "RawInput"
	ClickDoubleClick    ClickStrategy = "DoubleClick"
)

var clickStrategies = []ClickStrategy{
	ClickAuto, ClickForegroundOnly, ClickBackgroundOnly, ClickRawInput, ClickDoubleClick,
}

// ParseClickStrategy 大小写不敏感地解析点击方式，空字符串视为 Auto
func ParseClickStrategy(s string) (ClickStrategy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ClickAuto, nil
	}
	for _, cs := range clickStrategies {
		if strings.EqualFold(string(cs), s) {
			return cs, nil
		}
	}
	return "", fmt.Errorf("unknown click strategy %q", s)
}

func (c *ClickStrategy) UnmarshalText(text []byte) error {
	parsed, err := ParseClickStrategy(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// DailyRecord 每日执行记录，日期不是今天时视为空记录
type DailyRecord struct {
	Date        string     `json:"date"`                   // 格式: YYYY-MM-DD
	MorningDone *time.Time `json:"morning_done,omitempty"` // 上班签到时间
	EveningDone *time.Time `json:"evening_done,omitempty"` // 下班签到时间
}

// EmptyRecord 返回指定日期的空记录
func EmptyRecord(now time.Time) *DailyRecord {
	return &DailyRecord{Date: now.Format(DateLayout)}
}

// IsToday 记录日期是否为 now 所在的日期
func (r *DailyRecord) IsToday(now time.Time) bool {
	return r != nil && r.Date == now.Format(DateLayout)
}

// HasRun 判断某时段今天是否已执行
func (r *DailyRecord) HasRun(slot Slot, now time.Time) bool {
	if !r.IsToday(now) {
		return false
	}
	switch slot {
	case SlotMorning:
		return r.MorningDone != nil
	case SlotEvening:
		return r.EveningDone != nil
	}
	return false
}

// MarkRun 标记某时段已执行，日期变化时先重置
func (r *DailyRecord) MarkRun(slot Slot, now time.Time) {
	if !r.IsToday(now) {
		*r = *EmptyRecord(now)
	}
	ts := now
	switch slot {
	case SlotMorning:
		r.MorningDone = &ts
	case SlotEvening:
		r.EveningDone = &ts
	}
}

// CheckInOutcome 外部上报的签到结果
type CheckInOutcome struct {
	ID         string    `json:"id"`
	Success    bool      `json:"success"`
	SourceURL  string    `json:"source_url,omitempty"`
	ObservedAt time.Time `json:"observed_at"`
	Message    string    `json:"message,omitempty"`
	Source     string    `json:"source,omitempty"` // api / inbox / title / cli
}

// Attempt 一次时段执行的历史记录
type Attempt struct {
	ID         string    `json:"id"`
	Slot       Slot      `json:"slot"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Tries      int       `json:"tries"`
	Success    bool      `json:"success"`
	FailedStep int       `json:"failed_step,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	// Outcome 为 unknown / success / failure / skipped
	Outcome        string `json:"outcome"`
	OutcomeMessage string `json:"outcome_message,omitempty"`
}

// 签到结果取值
const (
	OutcomeUnknown = "unknown"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

package scheduler

import (
	"time"

	"humg.top/checkin_scheduler/internal/models"
)

// calculateNextDue 计算下一次签到时间
// 候选：今天上班时间减去随机偏移、今天下班时间加上随机偏移、明天上班时间减去随机偏移
// 跳过已经过去或当天已执行的时段，返回最早的一个
// jitter 为 [0, limit] 内的随机偏移
func calculateNextDue(now time.Time, cfg *models.Config, record *models.DailyRecord, jitter func(limit time.Duration) time.Duration) (time.Time, models.Slot) {
	at, slot, _ := nextDue(now, cfg, record, jitter)
	return at, slot
}

// nextDue 同 calculateNextDue，另外返回该时段所属的日期（零点）
func nextDue(now time.Time, cfg *models.Config, record *models.DailyRecord, jitter func(limit time.Duration) time.Duration) (time.Time, models.Slot, time.Time) {
	limit := time.Duration(cfg.JitterMinutes) * time.Minute
	tomorrow := now.AddDate(0, 0, 1)

	candidates := []struct {
		at   time.Time
		slot models.Slot
		day  time.Time
	}{
		{cfg.MorningTime.On(now).Add(-jitter(limit)), models.SlotMorning, now},
		{cfg.EveningTime.On(now).Add(jitter(limit)), models.SlotEvening, now},
		{cfg.MorningTime.On(tomorrow).Add(-jitter(limit)), models.SlotMorning, tomorrow},
	}

	for _, c := range candidates {
		if !c.at.After(now) {
			continue
		}
		if record.HasRun(c.slot, c.day) {
			continue
		}
		return c.at, c.slot, startOfDay(c.day)
	}

	// 三个候选都不可用时（今天两个时段都已执行且上班时间晚于下班时间等异常配置），顺延到后天上班
	later := now.AddDate(0, 0, 2)
	return cfg.MorningTime.On(later).Add(-jitter(limit)), models.SlotMorning, startOfDay(later)
}

// slotFor 根据醒来的时刻判断是哪个时段：早于上班时间加偏移上限为上班，否则为下班
func slotFor(now time.Time, cfg *models.Config) models.Slot {
	elapsed := now.Sub(startOfDay(now))
	limit := time.Duration(cfg.JitterMinutes) * time.Minute
	if elapsed < cfg.MorningTime.Duration()+limit {
		return models.SlotMorning
	}
	return models.SlotEvening
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

package tasks

import (
	"context"
	"log/slog"
	"time"

	"humg.top/checkin_scheduler/internal/storage"
)

// HistoryPruneTask 清理过期的签到历史
type HistoryPruneTask struct {
	history   storage.HistoryStore
	retention time.Duration
	now       func() time.Time
}

// NewHistoryPruneTask 保留最近 retentionDays 天的记录
func NewHistoryPruneTask(history storage.HistoryStore, retentionDays int) *HistoryPruneTask {
	return &HistoryPruneTask{
		history:   history,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}
}

func (t *HistoryPruneTask) ID() string       { return "history-prune" }
func (t *HistoryPruneTask) Name() string     { return "签到历史清理" }
func (t *HistoryPruneTask) Schedule() string { return "@daily" }

// Execute 删除保留期之前的记录
func (t *HistoryPruneTask) Execute(ctx context.Context) error {
	if t.retention <= 0 {
		return nil
	}
	n, err := t.history.Prune(ctx, t.now().Add(-t.retention))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("Pruned check-in history", "deleted", n)
	}
	return nil
}

package storage

import (
	"context"
	"time"

	"humg.top/checkin_scheduler/internal/models"
)

// RecordStore 每日执行记录存储接口
type RecordStore interface {
	// LoadRecord 读取记录，文件缺失或损坏时返回 now 当天的空记录
	LoadRecord(now time.Time) (*models.DailyRecord, error)

	// SaveRecord 原子写入记录
	SaveRecord(record *models.DailyRecord) error
}

// HistoryStore 执行历史存储接口
type HistoryStore interface {
	RecordAttempt(ctx context.Context, attempt models.Attempt) error
	RecentAttempts(ctx context.Context, limit int) ([]models.Attempt, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
	Close() error
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"humg.top/checkin_scheduler/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteHistory 基于 SQLite 的执行历史
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory 打开（必要时创建）历史数据库
func NewSQLiteHistory(dbPath string) (*SQLiteHistory, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// 写入量很小，单连接避免 SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	h := &SQLiteHistory{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return h, nil
}

func (h *SQLiteHistory) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS attempts (
		id TEXT PRIMARY KEY,
		slot TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		tries INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL DEFAULT 0,
		failed_step INTEGER NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL DEFAULT 'unknown',
		outcome_message TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_started ON attempts(started_at);
	`
	if _, err := h.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// RecordAttempt 写入或覆盖一条执行记录
func (h *SQLiteHistory) RecordAttempt(ctx context.Context, a models.Attempt) error {
	query := `
		INSERT INTO attempts (id, slot, started_at, finished_at, tries, success,
		                      failed_step, reason, outcome, outcome_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			tries = excluded.tries,
			success = excluded.success,
			failed_step = excluded.failed_step,
			reason = excluded.reason,
			outcome = excluded.outcome,
			outcome_message = excluded.outcome_message`

	success := 0
	if a.Success {
		success = 1
	}
	outcome := a.Outcome
	if outcome == "" {
		outcome = models.OutcomeUnknown
	}

	_, err := h.db.ExecContext(ctx, query,
		a.ID, string(a.Slot), a.StartedAt.UnixMilli(), a.FinishedAt.UnixMilli(),
		a.Tries, success, a.FailedStep, a.Reason, outcome, a.OutcomeMessage,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// RecentAttempts 按开始时间倒序返回最近的记录
func (h *SQLiteHistory) RecentAttempts(ctx context.Context, limit int) ([]models.Attempt, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, slot, started_at, finished_at, tries, success,
		       failed_step, reason, outcome, outcome_message
		FROM attempts ORDER BY started_at DESC LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var attempts []models.Attempt
	for rows.Next() {
		var a models.Attempt
		var slot string
		var started, finished int64
		var success int
		if err := rows.Scan(&a.ID, &slot, &started, &finished, &a.Tries, &success,
			&a.FailedStep, &a.Reason, &a.Outcome, &a.OutcomeMessage); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		a.Slot = models.Slot(slot)
		a.StartedAt = time.UnixMilli(started)
		a.FinishedAt = time.UnixMilli(finished)
		a.Success = success != 0
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// Prune 删除 before 之前开始的记录
func (h *SQLiteHistory) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM attempts WHERE started_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close 关闭数据库
func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

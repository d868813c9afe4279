package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"humg.top/checkin_scheduler/internal/models"
)

// JSONStorage 每日执行记录的 JSON 文件实现
// 每次读写都重新打开文件，进程在两次签到之间可能挂起数小时
type JSONStorage struct {
	filePath string
}

// NewJSONStorage 创建 JSON 存储实例
func NewJSONStorage(filePath string) *JSONStorage {
	return &JSONStorage{filePath: filePath}
}

// Path 返回记录文件路径
func (s *JSONStorage) Path() string {
	return s.filePath
}

// LoadRecord 读取每日执行记录
func (s *JSONStorage) LoadRecord(now time.Time) (*models.DailyRecord, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return models.EmptyRecord(now), nil
		}
		return nil, fmt.Errorf("read record file: %w", err)
	}

	var record models.DailyRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// 损坏的记录按空记录处理，下次写入时覆盖
		slog.Warn("Unparsable record file, starting empty", "path", s.filePath, "error", err)
		return models.EmptyRecord(now), nil
	}

	if !record.IsToday(now) {
		return models.EmptyRecord(now), nil
	}
	return &record, nil
}

// SaveRecord 先写临时文件再重命名，写入要么完整生效要么不生效
func (s *JSONStorage) SaveRecord(record *models.DailyRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create record directory: %w", err)
	}

	return writeFileAtomic(s.filePath, data)
}

// writeFileAtomic 写入同目录下的临时文件后重命名
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename record file: %w", err)
	}
	return nil
}

// WriteFileAtomic 供其他包写入投递文件
func WriteFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	return writeFileAtomic(path, data)
}

// Package inbox 监听收件目录，把外部投递的签到结果文件转成结果事件
package inbox

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/storage"
)

// Poster 接收签到结果
type Poster interface {
	PostOutcome(o models.CheckInOutcome) models.CheckInOutcome
}

// Watcher 监听 dir 中新出现的 *.json 文件
type Watcher struct {
	dir    string
	poster Poster
	logger *slog.Logger

	// Debounce 同一文件连续写入时等待的时间
	Debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	timers  map[string]*time.Timer
}

// NewWatcher 创建收件目录监听器，目录不存在时自动创建
func NewWatcher(dir string, poster Poster, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create inbox dir: %w", err)
	}
	return &Watcher{
		dir:      dir,
		poster:   poster,
		logger:   logger.With("component", "inbox"),
		Debounce: 200 * time.Millisecond,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start 先处理已有文件，再开始监听
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.watcher = fw
	w.done = make(chan struct{})
	w.logger.Info("Watching inbox", "dir", w.dir)

	if n := w.Drain(); n > 0 {
		w.logger.Info("Drained pending inbox files", "count", n)
	}

	go w.watchLoop(fw, w.done)
	return nil
}

// Stop 停止监听，可重复调用
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return
	}
	close(w.done)
	w.watcher.Close()
	w.watcher = nil
	for name, t := range w.timers {
		t.Stop()
		delete(w.timers, name)
	}
	w.logger.Info("Inbox watcher stopped")
}

func (w *Watcher) watchLoop(fw *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !isOutcomeFile(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Error("Inbox watcher error", "error", err)

		case <-done:
			return
		}
	}
}

// schedule 防抖：同一文件的最后一次事件之后才处理
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.process(path)
	})
}

// Drain 按文件名顺序处理目录中现有的结果文件，返回成功投递的数量
func (w *Watcher) Drain() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Warn("Read inbox dir failed", "error", err)
		return 0
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isOutcomeFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	count := 0
	for _, name := range names {
		if w.process(filepath.Join(w.dir, name)) {
			count++
		}
	}
	return count
}

// process 解析并投递一个文件，成功后删除；无法解析的文件改名为 .bad
func (w *Watcher) process(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("Read inbox file failed", "file", path, "error", err)
		}
		return false
	}

	var outcome models.CheckInOutcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		w.logger.Warn("Invalid outcome file", "file", filepath.Base(path), "error", err)
		if err := os.Rename(path, path+".bad"); err != nil {
			w.logger.Warn("Quarantine inbox file failed", "file", path, "error", err)
		}
		return false
	}
	if outcome.Source == "" {
		outcome.Source = "inbox"
	}

	// 删除成功的一方负责投递，避免启动清理与事件处理重复上报
	if err := os.Remove(path); err != nil {
		if !os.IsNotExist(err) {
			w.logger.Warn("Remove inbox file failed", "file", path, "error", err)
		}
		return false
	}

	posted := w.poster.PostOutcome(outcome)
	w.logger.Info("Outcome received from inbox", "id", posted.ID, "success", posted.Success)
	return true
}

// Write 以原子方式向收件目录投递一条结果，返回文件路径
func Write(dir string, outcome models.CheckInOutcome) (string, error) {
	if outcome.ObservedAt.IsZero() {
		outcome.ObservedAt = time.Now()
	}
	if outcome.ID == "" {
		outcome.ID = uuid.NewString()
	}
	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal outcome: %w", err)
	}

	name := fmt.Sprintf("%d-%s.json", outcome.ObservedAt.UnixNano(), outcome.ID)
	path := filepath.Join(dir, name)
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

func isOutcomeFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, ".json") && !strings.HasPrefix(base, ".")
}

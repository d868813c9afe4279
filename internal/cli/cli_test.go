package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
	"humg.top/checkin_scheduler/internal/storage"
)

// writeConfig 在临时目录写入最小配置，返回配置文件路径
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "work_dir: " + dir + "\n" +
		"data_dir: data\n" +
		"enable_logging: false\n" +
		"listen_addr: \"\"\n" +
		"im_window_title: WeLink\n" +
		"popup_window_title: 签到\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path, filepath.Join(dir, "data")
}

func execute(t *testing.T, auto osauto.Automation, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	opts := Options{Out: &out}
	if auto != nil {
		opts.Automation = func() (osauto.Automation, error) { return auto, nil }
	}
	root := NewRootCommand(opts)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// TestPostOutcome 投递结果文件到收件目录
func TestPostOutcome(t *testing.T) {
	configPath, dataDir := writeConfig(t)

	out, err := execute(t, nil, "post-outcome", "-c", configPath, "--url", "https://example.com/ok", "-m", "done")
	if err != nil {
		t.Fatalf("post-outcome: %v", err)
	}
	if !strings.Contains(out, "已投递结果") {
		t.Errorf("output = %q", out)
	}

	inboxDir := filepath.Join(dataDir, "inbox")
	entries, err := os.ReadDir(inboxDir)
	if err != nil || len(entries) != 1 {
		t.Fatalf("inbox entries = %v, err = %v", entries, err)
	}
	data, _ := os.ReadFile(filepath.Join(inboxDir, entries[0].Name()))
	var o models.CheckInOutcome
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatal(err)
	}
	if !o.Success || o.SourceURL != "https://example.com/ok" || o.Source != "cli" || o.Message != "done" {
		t.Errorf("outcome = %+v", o)
	}
}

// TestPostOutcomeMultipleTimes 多次投递各自生成文件
func TestPostOutcomeMultipleTimes(t *testing.T) {
	configPath, dataDir := writeConfig(t)

	for i := 0; i < 3; i++ {
		if _, err := execute(t, nil, "post-outcome", "-c", configPath, "--failure"); err != nil {
			t.Fatalf("post-outcome (attempt %d): %v", i+1, err)
		}
	}
	entries, _ := os.ReadDir(filepath.Join(dataDir, "inbox"))
	if len(entries) != 3 {
		t.Errorf("inbox files = %d, want 3", len(entries))
	}
}

func TestWindowsCommand(t *testing.T) {
	configPath, _ := writeConfig(t)
	fake := osauto.NewFake(
		osauto.Window{Handle: 0x10, Title: "WeLink", Class: "Chrome_WidgetWin_1", Process: "WeLink.exe", Visible: true},
		osauto.Window{Handle: 0x20, Title: "签到", Process: "WeLink.exe", Minimized: true},
		osauto.Window{Handle: 0x30, Title: "", Class: "Shell_TrayWnd"},
	)

	out, err := execute(t, fake, "windows", "-c", configPath)
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	for _, want := range []string{"0x10", "WeLink.exe", "minimized", "共 2 个窗口"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _ = execute(t, fake, "windows", "-c", configPath, "-f", "nothing-like-this")
	if !strings.Contains(out, "未找到窗口") {
		t.Errorf("filtered output = %q", out)
	}
}

func TestClickCommand(t *testing.T) {
	configPath, _ := writeConfig(t)
	fake := osauto.NewFake()

	if _, err := execute(t, fake, "click", "-c", configPath, "100", "200", "-s", "ForegroundOnly"); err != nil {
		t.Fatalf("click: %v", err)
	}
	var moved bool
	for _, c := range fake.Calls() {
		if c.Op == "MoveCursor" && c.X == 100 && c.Y == 200 {
			moved = true
		}
	}
	if !moved {
		t.Errorf("cursor not moved, calls = %v", fake.Ops())
	}

	if _, err := execute(t, fake, "click", "-c", configPath, "x", "200"); err == nil {
		t.Error("invalid coordinate should fail")
	}
	if _, err := execute(t, fake, "click", "-c", configPath, "1", "2", "-s", "Telepathy"); err == nil {
		t.Error("unknown strategy should fail")
	}
}

func TestStatusCommand(t *testing.T) {
	configPath, dataDir := writeConfig(t)
	now := time.Now()
	rec := models.EmptyRecord(now)
	rec.MarkRun(models.SlotMorning, now)
	if err := storage.NewJSONStorage(filepath.Join(dataDir, "record.json")).SaveRecord(rec); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, nil, "status", "-c", configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"WeLink", "09:00", now.Format("15:04"), "未执行", "下一次"} {
		if !strings.Contains(out, want) {
			t.Errorf("status missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCommand(t *testing.T) {
	configPath, dataDir := writeConfig(t)

	out, err := execute(t, nil, "history", "-c", configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "暂无签到记录") {
		t.Errorf("empty history output = %q", out)
	}

	h, err := storage.NewSQLiteHistory(filepath.Join(dataDir, "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	started := time.Now().Add(-time.Minute)
	h.RecordAttempt(context.Background(), models.Attempt{
		ID: "a1", Slot: models.SlotEvening, StartedAt: started, FinishedAt: started.Add(time.Second),
		Tries: 2, Success: true, Outcome: models.OutcomeSuccess,
	})
	h.Close()

	out, err = execute(t, nil, "history", "-c", configPath, "-n", "5")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(out, "evening") || !strings.Contains(out, models.OutcomeSuccess) {
		t.Errorf("history output = %q", out)
	}
}

func TestRunRequiresAutomationConfig(t *testing.T) {
	configPath, _ := writeConfig(t)
	if _, err := execute(t, osauto.NewFake(), "run", "-c", configPath); err == nil || !strings.Contains(err.Error(), "matcher_path") {
		t.Errorf("run without matcher should fail, got %v", err)
	}
}

func TestLock(t *testing.T) {
	dir := t.TempDir()

	if err := CheckAndAcquireLock(dir); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(dir, lockFileName))
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock content = %q", data)
	}
	// 同一进程再次获取视为重入
	if err := CheckAndAcquireLock(dir); err != nil {
		t.Errorf("re-acquire by same process: %v", err)
	}
	ReleaseLock(dir)
	if _, err := os.Stat(filepath.Join(dir, lockFileName)); !os.IsNotExist(err) {
		t.Error("lock file should be removed")
	}
}

func TestStaleLockIsReplaced(t *testing.T) {
	dir := t.TempDir()
	// 不可能存在的 PID
	if err := os.WriteFile(filepath.Join(dir, lockFileName), []byte("99999999"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := CheckAndAcquireLock(dir); err != nil {
		t.Fatalf("stale lock should be replaced: %v", err)
	}
	defer ReleaseLock(dir)
}

package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"humg.top/checkin_scheduler/internal/inbox"
	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
)

func testConfig(t *testing.T) *models.Config {
	dir := t.TempDir()
	return &models.Config{
		Enabled:              true,
		MorningTime:          models.TimeOfDay{Hour: 9},
		EveningTime:          models.TimeOfDay{Hour: 18},
		JitterMinutes:        10,
		ClickStrategy:        models.ClickAuto,
		TimeoutSeconds:       5,
		ResultTimeoutSeconds: 1,
		IMWindowTitle:        "WeLink",
		PopupWindowTitle:     "签到",
		FirstImagePath:       filepath.Join(dir, "first.png"),
		SecondImagePath:      filepath.Join(dir, "second.png"),
		MatcherPath:          "matcher",
		DataDir:              dir,
		RecordPath:           filepath.Join(dir, "record.json"),
		HistoryDB:            filepath.Join(dir, "history.db"),
		InboxDir:             filepath.Join(dir, "inbox"),
		ListenAddr:           "127.0.0.1:0",
		HistoryRetentionDays: 30,
		KeepAlive:            models.KeepAliveConfig{Enabled: true, IdleSeconds: 3600},
		TitleWatch:           models.TitleWatchConfig{Enabled: true, Keywords: []string{"签到成功"}},
	}
}

func TestNewWiresComponents(t *testing.T) {
	a, err := New(testConfig(t), osauto.NewFake(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.History == nil {
		t.Error("history should open")
	}
	if a.Scheduler == nil || a.Sequencer == nil || a.Locator == nil {
		t.Error("components missing")
	}
}

func TestServeRejectsIncompleteConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.MatcherPath = ""
	a, err := New(cfg, osauto.NewFake(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if err := a.Serve(context.Background()); err == nil {
		t.Error("Serve should reject a config without matcher_path")
	}
}

func TestServeDeliversInboxOutcomes(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, osauto.NewFake(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	// 服务启动前投递的文件也会被处理
	if _, err := inbox.Write(cfg.InboxDir, models.CheckInOutcome{Success: true}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for a.Results.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if a.Results.Len() != 1 {
		t.Errorf("pending outcomes = %d, want 1", a.Results.Len())
	}
	if !a.Scheduler.Running() {
		t.Error("scheduler should be running")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if a.Scheduler.Running() {
		t.Error("scheduler should be stopped")
	}
}

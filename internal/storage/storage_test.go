package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"humg.top/checkin_scheduler/internal/models"
)

func TestLoadRecordMissingFile(t *testing.T) {
	store := NewJSONStorage(filepath.Join(t.TempDir(), "record.json"))
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.Local)

	rec, err := store.LoadRecord(now)
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if rec.Date != "2026-05-01" || rec.MorningDone != nil || rec.EveningDone != nil {
		t.Errorf("expected empty record for today, got %+v", rec)
	}
}

func TestSaveAndLoadRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "record.json")
	store := NewJSONStorage(path)
	now := time.Date(2026, 5, 1, 8, 50, 0, 0, time.Local)

	rec := models.EmptyRecord(now)
	rec.MarkRun(models.SlotMorning, now)
	if err := store.SaveRecord(rec); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	loaded, err := store.LoadRecord(now.Add(time.Hour))
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if !loaded.HasRun(models.SlotMorning, now) {
		t.Error("morning should be done after reload")
	}
	if loaded.HasRun(models.SlotEvening, now) {
		t.Error("evening should not be done")
	}

	// 第二天读取应得到空记录
	next, err := store.LoadRecord(now.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("LoadRecord next day: %v", err)
	}
	if next.HasRun(models.SlotMorning, now.AddDate(0, 0, 1)) {
		t.Error("record from yesterday must be treated as empty")
	}

	// 不应残留临时文件
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the record file, found %d entries", len(entries))
	}
}

func TestLoadRecordCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	store := NewJSONStorage(path)

	rec, err := store.LoadRecord(time.Now())
	if err != nil {
		t.Fatalf("corrupt record should not error: %v", err)
	}
	if rec.MorningDone != nil || rec.EveningDone != nil {
		t.Errorf("expected empty record, got %+v", rec)
	}
}

func TestSQLiteHistory(t *testing.T) {
	ctx := context.Background()
	h, err := NewSQLiteHistory(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteHistory: %v", err)
	}
	defer h.Close()

	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	attempts := []models.Attempt{
		{ID: "a1", Slot: models.SlotMorning, StartedAt: base.AddDate(0, 0, -40), FinishedAt: base.AddDate(0, 0, -40), Tries: 1, Success: true, Outcome: models.OutcomeSuccess},
		{ID: "a2", Slot: models.SlotEvening, StartedAt: base.Add(-time.Hour), FinishedAt: base, Tries: 5, FailedStep: 3, Reason: "popup not found"},
		{ID: "a3", Slot: models.SlotMorning, StartedAt: base, FinishedAt: base.Add(time.Minute), Tries: 2, Success: true},
	}
	for _, a := range attempts {
		if err := h.RecordAttempt(ctx, a); err != nil {
			t.Fatalf("RecordAttempt %s: %v", a.ID, err)
		}
	}

	// 更新结果
	a3 := attempts[2]
	a3.Outcome = models.OutcomeSuccess
	a3.OutcomeMessage = "ok"
	if err := h.RecordAttempt(ctx, a3); err != nil {
		t.Fatalf("update attempt: %v", err)
	}

	got, err := h.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(got))
	}
	if got[0].ID != "a3" || got[0].Outcome != models.OutcomeSuccess || got[0].OutcomeMessage != "ok" {
		t.Errorf("newest attempt = %+v", got[0])
	}
	if got[1].FailedStep != 3 || got[1].Success || got[1].Outcome != models.OutcomeUnknown {
		t.Errorf("failed attempt = %+v", got[1])
	}

	n, err := h.Prune(ctx, base.AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
	got, _ = h.RecentAttempts(ctx, 10)
	if len(got) != 2 {
		t.Errorf("expected 2 attempts after prune, got %d", len(got))
	}
}

package inbox

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"humg.top/checkin_scheduler/internal/models"
)

type recordingPoster struct {
	mu       sync.Mutex
	outcomes []models.CheckInOutcome
}

func (p *recordingPoster) PostOutcome(o models.CheckInOutcome) models.CheckInOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outcomes = append(p.outcomes, o)
	return o
}

func (p *recordingPoster) snapshot() []models.CheckInOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.CheckInOutcome(nil), p.outcomes...)
}

func TestWriteAndDrain(t *testing.T) {
	dir := t.TempDir()
	first := models.CheckInOutcome{Success: true, SourceURL: "https://example.com/ok", ObservedAt: time.Unix(100, 0)}
	second := models.CheckInOutcome{Success: false, Message: "late", ObservedAt: time.Unix(200, 0), Source: "cli"}

	if _, err := Write(dir, second); err != nil {
		t.Fatalf("Write: %v", err)
	}
	path, err := Write(dir, first)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if filepath.Ext(path) != ".json" {
		t.Errorf("path = %s", path)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	poster := &recordingPoster{}
	w, err := NewWatcher(dir, poster, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n := w.Drain(); n != 2 {
		t.Fatalf("Drain = %d, want 2", n)
	}

	got := poster.snapshot()
	if !got[0].Success || got[0].SourceURL != "https://example.com/ok" || got[0].Source != "inbox" {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].Success || got[1].Source != "cli" || got[0].ID == "" {
		t.Errorf("second = %+v", got[1])
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "notes.txt" {
		t.Errorf("inbox should only keep unrelated files, got %v", entries)
	}
}

func TestInvalidFileQuarantined(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	poster := &recordingPoster{}
	w, _ := NewWatcher(dir, poster, nil)
	if n := w.Drain(); n != 0 {
		t.Errorf("Drain = %d, want 0", n)
	}
	if _, err := os.Stat(bad + ".bad"); err != nil {
		t.Errorf("invalid file should be renamed: %v", err)
	}
	if w.Drain() != 0 || len(poster.snapshot()) != 0 {
		t.Error("quarantined file must not be retried")
	}
}

func TestWatcherPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	poster := &recordingPoster{}
	w, err := NewWatcher(dir, poster, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Debounce = 10 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	if _, err := Write(dir, models.CheckInOutcome{Success: true}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(poster.snapshot()) == 1 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got := poster.snapshot()
	if len(got) != 1 || !got[0].Success {
		t.Fatalf("outcomes = %+v", got)
	}

	w.Stop()
	w.Stop()
}

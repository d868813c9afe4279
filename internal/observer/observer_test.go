package observer

import (
	"context"
	"sync"
	"testing"
	"time"

	"humg.top/checkin_scheduler/internal/models"
	"humg.top/checkin_scheduler/internal/osauto"
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

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outcomes)
}

func TestCheck(t *testing.T) {
	f := osauto.NewFake(
		osauto.Window{Title: "签到成功 - Edge", Process: "msedge.exe"},
		osauto.Window{Title: "签到成功 - Notepad", Process: "notepad.exe"},
	)
	cfg := models.TitleWatchConfig{Processes: []string{"chrome", "MSEDGE"}, Keywords: []string{"打卡成功", "签到成功"}}
	w := NewTitleWatcher(f, &recordingPoster{}, cfg, nil)

	title, ok := w.Check()
	if !ok || title != "签到成功 - Edge" {
		t.Errorf("Check = %q, %v", title, ok)
	}

	f2 := osauto.NewFake(osauto.Window{Title: "签到成功 - Notepad", Process: "notepad.exe"})
	w2 := NewTitleWatcher(f2, &recordingPoster{}, cfg, nil)
	if _, ok := w2.Check(); ok {
		t.Error("unwatched process must not match")
	}
}

func TestWatchPostsOnce(t *testing.T) {
	f := osauto.NewFake()
	f.WindowsFunc = func(n int) ([]osauto.Window, error) {
		if n < 2 {
			return []osauto.Window{{Title: "loading", Process: "chrome.exe"}}, nil
		}
		return []osauto.Window{{Title: "打卡成功", Process: "chrome.exe"}}, nil
	}
	poster := &recordingPoster{}
	w := NewTitleWatcher(f, poster, models.TitleWatchConfig{
		Processes: []string{"chrome"}, Keywords: []string{"打卡成功"},
	}, nil)
	w.interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	w.Watch(ctx, time.Now())

	if poster.count() != 1 {
		t.Fatalf("posted %d outcomes, want 1", poster.count())
	}
	o := poster.outcomes[0]
	if !o.Success || o.Source != "title" || o.Message != "打卡成功" {
		t.Errorf("outcome = %+v", o)
	}
}

func TestWatchStopsOnCancel(t *testing.T) {
	f := osauto.NewFake(osauto.Window{Title: "nothing", Process: "chrome.exe"})
	poster := &recordingPoster{}
	w := NewTitleWatcher(f, poster, models.TitleWatchConfig{Keywords: []string{"签到成功"}}, nil)
	w.interval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	w.Watch(ctx, time.Now())

	if poster.count() != 0 {
		t.Errorf("nothing should be posted, got %d", poster.count())
	}
}

package window

import (
	"context"
	"errors"
	"testing"
	"time"

	"humg.top/checkin_scheduler/internal/clock"
	"humg.top/checkin_scheduler/internal/osauto"
)

func newTestLocator(f *osauto.Fake) *Locator {
	l := NewLocator(f, nil)
	l.Sleep = clock.NoSleep
	return l
}

func TestFindMatchesHiddenAndMinimized(t *testing.T) {
	tests := []struct {
		name    string
		windows []osauto.Window
		title   string
		want    uintptr
		wantErr bool
	}{
		{
			name:    "minimized window matches",
			windows: []osauto.Window{{Handle: 1, Title: "企业微信", Minimized: true}},
			title:   "企业微信",
			want:    1,
		},
		{
			name:    "hidden tray window matches",
			windows: []osauto.Window{{Handle: 2, Title: "WeCom - chat", Visible: false}},
			title:   "WeCom",
			want:    2,
		},
		{
			name:    "case sensitive",
			windows: []osauto.Window{{Handle: 3, Title: "wecom", Visible: true}},
			title:   "WeCom",
			wantErr: true,
		},
		{
			name: "shell classes excluded",
			windows: []osauto.Window{
				{Handle: 4, Title: "WeCom", Class: "Shell_TrayWnd", Visible: true},
				{Handle: 5, Title: "WeCom", Class: "WorkerW", Visible: true},
				{Handle: 6, Title: "WeCom", Class: "Progman", Visible: true},
				{Handle: 7, Title: "WeCom", Class: "DV2ControlHost", Visible: true},
			},
			title:   "WeCom",
			wantErr: true,
		},
		{
			name: "topmost of several",
			windows: []osauto.Window{
				{Handle: 8, Title: "WeCom popup", Visible: true},
				{Handle: 9, Title: "WeCom main", Visible: true},
			},
			title: "WeCom",
			want:  8,
		},
		{
			name:    "empty title never matches",
			windows: []osauto.Window{{Handle: 10, Title: "", Visible: true}},
			title:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLocator(osauto.NewFake(tt.windows...))
			w, _, err := l.Find(tt.title)
			if tt.wantErr {
				if !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Find: %v", err)
			}
			if w.Handle != tt.want {
				t.Errorf("handle = %d, want %d", w.Handle, tt.want)
			}
		})
	}
}

func TestFindAndActivate(t *testing.T) {
	tests := []struct {
		name   string
		window osauto.Window
		ops    []string
	}{
		{"minimized restores", osauto.Window{Handle: 1, Title: "IM", Minimized: true}, []string{"Windows", "Restore", "SetForeground"}},
		{"hidden shows", osauto.Window{Handle: 1, Title: "IM"}, []string{"Windows", "Show", "SetForeground"}},
		{"visible only foregrounds", osauto.Window{Handle: 1, Title: "IM", Visible: true}, []string{"Windows", "SetForeground"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := osauto.NewFake(tt.window)
			l := newTestLocator(f)
			if _, err := l.FindAndActivate(context.Background(), "IM"); err != nil {
				t.Fatalf("FindAndActivate: %v", err)
			}
			got := f.Ops()
			if len(got) != len(tt.ops) {
				t.Fatalf("ops = %v, want %v", got, tt.ops)
			}
			for i := range got {
				if got[i] != tt.ops[i] {
					t.Errorf("op %d = %s, want %s", i, got[i], tt.ops[i])
				}
			}
		})
	}
}

func TestFindAndActivateForegroundRefused(t *testing.T) {
	f := osauto.NewFake(osauto.Window{Handle: 1, Title: "IM", Visible: true})
	f.SetError("SetForeground", errors.New("refused"))
	l := newTestLocator(f)

	w, err := l.FindAndActivate(context.Background(), "IM")
	if err != nil {
		t.Fatalf("refused foreground should not fail activation: %v", err)
	}
	if w.Handle != 1 {
		t.Errorf("handle = %d", w.Handle)
	}
}

func TestWaitAndActivateEventuallyAppears(t *testing.T) {
	f := osauto.NewFake()
	f.WindowsFunc = func(n int) ([]osauto.Window, error) {
		if n < 3 {
			return nil, nil
		}
		return []osauto.Window{{Handle: 42, Title: "签到", Visible: true}}, nil
	}

	var waits []time.Duration
	l := newTestLocator(f)
	l.Sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}

	w, err := l.WaitAndActivate(context.Background(), "签到", 10, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitAndActivate: %v", err)
	}
	if w.Handle != 42 {
		t.Errorf("handle = %d", w.Handle)
	}
	// 3 次查找间隔 + 1 次激活后的 settle
	if len(waits) != 4 || waits[0] != 2*time.Second || waits[3] != 200*time.Millisecond {
		t.Errorf("waits = %v", waits)
	}
}

func TestWaitAndActivateGivesUp(t *testing.T) {
	f := osauto.NewFake()
	l := newTestLocator(f)

	_, err := l.WaitAndActivate(context.Background(), "missing", 10, time.Millisecond)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	windowsCalls := 0
	for _, op := range f.Ops() {
		if op == "Windows" {
			windowsCalls++
		}
	}
	if windowsCalls != 10 {
		t.Errorf("lookups = %d, want 10", windowsCalls)
	}
}

func TestList(t *testing.T) {
	f := osauto.NewFake(
		osauto.Window{Handle: 1, Title: "Chrome - 签到"},
		osauto.Window{Handle: 2, Title: ""},
		osauto.Window{Handle: 3, Title: "Program Manager", Class: "Progman"},
		osauto.Window{Handle: 4, Title: "chrome settings"},
	)
	l := newTestLocator(f)

	all, err := l.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("List() = %d windows, want 2", len(all))
	}

	filtered, _ := l.List("CHROME")
	if len(filtered) != 2 {
		t.Errorf("List(CHROME) = %d windows, want 2", len(filtered))
	}
}

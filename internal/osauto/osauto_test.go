package osauto

import (
	"errors"
	"testing"
)

func TestMouseLParam(t *testing.T) {
	tests := []struct {
		x, y int
		want uintptr
	}{
		{0, 0, 0},
		{10, 20, 20<<16 | 10},
		{0xFFFF, 1, 1<<16 | 0xFFFF},
		{0x1FFFF, 2, 2<<16 | 0xFFFF},
	}
	for _, tt := range tests {
		if got := MouseLParam(tt.x, tt.y); got != tt.want {
			t.Errorf("MouseLParam(%d, %d) = %#x, want %#x", tt.x, tt.y, got, tt.want)
		}
	}
}

func TestWindowState(t *testing.T) {
	if s := (Window{Minimized: true}).State(); s != "minimized" {
		t.Errorf("State = %s", s)
	}
	if s := (Window{}).State(); s != "hidden" {
		t.Errorf("State = %s", s)
	}
	if s := (Window{Visible: true}).State(); s != "visible" {
		t.Errorf("State = %s", s)
	}
}

func TestFakeRecordsCalls(t *testing.T) {
	f := NewFake(Window{Handle: 1, Title: "IM", Minimized: true})

	if err := f.Restore(1); err != nil {
		t.Fatal(err)
	}
	ws, _ := f.Windows()
	if ws[0].Minimized || !ws[0].Visible {
		t.Errorf("Restore should update window state, got %+v", ws[0])
	}

	f.SetError("SetForeground", errors.New("denied"))
	if err := f.SetForeground(1); err == nil {
		t.Error("expected injected error")
	}
	if n, _ := f.InjectClick(1, 2); n != 2 {
		t.Errorf("InjectClick accepted = %d, want 2", n)
	}

	want := []string{"Restore", "Windows", "SetForeground", "InjectClick"}
	got := f.Ops()
	if len(got) != len(want) {
		t.Fatalf("ops = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("op %d = %s, want %s", i, got[i], want[i])
		}
	}
}

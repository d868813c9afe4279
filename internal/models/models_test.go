package models

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"09:00", TimeOfDay{9, 0}, false},
		{"18:30", TimeOfDay{18, 30}, false},
		{" 7:05 ", TimeOfDay{7, 5}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeOfDay(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestTimeOfDayYAML(t *testing.T) {
	var cfg struct {
		At       TimeOfDay     `yaml:"at"`
		Strategy ClickStrategy `yaml:"strategy"`
	}
	if err := yaml.Unmarshal([]byte("at: \"08:45\"\nstrategy: rawinput\n"), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.At != (TimeOfDay{8, 45}) {
		t.Errorf("At = %v", cfg.At)
	}
	if cfg.Strategy != ClickRawInput {
		t.Errorf("Strategy = %q", cfg.Strategy)
	}

	data, err := json.Marshal(cfg.At)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"08:45"` {
		t.Errorf("json = %s", data)
	}
}

func TestParseClickStrategy(t *testing.T) {
	if got, err := ParseClickStrategy(""); err != nil || got != ClickAuto {
		t.Errorf("empty strategy = %q, %v", got, err)
	}
	if got, err := ParseClickStrategy("doubleclick"); err != nil || got != ClickDoubleClick {
		t.Errorf("doubleclick = %q, %v", got, err)
	}
	if _, err := ParseClickStrategy("triple"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

// TestDailyRecordDateReset 日期不一致时记录视为空
func TestDailyRecordDateReset(t *testing.T) {
	yesterday := time.Date(2026, 3, 9, 9, 0, 0, 0, time.Local)
	today := yesterday.AddDate(0, 0, 1)

	rec := EmptyRecord(yesterday)
	rec.MarkRun(SlotMorning, yesterday)
	rec.MarkRun(SlotEvening, yesterday.Add(9*time.Hour))

	if !rec.HasRun(SlotMorning, yesterday) || !rec.HasRun(SlotEvening, yesterday) {
		t.Fatal("expected both slots done yesterday")
	}
	for _, slot := range []Slot{SlotMorning, SlotEvening} {
		if rec.HasRun(slot, today) {
			t.Errorf("slot %s should not count as done on a new day", slot)
		}
	}

	rec.MarkRun(SlotEvening, today.Add(9*time.Hour))
	if rec.Date != today.Format(DateLayout) {
		t.Errorf("Date = %s, want %s", rec.Date, today.Format(DateLayout))
	}
	if rec.MorningDone != nil {
		t.Error("morning timestamp should be reset with the date")
	}
	if !rec.HasRun(SlotEvening, today) {
		t.Error("evening should be done today")
	}
}

func TestDailyRecordNil(t *testing.T) {
	var rec *DailyRecord
	if rec.HasRun(SlotMorning, time.Now()) {
		t.Error("nil record should be empty")
	}
}

package validator

import (
	"testing"
	"time"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestGenerateWindowsCount(t *testing.T) {
	cfg := WindowConfig{TrainDays: 252, TestDays: 63, StepDays: 21}
	start := date("2023-01-01")
	end := start.AddDate(0, 0, 365)

	windows := GenerateWindows(cfg, start, end)

	// 365天跨度下 252/63/21 应产生3个窗口
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}

	for i, w := range windows {
		if !w.TrainEnd.Equal(w.TrainStart.AddDate(0, 0, 252)) {
			t.Errorf("window %d: train length mismatch", i)
		}
		if !w.TestStart.Equal(w.TrainEnd) {
			t.Errorf("window %d: expected test to start at train end without embargo", i)
		}
		if !w.TestEnd.Equal(w.TestStart.AddDate(0, 0, 63)) {
			t.Errorf("window %d: test length mismatch", i)
		}
		if w.TestEnd.After(end) {
			t.Errorf("window %d: test end %s beyond range end", i, w.TestEnd)
		}
	}

	step := windows[1].TrainStart.Sub(windows[0].TrainStart)
	if step != 21*24*time.Hour {
		t.Errorf("expected 21 day step, got %s", step)
	}
}

func TestGenerateWindowsShortSpan(t *testing.T) {
	cfg := WindowConfig{TrainDays: 252, TestDays: 63, StepDays: 21}
	start := date("2024-01-01")

	// 跨度不足一个完整窗口时返回空，不报错
	windows := GenerateWindows(cfg, start, start.AddDate(0, 0, 200))
	if len(windows) != 0 {
		t.Fatalf("expected 0 windows for short span, got %d", len(windows))
	}
}

func TestGenerateWindowsInvalidConfig(t *testing.T) {
	start := date("2024-01-01")
	end := start.AddDate(0, 0, 1000)

	if w := GenerateWindows(WindowConfig{TrainDays: 0, TestDays: 63, StepDays: 21}, start, end); w != nil {
		t.Errorf("expected nil for zero train days, got %d windows", len(w))
	}
	if w := GenerateWindows(WindowConfig{TrainDays: 252, TestDays: 63, StepDays: 0}, start, end); w != nil {
		t.Errorf("expected nil for zero step days, got %d windows", len(w))
	}
}

func TestGenerateWindowsEmbargoGap(t *testing.T) {
	cfg := WindowConfig{TrainDays: 100, TestDays: 30, StepDays: 30, EmbargoDays: 5}
	start := date("2023-01-01")
	windows := GenerateWindows(cfg, start, start.AddDate(0, 0, 300))

	if len(windows) == 0 {
		t.Fatal("expected windows")
	}
	for i, w := range windows {
		gap := w.TestStart.Sub(w.TrainEnd)
		if gap != 5*24*time.Hour {
			t.Errorf("window %d: expected 5 day embargo gap, got %s", i, gap)
		}
	}
}

func TestEffectiveEmbargoDays(t *testing.T) {
	start := date("2023-01-01")
	end := start.AddDate(0, 0, 1000)

	// 固定天数优先于百分比
	cfg := WindowConfig{EmbargoDays: 7, EmbargoPct: 10}
	if got := cfg.EffectiveEmbargoDays(start, end); got != 7 {
		t.Errorf("expected fixed 7 days to take precedence, got %d", got)
	}

	cfg = WindowConfig{EmbargoPct: 2}
	if got := cfg.EffectiveEmbargoDays(start, end); got != 20 {
		t.Errorf("expected 2%% of 1000 days = 20, got %d", got)
	}

	cfg = WindowConfig{}
	if got := cfg.EffectiveEmbargoDays(start, end); got != 0 {
		t.Errorf("expected 0 embargo, got %d", got)
	}
}

package backtest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadReturnsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "returns.csv")
	content := "date,return\n2024-01-02,0.01\n2024-01-03,-0.005\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	returns, err := LoadReturnsCSV(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(returns) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(returns))
	}
	if returns[0].Return != 0.01 || returns[1].Return != -0.005 {
		t.Errorf("unexpected returns %+v", returns)
	}
	if returns[0].Date.Format("2006-01-02") != "2024-01-02" {
		t.Errorf("unexpected date %v", returns[0].Date)
	}
}

func TestLoadReturnsCSVBadRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "returns.csv")
	if err := os.WriteFile(path, []byte("2024-01-02,not-a-number\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadReturnsCSV(path); err == nil {
		t.Fatal("expected parse error")
	}

	if _, err := LoadReturnsCSV(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

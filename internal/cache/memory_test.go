package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheHistory(t *testing.T) {
	mc := NewMemoryCache(0)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	if _, err := mc.GetHistory(ctx, "SPY", start, end); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty cache, got %v", err)
	}

	closes := []float64{100, 101, 102}
	if err := mc.SetHistory(ctx, "SPY", start, end, closes, time.Minute); err != nil {
		t.Fatalf("set history: %v", err)
	}

	got, err := mc.GetHistory(ctx, "SPY", start, end)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(got) != 3 || got[0] != 100 {
		t.Errorf("unexpected closes %v", got)
	}

	// 不同区间是不同键
	if _, err := mc.GetHistory(ctx, "SPY", start, start.AddDate(0, 0, 10)); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for different range, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache(0)
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 30)

	if err := mc.SetHistory(ctx, "SPY", start, end, []float64{100}, time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := mc.GetHistory(ctx, "SPY", start, end); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected expired entry to be gone, got %v", err)
	}
}

func TestMemoryCacheLock(t *testing.T) {
	mc := NewMemoryCache(0)
	ctx := context.Background()

	acquired, err := mc.AcquireLock(ctx, "optimize:strat", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected first acquire to succeed, got %v %v", acquired, err)
	}

	// 锁被持有时二次获取失败
	acquired, err = mc.AcquireLock(ctx, "optimize:strat", time.Minute)
	if err != nil || acquired {
		t.Fatalf("expected second acquire to fail, got %v %v", acquired, err)
	}

	// 不同名字互不影响
	acquired, err = mc.AcquireLock(ctx, "optimize:other", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected unrelated lock to succeed, got %v %v", acquired, err)
	}

	if err := mc.ReleaseLock(ctx, "optimize:strat"); err != nil {
		t.Fatalf("release: %v", err)
	}
	acquired, err = mc.AcquireLock(ctx, "optimize:strat", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected acquire after release to succeed, got %v %v", acquired, err)
	}
}

func TestMemoryCacheLockExpiry(t *testing.T) {
	mc := NewMemoryCache(0)
	ctx := context.Background()

	if acquired, _ := mc.AcquireLock(ctx, "stale", time.Millisecond); !acquired {
		t.Fatal("setup acquire failed")
	}
	time.Sleep(5 * time.Millisecond)

	// 过期的锁可以被重新获取
	acquired, err := mc.AcquireLock(ctx, "stale", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("expected acquire after expiry, got %v %v", acquired, err)
	}
}

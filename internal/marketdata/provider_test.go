package marketdata

import (
	"context"
	"errors"
	"testing"
	"time"

	"quantgate/internal/cache"
)

func TestStaticProviderRange(t *testing.T) {
	p := NewStaticProvider()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	var closes []DatedClose
	for d := 0; d < 10; d++ {
		closes = append(closes, DatedClose{Date: start.AddDate(0, 0, d), Close: 100 + float64(d)})
	}
	p.SetCloses("SPY", closes)

	got, err := p.History(context.Background(), "SPY", start, start.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 5 || got[0] != 100 || got[4] != 104 {
		t.Errorf("unexpected closes %v", got)
	}

	// 未知标的返回空，不报错
	got, err = p.History(context.Background(), "QQQ", start, start.AddDate(0, 0, 5))
	if err != nil || len(got) != 0 {
		t.Errorf("expected empty history for unknown symbol, got %v err %v", got, err)
	}
}

func TestCachedProviderReadThrough(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 5)

	calls := 0
	inner := ProviderFunc(func(ctx context.Context, symbol string, s, e time.Time) ([]float64, error) {
		calls++
		return []float64{100, 101, 102}, nil
	})

	p := NewCachedProvider(inner, cache.NewMemoryCache(0), time.Minute, nil)

	for i := 0; i < 3; i++ {
		got, err := p.History(ctx, "SPY", start, end)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("unexpected closes %v", got)
		}
	}
	// 命中缓存后不再回源
	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls)
	}
}

func TestCachedProviderEmptyNotCached(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	calls := 0
	inner := ProviderFunc(func(ctx context.Context, symbol string, s, e time.Time) ([]float64, error) {
		calls++
		return nil, nil
	})
	p := NewCachedProvider(inner, cache.NewMemoryCache(0), time.Minute, nil)

	for i := 0; i < 2; i++ {
		if _, err := p.History(ctx, "SPY", start, start.AddDate(0, 0, 5)); err != nil {
			t.Fatal(err)
		}
	}
	if calls != 2 {
		t.Errorf("empty results must not be cached, got %d calls", calls)
	}
}

func TestCachedProviderUpstreamError(t *testing.T) {
	inner := ProviderFunc(func(ctx context.Context, symbol string, s, e time.Time) ([]float64, error) {
		return nil, errors.New("upstream down")
	})
	p := NewCachedProvider(inner, cache.NewMemoryCache(0), time.Minute, nil)

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := p.History(context.Background(), "SPY", start, start.AddDate(0, 0, 5)); err == nil {
		t.Fatal("expected upstream error to propagate")
	}
}

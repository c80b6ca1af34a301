package marketdata

import (
	"context"
	"errors"
	"sort"
	"time"

	"quantgate/internal/cache"
	"quantgate/internal/logger"
)

// Provider supplies benchmark close-price history. An empty result means
// no data is available for the range; callers treat that as "regime
// unknown", never as a failure.
type Provider interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]float64, error)
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, symbol string, start, end time.Time) ([]float64, error)

// History calls f
func (f ProviderFunc) History(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	return f(ctx, symbol, start, end)
}

// CachedProvider wraps a Provider with a cache layer so repeated window
// classifications do not refetch the same benchmark ranges
type CachedProvider struct {
	inner  Provider
	cache  cache.Cacher
	ttl    time.Duration
	logger logger.Logger
}

// NewCachedProvider creates a caching provider decorator
func NewCachedProvider(inner Provider, c cache.Cacher, ttl time.Duration, log logger.Logger) *CachedProvider {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedProvider{
		inner:  inner,
		cache:  c,
		ttl:    ttl,
		logger: log,
	}
}

// History returns cached closes when present, otherwise fetches and caches
func (p *CachedProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	closes, err := p.cache.GetHistory(ctx, symbol, start, end)
	if err == nil {
		return closes, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		// 缓存故障时直接走底层数据源
		p.logger.Warn("history cache read failed", "symbol", symbol, "error", err.Error())
	}

	closes, err = p.inner.History(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	if len(closes) > 0 {
		if err := p.cache.SetHistory(ctx, symbol, start, end, closes, p.ttl); err != nil {
			p.logger.Warn("history cache write failed", "symbol", symbol, "error", err.Error())
		}
	}
	return closes, nil
}

// StaticProvider serves history from preloaded dated closes. Used for
// offline evaluation and tests.
type StaticProvider struct {
	closes map[string][]DatedClose
}

// DatedClose represents one benchmark close price
type DatedClose struct {
	Date  time.Time
	Close float64
}

// NewStaticProvider creates a provider over fixed data
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		closes: make(map[string][]DatedClose),
	}
}

// SetCloses registers the close series for a symbol, sorted by date
func (p *StaticProvider) SetCloses(symbol string, closes []DatedClose) {
	sorted := make([]DatedClose, len(closes))
	copy(sorted, closes)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	p.closes[symbol] = sorted
}

// History returns closes between start (inclusive) and end (exclusive)
func (p *StaticProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]float64, error) {
	var out []float64
	for _, c := range p.closes[symbol] {
		if c.Date.Before(start) || !c.Date.Before(end) {
			continue
		}
		out = append(out, c.Close)
	}
	return out, nil
}

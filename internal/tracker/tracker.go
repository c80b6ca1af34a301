package tracker

import (
	"context"
	"fmt"
	"time"

	"quantgate/internal/config"
	"quantgate/internal/logger"
	"quantgate/internal/monitoring"
)

// AlertLevel represents the severity of a live-vs-backtest divergence
type AlertLevel string

const (
	AlertOK       AlertLevel = "ok"
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// Expectation represents the performance claimed by validation at the
// time a version was promoted
type Expectation struct {
	Strategy  string    `json:"strategy"`
	VersionID string    `json:"version_id"`
	Sharpe    float64   `json:"sharpe"`
	Return    float64   `json:"return"`   // percent
	Drawdown  float64   `json:"drawdown"` // percent, positive
	EvalDate  time.Time `json:"eval_date"`
}

// LiveRecord represents one observed live-performance period with its
// divergence from the most recent expectation
type LiveRecord struct {
	Strategy   string    `json:"strategy"`
	Period     string    `json:"period"`
	RecordedAt time.Time `json:"recorded_at"`

	Sharpe   float64 `json:"sharpe"`
	Return   float64 `json:"return"`
	Drawdown float64 `json:"drawdown"`

	// Divergence: expected - live for Sharpe and return, live - expected
	// for drawdown (higher live drawdown is the danger direction)
	SharpeDivergence   float64 `json:"sharpe_divergence"`
	ReturnDivergence   float64 `json:"return_divergence"`
	DrawdownDivergence float64 `json:"drawdown_divergence"`

	ExpectationVersion string     `json:"expectation_version,omitempty"`
	Alert              AlertLevel `json:"alert"`
}

// StrategyRecords holds all tracker state for one strategy
type StrategyRecords struct {
	Expectations []Expectation `json:"expectations"`
	Live         []LiveRecord  `json:"live"`
}

// RecordStore persists tracker records keyed by strategy name
type RecordStore interface {
	Load(ctx context.Context, strategy string) (*StrategyRecords, error)
	Save(ctx context.Context, strategy string, records *StrategyRecords) error
}

// Tracker records live performance against validation expectations and
// raises divergence alerts
type Tracker struct {
	store      RecordStore
	thresholds config.TrackerConfig
	logger     logger.Logger
	metrics    *monitoring.Metrics
}

// NewTracker creates a new live-vs-backtest tracker
func NewTracker(store RecordStore, thresholds config.TrackerConfig, log logger.Logger, metrics *monitoring.Metrics) *Tracker {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Tracker{
		store:      store,
		thresholds: thresholds,
		logger:     log,
		metrics:    metrics,
	}
}

// RecordExpectation appends a validation claim for a promoted version
func (t *Tracker) RecordExpectation(ctx context.Context, strategy, versionID string, sharpe, ret, drawdown float64, evalDate time.Time) error {
	records, err := t.store.Load(ctx, strategy)
	if err != nil {
		return fmt.Errorf("failed to load tracker records: %w", err)
	}

	records.Expectations = append(records.Expectations, Expectation{
		Strategy:  strategy,
		VersionID: versionID,
		Sharpe:    sharpe,
		Return:    ret,
		Drawdown:  drawdown,
		EvalDate:  evalDate,
	})

	if err := t.store.Save(ctx, strategy, records); err != nil {
		return fmt.Errorf("failed to save tracker records: %w", err)
	}

	t.logger.Info("recorded backtest expectation",
		"strategy", strategy,
		"version", versionID,
		"sharpe", sharpe,
	)
	return nil
}

// RecordLive appends a live-performance period, computing divergence
// against the most recent expectation and classifying an alert level
func (t *Tracker) RecordLive(ctx context.Context, strategy, period string, sharpe, ret, drawdown float64) (*LiveRecord, error) {
	records, err := t.store.Load(ctx, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracker records: %w", err)
	}

	record := LiveRecord{
		Strategy:   strategy,
		Period:     period,
		RecordedAt: time.Now().UTC(),
		Sharpe:     sharpe,
		Return:     ret,
		Drawdown:   drawdown,
		Alert:      AlertOK,
	}

	if n := len(records.Expectations); n > 0 {
		expected := records.Expectations[n-1]
		record.ExpectationVersion = expected.VersionID
		record.SharpeDivergence = expected.Sharpe - sharpe
		record.ReturnDivergence = expected.Return - ret
		record.DrawdownDivergence = drawdown - expected.Drawdown
		record.Alert = t.classify(&record)
	}

	records.Live = append(records.Live, record)
	if err := t.store.Save(ctx, strategy, records); err != nil {
		return nil, fmt.Errorf("failed to save tracker records: %w", err)
	}

	t.metrics.RecordDivergenceAlert(strategy, string(record.Alert))
	if record.Alert != AlertOK {
		t.logger.Warn("live performance diverging from backtest",
			"strategy", strategy,
			"period", period,
			"alert", string(record.Alert),
			"sharpe_divergence", record.SharpeDivergence,
			"drawdown_divergence", record.DrawdownDivergence,
		)
	}
	return &record, nil
}

// classify maps divergences to an alert level. Excess live drawdown is
// critical; Sharpe or return shortfalls are warnings.
func (t *Tracker) classify(r *LiveRecord) AlertLevel {
	if r.DrawdownDivergence > t.thresholds.DrawdownDivergencePts {
		return AlertCritical
	}
	if r.SharpeDivergence > t.thresholds.SharpeDivergence ||
		r.ReturnDivergence > t.thresholds.ReturnDivergencePct {
		return AlertWarning
	}
	return AlertOK
}

// ExpectationForVersion returns the expectation recorded when versionID
// was promoted
func (t *Tracker) ExpectationForVersion(ctx context.Context, strategy, versionID string) (*Expectation, error) {
	records, err := t.store.Load(ctx, strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracker records: %w", err)
	}
	for i := len(records.Expectations) - 1; i >= 0; i-- {
		if records.Expectations[i].VersionID == versionID {
			e := records.Expectations[i]
			return &e, nil
		}
	}
	return nil, fmt.Errorf("no expectation recorded for version %s", versionID)
}

// LiveSharpeSince returns the mean live Sharpe of records at or after
// since. It errors when no live record exists, so confirmation can fail
// closed.
func (t *Tracker) LiveSharpeSince(ctx context.Context, strategy string, since time.Time) (float64, error) {
	records, err := t.store.Load(ctx, strategy)
	if err != nil {
		return 0, fmt.Errorf("failed to load tracker records: %w", err)
	}

	sum, count := 0.0, 0
	for _, r := range records.Live {
		if r.RecordedAt.Before(since) {
			continue
		}
		sum += r.Sharpe
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("no live performance recorded for %s since %s",
			strategy, since.Format("2006-01-02"))
	}
	return sum / float64(count), nil
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"quantgate/internal/config"
	"quantgate/internal/logger"
	"quantgate/internal/monitoring"
	"quantgate/internal/tracker"
	"quantgate/internal/validator"
	"quantgate/internal/version"
)

// ConfirmationOutcome represents the result of a probation check
type ConfirmationOutcome string

const (
	OutcomeNone       ConfirmationOutcome = "none"    // no pending version
	OutcomeWaiting    ConfirmationOutcome = "waiting" // deadline not reached
	OutcomeConfirmed  ConfirmationOutcome = "confirmed"
	OutcomeRolledBack ConfirmationOutcome = "rolled_back"
)

// Locker is the single-writer guard for promotions; satisfied by the
// cache layer
type Locker interface {
	AcquireLock(ctx context.Context, name string, expiration time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name string) error
}

// ReOptimizationScheduler decides when re-optimization is due, runs the
// grid search with the walk-forward validator as evaluation oracle,
// enforces safety bounds on the winner and manages the
// promote/probation/confirm/rollback lifecycle
type ReOptimizationScheduler struct {
	cfg       config.SchedulerConfig
	validator *validator.WalkForwardValidator
	versions  version.Store
	state     StateStore
	tracker   *tracker.Tracker
	locks     Locker
	logger    logger.Logger
	metrics   *monitoring.Metrics

	initialCapital float64
}

// NewReOptimizationScheduler creates a new scheduler. locks and metrics
// may be nil.
func NewReOptimizationScheduler(cfg config.SchedulerConfig, wfv *validator.WalkForwardValidator, versions version.Store, state StateStore, trk *tracker.Tracker, locks Locker, log logger.Logger, metrics *monitoring.Metrics, initialCapital float64) *ReOptimizationScheduler {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &ReOptimizationScheduler{
		cfg:            cfg,
		validator:      wfv,
		versions:       versions,
		state:          state,
		tracker:        trk,
		locks:          locks,
		logger:         log,
		metrics:        metrics,
		initialCapital: initialCapital,
	}
}

// frequencyPeriod maps the configured frequency to a duration
func (s *ReOptimizationScheduler) frequencyPeriod() time.Duration {
	switch s.cfg.Frequency {
	case "daily":
		return 24 * time.Hour
	case "weekly":
		return 7 * 24 * time.Hour
	case "quarterly":
		return 90 * 24 * time.Hour
	default: // monthly
		return 30 * 24 * time.Hour
	}
}

// ShouldRun reports whether re-optimization is due for a strategy
func (s *ReOptimizationScheduler) ShouldRun(ctx context.Context, strategy string, now time.Time) (bool, error) {
	lastRun, err := s.state.LastRun(ctx, strategy)
	if err != nil {
		return false, fmt.Errorf("failed to read last run: %w", err)
	}
	if lastRun.IsZero() {
		return true, nil
	}

	minInterval := time.Duration(s.cfg.MinDaysBetweenRuns) * 24 * time.Hour
	if period := s.frequencyPeriod(); period > minInterval {
		minInterval = period
	}
	return now.Sub(lastRun) >= minInterval, nil
}

// RunOptimization evaluates every grid combination over the window,
// applies the safety gates and promotes the winner. All failures,
// including internal errors, are reported through the result status;
// this method never panics outward and never mutates the version store
// on a failed run.
func (s *ReOptimizationScheduler) RunOptimization(ctx context.Context, strategy string, grid Grid, schema Schema, start, end time.Time) (result *OptimizationResult) {
	started := time.Now()
	result = &OptimizationResult{
		ID:        uuid.NewString(),
		Strategy:  strategy,
		StartedAt: started.UTC(),
		Frequency: s.cfg.Frequency,
		Status:    StatusRunning,
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("internal error: %v", r)
			s.logger.Error("optimization panicked", "optimization", result.ID, "panic", fmt.Sprintf("%v", r))
		}
		result.Duration = time.Since(started)
		if err := s.state.SaveResult(ctx, result); err != nil {
			s.logger.Error("failed to persist optimization result", "optimization", result.ID, "error", err.Error())
		}
		s.metrics.RecordOptimizationRun(strategy, string(result.Status))
		s.logger.Info("optimization finished",
			"optimization", result.ID,
			"strategy", strategy,
			"status", string(result.Status),
			"reason", result.Reason,
			"duration", result.Duration.String(),
		)
	}()

	// 同一策略同一时间只允许一次晋升
	if s.locks != nil {
		acquired, err := s.locks.AcquireLock(ctx, "optimize:"+strategy, time.Hour)
		if err != nil {
			result.Status = StatusFailed
			result.Reason = fmt.Sprintf("lock error: %v", err)
			return result
		}
		if !acquired {
			result.Status = StatusFailed
			result.Reason = "optimization already in progress"
			return result
		}
		defer s.locks.ReleaseLock(ctx, "optimize:"+strategy)
	}

	best, bestResults, evaluated, failed := s.searchGrid(ctx, strategy, grid, schema, start, end)
	if ctx.Err() != nil {
		result.Status = StatusFailed
		result.Reason = "evaluation cancelled"
		return result
	}
	s.logger.Info("grid search completed",
		"strategy", strategy,
		"evaluated", evaluated,
		"failed", failed,
		"winner_found", best != nil,
	)

	if best == nil {
		result.Status = StatusFailed
		result.Reason = "no valid combination"
		return result
	}

	result.ValidationPassed = true
	result.BestMetrics = &CandidateMetrics{
		MeanOOSSharpe:    bestResults.MeanOOSSharpe,
		MeanOOSReturn:    bestResults.MeanOOSReturn,
		MeanOOSDrawdown:  bestResults.MeanOOSDrawdown,
		MeanOOSWinRate:   bestResults.MeanOOSWinRate,
		AvgSharpeDecay:   bestResults.AvgSharpeDecay,
		OverfittingScore: bestResults.OverfittingScore,
	}

	active, err := s.versions.Active(ctx, strategy)
	if err != nil && !errors.Is(err, version.ErrNoActive) {
		result.Status = StatusFailed
		result.Reason = fmt.Sprintf("version store error: %v", err)
		return result
	}

	if active != nil {
		result.PreviousVersionID = active.ID
		result.ParamChanges = paramChanges(active.Params, best)

		// 参数变动超限直接拒绝，不创建新版本
		for name, change := range result.ParamChanges {
			if change.ChangePct > s.cfg.MaxParameterChangePct {
				result.Status = StatusFailed
				result.Reason = fmt.Sprintf("parameter bound exceeded: %s changed %.1f%% > %.1f%%",
					name, change.ChangePct, s.cfg.MaxParameterChangePct)
				return result
			}
		}

		if s.cfg.RequireImprovement {
			activeSharpe := active.ExpectedSharpe()
			required := activeSharpe
			if activeSharpe > 0 {
				required = activeSharpe * (1 + s.cfg.MinImprovementPct/100)
			}
			if bestResults.MeanOOSSharpe <= required {
				result.Status = StatusFailed
				result.Reason = fmt.Sprintf("insufficient improvement: sharpe %.2f vs required %.2f",
					bestResults.MeanOOSSharpe, required)
				return result
			}
		}
	}

	newVersion := &version.ModelVersion{
		ID:         version.NewVersionID(),
		StrategyID: strategy,
		CreatedAt:  started.UTC(),
		Params:     best,
		Validation: bestResults,
	}

	if err := s.versions.Promote(ctx, newVersion); err != nil {
		result.Status = StatusFailed
		result.Reason = fmt.Sprintf("promotion failed: %v", err)
		return result
	}

	if err := s.tracker.RecordExpectation(ctx, strategy, newVersion.ID,
		bestResults.MeanOOSSharpe, bestResults.MeanOOSReturn, bestResults.MeanOOSDrawdown,
		bestResults.EvaluatedAt); err != nil {
		s.logger.Error("failed to record expectation", "strategy", strategy, "version", newVersion.ID, "error", err.Error())
	}

	pending := &PendingConfirmation{
		Strategy:          strategy,
		VersionID:         newVersion.ID,
		PreviousVersionID: result.PreviousVersionID,
		ResultID:          result.ID,
		PromotedAt:        started.UTC(),
		Deadline:          started.UTC().Add(time.Duration(s.cfg.AutoRollbackDays) * 24 * time.Hour),
		ExpectedSharpe:    bestResults.MeanOOSSharpe,
	}
	if err := s.state.SetPending(ctx, pending); err != nil {
		s.logger.Error("failed to set pending confirmation", "strategy", strategy, "version", newVersion.ID, "error", err.Error())
	}

	result.NewVersionID = newVersion.ID
	result.Status = StatusPassed
	s.metrics.SetActiveVersionSharpe(strategy, bestResults.MeanOOSSharpe)
	return result
}

// searchGrid evaluates every schema-valid combination and returns the
// passing candidate with the highest mean OOS Sharpe
func (s *ReOptimizationScheduler) searchGrid(ctx context.Context, strategy string, grid Grid, schema Schema, start, end time.Time) (map[string]float64, *validator.MatrixResults, int, int) {
	var (
		best        map[string]float64
		bestResults *validator.MatrixResults
		evaluated   int
		failed      int
	)

	for _, combo := range grid.Combinations() {
		if ctx.Err() != nil {
			break
		}
		if schema != nil {
			if err := schema.Validate(combo); err != nil {
				s.logger.Warn("skipping invalid grid combination", "strategy", strategy, "error", err.Error())
				continue
			}
		}

		results, err := s.validator.Evaluate(ctx, strategy, combo, start, end, s.initialCapital)
		if err != nil {
			failed++
			continue
		}
		evaluated++
		if !results.Passed {
			continue
		}
		if bestResults == nil || results.MeanOOSSharpe > bestResults.MeanOOSSharpe {
			best = combo
			bestResults = results
		}
	}
	return best, bestResults, evaluated, failed
}

// paramChanges computes per-parameter percent changes against the active
// version. A parameter without an old value counts as a 100% change.
func paramChanges(oldParams, newParams map[string]float64) map[string]ParamChange {
	changes := make(map[string]ParamChange, len(newParams))
	for name, newValue := range newParams {
		oldValue, ok := oldParams[name]
		change := ParamChange{Old: oldValue, New: newValue}
		if !ok || oldValue == 0 {
			change.ChangePct = 100
		} else {
			change.ChangePct = math.Abs(newValue-oldValue) / math.Abs(oldValue) * 100
		}
		changes[name] = change
	}
	return changes
}

// CheckPendingConfirmation closes out the probation period once the
// deadline has passed: confirm when live Sharpe held up, roll back when
// it decayed past the configured bound. Live-data retrieval failure
// leaves all state untouched so the check can be retried.
func (s *ReOptimizationScheduler) CheckPendingConfirmation(ctx context.Context, strategy string, now time.Time) (ConfirmationOutcome, error) {
	pending, err := s.state.Pending(ctx, strategy)
	if err != nil {
		return OutcomeNone, fmt.Errorf("failed to read pending marker: %w", err)
	}
	if pending == nil {
		return OutcomeNone, nil
	}
	if now.Before(pending.Deadline) {
		return OutcomeWaiting, nil
	}

	// 获取试运行期间的实盘表现；取不到就保持现状，下个周期重试
	liveSharpe, err := s.tracker.LiveSharpeSince(ctx, strategy, pending.PromotedAt)
	if err != nil {
		return OutcomeWaiting, fmt.Errorf("live performance unavailable: %w", err)
	}

	decay := pending.ExpectedSharpe - liveSharpe
	if decay > s.cfg.MaxLiveSharpeDecay {
		reason := fmt.Sprintf("live sharpe decay %.2f exceeds %.2f (expected %.2f, live %.2f)",
			decay, s.cfg.MaxLiveSharpeDecay, pending.ExpectedSharpe, liveSharpe)

		if pending.PreviousVersionID == "" {
			return OutcomeWaiting, fmt.Errorf("rollback required but no prior version exists: %s", reason)
		}
		if err := s.versions.Rollback(ctx, strategy, pending.PreviousVersionID, reason); err != nil {
			return OutcomeWaiting, fmt.Errorf("rollback failed: %w", err)
		}
		if err := s.state.ClearPending(ctx, strategy); err != nil {
			s.logger.Error("failed to clear pending marker", "strategy", strategy, "error", err.Error())
		}
		s.markResultRolledBack(ctx, strategy, pending.ResultID, reason)
		s.metrics.RecordRollback(strategy, "auto")
		s.logger.Warn("probation failed, rolled back",
			"strategy", strategy,
			"version", pending.VersionID,
			"restored", pending.PreviousVersionID,
			"reason", reason,
		)
		return OutcomeRolledBack, nil
	}

	note := fmt.Sprintf("confirmed after probation: live sharpe %.2f vs expected %.2f", liveSharpe, pending.ExpectedSharpe)
	if err := s.versions.AppendNote(ctx, pending.VersionID, note); err != nil {
		return OutcomeWaiting, fmt.Errorf("failed to append confirmation note: %w", err)
	}
	if err := s.state.ClearPending(ctx, strategy); err != nil {
		s.logger.Error("failed to clear pending marker", "strategy", strategy, "error", err.Error())
	}
	s.logger.Info("probation passed, version confirmed",
		"strategy", strategy,
		"version", pending.VersionID,
		"live_sharpe", liveSharpe,
	)
	return OutcomeConfirmed, nil
}

// markResultRolledBack updates the originating run's stored status
func (s *ReOptimizationScheduler) markResultRolledBack(ctx context.Context, strategy, resultID, reason string) {
	results, err := s.state.Results(ctx, strategy)
	if err != nil {
		s.logger.Error("failed to load results for rollback update", "strategy", strategy, "error", err.Error())
		return
	}
	for _, r := range results {
		if r.ID == resultID {
			r.Status = StatusRolledBack
			r.Reason = reason
			if err := s.state.SaveResult(ctx, r); err != nil {
				s.logger.Error("failed to update rolled-back result", "optimization", resultID, "error", err.Error())
			}
			return
		}
	}
}

// RollbackTo is the manual override: reinstate a specific version at any
// time with the same reactivation semantics as the automatic path
func (s *ReOptimizationScheduler) RollbackTo(ctx context.Context, strategy, versionID, reason string) error {
	if err := s.versions.Rollback(ctx, strategy, versionID, reason); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	// 如果回滚掉的是试运行中的版本，同时清除待确认标记
	pending, err := s.state.Pending(ctx, strategy)
	if err == nil && pending != nil && pending.VersionID != versionID {
		if err := s.state.ClearPending(ctx, strategy); err != nil {
			s.logger.Error("failed to clear pending marker", "strategy", strategy, "error", err.Error())
		}
		s.markResultRolledBack(ctx, strategy, pending.ResultID, reason)
	}

	s.metrics.RecordRollback(strategy, "manual")
	s.logger.Info("manual rollback executed",
		"strategy", strategy,
		"version", versionID,
		"reason", reason,
	)
	return nil
}

package scheduler

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"quantgate/internal/backtest"
	"quantgate/internal/cache"
	"quantgate/internal/config"
	"quantgate/internal/tracker"
	"quantgate/internal/validator"
	"quantgate/internal/version"
)

var evalStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// paramRunner maps params["x"] straight to the OOS Sharpe so grid
// winners are deterministic; in-sample runs score 0.3 higher
func paramRunner() backtest.Runner {
	return backtest.RunnerFunc(func(ctx context.Context, strategyID string, params map[string]float64, start, end time.Time, initialCapital float64) (*backtest.PerformanceStats, error) {
		sharpe := params["x"] / 10
		days := int(end.Sub(start).Hours() / 24)
		if days >= 60 {
			return &backtest.PerformanceStats{SharpeRatio: sharpe + 0.3, TotalReturn: 12, MaxDrawdown: 6, WinRate: 58, TradingDays: days}, nil
		}
		return &backtest.PerformanceStats{SharpeRatio: sharpe, TotalReturn: 6, MaxDrawdown: 8, WinRate: 56, TradingDays: days}, nil
	})
}

type schedEnv struct {
	sched    *ReOptimizationScheduler
	versions *version.FileStore
	state    *FileStateStore
	tracker  *tracker.Tracker
	locks    cache.Cacher
}

func newSchedEnv(t *testing.T, runner backtest.Runner) *schedEnv {
	t.Helper()
	dir := t.TempDir()

	versions, err := version.NewFileStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	state, err := NewFileStateStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	records, err := tracker.NewFileRecordStore(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	trk := tracker.NewTracker(records, config.TrackerConfig{
		SharpeDivergence:      0.5,
		ReturnDivergencePct:   20,
		DrawdownDivergencePts: 10,
	}, nil, nil)

	wfv := validator.NewWalkForwardValidator(
		validator.WindowConfig{TrainDays: 60, TestDays: 20, StepDays: 20},
		config.ValidationConfig{
			MinWindows:            2,
			MinOOSSharpe:          0.8,
			MaxAvgSharpeDecay:     0.5,
			MaxOOSDrawdownPct:     15,
			MinOOSWinRatePct:      52,
			WarnSharpeConsistency: 0.6,
		},
		runner, nil, nil, nil)

	locks := cache.NewMemoryCache(0)
	cfg := config.SchedulerConfig{
		Frequency:             "monthly",
		MinDaysBetweenRuns:    7,
		MaxParameterChangePct: 50,
		RequireImprovement:    true,
		MinImprovementPct:     5,
		AutoRollbackDays:      30,
		MaxLiveSharpeDecay:    0.5,
	}

	return &schedEnv{
		sched:    NewReOptimizationScheduler(cfg, wfv, versions, state, trk, locks, nil, nil, 100000),
		versions: versions,
		state:    state,
		tracker:  trk,
		locks:    locks,
	}
}

func (e *schedEnv) runGrid(ctx context.Context, values ...float64) *OptimizationResult {
	return e.sched.RunOptimization(ctx, "strat", Grid{"x": values}, Schema{"x": {Min: 0, Max: 100}},
		evalStart, evalStart.AddDate(0, 0, 150))
}

func TestRunOptimizationPromotesWinner(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	result := env.runGrid(ctx, 9, 12)
	if result.Status != StatusPassed {
		t.Fatalf("expected passed, got %s (%s)", result.Status, result.Reason)
	}
	if result.NewVersionID == "" {
		t.Fatal("expected new version id")
	}
	if !result.ValidationPassed {
		t.Error("expected validation passed flag")
	}

	// 最优组合晋升为活动版本
	active, err := env.versions.Active(ctx, "strat")
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.Params["x"] != 12 {
		t.Errorf("expected winner x=12 promoted, got %v", active.Params)
	}

	// 待确认标记钉住晋升时的预期夏普
	pending, err := env.state.Pending(ctx, "strat")
	if err != nil || pending == nil {
		t.Fatalf("expected pending marker, got %v err %v", pending, err)
	}
	if pending.VersionID != result.NewVersionID {
		t.Errorf("pending version mismatch: %s vs %s", pending.VersionID, result.NewVersionID)
	}
	if math.Abs(pending.ExpectedSharpe-1.2) > 1e-9 {
		t.Errorf("expected pinned sharpe 1.2, got %v", pending.ExpectedSharpe)
	}
	wantDeadline := pending.PromotedAt.Add(30 * 24 * time.Hour)
	if !pending.Deadline.Equal(wantDeadline) {
		t.Errorf("expected 30 day probation deadline, got %s", pending.Deadline)
	}

	// 预期指标同步记入追踪器
	if _, err := env.tracker.ExpectationForVersion(ctx, "strat", result.NewVersionID); err != nil {
		t.Errorf("expectation not recorded: %v", err)
	}

	// 运行结果落库
	results, err := env.state.Results(ctx, "strat")
	if err != nil || len(results) != 1 {
		t.Fatalf("expected 1 stored result, got %d err %v", len(results), err)
	}
}

func TestRunOptimizationParameterBound(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	prior := &version.ModelVersion{
		ID:         "ver_prior",
		StrategyID: "strat",
		CreatedAt:  time.Now().UTC(),
		Params:     map[string]float64{"x": 10},
		Validation: &validator.MatrixResults{MeanOOSSharpe: 0.5},
	}
	if err := env.versions.Promote(ctx, prior); err != nil {
		t.Fatal(err)
	}

	// x: 10 -> 20 是100%变动，超出50%上限
	result := env.runGrid(ctx, 20)
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Reason, "parameter bound exceeded") {
		t.Errorf("unexpected reason: %s", result.Reason)
	}

	// 不得创建新版本，活动版本保持不变
	active, err := env.versions.Active(ctx, "strat")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != "ver_prior" {
		t.Errorf("active version must be unchanged, got %s", active.ID)
	}
	all, _ := env.versions.List(ctx, "strat")
	if len(all) != 1 {
		t.Errorf("expected no new version, got %d versions", len(all))
	}
	if pending, _ := env.state.Pending(ctx, "strat"); pending != nil {
		t.Error("failed run must not leave a pending marker")
	}
}

func TestRunOptimizationInsufficientImprovement(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	prior := &version.ModelVersion{
		ID:         "ver_prior",
		StrategyID: "strat",
		CreatedAt:  time.Now().UTC(),
		Params:     map[string]float64{"x": 12},
		Validation: &validator.MatrixResults{MeanOOSSharpe: 1.2},
	}
	if err := env.versions.Promote(ctx, prior); err != nil {
		t.Fatal(err)
	}

	// 候选夏普1.2，未超过 1.2*1.05 的最低改进要求
	result := env.runGrid(ctx, 12)
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if !strings.Contains(result.Reason, "insufficient improvement") {
		t.Errorf("unexpected reason: %s", result.Reason)
	}

	active, _ := env.versions.Active(ctx, "strat")
	if active.ID != "ver_prior" {
		t.Errorf("active version must be unchanged, got %s", active.ID)
	}
}

func TestRunOptimizationNoValidCombination(t *testing.T) {
	env := newSchedEnv(t, paramRunner())

	// x=5 的OOS夏普0.5低于0.8门槛，无通过组合
	result := env.runGrid(context.Background(), 5)
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Reason != "no valid combination" {
		t.Errorf("unexpected reason: %s", result.Reason)
	}
}

func TestRunOptimizationSchemaViolationSkipped(t *testing.T) {
	env := newSchedEnv(t, paramRunner())

	result := env.sched.RunOptimization(context.Background(), "strat",
		Grid{"x": {500}}, Schema{"x": {Min: 0, Max: 100}},
		evalStart, evalStart.AddDate(0, 0, 150))
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Reason != "no valid combination" {
		t.Errorf("unexpected reason: %s", result.Reason)
	}
}

func TestRunOptimizationLockHeld(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	acquired, err := env.locks.AcquireLock(ctx, "optimize:strat", time.Hour)
	if err != nil || !acquired {
		t.Fatalf("setup lock: %v %v", acquired, err)
	}

	result := env.runGrid(ctx, 12)
	if result.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Reason != "optimization already in progress" {
		t.Errorf("unexpected reason: %s", result.Reason)
	}
}

func setPending(t *testing.T, env *schedEnv, versionID, previousID string, expected float64) *PendingConfirmation {
	t.Helper()
	now := time.Now().UTC()
	pending := &PendingConfirmation{
		Strategy:          "strat",
		VersionID:         versionID,
		PreviousVersionID: previousID,
		ResultID:          "run_1",
		PromotedAt:        now.AddDate(0, 0, -31),
		Deadline:          now.AddDate(0, 0, -1),
		ExpectedSharpe:    expected,
	}
	if err := env.state.SetPending(context.Background(), pending); err != nil {
		t.Fatal(err)
	}
	return pending
}

func TestCheckPendingConfirmationConfirms(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	v := &version.ModelVersion{ID: "ver_new", StrategyID: "strat", CreatedAt: time.Now().UTC(),
		Params: map[string]float64{"x": 12}}
	if err := env.versions.Promote(ctx, v); err != nil {
		t.Fatal(err)
	}
	setPending(t, env, "ver_new", "", 1.2)

	// 实盘夏普1.1，衰减0.1在0.5容忍内
	if _, err := env.tracker.RecordLive(ctx, "strat", "2026-08", 1.1, 5, 6); err != nil {
		t.Fatal(err)
	}

	outcome, err := env.sched.CheckPendingConfirmation(ctx, "strat", time.Now().UTC())
	if err != nil {
		t.Fatalf("confirmation check: %v", err)
	}
	if outcome != OutcomeConfirmed {
		t.Fatalf("expected confirmed, got %s", outcome)
	}

	if pending, _ := env.state.Pending(ctx, "strat"); pending != nil {
		t.Error("pending marker must be cleared after confirmation")
	}
	got, _ := env.versions.Get(ctx, "ver_new")
	if len(got.Notes) == 0 {
		t.Error("expected confirmation note on version")
	}
}

func TestCheckPendingConfirmationRollsBack(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	v1 := &version.ModelVersion{ID: "ver_1", StrategyID: "strat", CreatedAt: time.Now().UTC(),
		Params: map[string]float64{"x": 10}}
	v2 := &version.ModelVersion{ID: "ver_2", StrategyID: "strat", CreatedAt: time.Now().UTC(),
		Params: map[string]float64{"x": 12}}
	if err := env.versions.Promote(ctx, v1); err != nil {
		t.Fatal(err)
	}
	if err := env.versions.Promote(ctx, v2); err != nil {
		t.Fatal(err)
	}
	if err := env.state.SaveResult(ctx, &OptimizationResult{
		ID: "run_1", Strategy: "strat", StartedAt: time.Now().UTC().AddDate(0, 0, -31), Status: StatusPassed,
	}); err != nil {
		t.Fatal(err)
	}
	setPending(t, env, "ver_2", "ver_1", 1.5)

	// 实盘夏普0.5，衰减1.0超过0.5上限，触发自动回滚
	if _, err := env.tracker.RecordLive(ctx, "strat", "2026-08", 0.5, 1, 12); err != nil {
		t.Fatal(err)
	}

	outcome, err := env.sched.CheckPendingConfirmation(ctx, "strat", time.Now().UTC())
	if err != nil {
		t.Fatalf("confirmation check: %v", err)
	}
	if outcome != OutcomeRolledBack {
		t.Fatalf("expected rolled back, got %s", outcome)
	}

	active, err := env.versions.Active(ctx, "strat")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != "ver_1" {
		t.Errorf("expected ver_1 reinstated, got %s", active.ID)
	}
	if pending, _ := env.state.Pending(ctx, "strat"); pending != nil {
		t.Error("pending marker must be cleared after rollback")
	}

	results, _ := env.state.Results(ctx, "strat")
	if len(results) != 1 || results[0].Status != StatusRolledBack {
		t.Errorf("originating run must be marked rolled_back, got %+v", results)
	}
}

func TestCheckPendingFailsClosedWithoutLiveData(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	v := &version.ModelVersion{ID: "ver_new", StrategyID: "strat", CreatedAt: time.Now().UTC()}
	if err := env.versions.Promote(ctx, v); err != nil {
		t.Fatal(err)
	}
	setPending(t, env, "ver_new", "", 1.2)

	// 无实盘数据：保持现状等待下次重试，绝不臆断确认
	outcome, err := env.sched.CheckPendingConfirmation(ctx, "strat", time.Now().UTC())
	if err == nil {
		t.Fatal("expected error when live data is unavailable")
	}
	if outcome != OutcomeWaiting {
		t.Fatalf("expected waiting, got %s", outcome)
	}
	if pending, _ := env.state.Pending(ctx, "strat"); pending == nil {
		t.Error("pending marker must survive a deferred check")
	}
	active, _ := env.versions.Active(ctx, "strat")
	if active.ID != "ver_new" {
		t.Errorf("active version must be untouched, got %s", active.ID)
	}
}

func TestCheckPendingStates(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()
	now := time.Now().UTC()

	outcome, err := env.sched.CheckPendingConfirmation(ctx, "strat", now)
	if err != nil || outcome != OutcomeNone {
		t.Fatalf("expected none, got %s err %v", outcome, err)
	}

	pending := &PendingConfirmation{
		Strategy: "strat", VersionID: "ver_new", ResultID: "run_1",
		PromotedAt: now, Deadline: now.AddDate(0, 0, 30), ExpectedSharpe: 1.2,
	}
	if err := env.state.SetPending(ctx, pending); err != nil {
		t.Fatal(err)
	}

	outcome, err = env.sched.CheckPendingConfirmation(ctx, "strat", now.AddDate(0, 0, 10))
	if err != nil || outcome != OutcomeWaiting {
		t.Fatalf("expected waiting before deadline, got %s err %v", outcome, err)
	}
}

func TestShouldRun(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()
	now := time.Now().UTC()

	// 从未运行过
	due, err := env.sched.ShouldRun(ctx, "strat", now)
	if err != nil || !due {
		t.Fatalf("expected due for never-run strategy, got %v err %v", due, err)
	}

	if err := env.state.SaveResult(ctx, &OptimizationResult{
		ID: "run_1", Strategy: "strat", StartedAt: now.AddDate(0, 0, -1), Status: StatusFailed,
	}); err != nil {
		t.Fatal(err)
	}
	due, err = env.sched.ShouldRun(ctx, "strat", now)
	if err != nil || due {
		t.Fatalf("expected not due 1 day after run on monthly cadence, got %v err %v", due, err)
	}

	if err := env.state.SaveResult(ctx, &OptimizationResult{
		ID: "run_2", Strategy: "other", StartedAt: now.AddDate(0, 0, -31), Status: StatusFailed,
	}); err != nil {
		t.Fatal(err)
	}
	due, err = env.sched.ShouldRun(ctx, "other", now)
	if err != nil || !due {
		t.Fatalf("expected due 31 days after run, got %v err %v", due, err)
	}
}

func TestRollbackToManual(t *testing.T) {
	env := newSchedEnv(t, paramRunner())
	ctx := context.Background()

	v1 := &version.ModelVersion{ID: "ver_1", StrategyID: "strat", CreatedAt: time.Now().UTC()}
	v2 := &version.ModelVersion{ID: "ver_2", StrategyID: "strat", CreatedAt: time.Now().UTC()}
	if err := env.versions.Promote(ctx, v1); err != nil {
		t.Fatal(err)
	}
	if err := env.versions.Promote(ctx, v2); err != nil {
		t.Fatal(err)
	}

	if err := env.sched.RollbackTo(ctx, "strat", "ver_1", "operator decision"); err != nil {
		t.Fatalf("manual rollback: %v", err)
	}
	active, err := env.versions.Active(ctx, "strat")
	if err != nil {
		t.Fatal(err)
	}
	if active.ID != "ver_1" {
		t.Errorf("expected ver_1 active, got %s", active.ID)
	}
}

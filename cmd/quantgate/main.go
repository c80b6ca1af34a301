package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"quantgate/internal/api"
	"quantgate/internal/backtest"
	"quantgate/internal/cache"
	"quantgate/internal/config"
	"quantgate/internal/database"
	"quantgate/internal/logger"
	"quantgate/internal/marketdata"
	"quantgate/internal/monitoring"
	"quantgate/internal/scheduler"
	"quantgate/internal/tracker"
	"quantgate/internal/validator"
	"quantgate/internal/version"
)

func main() {
	var (
		configFile     = flag.String("config", "configs/config.yaml", "Configuration file path")
		strategiesFile = flag.String("strategies", "configs/strategies.yaml", "Strategies manifest path")
		migrationsPath = flag.String("migrations", "migrations", "Database migrations path")
		runOnce        = flag.Bool("once", false, "Run one optimization cycle and exit")
	)
	flag.Parse()

	// .env 仅用于本地开发环境
	_ = godotenv.Load()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Init(logger.Config{
		Level:    logger.LogLevel(cfg.Logging.Level),
		Format:   logger.LogFormat(cfg.Logging.Format),
		Output:   cfg.Logging.Output,
		Filename: cfg.Logging.Filename,
	})
	log := logger.GetGlobalLogger()
	log.Info("starting quantgate", "env", cfg.App.Env, "storage", cfg.Storage.Backend)

	manifest, err := loadStrategies(*strategiesFile)
	if err != nil {
		log.Fatal("failed to load strategies manifest", "error", err.Error())
	}

	service, err := newService(cfg, manifest, *migrationsPath, log)
	if err != nil {
		log.Fatal("failed to initialize service", "error", err.Error())
	}
	defer service.Close()

	if *runOnce {
		service.runCycle(context.Background())
		return
	}

	if err := service.Start(); err != nil {
		log.Fatal("failed to start service", "error", err.Error())
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Info("shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	service.Shutdown(shutdownCtx)
}

// loadConfig loads the YAML config, falling back to defaults when the
// file does not exist
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("config file %s not found, using defaults", path)
		return config.Default(), nil
	}
	return config.Load(path)
}

// Service wires the validation pipeline, governance scheduler, cron loop
// and operations API together
type Service struct {
	cfg      *config.Config
	manifest *StrategiesFile
	logger   logger.Logger

	db        *database.DB
	scheduler *scheduler.ReOptimizationScheduler
	apiServer *api.Server
	cron      *cron.Cron
}

// newService builds the full dependency graph from configuration
func newService(cfg *config.Config, manifest *StrategiesFile, migrationsPath string, log logger.Logger) (*Service, error) {
	metrics := monitoring.NewMetrics()

	// 存储后端：postgres 或本地文件
	var (
		db       *database.DB
		versions version.Store
		err      error
	)
	switch cfg.Storage.Backend {
	case "postgres":
		db, err = database.NewConnection(&database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
			MaxOpen:  cfg.Database.MaxOpen,
			MaxIdle:  cfg.Database.MaxIdle,
			Timeout:  cfg.Database.Timeout,
		})
		if err != nil {
			return nil, err
		}
		migrator, err := database.NewMigrator(db, migrationsPath)
		if err != nil {
			return nil, err
		}
		if err := migrator.Up(); err != nil {
			return nil, err
		}
		versions = version.NewPostgresStore(db.DB)
	default:
		versions, err = version.NewFileStore(cfg.Storage.Dir, log)
		if err != nil {
			return nil, err
		}
	}

	state, err := scheduler.NewFileStateStore(cfg.Storage.Dir, log)
	if err != nil {
		return nil, err
	}
	records, err := tracker.NewFileRecordStore(cfg.Storage.Dir, log)
	if err != nil {
		return nil, err
	}

	cacher, err := cache.NewCacher(&cache.Config{
		Enabled:  cfg.Redis.Enabled,
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err != nil {
		// Redis 不可用时退回内存缓存，锁降级为进程内锁
		log.Warn("redis unavailable, falling back to in-memory cache", "error", err.Error())
		cacher = cache.NewMemoryCache(0)
	}

	// 回测执行器：预加载各策略的日收益序列
	series := backtest.NewSeriesRunner()
	for _, spec := range manifest.Strategies {
		returns, err := backtest.LoadReturnsCSV(spec.ReturnsFile)
		if err != nil {
			return nil, err
		}
		series.SetSeries(spec.ID, returns)
		log.Info("loaded strategy returns", "strategy", spec.ID, "days", len(returns))
	}
	var runner backtest.Runner = series
	if cfg.Backtest.RatePerSecond > 0 {
		runner = backtest.NewRateLimitedRunner(runner, cfg.Backtest.RatePerSecond, cfg.Backtest.Burst)
	}

	// 基准行情：静态文件数据，外加缓存层
	static := marketdata.NewStaticProvider()
	if manifest.BenchmarkFile != "" {
		closes, err := marketdata.LoadClosesCSV(manifest.BenchmarkFile)
		if err != nil {
			return nil, err
		}
		static.SetCloses(cfg.Regime.BenchmarkSymbol, closes)
		log.Info("loaded benchmark closes", "symbol", cfg.Regime.BenchmarkSymbol, "days", len(closes))
	}
	provider := marketdata.NewCachedProvider(static, cacher, 24*time.Hour, log)

	regimes := validator.NewRegimeClassifier(provider, cfg.Regime.BenchmarkSymbol,
		cfg.Regime.ReturnThresholdPct, cfg.Regime.VolThresholdPct, log)

	wfv := validator.NewWalkForwardValidator(validator.WindowConfig{
		TrainDays:   cfg.WalkForward.TrainDays,
		TestDays:    cfg.WalkForward.TestDays,
		StepDays:    cfg.WalkForward.StepDays,
		EmbargoDays: cfg.WalkForward.EmbargoDays,
		EmbargoPct:  cfg.WalkForward.EmbargoPct,
	}, cfg.Validation, runner, regimes, log, metrics)

	trk := tracker.NewTracker(records, cfg.Tracker, log, metrics)

	sched := scheduler.NewReOptimizationScheduler(cfg.Scheduler, wfv, versions, state, trk,
		cacher, log, metrics, cfg.Backtest.InitialCapital)

	apiServer := api.NewServer(cfg, versions, state, sched, trk, metrics, log)

	return &Service{
		cfg:       cfg,
		manifest:  manifest,
		logger:    log,
		db:        db,
		scheduler: sched,
		apiServer: apiServer,
		cron:      cron.New(),
	}, nil
}

// Start launches the cron loop and the API server
func (s *Service) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
		s.runCycle(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "cron", s.cfg.Scheduler.Cron, "strategies", len(s.manifest.Strategies))

	go func() {
		if err := s.apiServer.Start(); err != nil {
			s.logger.Error("api server exited", "error", err.Error())
		}
	}()
	return nil
}

// runCycle processes every strategy once: close out any probation that
// reached its deadline, then run re-optimization when due
func (s *Service) runCycle(ctx context.Context) {
	now := time.Now().UTC()
	for _, spec := range s.manifest.Strategies {
		outcome, err := s.scheduler.CheckPendingConfirmation(ctx, spec.ID, now)
		if err != nil {
			s.logger.Warn("probation check deferred", "strategy", spec.ID, "error", err.Error())
		} else if outcome != scheduler.OutcomeNone {
			s.logger.Info("probation check", "strategy", spec.ID, "outcome", string(outcome))
		}

		due, err := s.scheduler.ShouldRun(ctx, spec.ID, now)
		if err != nil {
			s.logger.Error("failed to check schedule", "strategy", spec.ID, "error", err.Error())
			continue
		}
		if !due {
			continue
		}

		start := now.AddDate(0, 0, -spec.SpanDays)
		s.scheduler.RunOptimization(ctx, spec.ID, spec.Grid, spec.Schema, start, now)
	}
}

// Shutdown stops the cron loop and the API server
func (s *Service) Shutdown(ctx context.Context) {
	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}
	if err := s.apiServer.Shutdown(ctx); err != nil {
		s.logger.Error("api shutdown failed", "error", err.Error())
	}
}

// Close releases held resources
func (s *Service) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	App         AppConfig         `yaml:"app"`
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Storage     StorageConfig     `yaml:"storage"`
	Backtest    BacktestConfig    `yaml:"backtest"`
	WalkForward WalkForwardConfig `yaml:"walk_forward"`
	Regime      RegimeConfig      `yaml:"regime"`
	Validation  ValidationConfig  `yaml:"validation"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Tracker     TrackerConfig     `yaml:"tracker"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// AppConfig represents application configuration
type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Env     string `yaml:"env"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port"`
	Host         string        `yaml:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	User     string        `yaml:"user"`
	Password string        `yaml:"password"`
	DBName   string        `yaml:"dbname"`
	SSLMode  string        `yaml:"sslmode"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// StorageConfig represents persistence configuration for the
// version, scheduler and tracker stores
type StorageConfig struct {
	Backend string `yaml:"backend"` // file, postgres
	Dir     string `yaml:"dir"`     // data directory for the file backend
}

// BacktestConfig represents backtest collaborator configuration
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	RatePerSecond  float64 `yaml:"rate_per_second"` // max backtest calls per second, 0 = unlimited
	Burst          int     `yaml:"burst"`
}

// WalkForwardConfig represents walk-forward window configuration
type WalkForwardConfig struct {
	TrainDays   int     `yaml:"train_days"`
	TestDays    int     `yaml:"test_days"`
	StepDays    int     `yaml:"step_days"`
	EmbargoDays int     `yaml:"embargo_days"`
	EmbargoPct  float64 `yaml:"embargo_pct"` // percent of total span, used when embargo_days is 0
}

// RegimeConfig represents market regime classification configuration
type RegimeConfig struct {
	BenchmarkSymbol    string  `yaml:"benchmark_symbol"`
	ReturnThresholdPct float64 `yaml:"return_threshold_pct"` // bull/bear cutoff on window return
	VolThresholdPct    float64 `yaml:"vol_threshold_pct"`    // annualized volatility cutoff
}

// ValidationConfig represents walk-forward validation thresholds
type ValidationConfig struct {
	MinWindows            int     `yaml:"min_windows"`
	MinOOSSharpe          float64 `yaml:"min_oos_sharpe"`
	MaxAvgSharpeDecay     float64 `yaml:"max_avg_sharpe_decay"`
	MaxOOSDrawdownPct     float64 `yaml:"max_oos_drawdown_pct"`
	MinOOSWinRatePct      float64 `yaml:"min_oos_win_rate_pct"`
	WarnSharpeConsistency float64 `yaml:"warn_sharpe_consistency"`
}

// SchedulerConfig represents re-optimization scheduler configuration
type SchedulerConfig struct {
	Frequency             string  `yaml:"frequency"` // daily, weekly, monthly, quarterly
	MinDaysBetweenRuns    int     `yaml:"min_days_between_runs"`
	MaxParameterChangePct float64 `yaml:"max_parameter_change_pct"`
	RequireImprovement    bool    `yaml:"require_improvement"`
	MinImprovementPct     float64 `yaml:"min_improvement_pct"`
	AutoRollbackDays      int     `yaml:"auto_rollback_days"`
	MaxLiveSharpeDecay    float64 `yaml:"max_live_sharpe_decay"`
	Cron                  string  `yaml:"cron"`
}

// TrackerConfig represents live-vs-backtest divergence thresholds
type TrackerConfig struct {
	SharpeDivergence      float64 `yaml:"sharpe_divergence"`
	ReturnDivergencePct   float64 `yaml:"return_divergence_pct"`
	DrawdownDivergencePts float64 `yaml:"drawdown_divergence_pts"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	Filename string `yaml:"filename"`
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	applyEnvOverrides(&config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Default returns a configuration with all defaults applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with defaults
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "quantgate"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "file"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "data"
	}
	if c.Backtest.InitialCapital == 0 {
		c.Backtest.InitialCapital = 100000
	}
	if c.Backtest.Burst == 0 {
		c.Backtest.Burst = 1
	}
	if c.WalkForward.TrainDays == 0 {
		c.WalkForward.TrainDays = 252
	}
	if c.WalkForward.TestDays == 0 {
		c.WalkForward.TestDays = 63
	}
	if c.WalkForward.StepDays == 0 {
		c.WalkForward.StepDays = 21
	}
	if c.Regime.BenchmarkSymbol == "" {
		c.Regime.BenchmarkSymbol = "SPY"
	}
	if c.Regime.ReturnThresholdPct == 0 {
		c.Regime.ReturnThresholdPct = 5.0
	}
	if c.Regime.VolThresholdPct == 0 {
		c.Regime.VolThresholdPct = 22.5
	}
	if c.Validation.MinWindows == 0 {
		c.Validation.MinWindows = 4
	}
	if c.Validation.MinOOSSharpe == 0 {
		c.Validation.MinOOSSharpe = 0.8
	}
	if c.Validation.MaxAvgSharpeDecay == 0 {
		c.Validation.MaxAvgSharpeDecay = 0.5
	}
	if c.Validation.MaxOOSDrawdownPct == 0 {
		c.Validation.MaxOOSDrawdownPct = 15.0
	}
	if c.Validation.MinOOSWinRatePct == 0 {
		c.Validation.MinOOSWinRatePct = 52.0
	}
	if c.Validation.WarnSharpeConsistency == 0 {
		c.Validation.WarnSharpeConsistency = 0.6
	}
	if c.Scheduler.Frequency == "" {
		c.Scheduler.Frequency = "monthly"
	}
	if c.Scheduler.MinDaysBetweenRuns == 0 {
		c.Scheduler.MinDaysBetweenRuns = 7
	}
	if c.Scheduler.MaxParameterChangePct == 0 {
		c.Scheduler.MaxParameterChangePct = 50.0
	}
	if c.Scheduler.MinImprovementPct == 0 {
		c.Scheduler.MinImprovementPct = 5.0
	}
	if c.Scheduler.AutoRollbackDays == 0 {
		c.Scheduler.AutoRollbackDays = 30
	}
	if c.Scheduler.MaxLiveSharpeDecay == 0 {
		c.Scheduler.MaxLiveSharpeDecay = 0.5
	}
	if c.Scheduler.Cron == "" {
		c.Scheduler.Cron = "0 1 * * *" // daily 01:00
	}
	if c.Tracker.SharpeDivergence == 0 {
		c.Tracker.SharpeDivergence = 0.5
	}
	if c.Tracker.ReturnDivergencePct == 0 {
		c.Tracker.ReturnDivergencePct = 20.0
	}
	if c.Tracker.DrawdownDivergencePts == 0 {
		c.Tracker.DrawdownDivergencePts = 10.0
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// Validate checks configuration consistency
func (c *Config) Validate() error {
	if c.WalkForward.TrainDays <= 0 || c.WalkForward.TestDays <= 0 || c.WalkForward.StepDays <= 0 {
		return fmt.Errorf("walk_forward window sizes must be positive")
	}
	if c.WalkForward.EmbargoDays < 0 || c.WalkForward.EmbargoPct < 0 {
		return fmt.Errorf("walk_forward embargo must not be negative")
	}
	if c.Validation.MinWindows < 1 {
		return fmt.Errorf("validation.min_windows must be at least 1")
	}
	if c.Scheduler.MaxParameterChangePct <= 0 {
		return fmt.Errorf("scheduler.max_parameter_change_pct must be positive")
	}
	switch c.Scheduler.Frequency {
	case "daily", "weekly", "monthly", "quarterly":
	default:
		return fmt.Errorf("unknown scheduler frequency: %s", c.Scheduler.Frequency)
	}
	switch c.Storage.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}
	return nil
}

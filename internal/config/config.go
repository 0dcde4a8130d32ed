// Package config
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

/*
YAML config example:
data_glob: "data/dataNSE_*.csv"
db_conn_str: ""
from: "2024-01-01"
to: "2024-02-01"
base_capital: 1000000
risk_percent: 0.5
stop_loss_percent: 0.5
take_profit_percent: 2.0
trail_trigger_percent: 0.5
trail_step_percent: 0.75
universe_size: 10
session_open: "09:15"
session_close: "15:30"
selection_end: "09:25"
trade_log_dir: "results"
*/

type Config struct {
	DataGlob  string `yaml:"data_glob"`
	DBConnStr string `yaml:"db_conn_str"`
	DBMaxOpen int    `yaml:"db_max_open"`
	DBMaxIdle int    `yaml:"db_max_idle"`

	FromDate string `yaml:"from"`
	ToDate   string `yaml:"to"`

	BaseCapital         float64 `yaml:"base_capital"`
	RiskPercent         float64 `yaml:"risk_percent"`
	StopLossPercent     float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `yaml:"take_profit_percent"`
	TrailTriggerPercent float64 `yaml:"trail_trigger_percent"`
	TrailStepPercent    float64 `yaml:"trail_step_percent"`

	UniverseSize int    `yaml:"universe_size"`
	SessionOpen  string `yaml:"session_open"`
	SessionClose string `yaml:"session_close"`
	SelectionEnd string `yaml:"selection_end"`

	SignalTimeframe string `yaml:"signal_timeframe"`
	TrendTimeframe  string `yaml:"trend_timeframe"`

	TradeLogDir string `yaml:"trade_log_dir"`

	From time.Time `yaml:"-"`
	To   time.Time `yaml:"-"`
}

// Load builds the configuration from flags, optionally replaced wholesale by
// a YAML file.
func Load() (Config, error) {
	dataGlob := flag.String("data", "data/dataNSE_*.csv", "Glob of 1m candle CSV files to import")
	dbConnStr := flag.String("db", os.Getenv("DB_CONN_STR"), "Postgres connection string (empty for in-memory)")
	from := flag.String("from", "", "Backtest start date (YYYY-MM-DD, empty for all data)")
	to := flag.String("to", "", "Backtest end date (YYYY-MM-DD, exclusive, empty for all data)")
	baseCapital := flag.Float64("base-capital", 1_000_000, "Starting capital")
	riskPercent := flag.Float64("risk-percent", 0.5, "Risk percent per trade")
	stopLossPercent := flag.Float64("stop-loss-percent", 0.5, "Stop loss percent")
	takeProfitPercent := flag.Float64("take-profit-percent", 2.0, "Take profit percent")
	trailTriggerPercent := flag.Float64("trail-trigger-percent", 0.5, "Profit percent that activates the trailing stop")
	trailStepPercent := flag.Float64("trail-step-percent", 0.75, "Trailing stop distance percent behind the best price")
	universeSize := flag.Int("universe-size", 10, "Number of instruments selected per day by turnover")
	sessionOpen := flag.String("session-open", "09:15", "Session open (HH:MM)")
	sessionClose := flag.String("session-close", "15:30", "Session close (HH:MM)")
	selectionEnd := flag.String("selection-end", "09:25", "End of the turnover selection window (HH:MM, inclusive)")
	tradeLogDir := flag.String("trade-log-dir", ".", "Directory for per-run trade log CSVs")
	configFile := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg := Config{
		DataGlob:            *dataGlob,
		DBConnStr:           *dbConnStr,
		DBMaxOpen:           10,
		DBMaxIdle:           5,
		FromDate:            *from,
		ToDate:              *to,
		BaseCapital:         *baseCapital,
		RiskPercent:         *riskPercent,
		StopLossPercent:     *stopLossPercent,
		TakeProfitPercent:   *takeProfitPercent,
		TrailTriggerPercent: *trailTriggerPercent,
		TrailStepPercent:    *trailStepPercent,
		UniverseSize:        *universeSize,
		SessionOpen:         *sessionOpen,
		SessionClose:        *sessionClose,
		SelectionEnd:        *selectionEnd,
		SignalTimeframe:     "10m",
		TrendTimeframe:      "1h",
		TradeLogDir:         *tradeLogDir,
	}

	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file: %w", err)
		}
		cfg = fileCfg
	}

	if cfg.SignalTimeframe == "" {
		cfg.SignalTimeframe = "10m"
	}
	if cfg.TrendTimeframe == "" {
		cfg.TrendTimeframe = "1h"
	}
	if err := cfg.finalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) finalize() error {
	if c.FromDate != "" {
		t, err := time.Parse("2006-01-02", c.FromDate)
		if err != nil {
			return fmt.Errorf("invalid from date %q: %w", c.FromDate, err)
		}
		c.From = t.UTC()
	}
	if c.ToDate != "" {
		t, err := time.Parse("2006-01-02", c.ToDate)
		if err != nil {
			return fmt.Errorf("invalid to date %q: %w", c.ToDate, err)
		}
		c.To = t.UTC()
	} else {
		c.To = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return c.Validate()
}

func (c Config) Validate() error {
	if c.BaseCapital <= 0 {
		return fmt.Errorf("base capital must be positive, got %.2f", c.BaseCapital)
	}
	if c.UniverseSize <= 0 {
		return fmt.Errorf("universe size must be positive, got %d", c.UniverseSize)
	}
	for _, clock := range []string{c.SessionOpen, c.SessionClose, c.SelectionEnd} {
		if _, _, err := parseClock(clock); err != nil {
			return err
		}
	}
	return nil
}

func parseClock(s string) (int, int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid clock %q", s)
	}
	return h, m, nil
}

// SessionOpenFor returns the session open timestamp on the given day.
func (c Config) SessionOpenFor(day time.Time) time.Time {
	return clockOn(day, c.SessionOpen)
}

// SessionCloseFor returns the session close timestamp on the given day.
func (c Config) SessionCloseFor(day time.Time) time.Time {
	return clockOn(day, c.SessionClose)
}

// SelectionEndFor returns the (inclusive) end of the turnover selection
// window on the given day.
func (c Config) SelectionEndFor(day time.Time) time.Time {
	return clockOn(day, c.SelectionEnd)
}

func clockOn(day time.Time, clock string) time.Time {
	h, m, _ := parseClock(clock)
	return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, day.Location())
}

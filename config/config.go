// Package config loads the bot's YAML or JSON configuration and applies
// secret overrides from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/equitybot/indicators"
	"github.com/rustyeddy/equitybot/market"
	"github.com/rustyeddy/equitybot/metrics"
	"github.com/rustyeddy/equitybot/notify"
	"github.com/rustyeddy/equitybot/position"
	"github.com/rustyeddy/equitybot/risk"
	"github.com/rustyeddy/equitybot/safety"
	"github.com/rustyeddy/equitybot/sim"
	"github.com/rustyeddy/equitybot/strategies"
)

// Config is the complete bot configuration.
type Config struct {
	Universe UniverseConfig `json:"universe" yaml:"universe"`
	Session  market.Hours   `json:"session" yaml:"session"`
	Signal   SignalConfig   `json:"signal" yaml:"signal"`
	Risk     risk.Policy    `json:"risk" yaml:"risk"`
	Exits    position.Rules `json:"exits" yaml:"exits"`
	Safety   safety.Config  `json:"safety" yaml:"safety"`
	Engine   EngineConfig   `json:"engine" yaml:"engine"`
	State    StateConfig    `json:"state" yaml:"state"`
	Feed     FeedConfig     `json:"feed" yaml:"feed"`
	Broker   sim.Config     `json:"broker" yaml:"broker"`
	Journal  JournalConfig  `json:"journal" yaml:"journal"`
	Notify   NotifyConfig   `json:"notify" yaml:"notify"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	API      APIConfig      `json:"api" yaml:"api"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// UniverseConfig lists the tradable symbols and their sectors.
type UniverseConfig struct {
	Symbols   []string          `json:"symbols" yaml:"symbols"`
	Sectors   map[string]string `json:"sectors" yaml:"sectors"`
	Benchmark string            `json:"benchmark" yaml:"benchmark"`
}

// Sector returns the configured sector for symbol, or "Unknown".
func (u UniverseConfig) Sector(symbol string) string {
	if s, ok := u.Sectors[symbol]; ok && s != "" {
		return s
	}
	return "Unknown"
}

type SignalConfig struct {
	Indicators indicators.Params     `json:"indicators" yaml:"indicators"`
	Thresholds strategies.Thresholds `json:"thresholds" yaml:"thresholds"`
	// BenchmarkADX is the ADX level above which the benchmark counts as
	// trending.
	BenchmarkADX float64 `json:"benchmark_adx" yaml:"benchmark_adx"`
	// MedianLookback is the number of daily benchmark bars behind the ATR%
	// median used by the circuit breaker.
	MedianLookback int `json:"median_lookback" yaml:"median_lookback"`
}

type EngineConfig struct {
	Cadence        time.Duration `json:"cadence" yaml:"cadence"`
	Workers        int           `json:"workers" yaml:"workers"`
	Lookback       int           `json:"lookback" yaml:"lookback"`
	AccountTimeout time.Duration `json:"account_timeout" yaml:"account_timeout"`
	SymbolTimeout  time.Duration `json:"symbol_timeout" yaml:"symbol_timeout"`
	OrderTimeout   time.Duration `json:"order_timeout" yaml:"order_timeout"`
	// ReportTimeout bounds each journal write, notification and metrics
	// point delivered after a cycle.
	ReportTimeout time.Duration `json:"report_timeout" yaml:"report_timeout"`
	// MaxBarAge marks a symbol's data stale when its newest 5-minute bar
	// started longer ago than this. Zero disables the check.
	MaxBarAge time.Duration `json:"max_bar_age" yaml:"max_bar_age"`
	// EquityHistory is how many session equities are kept for the
	// equity-curve slope.
	EquityHistory int `json:"equity_history" yaml:"equity_history"`
}

type StateConfig struct {
	Path string `json:"path" yaml:"path"`
}

type FeedConfig struct {
	Type string `json:"type" yaml:"type"` // "csv" or "memory"
	Dir  string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

type JournalConfig struct {
	Type   string `json:"type" yaml:"type"` // "sqlite", "csv", "both" or "none"
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
	CSVDir string `json:"csv_dir,omitempty" yaml:"csv_dir,omitempty"`
}

type NotifyConfig struct {
	MinSeverity string              `json:"min_severity" yaml:"min_severity"`
	Email       *notify.EmailConfig `json:"email,omitempty" yaml:"email,omitempty"`
	WebhookURL  string              `json:"-" yaml:"-"`
	Telegram    *TelegramConfig     `json:"telegram,omitempty" yaml:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"-" yaml:"-"`
	ChatID   int64  `json:"chat_id" yaml:"chat_id"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
}

type MetricsConfig struct {
	Enabled bool                 `json:"enabled" yaml:"enabled"`
	Influx  metrics.InfluxConfig `json:"influx" yaml:"influx"`
}

type APIConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // console or json
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// LoadFromFile loads configuration from a file (YAML or JSON), applies
// environment overrides and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a file; .yaml and .yml write YAML,
// anything else JSON. Secrets are never written.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Env variable names for secrets.
const (
	EnvSMTPPassword  = "EQUITYBOT_SMTP_PASSWORD"
	EnvTelegramToken = "EQUITYBOT_TELEGRAM_TOKEN"
	EnvInfluxToken   = "EQUITYBOT_INFLUX_TOKEN"
	EnvWebhookURL    = "EQUITYBOT_WEBHOOK_URL"
)

// ApplyEnv fills secrets from the environment. Secrets are never read from
// or written to the config file.
func (c *Config) ApplyEnv() {
	v := viper.New()
	v.SetEnvPrefix("EQUITYBOT")
	v.AutomaticEnv()

	if c.Notify.Email != nil {
		c.Notify.Email.Password = v.GetString("SMTP_PASSWORD")
	}
	if c.Notify.Telegram != nil {
		c.Notify.Telegram.Token = v.GetString("TELEGRAM_TOKEN")
	}
	c.Notify.WebhookURL = v.GetString("WEBHOOK_URL")
	c.Metrics.Influx.Token = v.GetString("INFLUX_TOKEN")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if len(c.Universe.Symbols) == 0 {
		bad("universe.symbols is required")
	}
	seen := map[string]bool{}
	for _, s := range c.Universe.Symbols {
		if s == "" {
			bad("universe.symbols contains an empty symbol")
		}
		if seen[s] {
			bad("universe.symbols lists %s twice", s)
		}
		seen[s] = true
	}
	if c.Universe.Benchmark == "" {
		bad("universe.benchmark is required")
	}
	if _, err := market.NewCalendar(c.Session); err != nil {
		bad("session: %v", err)
	}

	p := c.Signal.Indicators
	if p.EMAFast <= 0 || p.EMASlow <= 0 || p.EMAFast >= p.EMASlow {
		bad("signal.indicators: ema_fast must be positive and below ema_slow")
	}
	if p.RSI <= 0 || p.ADX <= 0 || p.ATR <= 0 || p.MACDFast <= 0 || p.MACDSlow <= p.MACDFast || p.MACDSignal <= 0 {
		bad("signal.indicators: periods must be positive and macd_fast below macd_slow")
	}
	if th := c.Signal.Thresholds; th.MinPrice < 0 || th.MinADVDollars < 0 || th.MaxSpreadBps < 0 {
		bad("signal.thresholds: liquidity limits must not be negative")
	}
	if c.Engine.Lookback < p.MinBars() {
		bad("engine.lookback %d is below the %d bars the indicators need", c.Engine.Lookback, p.MinBars())
	}

	r := c.Risk
	if r.RiskPctMin <= 0 || r.RiskPctMin > r.RiskPctBase || r.RiskPctBase > r.RiskPctMax || r.RiskPctMax >= 1 {
		bad("risk: need 0 < risk_pct_min <= risk_pct_base <= risk_pct_max < 1")
	}
	if r.MaxOpenRiskPct <= 0 || r.MaxOpenRiskPct >= 1 {
		bad("risk.max_open_risk_pct must be between 0 and 1")
	}
	if r.MaxPositions <= 0 {
		bad("risk.max_positions must be positive")
	}
	if r.TargetSlippageBps < 0 || r.SlippageSizeCap < 0 || r.SlippageSizeCap >= 1 {
		bad("risk: target_slippage_bps must not be negative and slippage_size_cap must be in [0, 1)")
	}
	if r.StopATRMult <= 0 || r.StopATRMultHighVol <= 0 {
		bad("risk stop ATR multipliers must be positive")
	}
	if r.MaxDailyLossPct > 0 && c.Safety.DailyLossPct > 0 && r.MaxDailyLossPct != c.Safety.DailyLossPct {
		bad("risk.max_daily_loss_pct (%v) and safety.daily_loss_pct (%v) disagree", r.MaxDailyLossPct, c.Safety.DailyLossPct)
	}

	if c.Exits.PartialFraction < 0 || c.Exits.PartialFraction >= 1 {
		bad("exits.partial_fraction must be in [0, 1)")
	}

	s := c.Safety
	if s.KillSwitch.MaxErrors <= 0 || s.KillSwitch.Window <= 0 {
		bad("safety.kill_switch needs positive max_errors and window")
	}
	if s.MaxConsecutiveLoss <= 0 {
		bad("safety.max_consecutive_losses must be positive")
	}

	if c.Engine.Workers <= 0 {
		bad("engine.workers must be positive")
	}
	if c.Engine.Cadence <= 0 {
		bad("engine.cadence must be positive")
	}
	if c.State.Path == "" {
		bad("state.path is required")
	}

	switch c.Feed.Type {
	case "csv":
		if c.Feed.Dir == "" {
			bad("feed.dir required for csv feed")
		}
	case "memory":
	default:
		bad("feed.type must be 'csv' or 'memory'")
	}

	switch c.Journal.Type {
	case "sqlite":
		if c.Journal.DBPath == "" {
			bad("journal.db_path required for sqlite journal")
		}
	case "csv":
		if c.Journal.CSVDir == "" {
			bad("journal.csv_dir required for csv journal")
		}
	case "both":
		if c.Journal.DBPath == "" || c.Journal.CSVDir == "" {
			bad("journal.db_path and journal.csv_dir required for both")
		}
	case "none", "":
	default:
		bad("journal.type must be 'sqlite', 'csv', 'both' or 'none'")
	}

	if c.Metrics.Enabled && c.Metrics.Influx.URL == "" {
		bad("metrics.influx.url required when metrics are enabled")
	}

	return errors.Join(errs...)
}

// SafetyConfig returns the safety thresholds with the daily loss limit
// filled from the risk policy when the safety section leaves it unset.
func (c *Config) SafetyConfig() safety.Config {
	s := c.Safety
	if s.DailyLossPct <= 0 {
		s.DailyLossPct = c.Risk.MaxDailyLossPct
	}
	return s
}

// Calendar builds the market calendar for the session section.
func (c *Config) Calendar() (*market.Calendar, error) {
	return market.NewCalendar(c.Session)
}

// DefaultSymbols is the large-cap universe the bot trades out of the box.
var DefaultSymbols = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK.B", "JPM", "V",
	"UNH", "XOM", "JNJ", "WMT", "MA", "PG", "HD", "CVX", "MRK", "ABBV",
}

// DefaultSectors maps DefaultSymbols to sectors.
var DefaultSectors = map[string]string{
	"AAPL":  "Technology",
	"MSFT":  "Technology",
	"GOOGL": "Technology",
	"NVDA":  "Technology",
	"META":  "Technology",
	"AMZN":  "Consumer Discretionary",
	"TSLA":  "Consumer Discretionary",
	"HD":    "Consumer Discretionary",
	"BRK.B": "Financials",
	"JPM":   "Financials",
	"V":     "Financials",
	"MA":    "Financials",
	"UNH":   "Healthcare",
	"JNJ":   "Healthcare",
	"MRK":   "Healthcare",
	"ABBV":  "Healthcare",
	"XOM":   "Energy",
	"CVX":   "Energy",
	"WMT":   "Consumer Staples",
	"PG":    "Consumer Staples",
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	sectors := make(map[string]string, len(DefaultSectors))
	for k, v := range DefaultSectors {
		sectors[k] = v
	}
	return &Config{
		Universe: UniverseConfig{
			Symbols:   append([]string(nil), DefaultSymbols...),
			Sectors:   sectors,
			Benchmark: "SPY",
		},
		Session: market.DefaultHours(),
		Signal: SignalConfig{
			Indicators:     indicators.DefaultParams(),
			Thresholds:     strategies.DefaultThresholds(),
			BenchmarkADX:   18,
			MedianLookback: 20,
		},
		Risk:   risk.DefaultPolicy(),
		Exits:  position.DefaultRules(),
		Safety: safety.DefaultConfig(),
		Engine: EngineConfig{
			Cadence:        5 * time.Minute,
			Workers:        8,
			Lookback:       120,
			AccountTimeout: 10 * time.Second,
			SymbolTimeout:  15 * time.Second,
			OrderTimeout:   10 * time.Second,
			ReportTimeout:  15 * time.Second,
			MaxBarAge:      8 * time.Minute,
			EquityHistory:  60,
		},
		State:   StateConfig{Path: "./data/state.json"},
		Feed:    FeedConfig{Type: "csv", Dir: "./data/bars"},
		Broker:  sim.Config{AccountID: "paper", StartingCash: 100000, Leverage: 4, LedgerPath: "./data/paper.json"},
		Journal: JournalConfig{Type: "sqlite", DBPath: "./data/journal.db"},
		Notify:  NotifyConfig{MinSeverity: "info"},
		API:     APIConfig{Listen: "127.0.0.1:8080"},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

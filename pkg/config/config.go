package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"bcgrab/pkg/logger"
	"bcgrab/pkg/market"
)

// Config holds all configuration for a download run.
type Config struct {
	Barchart  BarchartConfig  `yaml:"barchart"`
	Download  DownloadConfig  `yaml:"download"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// Instruments extends or overrides the built-in contract map.
	Instruments map[string]InstrumentConfig `yaml:"instruments"`
	// Exchanges extends or overrides the built-in exchange table.
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`

	Logging logger.Config `yaml:"logging"`
}

// BarchartConfig holds credentials and endpoint settings for the price
// service.
type BarchartConfig struct {
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	BaseURL   string        `yaml:"base_url"`
	UserAgent string        `yaml:"user_agent"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DownloadConfig holds the run parameters.
type DownloadConfig struct {
	Instruments    []string `yaml:"instruments"` // empty means all configured
	SaveDir        string   `yaml:"save_dir"`
	StartYear      int      `yaml:"start_year"`
	EndYear        int      `yaml:"end_year"`
	DryRun         bool     `yaml:"dry_run"`
	DailyOnly      bool     `yaml:"daily_only"`
	Update         bool     `yaml:"update"`
	LookbackDays   int      `yaml:"lookback_days"`    // default window length before expiry
	MinHourlyRows  int      `yaml:"min_hourly_rows"`  // below this an hourly result falls back to daily
	StaleAfterDays int      `yaml:"stale_after_days"` // update-mode skips files newer than this
	PauseMinSecs   int      `yaml:"pause_min_secs"`   // randomized pause between requests
	PauseMaxSecs   int      `yaml:"pause_max_secs"`
}

// RateLimitConfig bounds request volume against the account quota.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	DailyAllowance    int `yaml:"daily_allowance"` // max paid downloads per run
}

// InstrumentConfig is the YAML shape of one instrument override.
type InstrumentConfig struct {
	Symbol       string `yaml:"symbol"`
	Cycle        string `yaml:"cycle"`
	Exchange     string `yaml:"exchange"`
	LookbackDays int    `yaml:"lookback_days"`
}

// ExchangeConfig is the YAML shape of one exchange override. Dates use
// the 2006-01-02 layout.
type ExchangeConfig struct {
	EODDate  string `yaml:"eod_date"`
	TickDate string `yaml:"tick_date"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Barchart: BarchartConfig{
			BaseURL:   "https://www.barchart.com/",
			UserAgent: "Mozilla/5.0",
			Timeout:   30 * time.Second,
		},
		Download: DownloadConfig{
			SaveDir:        "./prices",
			StartYear:      2015,
			EndYear:        time.Now().Year(),
			LookbackDays:   120,
			MinHourlyRows:  30,
			StaleAfterDays: 4,
			PauseMinSecs:   7,
			PauseMaxSecs:   15,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			DailyAllowance:    150,
		},
		Logging: logger.Config{Level: "info"},
	}
}

// LoadFromEnv overrides configuration from BCGRAB_* environment variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("BCGRAB_USERNAME"); v != "" {
		c.Barchart.Username = v
	}
	if v := os.Getenv("BCGRAB_PASSWORD"); v != "" {
		c.Barchart.Password = v
	}
	if v := os.Getenv("BCGRAB_BASE_URL"); v != "" {
		c.Barchart.BaseURL = v
	}
	if v := os.Getenv("BCGRAB_SAVE_DIR"); v != "" {
		c.Download.SaveDir = v
	}
	if v := os.Getenv("BCGRAB_INSTRUMENTS"); v != "" {
		c.Download.Instruments = splitList(v)
	}
	if v, ok := envInt("BCGRAB_START_YEAR"); ok {
		c.Download.StartYear = v
	}
	if v, ok := envInt("BCGRAB_END_YEAR"); ok {
		c.Download.EndYear = v
	}
	if v, ok := envInt("BCGRAB_DAILY_ALLOWANCE"); ok {
		c.RateLimit.DailyAllowance = v
	}
	if v := os.Getenv("BCGRAB_DRY_RUN"); v != "" {
		c.Download.DryRun = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BCGRAB_DAILY_ONLY"); v != "" {
		c.Download.DailyOnly = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("BCGRAB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadFromFile loads configuration from a YAML file. An empty path checks
// the standard locations; a missing default file is not an error.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = findConfigFile()
		if path == "" {
			return nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func findConfigFile() string {
	locations := []string{
		".bcgrab.yaml",
		".bcgrab.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "bcgrab", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".bcgrab.yaml"),
	}
	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Validate checks the configuration. Credentials are checked separately at
// session creation so dry runs work without them.
func (c *Config) Validate() error {
	var errs []error
	if c.Download.SaveDir == "" {
		errs = append(errs, errors.New("save directory is required"))
	}
	if c.Download.StartYear < 1900 || c.Download.StartYear > 2200 {
		errs = append(errs, fmt.Errorf("start year %d out of range", c.Download.StartYear))
	}
	if c.Download.EndYear < c.Download.StartYear {
		errs = append(errs, fmt.Errorf("end year %d before start year %d", c.Download.EndYear, c.Download.StartYear))
	}
	if c.Download.LookbackDays <= 0 {
		errs = append(errs, errors.New("lookback days must be positive"))
	}
	if c.Download.MinHourlyRows <= 0 {
		errs = append(errs, errors.New("min hourly rows must be positive"))
	}
	if c.Download.PauseMaxSecs < c.Download.PauseMinSecs {
		errs = append(errs, errors.New("pause max must not be below pause min"))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.DailyAllowance <= 0 {
		errs = append(errs, errors.New("daily allowance must be positive"))
	}
	if _, err := c.ContractMap(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ContractMap merges the built-in instrument and exchange tables with the
// overrides from this configuration.
func (c *Config) ContractMap() (market.Map, error) {
	instruments := market.DefaultInstruments()
	for code, ic := range c.Instruments {
		in := instruments[code]
		in.Code = code
		if ic.Symbol != "" {
			in.Symbol = ic.Symbol
		}
		if ic.Cycle != "" {
			in.Cycle = ic.Cycle
		}
		if ic.Exchange != "" {
			in.Exchange = ic.Exchange
		}
		if ic.LookbackDays != 0 {
			in.LookbackDays = ic.LookbackDays
		}
		if in.Symbol == "" || in.Cycle == "" || in.Exchange == "" {
			return market.Map{}, fmt.Errorf("instrument %q needs symbol, cycle and exchange", code)
		}
		instruments[code] = in
	}

	exchanges := market.DefaultExchanges()
	for name, ec := range c.Exchanges {
		ex := exchanges[name]
		if ec.EODDate != "" {
			t, err := time.Parse("2006-01-02", ec.EODDate)
			if err != nil {
				return market.Map{}, fmt.Errorf("exchange %q has a bad eod_date: %w", name, err)
			}
			ex.EarliestDaily = t
		}
		if ec.TickDate != "" {
			t, err := time.Parse("2006-01-02", ec.TickDate)
			if err != nil {
				return market.Map{}, fmt.Errorf("exchange %q has a bad tick_date: %w", name, err)
			}
			ex.EarliestHourly = t
		}
		exchanges[name] = ex
	}

	return market.NewMap(instruments, exchanges), nil
}

// Load builds the effective configuration: defaults, then the config file,
// then .env and environment variables, then command line flags.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".bcgrab.env"))

	cfg := DefaultConfig()
	if err := cfg.LoadFromFile(configPath); err != nil {
		return nil, err
	}
	cfg.LoadFromEnv()
	cfg.MergeFlags(flags)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// MergeFlags applies command line flag values onto the configuration.
func (c *Config) MergeFlags(flags map[string]interface{}) {
	if v, ok := flags["save-dir"].(string); ok && v != "" {
		c.Download.SaveDir = v
	}
	if v, ok := flags["instruments"].([]string); ok && len(v) > 0 {
		c.Download.Instruments = v
	}
	if v, ok := flags["start-year"].(int); ok && v != 0 {
		c.Download.StartYear = v
	}
	if v, ok := flags["end-year"].(int); ok && v != 0 {
		c.Download.EndYear = v
	}
	if v, ok := flags["lookback"].(int); ok && v != 0 {
		c.Download.LookbackDays = v
	}
	if v, ok := flags["dry-run"].(bool); ok {
		c.Download.DryRun = v
	}
	if v, ok := flags["daily-only"].(bool); ok {
		c.Download.DailyOnly = v
	}
	if v, ok := flags["update"].(bool); ok {
		c.Download.Update = v
	}
	if v, ok := flags["max-downloads"].(int); ok && v != 0 {
		c.RateLimit.DailyAllowance = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

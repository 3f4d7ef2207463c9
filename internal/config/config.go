package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/quotewatch/quotewatch/internal/htmlq"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultURL               = "https://www.profinance.ru/quotes/"
	DefaultReadySelector     = ".quote__row"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultNavigationTimeout = 30 * time.Second
	DefaultReadyTimeout      = 10 * time.Second
	DefaultSettleDelay       = 5 * time.Second

	DefaultBusinessDayInterval = 300 * time.Second
	DefaultWeekendInterval     = 3600 * time.Second
	DefaultBackoffInterval     = 60 * time.Second
	DefaultMinBackoff          = 10 * time.Second
	DefaultCycleTimeout        = 60 * time.Second
	DefaultShutdownGrace       = 10 * time.Second

	DefaultHTTPPort = 8000
)

// Supported fetcher drivers.
const (
	DriverBrowser = "browser"
	DriverHTTP    = "http"
)

// Config is the top-level configuration.
// Fields map 1:1 to config.example.yaml; QUOTEWATCH_* environment variables
// override file values.
type Config struct {
	Source   Source   `yaml:"source"`
	Layout   Layout   `yaml:"layout"`
	Catalog  Catalog  `yaml:"catalog"`
	Schedule Schedule `yaml:"schedule"`
	Server   Server   `yaml:"server"`
	Log      Log      `yaml:"log"`
}

// Source describes the external page quotes are acquired from.
type Source struct {
	// Driver selects the fetcher implementation: browser | http.
	Driver string `yaml:"driver" env:"QUOTEWATCH_SOURCE_DRIVER"`

	// URL is the fixed address of the quotes page.
	URL string `yaml:"url" env:"QUOTEWATCH_SOURCE_URL"`

	// UserAgent is sent with every request.
	UserAgent string `yaml:"user_agent" env:"QUOTEWATCH_SOURCE_USER_AGENT"`

	// ReadySelector marks the page as populated once it matches.
	ReadySelector string `yaml:"ready_selector" env:"QUOTEWATCH_SOURCE_READY_SELECTOR"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout" env:"QUOTEWATCH_SOURCE_NAVIGATION_TIMEOUT"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout" env:"QUOTEWATCH_SOURCE_READY_TIMEOUT"`

	// SettleDelay is waited after the ready marker appears so late
	// network updates land in the document. Zero disables it.
	SettleDelay time.Duration `yaml:"settle_delay" env:"QUOTEWATCH_SOURCE_SETTLE_DELAY"`

	// BlockResources suppresses images, fonts and media in the browser driver.
	BlockResources bool `yaml:"block_resources" env:"QUOTEWATCH_SOURCE_BLOCK_RESOURCES"`

	// Headless runs the browser without a window. Only false for debugging.
	Headless bool `yaml:"headless" env:"QUOTEWATCH_SOURCE_HEADLESS"`

	// ExecPath overrides the browser binary located on PATH.
	ExecPath string `yaml:"exec_path" env:"QUOTEWATCH_SOURCE_EXEC_PATH"`

	// RecycleAt is a daily HH:MM at which the session is recycled.
	// Empty disables the job.
	RecycleAt string `yaml:"recycle_at" env:"QUOTEWATCH_SOURCE_RECYCLE_AT"`
}

// Layout holds the selectors describing quote rows in the source document.
type Layout struct {
	Row    string `yaml:"row" env:"QUOTEWATCH_LAYOUT_ROW"`
	Label  string `yaml:"label" env:"QUOTEWATCH_LAYOUT_LABEL"`
	Bid    string `yaml:"bid" env:"QUOTEWATCH_LAYOUT_BID"`
	Offer  string `yaml:"offer" env:"QUOTEWATCH_LAYOUT_OFFER"`
	IDAttr string `yaml:"id_attr" env:"QUOTEWATCH_LAYOUT_ID_ATTR"`
}

// Entry maps one symbol to the rule used to find it in the document.
// ID is preferred when set; Label is the fallback.
type Entry struct {
	Symbol string `yaml:"symbol"`
	ID     string `yaml:"id"`
	Label  string `yaml:"label"`
}

// Catalog is the fixed list of target symbols.
type Catalog []Entry

// Symbols returns the catalog keys in declaration order.
func (c Catalog) Symbols() []string {
	out := make([]string, 0, len(c))
	for _, e := range c {
		out = append(out, e.Symbol)
	}
	return out
}

// Schedule holds refresh intervals and cycle bounds.
type Schedule struct {
	// Timezone is the IANA zone used to decide business days.
	Timezone string `yaml:"timezone" env:"QUOTEWATCH_SCHEDULE_TIMEZONE"`

	BusinessDayInterval time.Duration `yaml:"business_day_interval" env:"QUOTEWATCH_SCHEDULE_BUSINESS_DAY_INTERVAL"`
	WeekendInterval     time.Duration `yaml:"weekend_interval" env:"QUOTEWATCH_SCHEDULE_WEEKEND_INTERVAL"`

	// BackoffInterval is the wait after a failed cycle, floored at MinBackoff.
	BackoffInterval time.Duration `yaml:"backoff_interval" env:"QUOTEWATCH_SCHEDULE_BACKOFF_INTERVAL"`
	MinBackoff      time.Duration `yaml:"min_backoff" env:"QUOTEWATCH_SCHEDULE_MIN_BACKOFF"`

	WarmupDelay   time.Duration `yaml:"warmup_delay" env:"QUOTEWATCH_SCHEDULE_WARMUP_DELAY"`
	CycleTimeout  time.Duration `yaml:"cycle_timeout" env:"QUOTEWATCH_SCHEDULE_CYCLE_TIMEOUT"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"QUOTEWATCH_SCHEDULE_SHUTDOWN_GRACE"`
}

// Backoff returns the effective error-cycle wait.
func (s Schedule) Backoff() time.Duration {
	if s.BackoffInterval < s.MinBackoff {
		return s.MinBackoff
	}
	return s.BackoffInterval
}

// Location resolves Timezone, defaulting to UTC.
func (s Schedule) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

// Server holds the read-only HTTP API settings.
type Server struct {
	HTTPPort int `yaml:"http_port" env:"QUOTEWATCH_HTTP_PORT"`
}

// Log holds logger settings.
type Log struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level" env:"QUOTEWATCH_LOG_LEVEL"`
}

// Load reads and parses the YAML config file at path, then applies
// environment overrides. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse yaml: %w", err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-populated with default values.
func Default() *Config {
	return &Config{
		Source: Source{
			Driver:            DriverBrowser,
			URL:               DefaultURL,
			UserAgent:         DefaultUserAgent,
			ReadySelector:     DefaultReadySelector,
			NavigationTimeout: DefaultNavigationTimeout,
			ReadyTimeout:      DefaultReadyTimeout,
			SettleDelay:       DefaultSettleDelay,
			BlockResources:    true,
			Headless:          true,
		},
		Layout: Layout{
			Row:    ".quote__row",
			Label:  ".quote__row__cell--name",
			Bid:    ".quote__row__cell--bid",
			Offer:  ".quote__row__cell--ask",
			IDAttr: "id",
		},
		Catalog: Catalog{
			{Symbol: "gold", Label: "Gold"},
			{Symbol: "silver", Label: "Silver"},
			{Symbol: "platinum", Label: "Platinum"},
			{Symbol: "palladium", Label: "Palladium"},
		},
		Schedule: Schedule{
			Timezone:            "UTC",
			BusinessDayInterval: DefaultBusinessDayInterval,
			WeekendInterval:     DefaultWeekendInterval,
			BackoffInterval:     DefaultBackoffInterval,
			MinBackoff:          DefaultMinBackoff,
			CycleTimeout:        DefaultCycleTimeout,
			ShutdownGrace:       DefaultShutdownGrace,
		},
		Server: Server{HTTPPort: DefaultHTTPPort},
		Log:    Log{Level: "info"},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	src := cfg.Source
	switch src.Driver {
	case DriverBrowser, DriverHTTP:
	default:
		return fmt.Errorf("source.driver: unknown driver %q", src.Driver)
	}
	if src.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if src.ReadySelector == "" {
		return fmt.Errorf("source.ready_selector is required")
	}
	if src.NavigationTimeout <= 0 || src.ReadyTimeout <= 0 {
		return fmt.Errorf("source timeouts must be positive")
	}
	if src.SettleDelay < 0 {
		return fmt.Errorf("source.settle_delay must not be negative")
	}
	if src.RecycleAt != "" {
		if _, err := time.Parse("15:04", src.RecycleAt); err != nil {
			return fmt.Errorf("source.recycle_at %q: want HH:MM", src.RecycleAt)
		}
	}

	l := cfg.Layout
	if l.Row == "" || l.Label == "" || l.Bid == "" || l.Offer == "" {
		return fmt.Errorf("layout: row, label, bid and offer selectors are required")
	}
	for _, sel := range []struct{ key, src string }{
		{"source.ready_selector", src.ReadySelector},
		{"layout.row", l.Row},
		{"layout.label", l.Label},
		{"layout.bid", l.Bid},
		{"layout.offer", l.Offer},
	} {
		if _, err := htmlq.Compile(sel.src); err != nil {
			return fmt.Errorf("%s: %w", sel.key, err)
		}
	}

	if len(cfg.Catalog) == 0 {
		return fmt.Errorf("catalog must contain at least one entry")
	}
	seen := make(map[string]struct{}, len(cfg.Catalog))
	for i, e := range cfg.Catalog {
		if strings.TrimSpace(e.Symbol) == "" {
			return fmt.Errorf("catalog[%d]: symbol is required", i)
		}
		if _, dup := seen[e.Symbol]; dup {
			return fmt.Errorf("catalog[%d]: duplicate symbol %q", i, e.Symbol)
		}
		seen[e.Symbol] = struct{}{}
		if e.ID == "" && e.Label == "" {
			return fmt.Errorf("catalog[%d] %q: id or label is required", i, e.Symbol)
		}
	}

	s := cfg.Schedule
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if s.BusinessDayInterval <= 0 || s.WeekendInterval <= 0 {
		return fmt.Errorf("schedule intervals must be positive")
	}
	if s.MinBackoff <= 0 {
		return fmt.Errorf("schedule.min_backoff must be positive")
	}
	if b := s.Backoff(); b >= min(s.BusinessDayInterval, s.WeekendInterval) {
		return fmt.Errorf("schedule: backoff %v must be shorter than every refresh interval", b)
	}
	if s.WarmupDelay < 0 {
		return fmt.Errorf("schedule.warmup_delay must not be negative")
	}
	if s.CycleTimeout <= 0 || s.ShutdownGrace <= 0 {
		return fmt.Errorf("schedule.cycle_timeout and shutdown_grace must be positive")
	}

	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d out of range", cfg.Server.HTTPPort)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error", "":
	default:
		return fmt.Errorf("log.level: unknown level %q", cfg.Log.Level)
	}
	return nil
}

// SlogLevel maps Level onto a slog.Level, defaulting to info.
func (l Log) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

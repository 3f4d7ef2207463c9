package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Valid(t *testing.T) {
	yaml := `
source:
  driver: http
  url: "http://localhost:9000/quotes"
  ready_selector: ".row"
  navigation_timeout: 5s
layout:
  row: ".row"
  label: ".name"
  bid: ".bid"
  offer: ".ask"
catalog:
  - symbol: gold
    id: xau
  - symbol: silver
    label: Silver
schedule:
  business_day_interval: 2m
  weekend_interval: 1h
  backoff_interval: 30s
`
	cfg := loadFromString(t, yaml)

	if cfg.Source.Driver != DriverHTTP {
		t.Errorf("driver: got %q", cfg.Source.Driver)
	}
	if cfg.Source.NavigationTimeout != 5*time.Second {
		t.Errorf("navigation_timeout: got %v", cfg.Source.NavigationTimeout)
	}
	if len(cfg.Catalog) != 2 {
		t.Fatalf("catalog: got %d entries, want 2", len(cfg.Catalog))
	}
	if cfg.Catalog[0].ID != "xau" || cfg.Catalog[1].Label != "Silver" {
		t.Errorf("catalog: got %+v", cfg.Catalog)
	}
	if cfg.Schedule.BusinessDayInterval != 2*time.Minute {
		t.Errorf("business_day_interval: got %v", cfg.Schedule.BusinessDayInterval)
	}
	if cfg.Schedule.Backoff() != 30*time.Second {
		t.Errorf("Backoff(): got %v", cfg.Schedule.Backoff())
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, "log:\n  level: debug\n")

	if cfg.Source.URL != DefaultURL {
		t.Errorf("default url: got %q", cfg.Source.URL)
	}
	if cfg.Source.SettleDelay != DefaultSettleDelay {
		t.Errorf("default settle_delay: got %v, want %v", cfg.Source.SettleDelay, DefaultSettleDelay)
	}
	if cfg.Schedule.BusinessDayInterval != DefaultBusinessDayInterval {
		t.Errorf("default business_day_interval: got %v", cfg.Schedule.BusinessDayInterval)
	}
	if cfg.Schedule.WeekendInterval != DefaultWeekendInterval {
		t.Errorf("default weekend_interval: got %v", cfg.Schedule.WeekendInterval)
	}
	if got := cfg.Catalog.Symbols(); len(got) != 4 || got[0] != "gold" || got[3] != "palladium" {
		t.Errorf("default catalog: got %v", got)
	}
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("default http_port: got %d", cfg.Server.HTTPPort)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("log level: got %v", cfg.Log.SlogLevel())
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}
	if cfg.Source.Driver != DriverBrowser {
		t.Errorf("driver: got %q, want %q", cfg.Source.Driver, DriverBrowser)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("QUOTEWATCH_SOURCE_URL", "http://override.local/q")
	t.Setenv("QUOTEWATCH_SCHEDULE_BACKOFF_INTERVAL", "15s")
	t.Setenv("QUOTEWATCH_HTTP_PORT", "9100")

	cfg := loadFromString(t, `
source:
  url: "http://file.local/q"
`)
	if cfg.Source.URL != "http://override.local/q" {
		t.Errorf("url: got %q", cfg.Source.URL)
	}
	if cfg.Schedule.BackoffInterval != 15*time.Second {
		t.Errorf("backoff_interval: got %v", cfg.Schedule.BackoffInterval)
	}
	if cfg.Server.HTTPPort != 9100 {
		t.Errorf("http_port: got %d", cfg.Server.HTTPPort)
	}
}

func TestLoad_CombinatorSelectors(t *testing.T) {
	cfg := loadFromString(t, `
source:
  ready_selector: "table.quotes .quote__row"
layout:
  row: "table.quotes > tbody > tr"
  bid: "td:nth-child(2)"
`)
	if cfg.Source.ReadySelector != "table.quotes .quote__row" {
		t.Errorf("ready_selector = %q", cfg.Source.ReadySelector)
	}
	if cfg.Layout.Bid != "td:nth-child(2)" {
		t.Errorf("layout.bid = %q", cfg.Layout.Bid)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown driver", "source:\n  driver: carrier-pigeon\n"},
		{"empty url", "source:\n  url: \"\"\n"},
		{"malformed ready selector", "source:\n  ready_selector: \"table >\"\n"},
		{"malformed layout selector", "layout:\n  bid: \"td[class\"\n"},
		{"bad recycle time", "source:\n  recycle_at: \"25:99\"\n"},
		{"empty catalog", "catalog: []\n"},
		{"duplicate symbol", "catalog:\n  - {symbol: gold, label: Gold}\n  - {symbol: gold, label: Au}\n"},
		{"entry without rule", "catalog:\n  - symbol: gold\n"},
		{"backoff not shorter than interval", "schedule:\n  business_day_interval: 30s\n  backoff_interval: 30s\n"},
		{"floor not shorter than interval", "schedule:\n  weekend_interval: 5s\n  backoff_interval: 1s\n  min_backoff: 10s\n"},
		{"unknown timezone", "schedule:\n  timezone: Mars/Olympus\n"},
		{"bad port", "server:\n  http_port: 70000\n"},
		{"unknown log level", "log:\n  level: chatty\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestSchedule_BackoffFloor(t *testing.T) {
	s := Schedule{BackoffInterval: 2 * time.Second, MinBackoff: 10 * time.Second}
	if got := s.Backoff(); got != 10*time.Second {
		t.Errorf("Backoff() = %v, want floor 10s", got)
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"listing-radar/internal/scoring"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load defaults: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Fatalf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Scheduler.Interval != 5*time.Minute {
		t.Fatalf("interval = %s", cfg.Scheduler.Interval)
	}
	if cfg.Engine.MinClusterSample != 10 || cfg.Engine.MinSample != 5 {
		t.Fatalf("sample thresholds = %d/%d", cfg.Engine.MinClusterSample, cfg.Engine.MinSample)
	}
	if cfg.Engine.Calibration != scoring.DefaultCalibration() {
		t.Fatalf("calibration defaults differ: %+v", cfg.Engine.Calibration)
	}
	if rate := cfg.Engine.CurrencyRates["usd"]; rate != 34.5 {
		t.Fatalf("usd rate = %v", rate)
	}
}

func TestLoadFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "radar.yaml")
	body := `
database:
  driver: postgres
  dsn: postgres://radar@localhost/radar
scheduler:
  cron: "@every 10m"
engine:
  min_cluster_sample: 12
  calibration:
    sigmoid_center: 1.5
ingest:
  kafka:
    enabled: true
    brokers: ["k1:9092", "k2:9092"]
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("driver = %q", cfg.Database.Driver)
	}
	if cfg.Scheduler.Cron != "@every 10m" {
		t.Fatalf("cron = %q", cfg.Scheduler.Cron)
	}
	if cfg.Engine.MinClusterSample != 12 {
		t.Fatalf("min_cluster_sample = %d", cfg.Engine.MinClusterSample)
	}
	if cfg.Engine.Calibration.SigmoidCenter != 1.5 || cfg.Engine.Calibration.SigmoidSlope != 2.5 {
		t.Fatalf("calibration merge failed: %+v", cfg.Engine.Calibration)
	}
	if len(cfg.Ingest.Kafka.Brokers) != 2 {
		t.Fatalf("brokers = %v", cfg.Ingest.Kafka.Brokers)
	}
}

func TestEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("RADAR_ENGINE_MIN_SAMPLE", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.MinSample != 7 {
		t.Fatalf("min_sample = %d, want 7", cfg.Engine.MinSample)
	}
}

func TestValidateRejects(t *testing.T) {
	chdir(t, t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cases := map[string]func(*Config){
		"driver":        func(c *Config) { c.Database.Driver = "mysql" },
		"min sample":    func(c *Config) { c.Engine.MinSample = 1 },
		"cluster below": func(c *Config) { c.Engine.MinClusterSample = 3 },
		"rate":          func(c *Config) { c.Engine.CurrencyRates = map[string]float64{"usd": 0} },
		"calibration":   func(c *Config) { c.Engine.Calibration.SigmoidSlope = -1 },
		"telegram":      func(c *Config) { c.Alerting.Telegram.Enabled = true },
		"discord":       func(c *Config) { c.Alerting.Discord.Enabled = true },
		"schedule": func(c *Config) {
			c.Scheduler.Interval = 0
			c.Scheduler.Cron = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := *base
			cfg.Engine.CurrencyRates = map[string]float64{"usd": 34.5}
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := &Config{Export: ExportConfig{MaxDataPoints: 100}}
	if got := cfg.ResolveMaxPoints(0); got != 100 {
		t.Fatalf("got %d", got)
	}
	if got := cfg.ResolveMaxPoints(7); got != 7 {
		t.Fatalf("got %d", got)
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}

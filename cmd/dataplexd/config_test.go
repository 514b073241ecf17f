package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/dataplex/internal/collector"
	"github.com/danmuck/dataplex/internal/config"
	"github.com/danmuck/dataplex/internal/testutil/testlog"
)

func TestLoadServiceConfigDefaultsAndOverrides(t *testing.T) {
	testlog.Start(t)
	cfg, err := loadServiceConfig("ex.config.toml")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Serial.Device != "/dev/ttyUSB0" || cfg.Serial.Baud != 9600 || cfg.Serial.Parity != "none" {
		t.Fatalf("unexpected serial: %+v", cfg.Serial)
	}
	if cfg.Serial.ReadTimeout != 100*time.Millisecond {
		t.Fatalf("unexpected read timeout: %v", cfg.Serial.ReadTimeout)
	}
	if cfg.Logger.LoggerNode != 1 || cfg.Logger.LocalNode != 2050 || !cfg.Logger.RingOnOpen {
		t.Fatalf("unexpected logger config: %+v", cfg.Logger)
	}
	if cfg.Logger.Session.ResponseTimeout != 2*time.Second {
		t.Fatalf("unexpected response timeout: %v", cfg.Logger.Session.ResponseTimeout)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("unexpected poll interval: %v", cfg.PollInterval)
	}
	if cfg.Logger.Session.Backoff.InitialDelay != 2*time.Second || cfg.Logger.Session.Backoff.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected backoff: %+v", cfg.Logger.Session.Backoff)
	}
	if !cfg.Logger.Session.Backoff.Jitter {
		t.Fatalf("expected default jitter kept")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Fatalf("unexpected cors origins: %+v", cfg.CORSOrigins)
	}
	if cfg.StationPath != "station.toml" {
		t.Fatalf("unexpected station path: %q", cfg.StationPath)
	}
}

func TestLoadServiceConfigKeepsDefaultsForMissingKeys(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("device = \"/dev/ttyS1\"\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadServiceConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def := collector.DefaultServiceConfig()
	if cfg.Serial.Device != "/dev/ttyS1" {
		t.Fatalf("device not applied: %q", cfg.Serial.Device)
	}
	if cfg.PollInterval != def.PollInterval || cfg.StatusAddr != def.StatusAddr || cfg.Logger.LocalNode != def.Logger.LocalNode {
		t.Fatalf("defaults not kept: %+v", cfg)
	}
}

func TestLoadServiceConfigRejectsBadValues(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cases := map[string]string{
		"duration": "poll_interval = \"soon\"\n",
		"node":     "logger_node = 4096\n",
		"syntax":   "device = \n",
	}
	for name, body := range cases {
		path := filepath.Join(dir, name+".toml")
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadServiceConfig(path); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestShippedStationConfigLoads(t *testing.T) {
	testlog.Start(t)
	cfg, err := config.LoadStationConfig("station.toml")
	if err != nil {
		t.Fatalf("load station: %v", err)
	}
	if cfg.Station != "weather-a" || len(cfg.Fields) != 7 {
		t.Fatalf("unexpected station: %s fields=%d", cfg.Station, len(cfg.Fields))
	}
}

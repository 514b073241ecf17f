package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/dataplex/internal/collector"
)

type fileConfig struct {
	Device           string   `toml:"device"`
	Baud             int      `toml:"baud"`
	Parity           string   `toml:"parity"`
	StopBits         int      `toml:"stop_bits"`
	ReadTimeout      string   `toml:"read_timeout"`
	LoggerNode       uint16   `toml:"logger_node"`
	LocalNode        uint16   `toml:"local_node"`
	SecurityCode     uint16   `toml:"security_code"`
	RingOnOpen       bool     `toml:"ring_on_open"`
	ResponseTimeout  string   `toml:"response_timeout"`
	PollInterval     string   `toml:"poll_interval"`
	ReconnectInitial string   `toml:"reconnect_initial"`
	ReconnectMax     string   `toml:"reconnect_max"`
	StatusAddr       string   `toml:"status_addr"`
	CORSOrigins      []string `toml:"cors_origins"`
	StationConfig    string   `toml:"station_config"`
}

func loadServiceConfig(path string) (collector.ServiceConfig, error) {
	cfg := collector.DefaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return collector.ServiceConfig{}, fmt.Errorf("load dataplexd config: %w", err)
	}

	if meta.IsDefined("device") {
		cfg.Serial.Device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("baud") {
		cfg.Serial.Baud = raw.Baud
	}
	if meta.IsDefined("parity") {
		cfg.Serial.Parity = strings.TrimSpace(raw.Parity)
	}
	if meta.IsDefined("stop_bits") {
		cfg.Serial.StopBits = raw.StopBits
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"read_timeout", raw.ReadTimeout, &cfg.Serial.ReadTimeout},
		{"response_timeout", raw.ResponseTimeout, &cfg.Logger.Session.ResponseTimeout},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"reconnect_initial", raw.ReconnectInitial, &cfg.Logger.Session.Backoff.InitialDelay},
		{"reconnect_max", raw.ReconnectMax, &cfg.Logger.Session.Backoff.MaxDelay},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return collector.ServiceConfig{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = v
	}

	if meta.IsDefined("logger_node") {
		cfg.Logger.LoggerNode = raw.LoggerNode
	}
	if meta.IsDefined("local_node") {
		cfg.Logger.LocalNode = raw.LocalNode
	}
	if meta.IsDefined("security_code") {
		cfg.Logger.SecurityCode = raw.SecurityCode
	}
	if meta.IsDefined("ring_on_open") {
		cfg.Logger.RingOnOpen = raw.RingOnOpen
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = normalizeOrigins(raw.CORSOrigins)
	}
	if meta.IsDefined("station_config") {
		cfg.StationPath = strings.TrimSpace(raw.StationConfig)
	}

	if cfg.Logger.LoggerNode > 0xFFF || cfg.Logger.LocalNode > 0xFFF {
		return collector.ServiceConfig{}, fmt.Errorf("node ids must fit 12 bits: logger=%#x local=%#x",
			cfg.Logger.LoggerNode, cfg.Logger.LocalNode)
	}
	return cfg, nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		v := strings.TrimSpace(o)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

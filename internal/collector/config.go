package collector

import (
	"errors"
	"time"

	"github.com/danmuck/dataplex/internal/datalogger"
	"github.com/danmuck/dataplex/internal/serialport"
)

var (
	ErrInvalidPollInterval = errors.New("collector: invalid poll interval")
	ErrNoFields            = errors.New("collector: station has no fields")
)

// ServiceConfig configures the relay daemon.
type ServiceConfig struct {
	Serial       serialport.Config
	Logger       datalogger.Config
	PollInterval time.Duration
	// StatusAddr is the status HTTP listen address; empty disables it.
	StatusAddr  string
	CORSOrigins []string
	StationPath string
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Serial:       serialport.DefaultConfig(),
		Logger:       datalogger.DefaultConfig(),
		PollInterval: 5 * time.Second,
		StatusAddr:   "127.0.0.1:9110",
		StationPath:  "station.toml",
	}
}

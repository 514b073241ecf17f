package session

import (
	"time"

	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines engine timing and the identity it advertises.
type Config struct {
	// ResponseTimeout bounds one wait before any please-wait extension.
	ResponseTimeout time.Duration
	Limits          frame.Limits
	// Hello is sent when answering unsolicited hello commands.
	Hello   catalog.Hello
	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ResponseTimeout: time.Second,
		Limits:          frame.DefaultLimits(),
		Hello:           catalog.DefaultHello(),
		Backoff: BackoffConfig{
			InitialDelay: time.Second,
			Multiplier:   2.0,
			MaxDelay:     time.Minute,
			Jitter:       true,
		},
	}
}

package sinks

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogSink writes each reading as one structured log line.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{logger: log.Logger.With().Str("sink", "log").Logger()}
}

// NewLogSinkWith logs through logger instead of the global logger.
func NewLogSinkWith(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Write(_ context.Context, r Reading) error {
	ev := s.logger.Info().Time("reading_time", r.Time).Str("station", r.Station)
	for _, name := range r.Names() {
		ev = ev.Float64(name, r.Values[name])
	}
	ev.Msg("reading")
	return nil
}

func (s *LogSink) Close() error { return nil }

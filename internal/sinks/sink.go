// Package sinks relays collected readings to their destinations.
package sinks

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danmuck/dataplex/internal/config"
)

// Reading is one polling cycle's values keyed by relay alias.
type Reading struct {
	Time    time.Time          `json:"time" cbor:"time"`
	Station string             `json:"station" cbor:"station"`
	Values  map[string]float64 `json:"values" cbor:"values"`
}

// Names returns the value names in sorted order.
func (r Reading) Names() []string {
	out := make([]string, 0, len(r.Values))
	for k := range r.Values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type Sink interface {
	Name() string
	Write(ctx context.Context, r Reading) error
	Close() error
}

// New builds the sink described by cfg. fields fixes the column order of
// tabular sinks.
func New(ctx context.Context, cfg config.SinkConfig, fields []string) (Sink, error) {
	if err := config.ValidateSinkEntry(cfg); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case config.SinkLog:
		return NewLogSink(), nil
	case config.SinkCSV:
		return NewCSVSink(cfg.Path, fields, time.Now())
	case config.SinkZMQ:
		return NewZMQSink(ctx, cfg.Endpoint, cfg.Topic, cfg.Encoding)
	case config.SinkArrow:
		return NewArrowSink(cfg.Path, fields, cfg.BatchSize)
	case config.SinkSQLite:
		return NewSQLiteSink(cfg.Path)
	default:
		return nil, fmt.Errorf("sinks: unknown kind %q", cfg.Kind)
	}
}

// Fanout writes every reading to each sink in order. A failing sink does
// not stop the others.
type Fanout struct {
	mu    sync.Mutex
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks}
}

func (f *Fanout) Name() string { return "fanout" }

func (f *Fanout) Write(ctx context.Context, r Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, s := range f.sinks {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", s.Name(), err))
		}
	}
	f.sinks = nil
	return errors.Join(errs...)
}

// Open builds every configured sink. Already opened sinks are closed when
// a later one fails.
func Open(ctx context.Context, cfg config.StationConfig) (*Fanout, error) {
	fields := cfg.Aliases()
	out := make([]Sink, 0, len(cfg.Sinks))
	for i, sc := range cfg.Sinks {
		s, err := New(ctx, sc, fields)
		if err != nil {
			_ = NewFanout(out...).Close()
			return nil, fmt.Errorf("sink[%d] %s: %w", i, sc.Kind, err)
		}
		out = append(out, s)
	}
	return NewFanout(out...), nil
}

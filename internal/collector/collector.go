// Package collector polls one data logger and relays each cycle's values
// to the configured sinks, reopening the session when the link fails.
package collector

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/dataplex/internal/config"
	"github.com/danmuck/dataplex/internal/datalogger"
	"github.com/danmuck/dataplex/internal/observability"
	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/session"
	"github.com/danmuck/dataplex/internal/serialport"
	"github.com/danmuck/dataplex/internal/sinks"
)

// DialFunc opens the serial link to the logger.
type DialFunc func(ctx context.Context) (datalogger.Port, error)

// SerialDialer opens cfg's device on every call.
func SerialDialer(cfg serialport.Config) DialFunc {
	return func(context.Context) (datalogger.Port, error) {
		return serialport.Open(cfg)
	}
}

type field struct {
	cfg  config.FieldConfig
	kind protocol.FieldType
}

// Status is a snapshot for the status surface.
type Status struct {
	Station   string    `json:"station"`
	Connected bool      `json:"connected"`
	Polls     uint64    `json:"polls"`
	Reconnect int       `json:"reconnect_attempt"`
	LastError string    `json:"last_error,omitempty"`
	LastPoll  time.Time `json:"last_poll,omitzero"`
}

type Collector struct {
	cfg     ServiceConfig
	station string
	fields  []field
	sink    sinks.Sink
	dial    DialFunc
	rng     *rand.Rand
	now     func() time.Time

	mu        sync.RWMutex
	client    *datalogger.Client
	latest    sinks.Reading
	hasLatest bool
	status    Status
}

// New validates the station field list. sink receives every reading and
// is not closed by the collector.
func New(cfg ServiceConfig, station config.StationConfig, sink sinks.Sink, dial DialFunc) (*Collector, error) {
	if cfg.PollInterval <= 0 {
		return nil, ErrInvalidPollInterval
	}
	if len(station.Fields) == 0 {
		return nil, ErrNoFields
	}
	fields := make([]field, 0, len(station.Fields))
	for _, f := range station.Fields {
		ft, err := f.FieldType()
		if err != nil {
			return nil, fmt.Errorf("collector: field %s.%s: %w", f.Table, f.Field, err)
		}
		fields = append(fields, field{cfg: f, kind: ft})
	}
	if cfg.Logger.Observer == nil {
		cfg.Logger.Observer = observability.NewSessionObserver(station.Station)
	}
	return &Collector{
		cfg:     cfg,
		station: station.Station,
		fields:  fields,
		sink:    sink,
		dial:    dial,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		status:  Status{Station: station.Station},
	}, nil
}

// Run polls until ctx ends, then says Bye and closes the link.
func (c *Collector) Run(ctx context.Context) error {
	defer c.disconnect()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	attempt := 0
	for ctx.Err() == nil {
		if !c.connected() {
			if err := c.connect(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				attempt++
				c.setReconnect(attempt, err)
				observability.RecordReconnect(c.station)
				log.Warn().Err(err).Int("attempt", attempt).Str("station", c.station).Msg("collector.Run open failed")
				if err := session.SleepBackoff(ctx, c.cfg.Logger.Session.Backoff, attempt, c.rng); err != nil {
					return nil
				}
				continue
			}
			attempt = 0
			c.setReconnect(0, nil)
		}

		if _, err := c.Poll(ctx); err != nil {
			log.Warn().Err(err).Str("station", c.station).Msg("collector.Run poll failed")
		}
		if c.clientBroken() {
			log.Warn().Str("station", c.station).Msg("collector.Run link broken, reopening")
			c.disconnect()
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

// Poll reads every configured field once and relays the result. Fields
// that fail are left out of the reading; a broken link aborts the cycle.
func (c *Collector) Poll(ctx context.Context) (sinks.Reading, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	if client == nil {
		return sinks.Reading{}, datalogger.ErrClosed
	}

	reading := sinks.Reading{Station: c.station, Values: make(map[string]float64, len(c.fields))}
	var errs []error
	for _, f := range c.fields {
		v, err := c.readField(ctx, client, f)
		if err != nil {
			observability.RecordPollError(c.station, f.cfg.Field)
			errs = append(errs, err)
			if client.Broken() {
				break
			}
			continue
		}
		reading.Values[f.cfg.Alias] = v
	}
	reading.Time = c.now().UTC()
	pollErr := errors.Join(errs...)
	if client.Broken() {
		c.recordPoll(pollErr)
		return sinks.Reading{}, pollErr
	}
	if len(reading.Values) == 0 {
		c.recordPoll(pollErr)
		return sinks.Reading{}, fmt.Errorf("collector: no values read: %w", pollErr)
	}

	sinkErr := c.sink.Write(ctx, reading)
	observability.RecordReading(c.station, sinkErr)
	if sinkErr != nil {
		log.Warn().Err(sinkErr).Str("station", c.station).Msg("collector.Poll sink write failed")
	}

	c.mu.Lock()
	c.latest = reading
	c.hasLatest = true
	c.mu.Unlock()
	c.recordPoll(pollErr)
	return reading, pollErr
}

// Latest returns the last relayed reading.
func (c *Collector) Latest() (sinks.Reading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.hasLatest
}

func (c *Collector) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.status
	st.Connected = c.client != nil
	return st
}

func (c *Collector) readField(ctx context.Context, client *datalogger.Client, f field) (float64, error) {
	res, err := client.GetValue(ctx, f.cfg.Table, f.kind, f.cfg.Field, f.cfg.Swath)
	if err != nil {
		return 0, fmt.Errorf("%s.%s: %w", f.cfg.Table, f.cfg.Field, err)
	}
	vals := res.Values()
	if len(vals) == 0 {
		return 0, fmt.Errorf("%s.%s: empty result", f.cfg.Table, f.cfg.Field)
	}
	v, ok := vals[0].Float64()
	if !ok {
		return 0, fmt.Errorf("%s.%s: %s is not numeric", f.cfg.Table, f.cfg.Field, vals[0].Type)
	}
	return v, nil
}

func (c *Collector) connect(ctx context.Context) error {
	port, err := c.dial(ctx)
	if err != nil {
		return err
	}
	client, err := datalogger.Open(ctx, port, c.cfg.Logger)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()
	log.Info().Str("station", c.station).Msg("collector.connect session open")
	return nil
}

func (c *Collector) disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		log.Debug().Err(err).Str("station", c.station).Msg("collector.disconnect close")
	}
}

func (c *Collector) connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil
}

func (c *Collector) clientBroken() bool {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()
	return client != nil && client.Broken()
}

func (c *Collector) recordPoll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Polls++
	c.status.LastPoll = c.now().UTC()
	c.status.LastError = errString(err)
}

func (c *Collector) setReconnect(attempt int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status.Reconnect = attempt
	if err != nil {
		c.status.LastError = err.Error()
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Package datalogger is the session-level client for one PakBus data
// logger: bring-up, typed operations over the transaction engine, and Bye
// on close.
package datalogger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/catalog"
	"github.com/danmuck/dataplex/internal/protocol/session"
	"github.com/danmuck/dataplex/internal/protocol/tabledef"
)

// Port is the serial link a client owns.
type Port interface {
	io.ReadWriter
	io.Closer
}

type Config struct {
	LoggerNode   uint16
	LocalNode    uint16
	SecurityCode uint16
	// RingOnOpen sends a link ring packet before the first hello.
	RingOnOpen bool
	Session    session.Config
	Observer   session.Observer
}

func DefaultConfig() Config {
	return Config{
		LoggerNode: 0x001,
		LocalNode:  0x802,
		Session:    session.DefaultConfig(),
	}
}

// Client serialises callers; the engine allows one transaction in flight.
type Client struct {
	mu     sync.Mutex
	port   Port
	engine *session.Engine
	cfg    Config
	broken bool
	closed bool
}

// Open takes ownership of port and pings the logger. The port is closed
// when bring-up fails.
func Open(ctx context.Context, port Port, cfg Config) (*Client, error) {
	addr := catalog.Addr{Dst: cfg.LoggerNode, Src: cfg.LocalNode}
	c := &Client{
		port:   port,
		engine: session.NewEngine(port, addr, cfg.Session),
		cfg:    cfg,
	}
	c.engine.SetObserver(cfg.Observer)

	if cfg.RingOnOpen {
		pkt, err := catalog.RingPacket(addr)
		if err == nil {
			err = c.engine.Send(pkt)
		}
		if err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("datalogger: ring: %w", err)
		}
	}
	if _, err := c.Ping(ctx); err != nil {
		_ = port.Close()
		return nil, err
	}
	log.Info().
		Uint16("logger", cfg.LoggerNode).
		Uint16("local", cfg.LocalNode).
		Msg("datalogger.Open session up")
	return c, nil
}

// Addr returns the logger (Dst) and local (Src) node ids.
func (c *Client) Addr() catalog.Addr {
	return c.engine.Addr()
}

// Broken reports whether a cancelled or failed transaction left the link
// in an unknown state.
func (c *Client) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// Ping sends a hello and returns the logger's hello response.
func (c *Client) Ping(ctx context.Context) (catalog.Hello, error) {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.HelloCommand(c.Addr(), tran, c.cfg.Session.Hello)
	})
	if errors.Is(err, session.ErrResponseTimeout) {
		return catalog.Hello{}, fmt.Errorf("%w from node 0x%03x: %w", ErrNoReply, c.cfg.LoggerNode, err)
	}
	if err != nil {
		return catalog.Hello{}, err
	}
	return bodyOf[catalog.Hello](msg)
}

// GetValue reads swath consecutive values of table.field as type ft. A
// swath of 1 yields a scalar result. For ASCII fields swath is the string
// length and the result is a single string.
func (c *Client) GetValue(ctx context.Context, table string, ft protocol.FieldType, field string, swath int) (protocol.Result, error) {
	if swath < 1 {
		swath = 1
	}
	if swath > 0xFFFF {
		return protocol.Result{}, fmt.Errorf("%w: swath %d", protocol.ErrValueRange, swath)
	}
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.GetValuesCommand(c.Addr(), tran, catalog.GetValuesRequest{
			SecurityCode: c.cfg.SecurityCode,
			Table:        table,
			Type:         ft,
			Field:        field,
			Swath:        uint16(swath),
		})
	})
	if err != nil {
		return protocol.Result{}, err
	}
	resp, err := bodyOf[catalog.GetValuesResponse](msg)
	if err != nil {
		return protocol.Result{}, err
	}
	if err := checkResp(catalog.MsgGetValues, resp.RespCode); err != nil {
		return protocol.Result{}, fmt.Errorf("%s.%s: %w", table, field, err)
	}

	if ft == protocol.TypeASCII {
		vals, _, err := protocol.Decode([]protocol.FieldType{ft}, resp.Values, swath)
		if err != nil {
			return protocol.Result{}, fmt.Errorf("datalogger: %s.%s: %w", table, field, err)
		}
		return protocol.Scalar(vals[0]), nil
	}
	vals, _, err := protocol.DecodeRepeated(ft, swath, resp.Values)
	if err != nil {
		return protocol.Result{}, fmt.Errorf("datalogger: %s.%s: %w", table, field, err)
	}
	return protocol.ResultFor(vals, swath), nil
}

// Clock reads the logger clock and applies adjust (zero only reads). The
// returned time is the logger's clock before the adjustment.
func (c *Client) Clock(ctx context.Context, adjust time.Duration) (time.Time, error) {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.ClockCommand(c.Addr(), tran, catalog.ClockRequest{
			SecurityCode: c.cfg.SecurityCode,
			Adjustment:   adjust,
		})
	})
	if err != nil {
		return time.Time{}, err
	}
	resp, err := bodyOf[catalog.ClockResponse](msg)
	if err != nil {
		return time.Time{}, err
	}
	if err := checkResp(catalog.MsgClock, resp.RespCode); err != nil {
		return time.Time{}, err
	}
	return resp.Time.Time(), nil
}

func (c *Client) ProgStats(ctx context.Context) (catalog.ProgStatsResponse, error) {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.ProgStatsCommand(c.Addr(), tran, c.cfg.SecurityCode)
	})
	if err != nil {
		return catalog.ProgStatsResponse{}, err
	}
	resp, err := bodyOf[catalog.ProgStatsResponse](msg)
	if err != nil {
		return catalog.ProgStatsResponse{}, err
	}
	return resp, checkResp(catalog.MsgGetProgStats, resp.RespCode)
}

// CollectData runs one collect transaction and decodes the records with
// defs. SecurityCode and TableSig are filled in when left zero.
func (c *Client) CollectData(ctx context.Context, defs tabledef.Definitions, req catalog.CollectRequest) (tabledef.CollectResult, error) {
	table, ok := defs.ByNumber(req.TableNbr)
	if !ok {
		return tabledef.CollectResult{}, fmt.Errorf("%w: number %d", tabledef.ErrUnknownTable, req.TableNbr)
	}
	if req.SecurityCode == 0 {
		req.SecurityCode = c.cfg.SecurityCode
	}
	if req.TableSig == 0 {
		req.TableSig = table.Signature
	}
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.CollectDataCommand(c.Addr(), tran, req)
	})
	if err != nil {
		return tabledef.CollectResult{}, err
	}
	resp, err := bodyOf[catalog.CollectDataResponse](msg)
	if err != nil {
		return tabledef.CollectResult{}, err
	}
	if err := checkResp(catalog.MsgCollectData, resp.RespCode); err != nil {
		return tabledef.CollectResult{}, fmt.Errorf("table %q: %w", table.Name, err)
	}
	return tabledef.ParseCollectData(resp.RecData, defs, req.Fields)
}

// Settings reads every device setting over DevConfig.
func (c *Client) Settings(ctx context.Context) (catalog.GetSettingsResponse, error) {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.GetSettingsCommand(c.Addr(), tran, catalog.GetSettingsRequest{SecurityCode: c.cfg.SecurityCode})
	})
	if err != nil {
		return catalog.GetSettingsResponse{}, err
	}
	resp, err := bodyOf[catalog.GetSettingsResponse](msg)
	if err != nil {
		return catalog.GetSettingsResponse{}, err
	}
	if resp.Outcome != 1 {
		return resp, fmt.Errorf("datalogger: get settings outcome %d", resp.Outcome)
	}
	return resp, nil
}

// SetSettings writes settings and returns the per-setting outcomes. The
// device applies them only after a ControlCommit.
func (c *Client) SetSettings(ctx context.Context, settings []catalog.Setting) ([]catalog.SettingStatus, error) {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.SetSettingsCommand(c.Addr(), tran, catalog.SetSettingsRequest{
			SecurityCode: c.cfg.SecurityCode,
			Settings:     settings,
		})
	})
	if err != nil {
		return nil, err
	}
	resp, err := bodyOf[catalog.SetSettingsResponse](msg)
	if err != nil {
		return nil, err
	}
	if resp.Outcome != 1 {
		return resp.Statuses, fmt.Errorf("datalogger: set settings outcome %d", resp.Outcome)
	}
	return resp.Statuses, nil
}

func (c *Client) DevControl(ctx context.Context, action catalog.ControlAction) error {
	msg, err := c.transact(ctx, func(tran uint8) (catalog.Packet, error) {
		return catalog.DevControlCommand(c.Addr(), tran, c.cfg.SecurityCode, action)
	})
	if err != nil {
		return err
	}
	resp, err := bodyOf[catalog.DevControlResponse](msg)
	if err != nil {
		return err
	}
	if resp.Outcome != 1 {
		return fmt.Errorf("datalogger: control action %d outcome %d", action, resp.Outcome)
	}
	return nil
}

// Close sends Bye without waiting for a reply and closes the port. It is
// safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if pkt, err := catalog.ByeCommand(c.engine.Addr()); err == nil {
		if err := c.engine.Send(pkt); err != nil {
			log.Warn().Err(err).Msg("datalogger.Client.Close bye failed")
		}
	}
	return c.port.Close()
}

func (c *Client) transact(ctx context.Context, build session.BuildFunc) (catalog.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return catalog.Message{}, ErrClosed
	}
	if c.broken {
		return catalog.Message{}, ErrBroken
	}
	msg, err := c.engine.Transact(ctx, build)
	if err != nil && (errors.Is(err, session.ErrTransport) || ctx.Err() != nil) {
		c.broken = true
		log.Warn().Err(err).Msg("datalogger.Client transaction aborted, session broken")
	}
	return msg, err
}

func bodyOf[T any](msg catalog.Message) (T, error) {
	body, ok := msg.Body.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: proto=%d msg_type=%#04x", ErrUnexpectedResponse, msg.Header.HiProtoCode, msg.Type)
	}
	return body, nil
}

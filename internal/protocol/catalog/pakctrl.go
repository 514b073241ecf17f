package catalog

import (
	"fmt"

	"github.com/danmuck/dataplex/internal/protocol"
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

// Hello carries the hello command/response body.
type Hello struct {
	IsRouter   uint8
	HopMetric  uint8
	VerifyIntv uint16
}

func DefaultHello() Hello {
	return Hello{IsRouter: 0, HopMetric: 2, VerifyIntv: 1800}
}

// HelloCommand opens a link: the header signals Ring and expect-more.
func HelloCommand(a Addr, tran uint8, h Hello) (Packet, error) {
	hdr := frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl)
	hdr.ExpMoreCode = frame.ExpectMore
	hdr.LinkState = frame.LinkRing
	return build(hdr, helloBody(MsgHello, tran, h)...)
}

// HelloResponse answers a hello command from a.Dst.
func HelloResponse(a Addr, tran uint8, h Hello) (Packet, error) {
	hdr := frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl)
	return build(hdr, helloBody(MsgHelloResponse, tran, h)...)
}

func helloBody(msgType, tran uint8, h Hello) []protocol.Value {
	return []protocol.Value{
		protocol.Byte(msgType),
		protocol.Byte(tran),
		protocol.Byte(h.IsRouter),
		protocol.Byte(h.HopMetric),
		protocol.UInt2(h.VerifyIntv),
	}
}

// ByeCommand ends the session. It expects no response.
func ByeCommand(a Addr) (Packet, error) {
	hdr := frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl)
	hdr.ExpMoreCode = frame.ExpectLast
	return build(hdr, protocol.Byte(MsgBye), protocol.Byte(0))
}

// RingPacket is the header-only serial link packet that wakes a link.
func RingPacket(a Addr) (Packet, error) {
	hdr := frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl)
	hdr.LinkState = frame.LinkRing
	return build(hdr)
}

// GetSettingsRequest reads device settings. A zero range asks for all.
type GetSettingsRequest struct {
	SecurityCode uint16
	HasRange     bool
	BeginID      uint16
	EndID        uint16
}

func GetSettingsCommand(a Addr, tran uint8, req GetSettingsRequest) (Packet, error) {
	values := []protocol.Value{
		protocol.Byte(MsgGetSettings),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
	}
	if req.HasRange {
		values = append(values, protocol.UInt2(req.BeginID), protocol.UInt2(req.EndID))
	}
	return build(frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl), values...)
}

// Setting is one device setting id and its encoded value.
type Setting struct {
	ID       uint16
	ReadOnly bool
	Value    []byte
}

type SetSettingsRequest struct {
	SecurityCode uint16
	Settings     []Setting
}

func SetSettingsCommand(a Addr, tran uint8, req SetSettingsRequest) (Packet, error) {
	values := []protocol.Value{
		protocol.Byte(MsgSetSettings),
		protocol.Byte(tran),
		protocol.UInt2(req.SecurityCode),
	}
	for _, s := range req.Settings {
		if len(s.Value) > 0x3FFF {
			return Packet{}, fmt.Errorf("catalog: setting %d value too large: %d bytes", s.ID, len(s.Value))
		}
		values = append(values,
			protocol.UInt2(s.ID),
			protocol.UInt2(uint16(len(s.Value))),
			protocol.Value{Type: protocol.TypeASCII, String: string(s.Value)},
		)
	}
	return build(frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl), values...)
}

// ControlAction is a DevConfig control action code.
type ControlAction uint8

const (
	ControlCommit         ControlAction = 0x01
	ControlCancel         ControlAction = 0x02
	ControlRevertDefaults ControlAction = 0x03
	ControlRefreshTimer   ControlAction = 0x04
	ControlCancelReboot   ControlAction = 0x05
)

func DevControlCommand(a Addr, tran uint8, securityCode uint16, action ControlAction) (Packet, error) {
	return build(frame.NewLinkHeader(a.Dst, a.Src, frame.ProtoPakCtrl),
		protocol.Byte(MsgDevControl),
		protocol.Byte(tran),
		protocol.UInt2(securityCode),
		protocol.Byte(uint8(action)),
	)
}

// GetSettingsResponse lists the settings a device reported.
type GetSettingsResponse struct {
	Outcome      uint8
	DeviceType   uint16
	MajorVersion uint8
	MinorVersion uint8
	MoreSettings bool
	Settings     []Setting
}

// SettingStatus is the per-setting outcome of a set-settings command.
type SettingStatus struct {
	ID      uint16
	Outcome uint8
}

type SetSettingsResponse struct {
	Outcome  uint8
	Statuses []SettingStatus
}

type DevControlResponse struct {
	Outcome uint8
}

func decodeHello(c *protocol.Cursor) (any, error) {
	h := Hello{IsRouter: c.Byte(), HopMetric: c.Byte(), VerifyIntv: c.UInt2()}
	return h, c.Err()
}

func decodeGetSettings(c *protocol.Cursor) (any, error) {
	resp := GetSettingsResponse{Outcome: c.Byte()}
	if resp.Outcome != 1 {
		return resp, c.Err()
	}
	resp.DeviceType = c.UInt2()
	resp.MajorVersion = c.Byte()
	resp.MinorVersion = c.Byte()
	resp.MoreSettings = c.Byte() != 0
	for c.Err() == nil && c.Len() > 0 {
		id := c.UInt2()
		flags := c.UInt2()
		value := c.Bytes(int(flags & 0x3FFF))
		if c.Err() != nil {
			break
		}
		resp.Settings = append(resp.Settings, Setting{ID: id, ReadOnly: flags&0x4000 != 0, Value: value})
	}
	return resp, c.Err()
}

func decodeSetSettings(c *protocol.Cursor) (any, error) {
	resp := SetSettingsResponse{Outcome: c.Byte()}
	for c.Err() == nil && c.Len() >= 3 {
		resp.Statuses = append(resp.Statuses, SettingStatus{ID: c.UInt2(), Outcome: c.Byte()})
	}
	return resp, c.Err()
}

func decodeDevControl(c *protocol.Cursor) (any, error) {
	resp := DevControlResponse{Outcome: c.Byte()}
	return resp, c.Err()
}

func build(hdr frame.LinkHeader, values ...protocol.Value) (Packet, error) {
	if err := hdr.Validate(); err != nil {
		return Packet{}, err
	}
	body, err := protocol.EncodeValues(values...)
	if err != nil {
		return Packet{}, err
	}
	return Packet{Header: hdr, Body: body}, nil
}

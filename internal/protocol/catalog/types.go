package catalog

import (
	"github.com/danmuck/dataplex/internal/protocol/frame"
)

// Message type codes. Command and response codes share a namespace per
// protocol; responses set the high bit.
const (
	MsgDeliveryFailure     uint8 = 0x81
	MsgHello               uint8 = 0x09
	MsgHelloResponse       uint8 = 0x89
	MsgBye                 uint8 = 0x0d
	MsgGetSettings         uint8 = 0x0f
	MsgGetSettingsResponse uint8 = 0x8f
	MsgSetSettings         uint8 = 0x10
	MsgSetSettingsResponse uint8 = 0x90
	MsgDevControl          uint8 = 0x13
	MsgDevControlResponse  uint8 = 0x93

	MsgCollectData          uint8 = 0x09
	MsgCollectDataResponse  uint8 = 0x89
	MsgClock                uint8 = 0x17
	MsgClockResponse        uint8 = 0x97
	MsgGetProgStats         uint8 = 0x18
	MsgGetProgStatsResponse uint8 = 0x98
	MsgGetValues            uint8 = 0x1a
	MsgGetValuesResponse    uint8 = 0x9a
	MsgFileDownload         uint8 = 0x1c
	MsgFileDownloadResponse uint8 = 0x9c
	MsgFileUpload           uint8 = 0x1d
	MsgFileUploadResponse   uint8 = 0x9d
	MsgFileControl          uint8 = 0x1e
	MsgFileControlResponse  uint8 = 0x9e
	MsgPleaseWait           uint8 = 0xa1
)

// Addr names the two ends of a transaction by PakBus node id.
type Addr struct {
	Dst uint16
	Src uint16
}

// Reply swaps source and destination.
func (a Addr) Reply() Addr {
	return Addr{Dst: a.Src, Src: a.Dst}
}

// Key selects a decoder.
type Key struct {
	Proto uint8
	Type  uint8
}

// Packet is an unsigned link header + message body.
type Packet struct {
	Header frame.LinkHeader
	Body   []byte
}

// Bytes returns the header followed by the body.
func (p Packet) Bytes() []byte {
	out := frame.AppendHeader(make([]byte, 0, frame.HeaderLen+len(p.Body)), p.Header)
	return append(out, p.Body...)
}

// MsgType returns the message type, or 0 for header-only link packets.
func (p Packet) MsgType() uint8 {
	if len(p.Body) == 0 {
		return 0
	}
	return p.Body[0]
}

// TranNbr returns the transaction number, or 0 when the body has none.
func (p Packet) TranNbr() uint8 {
	if len(p.Body) < 2 {
		return 0
	}
	return p.Body[1]
}

// Message is a decoded inbound packet.
type Message struct {
	Header  frame.LinkHeader
	Type    uint8
	TranNbr uint8
	// Raw is the message body after the link header, type and tran nbr
	// included.
	Raw []byte
	// Body holds the typed decode for catalogued messages, nil otherwise.
	Body any
}

func (m Message) Key() Key {
	return Key{Proto: m.Header.HiProtoCode, Type: m.Type}
}
